package bootstrap

import (
	"context"

	"foundry/di"
	"foundry/odm"
)

// setupODM takes the shared connection manager from the container, registers the configured
// driver, imports documents and subscribers and connects. Only mongodb is built in; an unknown
// driver name registers nothing and GetConnection fails with odm.ErrNoConnection.
func (b *Bootstrap) setupODM(ctx context.Context) error {
	cfg, err := b.config.ODM()
	if err != nil {
		return err
	}

	manager, err := di.Get[*odm.ConnectionManager](ctx, b.container)
	if err != nil {
		return err
	}
	manager.SetContainer(b.container)

	b.mu.Lock()
	b.odmManager = manager
	b.mu.Unlock()

	if factory, ok := b.drivers[cfg.Driver]; ok {
		manager.AddConnection(factory())
	} else {
		b.logger.Warnf("No ODM driver named %q, no connection registered", cfg.Driver)
	}

	manager.SkipMissing = !b.paths.documents.explicit
	if err := manager.ImportDocumentsFromDirectories(b.paths.documents.paths); err != nil {
		return err
	}
	manager.SkipMissing = !b.paths.subscribers.explicit
	if err := manager.ImportSubscribersFromDirectories(b.paths.subscribers.paths); err != nil {
		return err
	}

	conn, err := manager.GetConnection()
	if err != nil {
		return err
	}
	if err := conn.Connect(ctx, odm.NewConnectionOptions(cfg)); err != nil {
		return err
	}

	b.mu.RLock()
	health := b.health
	b.mu.RUnlock()
	if health != nil {
		health.AddCheck("odm", func(ctx context.Context) error {
			session, err := conn.Session()
			if err != nil {
				return err
			}
			return session.Ping(ctx)
		})
	}
	return nil
}
