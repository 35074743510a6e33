package bootstrap

import (
	"context"

	"foundry/controller"
)

// LoadControllers requires every controller manifest into the action registry without binding
// anything to HTTP. Run calls it during the controllers phase; manifests are only loaded once.
func (b *Bootstrap) LoadControllers() error {
	b.loadOnce.Do(func() {
		loader := controller.NewLoader(b.catalog, b.registry, b.logger.Named("controller"))
		loader.SkipMissing = !b.paths.controllers.explicit
		if err := loader.RequireAll(b.paths.controllers.paths); err != nil {
			b.loadErr = err
			return
		}
		b.mu.Lock()
		b.controllers = loader.Loaded()
		b.mu.Unlock()
	})
	return b.loadErr
}

// setupControllers loads the controller manifests, hands the container to the action registry
// and binds every registered action to the HTTP application.
func (b *Bootstrap) setupControllers(_ context.Context) error {
	if err := b.LoadControllers(); err != nil {
		return err
	}

	b.mu.RLock()
	app := b.app
	b.mu.RUnlock()

	b.registry.SetContainer(b.container)
	return b.registry.RegisterActions(app)
}
