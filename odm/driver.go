package odm

import (
	"context"
	"time"

	"foundry/config"
)

// Driver opens sessions against a database.
type Driver interface {
	Name() string
	Open(ctx context.Context, opts ConnectionOptions) (Session, error)
}

// Session is an open database session.
type Session interface {
	Ping(ctx context.Context) error
	EnsureIndexes(ctx context.Context, collection string, indexes []Index) error
	Insert(ctx context.Context, collection string, value any) (id any, err error)
	Close(ctx context.Context) error
}

// DriverFactory creates a driver by name.
type DriverFactory func() Driver

// ConnectionOptions are handed to the driver when a connection is opened. URI takes precedence;
// the remaining fields override what the URI sets.
type ConnectionOptions struct {
	URI            string
	Host           string
	Port           int
	Database       string
	Username       string
	Password       string
	AuthSource     string
	AppName        string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

func NewConnectionOptions(cfg config.ODMConfig) ConnectionOptions {
	return ConnectionOptions{
		URI:            cfg.URI,
		Host:           cfg.Host,
		Port:           cfg.Port,
		Database:       cfg.Database,
		Username:       cfg.Username,
		Password:       cfg.Password,
		AuthSource:     cfg.AuthSource,
		AppName:        cfg.AppName,
		MaxPoolSize:    cfg.MaxPoolSize,
		ConnectTimeout: cfg.ConnectTimeout,
	}
}
