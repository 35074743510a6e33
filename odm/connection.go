package odm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"foundry/metrics"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Connection is the application's database connection.
type Connection struct {
	manager *ConnectionManager
	driver  Driver
	logger  *zap.SugaredLogger

	mu      sync.RWMutex
	session Session
}

func (c *Connection) Driver() Driver {
	return c.driver
}

// Connect opens a session through the driver, pings it and ensures the indexes of every
// imported document. When opts.ConnectTimeout is set it bounds the whole sequence.
func (c *Connection) Connect(ctx context.Context, opts ConnectionOptions) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return ErrAlreadyConnected
	}

	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.ODMConnections.WithLabelValues(c.driver.Name(), result).Inc()
	}()

	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	session, err := c.driver.Open(ctx, opts)
	if err != nil {
		return err
	}
	if err := session.Ping(ctx); err != nil {
		return errors.Join(err, session.Close(context.WithoutCancel(ctx)))
	}
	for _, doc := range c.manager.Documents() {
		if err := session.EnsureIndexes(ctx, doc.Collection, doc.Indexes); err != nil {
			return errors.Join(err, session.Close(context.WithoutCancel(ctx)))
		}
	}

	c.session = session
	c.logger.Infof("Connected to %s database %s", c.driver.Name(), opts.Database)
	return nil
}

func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil
}

// Session returns the open session.
func (c *Connection) Session() (Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil, ErrNotConnected
	}
	return c.session, nil
}

// Collection returns the MongoDB collection backing a document. Other drivers return
// ErrUnsupported.
func (c *Connection) Collection(document string) (*mongo.Collection, error) {
	doc, err := c.manager.Document(document)
	if err != nil {
		return nil, err
	}
	session, err := c.Session()
	if err != nil {
		return nil, err
	}
	mongoSession, ok := session.(*MongoSession)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no collections", ErrUnsupported, c.driver.Name())
	}
	return mongoSession.Collection(doc.Collection), nil
}

// Validate checks v against the schema of document.
func (c *Connection) Validate(document string, v any) error {
	doc, err := c.manager.Document(document)
	if err != nil {
		return err
	}
	return doc.Validate(v)
}

// Insert validates v, stores it in the document's collection and dispatches an insert event.
func (c *Connection) Insert(ctx context.Context, document string, v any) (any, error) {
	doc, err := c.manager.Document(document)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(v); err != nil {
		return nil, err
	}
	session, err := c.Session()
	if err != nil {
		return nil, err
	}
	id, err := session.Insert(ctx, doc.Collection, v)
	if err != nil {
		return nil, err
	}
	if err := c.Dispatch(ctx, Event{Type: EventInsert, Document: doc.Name, ID: id, Data: v}); err != nil {
		return id, err
	}
	return id, nil
}

// Dispatch delivers e to every subscriber of its document and event type, in import order.
// All subscribers run; their errors are joined.
func (c *Connection) Dispatch(ctx context.Context, e Event) error {
	var errs []error
	for _, sub := range c.manager.Subscribers() {
		if !sub.Wants(e) {
			continue
		}
		result := "success"
		if err := sub.fn(ctx, e); err != nil {
			result = "error"
			c.logger.Warnw("Subscriber failed", "subscriber", sub.Name, "document", e.Document, "event", e.Type, "error", err)
			errs = append(errs, fmt.Errorf("subscriber %s: %w", sub.Name, err))
		}
		metrics.ODMEventsDispatched.WithLabelValues(e.Document, e.Type, result).Inc()
	}
	return errors.Join(errs...)
}

// Close closes the session. Closing an unopened connection is a no-op.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close(ctx)
	c.session = nil
	return err
}
