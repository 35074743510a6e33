// Package odm maps documents described by manifest files onto a database connection. The
// ConnectionManager owns the document and subscriber definitions and the single connection of
// an application; drivers supply the database sessions.
package odm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"foundry/di"
	"foundry/util/manifest"

	"go.uber.org/zap"
)

// ConnectionManager holds the imported documents and subscribers and the application connection.
type ConnectionManager struct {
	mu          sync.RWMutex
	container   *di.Container
	connection  *Connection
	documents   map[string]*Document
	docOrder    []string
	subscribers []*Subscriber
	handlers    map[string]SubscriberFunc
	logger      *zap.SugaredLogger

	// SkipMissing makes the Import methods ignore directories that do not exist.
	SkipMissing bool
}

func NewConnectionManager(logger *zap.SugaredLogger) *ConnectionManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ConnectionManager{
		documents: make(map[string]*Document),
		handlers:  make(map[string]SubscriberFunc),
		logger:    logger,
	}
}

func (m *ConnectionManager) SetContainer(c *di.Container) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.container = c
}

func (m *ConnectionManager) Container() *di.Container {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.container
}

// AddConnection registers the connection opened through driver, replacing any previous one.
func (m *ConnectionManager) AddConnection(driver Driver) *Connection {
	conn := &Connection{manager: m, driver: driver, logger: m.logger.With("driver", driver.Name())}
	m.mu.Lock()
	m.connection = conn
	m.mu.Unlock()
	m.logger.Debugf("Registered %s connection", driver.Name())
	return conn
}

// GetConnection returns the registered connection, or ErrNoConnection.
func (m *ConnectionManager) GetConnection() (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.connection == nil {
		return nil, ErrNoConnection
	}
	return m.connection, nil
}

// RegisterSubscriber makes fn available to subscriber manifests under name.
func (m *ConnectionManager) RegisterSubscriber(name string, fn SubscriberFunc) error {
	if name == "" || fn == nil {
		return errors.New("subscriber name and handler are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.handlers[name]; exists {
		return fmt.Errorf("subscriber handler %s already registered", name)
	}
	m.handlers[name] = fn
	return nil
}

// ImportDocumentsFromDirectories loads every document manifest under paths. Document names must
// be unique.
func (m *ConnectionManager) ImportDocumentsFromDirectories(paths []string) error {
	return m.importFrom(paths, "document", func(f manifest.File) error {
		doc, err := loadDocument(f)
		if err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if prev, exists := m.documents[doc.Name]; exists {
			return fmt.Errorf("document %s in %s is already defined in %s", doc.Name, f.Path, prev.Path)
		}
		m.documents[doc.Name] = doc
		m.docOrder = append(m.docOrder, doc.Name)
		m.logger.Debugw("Document imported", "document", doc.Name, "collection", doc.Collection, "manifest", f.Path)
		return nil
	})
}

// ImportSubscribersFromDirectories loads every subscriber manifest under paths. The document
// must already be imported and the handler registered.
func (m *ConnectionManager) ImportSubscribersFromDirectories(paths []string) error {
	return m.importFrom(paths, "subscriber", func(f manifest.File) error {
		sub, err := loadSubscriber(f)
		if err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.documents[sub.Document]; !ok {
			return fmt.Errorf("subscriber %s (%s): %w %q", sub.Name, f.Path, ErrUnknownDocument, sub.Document)
		}
		fn, ok := m.handlers[sub.Handler]
		if !ok {
			return fmt.Errorf("subscriber %s (%s): %w %q", sub.Name, f.Path, ErrUnknownHandler, sub.Handler)
		}
		sub.fn = fn
		m.subscribers = append(m.subscribers, sub)
		m.logger.Debugw("Subscriber imported", "subscriber", sub.Name, "document", sub.Document, "events", sub.Events)
		return nil
	})
}

func (m *ConnectionManager) importFrom(paths []string, kind string, load func(manifest.File) error) error {
	count := 0
	for _, dir := range paths {
		files, err := manifest.Files(dir)
		if err != nil {
			if m.SkipMissing && errors.Is(err, fs.ErrNotExist) {
				m.logger.Debugf("%s directory %s does not exist, skipping", kind, dir)
				continue
			}
			return err
		}
		for _, f := range files {
			if err := load(f); err != nil {
				return err
			}
			count++
		}
	}
	m.logger.Infof("Imported %d %s definitions", count, kind)
	return nil
}

// Documents returns the imported documents in import order.
func (m *ConnectionManager) Documents() []*Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]*Document, 0, len(m.docOrder))
	for _, name := range m.docOrder {
		docs = append(docs, m.documents[name])
	}
	return docs
}

func (m *ConnectionManager) Document(name string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDocument, name)
	}
	return doc, nil
}

// Subscribers returns the imported subscribers in import order.
func (m *ConnectionManager) Subscribers() []*Subscriber {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Subscriber, len(m.subscribers))
	copy(out, m.subscribers)
	return out
}

// Close closes the connection, if one is open.
func (m *ConnectionManager) Close(ctx context.Context) error {
	m.mu.RLock()
	conn := m.connection
	m.mu.RUnlock()
	if conn == nil {
		return nil
	}
	return conn.Close(ctx)
}
