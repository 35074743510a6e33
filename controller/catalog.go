// Package controller loads controllers described by manifest files. A controller is Go code
// registered in a Catalog under a name; a manifest selects it, scopes it under a path prefix and
// passes it options. Loading a manifest runs the controller's Factory against the action
// registry.
package controller

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"foundry/action"

	"github.com/go-viper/mapstructure/v2"
)

var (
	ErrUnknownController   = errors.New("unknown controller")
	ErrDuplicateController = errors.New("controller already registered")
)

// Options holds the free-form options of a manifest.
type Options map[string]any

// Decode decodes the options into out. Values are converted weakly, so "10" decodes into an int.
func (o Options) Decode(out any) error {
	if len(o) == 0 {
		return nil
	}
	if err := mapstructure.WeakDecode(map[string]any(o), out); err != nil {
		return fmt.Errorf("invalid controller options: %w", err)
	}
	return nil
}

// Factory registers the actions of a controller. The registrar is already scoped to the
// manifest prefix.
type Factory func(reg action.Registrar, m Manifest) error

// Catalog maps controller names to factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (c *Catalog) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return errors.New("controller name and factory are required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateController, name)
	}
	c.factories[name] = f
	return nil
}

// MustRegister is Register that panics on error. Use it from init-time wiring only.
func (c *Catalog) MustRegister(name string, f Factory) {
	if err := c.Register(name, f); err != nil {
		panic(err)
	}
}

func (c *Catalog) Lookup(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[name]
	return f, ok
}

// Names returns the registered controller names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
