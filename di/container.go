// Package di is a typed singleton container. Each type has at most one provider; the first Get
// builds the instance and later calls return the cached value.
package di

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Provider builds the instance of T. Providers that depend on other types must resolve them with
// the ctx they were given so that cycles are detected.
type Provider[T any] func(ctx context.Context, c *Container) (T, error)

type entry struct {
	key   string
	name  string
	build func(ctx context.Context, c *Container) (any, error)
}

type Container struct {
	mu        sync.RWMutex
	entries   map[reflect.Type]*entry
	instances map[reflect.Type]any
	order     []reflect.Type
	next      int

	sf singleflight.Group
}

func New() *Container {
	return &Container{
		entries:   make(map[reflect.Type]*entry),
		instances: make(map[reflect.Type]any),
	}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Provide registers the provider for T, replacing any earlier one. An instance already built for
// T is kept until Close.
func Provide[T any](c *Container, p Provider[T]) {
	t := typeOf[T]()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.entries[t] = &entry{
		key:  strconv.Itoa(c.next),
		name: t.String(),
		build: func(ctx context.Context, c *Container) (any, error) {
			return p(ctx, c)
		},
	}
}

// Set registers an already built instance for T. The container does not close it.
func Set[T any](c *Container, v T) {
	t := typeOf[T]()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.entries[t] = &entry{key: strconv.Itoa(c.next), name: t.String()}
	c.instances[t] = v
}

// Has reports whether T can be resolved.
func Has[T any](c *Container) bool {
	t := typeOf[T]()
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[t]
	return ok
}

// Get returns the singleton instance of T, building it on first use. Concurrent first calls share
// a single build.
func Get[T any](ctx context.Context, c *Container) (T, error) {
	var zero T
	v, err := c.resolve(ctx, typeOf[T]())
	if err != nil {
		return zero, err
	}
	typed, _ := v.(T)
	return typed, nil
}

// MustGet is Get for wiring code where a missing dependency is a programming error.
func MustGet[T any](ctx context.Context, c *Container) T {
	v, err := Get[T](ctx, c)
	if err != nil {
		panic(err)
	}
	return v
}

func (c *Container) resolve(ctx context.Context, t reflect.Type) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	withStack, err := pushResolveStack(ctx, t)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	cached, ok := c.instances[t]
	e := c.entries[t]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}
	if e == nil {
		return nil, NotFoundError{Type: t.String()}
	}

	v, err, _ := c.sf.Do(e.key, func() (any, error) {
		c.mu.RLock()
		cachedAgain, ok := c.instances[t]
		c.mu.RUnlock()
		if ok {
			return cachedAgain, nil
		}

		instance, err := e.build(withStack, c)
		if err != nil {
			return nil, ProviderError{Type: e.name, Err: err}
		}

		c.mu.Lock()
		c.instances[t] = instance
		c.order = append(c.order, t)
		c.mu.Unlock()
		return instance, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Types lists the registered type names in sorted order.
func (c *Container) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// Close closes every instance the container built, in reverse build order. Instances implementing
// io.Closer or Close(context.Context) error are closed; errors are joined. After Close the next Get
// builds a fresh instance.
func (c *Container) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	order := c.order
	built := make(map[reflect.Type]any, len(order))
	for _, t := range order {
		built[t] = c.instances[t]
		delete(c.instances, t)
	}
	c.order = nil
	c.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		t := order[i]
		switch closer := built[t].(type) {
		case interface{ Close(context.Context) error }:
			if err := closer.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", t, err))
			}
		case io.Closer:
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", t, err))
			}
		}
	}
	return errors.Join(errs...)
}

type resolveStackContextKey struct{}

func pushResolveStack(ctx context.Context, current reflect.Type) (context.Context, error) {
	stack, _ := ctx.Value(resolveStackContextKey{}).([]reflect.Type)
	for i := range stack {
		if stack[i] == current {
			path := make([]string, 0, len(stack)-i+1)
			for _, t := range stack[i:] {
				path = append(path, t.String())
			}
			path = append(path, current.String())
			return nil, CycleError{Path: path}
		}
	}
	next := make([]reflect.Type, 0, len(stack)+1)
	next = append(next, stack...)
	next = append(next, current)
	return context.WithValue(ctx, resolveStackContextKey{}, next), nil
}
