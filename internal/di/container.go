// Package di provides a minimal service container with typed tokens.
// Modules register factories under tokens at startup; resolution is lazy
// and memoized. This is deliberately simple - no lifecycles, no scopes.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the read side of the container.
type ServiceRegistry interface {
	// Get returns the service registered under name, resolving its
	// factory on first access. Panics if the name is unknown.
	Get(name string) any

	// Has reports whether a service or factory is registered under name.
	Has(name string) bool
}

// Container is the full container interface used during module registration.
type Container interface {
	ServiceRegistry

	// Register stores an already-constructed service instance.
	Register(name string, service any)

	// RegisterFactory stores a factory invoked lazily on first Get.
	RegisterFactory(name string, factory func(ServiceRegistry) any)
}

type container struct {
	mu        sync.RWMutex
	services  map[string]any
	factories map[string]func(ServiceRegistry) any
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{
		services:  make(map[string]any),
		factories: make(map[string]func(ServiceRegistry) any),
	}
}

func (c *container) Register(name string, service any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = service
}

func (c *container) RegisterFactory(name string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

func (c *container) Get(name string) any {
	c.mu.RLock()
	if svc, ok := c.services[name]; ok {
		c.mu.RUnlock()
		return svc
	}
	factory, ok := c.factories[name]
	c.mu.RUnlock()

	if !ok {
		panic(fmt.Sprintf("di: service %q not registered", name))
	}

	// Resolve outside the lock; factories may Get their own dependencies.
	svc := factory(c)

	c.mu.Lock()
	c.services[name] = svc
	c.mu.Unlock()

	return svc
}

func (c *container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.services[name]; ok {
		return true
	}
	_, ok := c.factories[name]
	return ok
}
