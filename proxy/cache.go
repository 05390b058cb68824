package proxy

import (
	"sync"

	"go.uber.org/zap"

	"objbridge/schema"
)

// Cache holds one Type per class identity for the lifetime of a session.
type Cache struct {
	convertCamelCase bool
	logger           *zap.Logger

	mu    sync.RWMutex
	types map[string]*Type
}

// NewCache returns an empty cache.
func NewCache(convertCamelCase bool, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.L()
	}
	return &Cache{
		convertCamelCase: convertCamelCase,
		logger:           logger,
		types:            make(map[string]*Type),
	}
}

// Get returns the cached Type for desc.Class, synthesizing it on first use.
func (c *Cache) Get(desc schema.TypeDescription) *Type {
	c.mu.RLock()
	t, ok := c.types[desc.Class]
	c.mu.RUnlock()
	if ok {
		return t
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.types[desc.Class]; ok {
		return t
	}
	t = Synthesize(desc, c.convertCamelCase)
	c.types[desc.Class] = t
	c.logger.Debug("proxy type synthesized",
		zap.String("class", desc.Class),
		zap.Int("fields", len(desc.Fields)),
		zap.Int("methods", len(t.order)))
	return t
}

// Lookup returns the cached Type for class, if any.
func (c *Cache) Lookup(class string) (*Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[class]
	return t, ok
}

// Len returns the number of cached types.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.types)
}

// Reset drops every cached type.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.types = make(map[string]*Type)
	c.mu.Unlock()
}
