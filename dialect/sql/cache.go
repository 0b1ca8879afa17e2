package sql

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/syssam/strata/schema"
)

// definitions caches introspected table definitions keyed by physical
// table name. Concurrent loads of one table share a single introspection.
type definitions struct {
	mu    sync.RWMutex
	defs  map[string]*schema.Definition
	group singleflight.Group
}

func newDefinitions() *definitions {
	return &definitions{defs: make(map[string]*schema.Definition)}
}

func (c *definitions) get(table string) (*schema.Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[table]
	return def, ok
}

func (c *definitions) put(table string, def *schema.Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[table] = def
}

// invalidate drops the given tables, or every table when none is given.
func (c *definitions) invalidate(tables ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(tables) == 0 {
		clear(c.defs)
		return
	}
	for _, t := range tables {
		delete(c.defs, t)
	}
}

// load returns the cached definition of table or loads it with fn.
func (c *definitions) load(ctx context.Context, table string, fn func(context.Context) (*schema.Definition, error)) (*schema.Definition, error) {
	if def, ok := c.get(table); ok {
		return def, nil
	}
	v, err, _ := c.group.Do(table, func() (any, error) {
		if def, ok := c.get(table); ok {
			return def, nil
		}
		def, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.put(table, def)
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.Definition), nil
}
