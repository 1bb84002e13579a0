// Package querycache keeps parsed and validated query documents keyed by
// their source text so repeated queries skip parsing and validation.
package querycache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	eventbus "github.com/kotoba/kotoba-server/internal/eventbus"
	events "github.com/kotoba/kotoba-server/internal/events"
	language "github.com/kotoba/kotoba-server/internal/language"
)

// Document is a parsed query together with its syntax or validation errors.
// A Document with errors has no executable Query.
type Document struct {
	Query  *language.QueryDocument
	Errors language.ErrorList
}

// BuildFunc parses and validates source.
type BuildFunc func(source string) Document

// Cache is a bounded document cache. A nil *Cache builds every document.
type Cache struct {
	docs *ristretto.Cache[string, Document]
}

// New returns a cache holding up to size documents. size <= 0 returns nil,
// which disables caching.
func New(size int64) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	docs, err := ristretto.NewCache(&ristretto.Config[string, Document]{
		NumCounters:        size * 10,
		MaxCost:            size,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("querycache: %w", err)
	}
	return &Cache{docs: docs}, nil
}

// Load returns the document for source, calling build on a miss.
func (c *Cache) Load(ctx context.Context, source string, build BuildFunc) Document {
	if c == nil {
		return build(source)
	}
	if doc, ok := c.docs.Get(source); ok {
		eventbus.Publish(ctx, events.DocumentLookup{Hit: true})
		return doc
	}
	eventbus.Publish(ctx, events.DocumentLookup{Hit: false})
	doc := build(source)
	c.docs.Set(source, doc, 1)
	return doc
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	if c != nil {
		c.docs.Close()
	}
}
