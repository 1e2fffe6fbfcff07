// Package source holds the page-scoped copy of a page's wikitext.
package source

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// LoadFunc fetches the full source of the page.
type LoadFunc func(ctx context.Context) (string, error)

// Cache is the single authoritative copy of one page's source for the
// lifetime of a page view. It is loaded at most once successfully and is
// only changed by Commit after a confirmed write.
type Cache struct {
	mu     sync.Mutex
	text   string
	loaded bool
	flight singleflight.Group
}

// Load fills the cache on first use. Concurrent callers share one fetch,
// made with the first caller's ctx. A failed load leaves the cache empty
// so a later attempt can retry.
func (c *Cache) Load(ctx context.Context, load LoadFunc) error {
	if c.Loaded() {
		return nil
	}
	_, err, _ := c.flight.Do("source", func() (any, error) {
		if c.Loaded() {
			return nil, nil
		}
		text, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.loaded {
			c.text = text
			c.loaded = true
		}
		return nil, nil
	})
	return err
}

// Loaded reports whether the source is cached.
func (c *Cache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Text returns the cached source.
func (c *Cache) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Commit records text as the new source after the store accepted it.
func (c *Cache) Commit(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	c.loaded = true
}

// Replace returns doc with the first occurrence of old replaced by repl.
// An empty repl also consumes the line breaks immediately after old, so a
// deleted line leaves no blank line behind. ok is false when old is empty
// or not in doc.
func Replace(doc, old, repl string) (string, bool) {
	if old == "" {
		return doc, false
	}
	i := strings.Index(doc, old)
	if i < 0 {
		return doc, false
	}
	end := i + len(old)
	if repl == "" {
		for end < len(doc) && (doc[end] == '\r' || doc[end] == '\n') {
			end++
		}
	}
	return doc[:i] + repl + doc[end:], true
}
