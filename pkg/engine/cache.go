package engine

import (
	"container/list"
	"sync"
	"time"

	"github.com/leapstack-labs/quill/pkg/template"
)

// Cache maps template names to compiled templates. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(name string) (*template.Template, bool)
	Put(name string, t *template.Template)
	Remove(name string)
	Clear()
	Len() int
}

// MapCache is an unbounded cache.
type MapCache struct {
	m sync.Map
}

// NewMapCache creates an empty unbounded cache.
func NewMapCache() *MapCache { return &MapCache{} }

func (c *MapCache) Get(name string) (*template.Template, bool) {
	v, ok := c.m.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*template.Template), true
}

func (c *MapCache) Put(name string, t *template.Template) { c.m.Store(name, t) }

func (c *MapCache) Remove(name string) { c.m.Delete(name) }

func (c *MapCache) Clear() { c.m.Clear() }

func (c *MapCache) Len() int {
	n := 0
	c.m.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// NopCache stores nothing, so every request goes back to the loader. The
// assembler still returns the same template for an unchanged resource.
type NopCache struct{}

func (NopCache) Get(string) (*template.Template, bool) { return nil, false }
func (NopCache) Put(string, *template.Template)        {}
func (NopCache) Remove(string)                         {}
func (NopCache) Clear()                                {}
func (NopCache) Len() int                              { return 0 }

// LRUCache holds at most a fixed number of templates, evicting the least
// recently used. Entries older than the TTL are dropped on access.
type LRUCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	size    int
	ttl     time.Duration
	now     func() time.Time
}

type lruEntry struct {
	name     string
	template *template.Template
	expiry   time.Time
}

// NewLRUCache creates a cache of the given size. A ttl of 0 never expires
// entries.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size < 1 {
		size = 1
	}
	return &LRUCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		size:    size,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *LRUCache) Get(name string) (*template.Template, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	e := el.Value.(*lruEntry)
	if c.ttl > 0 && c.now().After(e.expiry) {
		c.remove(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.template, true
}

func (c *LRUCache) Put(name string, t *template.Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expiry time.Time
	if c.ttl > 0 {
		expiry = c.now().Add(c.ttl)
	}
	if el, ok := c.entries[name]; ok {
		e := el.Value.(*lruEntry)
		e.template, e.expiry = t, expiry
		c.order.MoveToFront(el)
		return
	}
	for c.order.Len() >= c.size {
		c.remove(c.order.Back())
	}
	c.entries[name] = c.order.PushFront(&lruEntry{name: name, template: t, expiry: expiry})
}

func (c *LRUCache) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[name]; ok {
		c.remove(el)
	}
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*lruEntry).name)
}
