package loader

import (
	"sort"
	"sync"
	"time"
)

// StringLoader serves templates registered in memory. It is safe for
// concurrent use.
type StringLoader struct {
	mu      sync.RWMutex
	entries map[string]literal
	last    time.Time
}

type literal struct {
	source string
	added  time.Time
}

// NewStringLoader creates an empty loader.
func NewStringLoader() *StringLoader {
	return &StringLoader{entries: make(map[string]literal)}
}

// Add registers source under name and returns its modification time.
// Times are strictly increasing at millisecond resolution, so replacing a
// template always changes its fingerprint. Adding the source a name already
// holds keeps the old time.
func (l *StringLoader) Add(name, source string) time.Time {
	name = CleanName(name)
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[name]; ok && e.source == source {
		return e.added
	}
	now := time.Now().Truncate(time.Millisecond)
	if !now.After(l.last) {
		now = l.last.Add(time.Millisecond)
	}
	l.last = now
	l.entries[name] = literal{source: source, added: now}
	return now
}

// Remove deletes name and reports whether it was present.
func (l *StringLoader) Remove(name string) bool {
	name = CleanName(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[name]
	delete(l.entries, name)
	return ok
}

// Has reports whether name is registered.
func (l *StringLoader) Has(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[CleanName(name)]
	return ok
}

func (l *StringLoader) Load(name, encoding string) (*Resource, error) {
	name = CleanName(name)
	l.mu.RLock()
	e, ok := l.entries[name]
	l.mu.RUnlock()
	if !ok {
		return nil, notFound(name)
	}
	return NewTextResource(name, encoding, e.added, e.source), nil
}

func (l *StringLoader) List() ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
