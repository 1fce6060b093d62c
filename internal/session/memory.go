package session

import (
	"context"
	"sync"
)

// MemoryCache holds the latest known record per session in process. It is
// created once at start-up and shared by the Store; tests reset it with Clear.
type MemoryCache struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{records: make(map[string]*Record)}
}

func (c *MemoryCache) Get(id string) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (c *MemoryCache) Put(rec *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.SessionID] = rec.Clone()
}

// putIfAbsent stores rec unless a record exists and reports whether it stored.
func (c *MemoryCache) putIfAbsent(rec *Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[rec.SessionID]; ok {
		return false
	}
	c.records[rec.SessionID] = rec.Clone()
	return true
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]*Record)
}

// MemoryBackend serves sessions from a MemoryCache only. Nothing survives a restart.
type MemoryBackend struct {
	cache *MemoryCache
}

func NewMemoryBackend(cache *MemoryCache) *MemoryBackend {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &MemoryBackend{cache: cache}
}

func (m *MemoryBackend) Name() string { return BackendMemory }

func (m *MemoryBackend) Get(_ context.Context, id string) (*Record, error) {
	rec, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryBackend) Create(_ context.Context, rec *Record) (bool, error) {
	return m.cache.putIfAbsent(rec), nil
}

func (m *MemoryBackend) Upsert(_ context.Context, rec *Record) error {
	m.cache.Put(rec)
	return nil
}
