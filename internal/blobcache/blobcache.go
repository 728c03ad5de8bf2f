// Package blobcache keeps large assembled blobs in memory only while
// someone holds them. Concurrent acquirers of the same key share one build
// and one buffer; the buffer is dropped when the last handle is released.
package blobcache

import "sync"

type entry struct {
	once sync.Once
	buf  []byte
	err  error
	refs int
}

// Cache maps keys to reference-counted byte blobs.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Handle is a live reference to a cached blob. Release it when done; the
// bytes must not be used afterwards.
type Handle struct {
	c   *Cache
	key string
	e   *entry
}

// Bytes returns the cached blob. Callers must not modify it.
func (h *Handle) Bytes() []byte { return h.e.buf }

// Release drops this reference. The blob is evicted once no handles remain.
// Safe to call once per handle.
func (h *Handle) Release() {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	h.e.refs--
	if h.e.refs <= 0 && h.c.entries[h.key] == h.e {
		delete(h.c.entries, h.key)
	}
}

// Acquire returns a handle to the blob for key, invoking build at most once
// per cache residency. A failed build is not cached; the next Acquire
// retries it.
func (c *Cache) Acquire(key string, build func() ([]byte, error)) (*Handle, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	e.refs++
	c.mu.Unlock()

	e.once.Do(func() { e.buf, e.err = build() })

	if e.err != nil {
		c.mu.Lock()
		e.refs--
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, e.err
	}
	return &Handle{c: c, key: key, e: e}, nil
}

// Len reports how many blobs are currently resident.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
