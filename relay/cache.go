package relay

import "sync"

// Cache holds the most recent complete frame so a freshly connected viewer
// has something to show before the next broadcast. Readers see either
// nothing or one fully formed frame, never a partial one.
type Cache struct {
	mu     sync.Mutex
	latest []byte
}

// Store replaces the cached frame.
func (c *Cache) Store(f []byte) {
	c.mu.Lock()
	c.latest = f
	c.mu.Unlock()
}

// Latest returns the cached frame, or nil if no frame has arrived yet.
// Frames are immutable once extracted so the slice is returned as is.
func (c *Cache) Latest() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}
