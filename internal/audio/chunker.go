package audio

import "sync"

// chunker accumulates bytes between flushes.
type chunker struct {
	mu  sync.Mutex
	buf []byte
}

func (c *chunker) Write(p []byte) {
	c.mu.Lock()
	c.buf = append(c.buf, p...)
	c.mu.Unlock()
}

// Flush returns everything written since the last flush, or nil.
func (c *chunker) Flush() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) == 0 {
		return nil
	}
	out := c.buf
	c.buf = nil
	return out
}
