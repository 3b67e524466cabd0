// Package notify holds the most recent "session started" notification so a
// window that connects late still receives it.
package notify

// Cache stores the last session-start text. The zero value is empty and ready
// to use. Not safe for concurrent use; callers serialize through the
// orchestrator loop.
type Cache struct {
	text string
	set  bool
}

// Set stores text, replacing any previous value.
func (c *Cache) Set(text string) {
	c.text = text
	c.set = true
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.text = ""
	c.set = false
}

// Peek returns the cached text and whether one is present.
func (c *Cache) Peek() (string, bool) {
	return c.text, c.set
}
