package journey

import (
	"sync"

	"github.com/AngelCh415/coursepulse/internal/models"
)

// Cache memoizes timelines by user email. It is owned by whoever fetched the
// events; entries live until that owner invalidates them.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]models.ProcessedEvent
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string][]models.ProcessedEvent)}
}

func (c *Cache) Get(email string) ([]models.ProcessedEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tl, ok := c.entries[email]
	if !ok {
		return nil, false
	}
	return clone(tl), true
}

func (c *Cache) Set(email string, timeline []models.ProcessedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[email] = clone(timeline)
}

// Missing returns the emails without a cached timeline, in input order.
func (c *Cache) Missing(emails []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, e := range emails {
		if _, ok := c.entries[e]; !ok {
			out = append(out, e)
		}
	}
	return out
}

func (c *Cache) Invalidate(emails ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range emails {
		delete(c.entries, e)
	}
}

func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]models.ProcessedEvent)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func clone(tl []models.ProcessedEvent) []models.ProcessedEvent {
	out := make([]models.ProcessedEvent, len(tl))
	copy(out, tl)
	return out
}
