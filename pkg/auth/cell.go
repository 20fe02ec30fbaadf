package auth

import "sync"

// ownersCell caches the lazily-loaded owners document behind a read/write
// lock. Readers that find it unloaded upgrade to the write lock, re-check,
// and load; a racing loader wins and the loser reuses its result.
type ownersCell struct {
	mu     sync.RWMutex
	loaded *owners
}

func (c *ownersCell) read(load func() (*owners, error), f func(*owners) error) error {
	c.mu.RLock()
	if c.loaded != nil {
		defer c.mu.RUnlock()
		return f(c.loaded)
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded == nil {
		o, err := load()
		if err != nil {
			return err
		}
		c.loaded = o
	}
	return f(c.loaded)
}

func (c *ownersCell) write(load func() (*owners, error), f func(*owners) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded == nil {
		o, err := load()
		if err != nil {
			return err
		}
		c.loaded = o
	}
	return f(c.loaded)
}
