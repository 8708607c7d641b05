// Package index holds the loaded site catalog in memory.
package index

import (
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/sleuth/internal/domain"
)

// ErrEmpty is returned when replacing the catalog with no sites.
var ErrEmpty = errors.New("index: empty catalog")

// Catalog is the in-memory, ordered site catalog shared by searches and the
// status endpoints. Readers always get a copy.
type Catalog struct {
	mu       sync.RWMutex
	sites    []domain.Site
	loadedAt time.Time
}

// NewCatalog creates a catalog holding sites. An empty list is refused.
func NewCatalog(sites []domain.Site) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(sites); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace swaps the whole catalog, keeping the previous one when sites is empty.
func (c *Catalog) Replace(sites []domain.Site) error {
	if len(sites) == 0 {
		return ErrEmpty
	}

	cp := make([]domain.Site, len(sites))
	copy(cp, sites)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sites = cp
	c.loadedAt = time.Now()
	return nil
}

// Limit returns the first n sites. n <= 0 or n beyond the catalog size means all.
func (c *Catalog) Limit(n int) []domain.Site {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n <= 0 || n > len(c.sites) {
		n = len(c.sites)
	}
	out := make([]domain.Site, n)
	copy(out, c.sites[:n])
	return out
}

// Count returns the number of sites in the catalog
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.sites)
}

// Categories returns the number of sites per category.
func (c *Catalog) Categories() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int)
	for _, s := range c.sites {
		out[s.Category]++
	}
	return out
}

// LoadedAt returns the timestamp of the last Replace
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.loadedAt
}
