package api

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/serenitybot/serenity/internal/schedule"
)

// scheduleCache holds per-user schedule lists. Each user has a generation
// that every write bumps; a fill started before a write is dropped so a
// slow reader cannot put an older list back after invalidation.
type scheduleCache struct {
	mu    sync.Mutex
	items *lru.Cache[string, []schedule.Item]
	gen   map[string]uint64
}

func newScheduleCache(size int) (*scheduleCache, error) {
	items, err := lru.New[string, []schedule.Item](size)
	if err != nil {
		return nil, err
	}
	return &scheduleCache{items: items, gen: make(map[string]uint64)}, nil
}

// get returns the cached list, or the generation a later fill must match.
func (c *scheduleCache) get(userID string) ([]schedule.Item, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if items, ok := c.items.Get(userID); ok {
		return items, 0, true
	}
	return nil, c.gen[userID], false
}

// fill stores items read at generation gen. It reports whether they were kept.
func (c *scheduleCache) fill(userID string, gen uint64, items []schedule.Item) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[userID] != gen {
		return false
	}
	c.items.Add(userID, items)
	return true
}

func (c *scheduleCache) invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[userID]++
	c.items.Remove(userID)
}
