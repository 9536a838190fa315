package services

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultRecentCap = 50

// RecentEntry is the last-used affiliation of a returning visitor.
type RecentEntry struct {
	FullName      string    `json:"full_name"`
	Company       string    `json:"company,omitempty"`
	ContactPerson string    `json:"contact_person,omitempty"`
	VehiclePlate  string    `json:"vehicle_plate,omitempty"`
	VehicleType   string    `json:"vehicle_type,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	SeenAt        time.Time `json:"seen_at"`
}

// RecentPersister keeps the cache across restarts.
type RecentPersister interface {
	Load() ([]RecentEntry, error)
	Save(entries []RecentEntry) error
}

// RecentCache is keyed by full name, newest first, capped.
type RecentCache struct {
	mu        sync.Mutex
	entries   []RecentEntry
	cap       int
	persister RecentPersister
	logger    *zap.Logger
}

// NewRecentCache loads persisted entries when a persister is given. A load
// failure starts the cache empty.
func NewRecentCache(capacity int, persister RecentPersister, logger *zap.Logger) *RecentCache {
	if capacity <= 0 {
		capacity = DefaultRecentCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &RecentCache{cap: capacity, persister: persister, logger: logger}
	if persister != nil {
		entries, err := persister.Load()
		if err != nil {
			logger.Warn("recent cache load failed", zap.Error(err))
		}
		for _, e := range entries {
			if len(c.entries) >= c.cap {
				break
			}
			c.entries = append(c.entries, e)
		}
	}
	return c
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Remember puts e at the front, replacing any entry with the same name.
func (c *RecentCache) Remember(e RecentEntry) {
	e.FullName = strings.TrimSpace(e.FullName)
	if e.FullName == "" {
		return
	}
	key := nameKey(e.FullName)

	c.mu.Lock()
	next := make([]RecentEntry, 0, c.cap)
	next = append(next, e)
	for _, old := range c.entries {
		if len(next) >= c.cap {
			break
		}
		if nameKey(old.FullName) == key {
			continue
		}
		next = append(next, old)
	}
	c.entries = next
	snapshot := append([]RecentEntry(nil), next...)
	c.mu.Unlock()

	if c.persister != nil {
		if err := c.persister.Save(snapshot); err != nil {
			c.logger.Warn("recent cache save failed", zap.Error(err))
		}
	}
}

// Lookup finds an exact (case-insensitive) name match.
func (c *RecentCache) Lookup(name string) (RecentEntry, bool) {
	key := nameKey(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if nameKey(e.FullName) == key {
			return e, true
		}
	}
	return RecentEntry{}, false
}

// Suggest returns entries whose name contains q, newest first. An empty
// query returns the whole list.
func (c *RecentCache) Suggest(q string, limit int) []RecentEntry {
	key := nameKey(q)
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]RecentEntry, 0)
	for _, e := range c.entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		if key == "" || strings.Contains(nameKey(e.FullName), key) {
			out = append(out, e)
		}
	}
	return out
}

func (c *RecentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
