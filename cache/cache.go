// Package cache keeps recent extraction responses in memory.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/harvest/models"
)

// retention bounds how long an entry is kept regardless of the max age
// callers ask for.
const retention = time.Hour

type entry struct {
	response  *models.ExtractResponse
	createdAt time.Time
}

// Cache maps request keys to extraction responses. It is safe for
// concurrent use. When full, the oldest entry is evicted.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// New creates a Cache holding at most maxEntries responses and starts the
// background sweep of entries older than an hour. Call Close to stop it.
func New(maxEntries int) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go c.sweepLoop(5 * time.Minute)
	return c
}

// Key derives a cache key from the endpoint kind, the page URL, the image
// limit and the product selector.
func Key(kind, url string, limit int, selector string) string {
	h := sha256.New()
	for _, part := range []string{kind, url, strconv.Itoa(limit), selector} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the response stored under key if it is younger than
// maxAgeMs milliseconds. maxAgeMs <= 0 always misses.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ExtractResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.createdAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	return e.response, true
}

// Set stores resp under key. Unsuccessful responses are not cached.
func (c *Cache) Set(key string, resp *models.ExtractResponse) {
	if resp == nil || !resp.Success {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.store[key] = &entry{response: resp, createdAt: c.now()}
}

// Len reports the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the background sweep. It is safe to call more than once.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.store {
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey, oldest = k, e.createdAt
		}
	}
	delete(c.store, oldestKey)
}

func (c *Cache) sweep() {
	cutoff := c.now().Add(-retention)
	c.mu.Lock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}

func (c *Cache) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}
