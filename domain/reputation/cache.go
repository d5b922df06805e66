// Package reputation implements the IP-reputation TTL cache and the
// client that consults an external classifier on a miss.
package reputation

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

type entry struct {
	verdict   bool
	ttl       time.Duration
	expiresAt time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Cache is a concurrent IP -> verdict map with a sliding TTL: every hit
// re-arms the expiry to now + the entry's original TTL. A background
// sweeper reaps entries whose expiry has passed.
type Cache struct {
	shards [numShards]*shard
	stopCh chan struct{}
}

// NewCache returns an empty, ready-to-use reputation cache.
func NewCache() *Cache {
	c := &Cache{stopCh: make(chan struct{})}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return c
}

func (c *Cache) shardFor(ip string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ip))
	return c.shards[h.Sum32()%numShards]
}

// Get returns the cached verdict for ip, if present and not expired. A hit
// slides the expiry forward. Get never returns an expired value.
func (c *Cache) Get(ip string) (verdict bool, ok bool) {
	s := c.shardFor(ip)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.entries[ip]
	if !found {
		return false, false
	}

	now := time.Now()
	if now.After(e.expiresAt) {
		delete(s.entries, ip)
		return false, false
	}

	e.expiresAt = now.Add(e.ttl)
	return e.verdict, true
}

// Put stores or overwrites the verdict for ip with the given TTL.
func (c *Cache) Put(ip string, verdict bool, ttl time.Duration) {
	s := c.shardFor(ip)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ip] = &entry{verdict: verdict, ttl: ttl, expiresAt: time.Now().Add(ttl)}
}

// StartSweeper launches a background goroutine that removes expired
// entries every interval, until Stop is called.
func (c *Cache) StartSweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

func (c *Cache) sweep() {
	now := time.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for ip, e := range s.entries {
			if now.After(e.expiresAt) {
				delete(s.entries, ip)
			}
		}
		s.mu.Unlock()
	}
}

// Stop terminates the sweeper goroutine, if one was started.
func (c *Cache) Stop() {
	close(c.stopCh)
}

// Len reports the total number of live entries across all shards, mainly
// useful for tests.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}
