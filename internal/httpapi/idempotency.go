package httpapi

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// idempotencyCache deduplicates trigger requests carrying the same
// X-Idempotency-Key: a client retrying a timed-out request gets back the
// routing record from the first attempt instead of re-entering Trigger,
// which would otherwise just observe the engine's own per-task idempotence
// (spec: "creating a routing is idempotent per task") a second time rather
// than returning the original response verbatim.
type idempotencyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]idempotencyEntry
}

type idempotencyEntry struct {
	routing routingDTO
	expires time.Time
}

func newIdempotencyCache(ttl time.Duration) *idempotencyCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &idempotencyCache{ttl: ttl, entries: make(map[string]idempotencyEntry)}
}

func (c *idempotencyCache) get(key string) (routingDTO, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expires) {
		return routingDTO{}, false
	}
	return entry.routing, true
}

func (c *idempotencyCache) put(key string, routing routingDTO) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = idempotencyEntry{routing: routing, expires: time.Now().Add(c.ttl)}
	for k, v := range c.entries {
		if time.Now().After(v.expires) {
			delete(c.entries, k)
		}
	}
}

// validIdempotencyKey reports whether key is either absent or a well-formed
// UUID, the format clients are expected to generate it in.
func validIdempotencyKey(key string) bool {
	if key == "" {
		return true
	}
	_, err := uuid.Parse(key)
	return err == nil
}
