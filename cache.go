package pulsar

import (
	"sync"
	"time"
)

// DefaultVerdictTTL bounds how long a cached verdict is served before the
// transaction is re-verified against the ledger.
const DefaultVerdictTTL = 24 * time.Hour

// VerificationCache maps transaction signatures to verdicts with TTL
// eviction. It makes verification idempotent and cheap on retry.
//
// The cache is an optimization, never a source of truth for replay status:
// a cached positive verdict is a pre-replay-check snapshot, and callers must
// re-run the replay check against the ReplayGuard before granting access.
// Eviction is therefore always safe; a miss simply re-verifies.
type VerificationCache struct {
	mu         sync.Mutex
	verdicts   map[string]*Verdict
	insertedAt map[string]time.Time
	ttl        time.Duration
}

// NewVerificationCache creates a cache with the given TTL. A non-positive
// TTL uses DefaultVerdictTTL.
func NewVerificationCache(ttl time.Duration) *VerificationCache {
	if ttl <= 0 {
		ttl = DefaultVerdictTTL
	}
	return &VerificationCache{
		verdicts:   make(map[string]*Verdict),
		insertedAt: make(map[string]time.Time),
		ttl:        ttl,
	}
}

// Get returns the cached verdict for a signature. Expired entries are
// dropped and reported as misses.
func (c *VerificationCache) Get(signature string) (*Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inserted, ok := c.insertedAt[signature]
	if !ok {
		return nil, false
	}
	if time.Since(inserted) > c.ttl {
		delete(c.verdicts, signature)
		delete(c.insertedAt, signature)
		return nil, false
	}
	return c.verdicts[signature], true
}

// Put stores a verdict under its signature.
func (c *VerificationCache) Put(signature string, v *Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.verdicts[signature] = v
	c.insertedAt[signature] = time.Now()
}

// Sweep removes entries older than the TTL as of now and returns how many
// were evicted.
func (c *VerificationCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for signature, inserted := range c.insertedAt {
		if now.Sub(inserted) > c.ttl {
			delete(c.verdicts, signature)
			delete(c.insertedAt, signature)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (c *VerificationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.verdicts)
}

// Reset clears the cache entirely. For tests.
func (c *VerificationCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts = make(map[string]*Verdict)
	c.insertedAt = make(map[string]time.Time)
}
