package replay

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type key struct {
	accountID string
	step      uint64
}

// MemoryGuard keeps consumed steps in process memory. It is only correct when
// a single instance serves all requests for an account.
type MemoryGuard struct {
	mu    sync.Mutex
	clock clockwork.Clock
	ttl   time.Duration
	used  map[key]time.Time // expiry
}

func NewMemoryGuard(clock clockwork.Clock, ttl time.Duration) *MemoryGuard {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryGuard{
		clock: clock,
		ttl:   ttl,
		used:  make(map[key]time.Time),
	}
}

func (g *MemoryGuard) CheckAndConsume(ctx context.Context, accountID string, step uint64) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Fresh, err
	}

	now := g.clock.Now()
	k := key{accountID: accountID, step: step}

	g.mu.Lock()
	defer g.mu.Unlock()

	if expiry, ok := g.used[k]; ok {
		if now.Before(expiry) {
			return AlreadyUsed, nil
		}
		delete(g.used, k)
	}
	g.used[k] = now.Add(g.ttl)
	return Fresh, nil
}

// Sweep evicts every entry that expired at or before now and returns how many
// were removed.
func (g *MemoryGuard) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for k, expiry := range g.used {
		if !now.Before(expiry) {
			delete(g.used, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked entries, expired or not.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.used)
}
