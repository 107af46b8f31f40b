package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/splitsquad/splitpay/internal/apperr"
)

type memoryEntry struct {
	outcome    Outcome
	reservedAt time.Time
}

// MemoryGuard is an in-process Guard. Reservations do not survive a restart,
// so it is suitable for tests and single-shot tools only; services use the
// badger-backed guard.
type MemoryGuard struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]memoryEntry
}

// NewMemoryGuard creates a MemoryGuard with the given validity window.
func NewMemoryGuard(window time.Duration) *MemoryGuard {
	return &MemoryGuard{
		window:  window,
		entries: make(map[string]memoryEntry),
	}
}

func (g *MemoryGuard) CheckAndReserve(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[key]; ok {
		expired := time.Since(e.reservedAt) > g.window
		if !expired && e.outcome != OutcomeFailed {
			return apperr.Newf(apperr.CodeDuplicateTransaction,
				"transfer already %s within the dedup window", e.outcome)
		}
	}
	g.entries[key] = memoryEntry{outcome: OutcomeInFlight, reservedAt: time.Now()}
	return nil
}

func (g *MemoryGuard) Resolve(ctx context.Context, key string, outcome Outcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok {
		return apperr.Newf(apperr.CodeValidation, "no reservation for key %s", key)
	}
	e.outcome = outcome
	g.entries[key] = e
	return nil
}

var _ Guard = (*MemoryGuard)(nil)
