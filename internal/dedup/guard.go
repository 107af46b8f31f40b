// Package dedup rejects duplicate submissions of the same logical transfer.
// A reservation is taken atomically before submission and resolved to the
// terminal state afterwards; a crash in between leaves the reservation "in
// flight", which fails closed and blocks a second attempt until the window
// lapses.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/splitsquad/splitpay/internal/model"
)

// Outcome is the terminal resolution of a reservation.
type Outcome string

const (
	OutcomeInFlight  Outcome = "in_flight"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
)

// Guard is the atomic reservation store.
type Guard interface {
	// CheckAndReserve atomically reserves the key. A repeat call within the
	// validity window fails with DuplicateTransactionError, unless the prior
	// attempt resolved to failed.
	CheckAndReserve(ctx context.Context, key string) error
	// Resolve records the terminal outcome of a reserved key.
	Resolve(ctx context.Context, key string, outcome Outcome) error
}

// Key derives the stable idempotency key of a logical transfer: a hash of
// (from, to, amount, purpose, coarse time bucket, splitId). Two requests for
// the same transfer within one bucket map to the same key.
func Key(from, to string, amount uint64, purpose model.Purpose, splitID string, at time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = 10 * time.Minute
	}
	bucketIndex := at.UTC().UnixNano() / int64(bucket)
	payload := fmt.Sprintf("%s|%s|%d|%s|%s|%d", from, to, amount, purpose, splitID, bucketIndex)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
