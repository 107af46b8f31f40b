package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/logging"
)

const reservationPrefix = "dedup/"

type reservation struct {
	Outcome    Outcome   `json:"outcome"`
	ReservedAt time.Time `json:"reservedAt"`
}

// BadgerGuard persists reservations so a crash between reservation and
// terminal state fails closed: the in-flight record survives the restart and
// blocks a second attempt for the rest of the window.
type BadgerGuard struct {
	db     *badger.DB
	window time.Duration
}

// NewBadgerGuard creates a guard on an open badger DB.
func NewBadgerGuard(db *badger.DB, window time.Duration) *BadgerGuard {
	return &BadgerGuard{db: db, window: window}
}

// OpenBadgerGuard opens a dedicated reservation store under dir.
func OpenBadgerGuard(dir string, window time.Duration) (*BadgerGuard, error) {
	opts := badger.DefaultOptions(filepath.Join(dir, "dedup")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open reservation store: %w", err)
	}
	return NewBadgerGuard(db, window), nil
}

// Close closes the underlying database. Only call when the guard owns it,
// not when sharing a DB handle with the store.
func (g *BadgerGuard) Close() error {
	return g.db.Close()
}

func (g *BadgerGuard) CheckAndReserve(ctx context.Context, key string) error {
	dbKey := []byte(reservationPrefix + key)

	err := g.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey)
		switch {
		case err == nil:
			var r reservation
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			expired := time.Since(r.ReservedAt) > g.window
			if !expired && r.Outcome != OutcomeFailed {
				return apperr.Newf(apperr.CodeDuplicateTransaction,
					"transfer already %s within the dedup window", r.Outcome)
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// free to reserve
		default:
			return err
		}

		val, err := json.Marshal(reservation{Outcome: OutcomeInFlight, ReservedAt: time.Now()})
		if err != nil {
			return err
		}
		entry := badger.NewEntry(dbKey, val).WithTTL(2 * g.window)
		return txn.SetEntry(entry)
	})
	if err != nil {
		if apperr.HasCode(err, apperr.CodeDuplicateTransaction) {
			return err
		}
		// Two goroutines racing the same key conflict at commit; the loser is
		// a duplicate by definition.
		if errors.Is(err, badger.ErrConflict) {
			return apperr.New(apperr.CodeDuplicateTransaction, "concurrent reservation for the same transfer")
		}
		return apperr.Wrap(apperr.CodeNetwork, "failed to reserve idempotency key", err)
	}
	logging.Dedup.Debug().Str("key", key).Msg("idempotency key reserved")
	return nil
}

func (g *BadgerGuard) Resolve(ctx context.Context, key string, outcome Outcome) error {
	dbKey := []byte(reservationPrefix + key)

	err := g.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey)
		if err != nil {
			return err
		}
		var r reservation
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		}); err != nil {
			return err
		}
		r.Outcome = outcome
		val, err := json.Marshal(r)
		if err != nil {
			return err
		}
		entry := badger.NewEntry(dbKey, val).WithTTL(2 * g.window)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeNetwork, "failed to resolve idempotency key", err)
	}
	return nil
}

var _ Guard = (*BadgerGuard)(nil)
