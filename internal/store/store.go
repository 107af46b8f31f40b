// Package store is the persistence collaborator: it keeps escrow wallets,
// participant ledgers, and split payments in flat collections keyed by id.
package store

import (
	"context"
	"errors"

	"github.com/splitsquad/splitpay/internal/model"
)

// Store is the persistence contract consumed by the core. Records reference
// each other by id only; no embedded object graphs.
type Store interface {
	SaveWallet(ctx context.Context, w *model.EscrowWallet) error
	LoadWallet(ctx context.Context, splitID string) (*model.EscrowWallet, error)

	SaveParticipant(ctx context.Context, p *model.Participant) error
	LoadParticipants(ctx context.Context, splitID string) ([]*model.Participant, error)
	// UpdateParticipant applies fn to the participant under the store's
	// write lock, making the read-modify-write atomic.
	UpdateParticipant(ctx context.Context, splitID, userID string, fn func(*model.Participant) error) (*model.Participant, error)

	SaveSplitPayment(ctx context.Context, p *model.SplitPayment) error
	LoadSplitPayment(ctx context.Context, id string) (*model.SplitPayment, error)
	PaymentsBySplit(ctx context.Context, splitID string) ([]*model.SplitPayment, error)
}

// ErrNotFound is returned when a record does not exist.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return e.Kind + " not found: " + e.ID
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}
