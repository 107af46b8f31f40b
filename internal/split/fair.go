package split

import (
	"context"
	"time"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/registry"
)

// FairState is the lifecycle of a proportional split.
type FairState string

const (
	FairCreated         FairState = "created"
	FairPartiallyFunded FairState = "partially_funded"
	FairFullyFunded     FairState = "fully_funded"
	FairSettled         FairState = "settled"
)

// FairSplit tracks a proportional split where each participant funds their
// own share independently.
type FairSplit struct {
	ID            string
	TotalAmount   uint64
	EscrowAddress string
	State         FairState
	CreatedAt     time.Time
}

// CreateFair provisions a fair split: a fresh escrow wallet plus one ledger
// entry per participant. Shares must sum to the total within the tolerance
// before any funding may start; equal and custom-amount splits both arrive
// here as explicit per-participant shares.
func (s *Service) CreateFair(ctx context.Context, splitID string, total uint64, shares []registry.Share, credential []byte) (*FairSplit, error) {
	if total == 0 {
		return nil, apperr.New(apperr.CodeAmountNotPositive, "split total must be positive")
	}

	s.mu.Lock()
	_, fairExists := s.fair[splitID]
	_, degenExists := s.degen[splitID]
	s.mu.Unlock()
	if fairExists || degenExists {
		return nil, apperr.Newf(apperr.CodeValidation, "split %s already exists", splitID)
	}

	wallet, err := s.registry.CreateSplitWallet(ctx, splitID, total, shares, credential)
	if err != nil {
		return nil, err
	}

	fs := &FairSplit{
		ID:            splitID,
		TotalAmount:   total,
		EscrowAddress: wallet.PublicAddress,
		State:         FairCreated,
		CreatedAt:     time.Now(),
	}
	s.mu.Lock()
	s.fair[splitID] = fs
	s.mu.Unlock()
	return fs, nil
}

// EqualShares divides a total evenly across user ids, folding the integer
// remainder into the first share so the sum stays exact.
func EqualShares(total uint64, userIDs []string) []registry.Share {
	n := uint64(len(userIDs))
	if n == 0 {
		return nil
	}
	base := total / n
	shares := make([]registry.Share, 0, n)
	for i, id := range userIDs {
		amount := base
		if i == 0 {
			amount += total % n
		}
		shares = append(shares, registry.Share{UserID: id, Amount: amount})
	}
	return shares
}

// Fair returns a snapshot of a fair split's lifecycle state.
func (s *Service) Fair(splitID string) (*FairSplit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs, ok := s.fair[splitID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown fair split %s", splitID)
	}
	cp := *fs
	return &cp, nil
}
