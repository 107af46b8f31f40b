package split

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"time"

	"github.com/splitsquad/splitpay/internal/apperr"
)

// DegenState is the lifecycle of a lottery split.
type DegenState string

const (
	DegenCreated  DegenState = "created"
	DegenLocked   DegenState = "locked"
	DegenSpinning DegenState = "spinning"
	DegenResolved DegenState = "resolved"
)

// DegenSplit tracks a lottery split: everyone locks in, one randomly selected
// participant pays the full total, the rest are skipped.
type DegenSplit struct {
	ID            string
	TotalAmount   uint64
	EscrowAddress string
	State         DegenState
	Winner        string
	CreatedAt     time.Time

	participants []string
	nonces       map[string][]byte
}

// CreateDegen provisions a degen split. The ledger starts with equal
// provisional shares; the real obligation is assigned at spin time.
func (s *Service) CreateDegen(ctx context.Context, splitID string, total uint64, userIDs []string, credential []byte) (*DegenSplit, error) {
	if total == 0 {
		return nil, apperr.New(apperr.CodeAmountNotPositive, "split total must be positive")
	}
	if uint64(len(userIDs)) > total {
		return nil, apperr.New(apperr.CodeValidation, "split total is too small for the participant count")
	}

	s.mu.Lock()
	_, fairExists := s.fair[splitID]
	_, degenExists := s.degen[splitID]
	s.mu.Unlock()
	if fairExists || degenExists {
		return nil, apperr.Newf(apperr.CodeValidation, "split %s already exists", splitID)
	}

	wallet, err := s.registry.CreateSplitWallet(ctx, splitID, total, EqualShares(total, userIDs), credential)
	if err != nil {
		return nil, err
	}

	sorted := append([]string(nil), userIDs...)
	sort.Strings(sorted)
	ds := &DegenSplit{
		ID:            splitID,
		TotalAmount:   total,
		EscrowAddress: wallet.PublicAddress,
		State:         DegenCreated,
		CreatedAt:     time.Now(),
		participants:  sorted,
		nonces:        make(map[string][]byte, len(sorted)),
	}
	s.mu.Lock()
	s.degen[splitID] = ds
	s.mu.Unlock()
	return ds, nil
}

// Lock records a participant's commitment. Each lock contributes a random
// nonce to the selection seed, so no single participant controls the outcome.
// The nonce is returned so the participant can verify the spin later. No
// funds move at lock time.
func (s *Service) Lock(ctx context.Context, splitID, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.degen[splitID]
	if !ok {
		return "", apperr.Newf(apperr.CodeValidation, "unknown degen split %s", splitID)
	}
	if ds.State != DegenCreated {
		return "", apperr.Newf(apperr.CodeValidation, "degen split %s is no longer accepting locks", splitID)
	}
	if !ds.hasParticipant(userID) {
		return "", apperr.Newf(apperr.CodeValidation, "user %s is not part of split %s", userID, splitID)
	}
	if _, locked := ds.nonces[userID]; locked {
		return "", apperr.Newf(apperr.CodeValidation, "user %s has already locked in", userID)
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", apperr.Wrap(apperr.CodeKeyGeneration, "failed to generate lock nonce", err)
	}
	ds.nonces[userID] = nonce

	if len(ds.nonces) == len(ds.participants) {
		s.logStateChange(splitID, string(DegenCreated), string(DegenLocked))
		ds.State = DegenLocked
	}
	return hex.EncodeToString(nonce), nil
}

// Spin selects the payer. The seed hashes the split id, every participant's
// lock nonce in sorted order, and a blockhash fetched only after all locks
// are in, so the outcome is verifiable and not controllable by any single
// party. The winner's share becomes the full total; everyone else is skipped.
func (s *Service) Spin(ctx context.Context, splitID string) (string, error) {
	s.mu.Lock()
	ds, ok := s.degen[splitID]
	if !ok {
		s.mu.Unlock()
		return "", apperr.Newf(apperr.CodeValidation, "unknown degen split %s", splitID)
	}
	if ds.State != DegenLocked {
		s.mu.Unlock()
		return "", apperr.Newf(apperr.CodeValidation, "degen split %s is not locked", splitID)
	}
	s.mu.Unlock()

	blockhash, err := s.rpc.LatestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if ds.State != DegenLocked {
		s.mu.Unlock()
		return "", apperr.Newf(apperr.CodeValidation, "degen split %s was already spun", splitID)
	}
	winner := selectWinner(splitID, ds.participants, ds.nonces, blockhash.Blockhash[:])
	s.logStateChange(splitID, string(DegenLocked), string(DegenSpinning))
	ds.State = DegenSpinning
	ds.Winner = winner
	participants := append([]string(nil), ds.participants...)
	total := ds.TotalAmount
	s.mu.Unlock()

	if _, err := s.registry.SetShare(ctx, splitID, winner, total); err != nil {
		return "", err
	}
	for _, userID := range participants {
		if userID == winner {
			continue
		}
		if _, err := s.registry.MarkSkipped(ctx, splitID, userID); err != nil {
			return "", err
		}
	}
	return winner, nil
}

// Degen returns a snapshot of a degen split's lifecycle state.
func (s *Service) Degen(splitID string) (*DegenSplit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.degen[splitID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown degen split %s", splitID)
	}
	cp := *ds
	cp.participants = append([]string(nil), ds.participants...)
	cp.nonces = nil
	return &cp, nil
}

func (ds *DegenSplit) hasParticipant(userID string) bool {
	for _, id := range ds.participants {
		if id == userID {
			return true
		}
	}
	return false
}

// selectWinner derives the payer index from a hash of the split id, all lock
// nonces in participant-sorted order, and the post-lock blockhash.
func selectWinner(splitID string, sorted []string, nonces map[string][]byte, blockhash []byte) string {
	h := sha256.New()
	h.Write([]byte(splitID))
	for _, userID := range sorted {
		h.Write([]byte(userID))
		h.Write(nonces[userID])
	}
	h.Write(blockhash)
	sum := h.Sum(nil)
	idx := binary.BigEndian.Uint64(sum[:8]) % uint64(len(sorted))
	return sorted[idx]
}
