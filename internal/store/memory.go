package store

import (
	"context"
	"sort"
	"sync"

	"github.com/splitsquad/splitpay/internal/model"
)

// MemoryStore is an in-memory Store for tests and single-shot tools.
type MemoryStore struct {
	mu           sync.Mutex
	wallets      map[string]*model.EscrowWallet  // by splitID
	participants map[string]*model.Participant   // by splitID/userID
	payments     map[string]*model.SplitPayment  // by payment ID
	bySplit      map[string][]string             // splitID -> payment IDs
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:      make(map[string]*model.EscrowWallet),
		participants: make(map[string]*model.Participant),
		payments:     make(map[string]*model.SplitPayment),
		bySplit:      make(map[string][]string),
	}
}

func participantKey(splitID, userID string) string {
	return splitID + "/" + userID
}

func (s *MemoryStore) SaveWallet(ctx context.Context, w *model.EscrowWallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.wallets[w.SplitID] = &cp
	return nil
}

func (s *MemoryStore) LoadWallet(ctx context.Context, splitID string) (*model.EscrowWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[splitID]
	if !ok {
		return nil, &ErrNotFound{Kind: "wallet", ID: splitID}
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) SaveParticipant(ctx context.Context, p *model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.participants[participantKey(p.SplitID, p.UserID)] = &cp
	return nil
}

func (s *MemoryStore) LoadParticipants(ctx context.Context, splitID string) ([]*model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Participant
	for _, p := range s.participants {
		if p.SplitID == splitID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) UpdateParticipant(ctx context.Context, splitID, userID string, fn func(*model.Participant) error) (*model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantKey(splitID, userID)]
	if !ok {
		return nil, &ErrNotFound{Kind: "participant", ID: participantKey(splitID, userID)}
	}
	cp := *p
	if err := fn(&cp); err != nil {
		return nil, err
	}
	*p = cp
	out := cp
	return &out, nil
}

func (s *MemoryStore) SaveSplitPayment(ctx context.Context, p *model.SplitPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.payments[p.ID]; !seen && p.SplitID != "" {
		s.bySplit[p.SplitID] = append(s.bySplit[p.SplitID], p.ID)
	}
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *MemoryStore) LoadSplitPayment(ctx context.Context, id string) (*model.SplitPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, &ErrNotFound{Kind: "payment", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) PaymentsBySplit(ctx context.Context, splitID string) ([]*model.SplitPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.bySplit[splitID]
	out := make([]*model.SplitPayment, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.payments[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
