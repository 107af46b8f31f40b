package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/splitsquad/splitpay/internal/logging"
	"github.com/splitsquad/splitpay/internal/model"
)

// Key layout: flat collections keyed by id, cross-referenced by id only.
const (
	walletPrefix      = "wallet/"       // wallet/<splitID>
	participantPrefix = "participant/"  // participant/<splitID>/<userID>
	paymentPrefix     = "payment/"      // payment/<paymentID>
	splitIndexPrefix  = "paysplit/"     // paysplit/<splitID>/<paymentID>
)

// BadgerStore is the badger-backed Store used by services.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (creating if needed) a badger database at dir.
func Open(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", dir, err)
	}
	logging.Store.Info().Str("dir", dir).Msg("store opened")
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already-open DB (shared with the dedup guard).
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// DB exposes the underlying database for collaborators sharing the file.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) put(key string, v interface{}) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

func (s *BadgerStore) get(key string, v interface{}) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

func (s *BadgerStore) SaveWallet(ctx context.Context, w *model.EscrowWallet) error {
	return s.put(walletPrefix+w.SplitID, w)
}

func (s *BadgerStore) LoadWallet(ctx context.Context, splitID string) (*model.EscrowWallet, error) {
	var w model.EscrowWallet
	if err := s.get(walletPrefix+splitID, &w); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, &ErrNotFound{Kind: "wallet", ID: splitID}
		}
		return nil, err
	}
	return &w, nil
}

func (s *BadgerStore) SaveParticipant(ctx context.Context, p *model.Participant) error {
	return s.put(participantPrefix+p.SplitID+"/"+p.UserID, p)
}

func (s *BadgerStore) LoadParticipants(ctx context.Context, splitID string) ([]*model.Participant, error) {
	var out []*model.Participant
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(participantPrefix + splitID + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p model.Participant
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			out = append(out, &p)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) UpdateParticipant(ctx context.Context, splitID, userID string, fn func(*model.Participant) error) (*model.Participant, error) {
	key := []byte(participantPrefix + splitID + "/" + userID)
	var updated model.Participant
	// Single badger transaction keeps the read-modify-write atomic;
	// conflicting concurrent updates fail and must be retried by the caller.
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &ErrNotFound{Kind: "participant", ID: splitID + "/" + userID}
			}
			return err
		}
		var p model.Participant
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		}); err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		val, err := json.Marshal(&p)
		if err != nil {
			return err
		}
		updated = p
		return txn.Set(key, val)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *BadgerStore) SaveSplitPayment(ctx context.Context, p *model.SplitPayment) error {
	val, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(paymentPrefix+p.ID), val); err != nil {
			return err
		}
		if p.SplitID != "" {
			if err := txn.Set([]byte(splitIndexPrefix+p.SplitID+"/"+p.ID), []byte(p.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) LoadSplitPayment(ctx context.Context, id string) (*model.SplitPayment, error) {
	var p model.SplitPayment
	if err := s.get(paymentPrefix+id, &p); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, &ErrNotFound{Kind: "payment", ID: id}
		}
		return nil, err
	}
	return &p, nil
}

func (s *BadgerStore) PaymentsBySplit(ctx context.Context, splitID string) ([]*model.SplitPayment, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(splitIndexPrefix + splitID + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*model.SplitPayment, 0, len(ids))
	for _, id := range ids {
		p, err := s.LoadSplitPayment(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

var _ Store = (*BadgerStore)(nil)
