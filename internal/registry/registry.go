// Package registry creates and tracks per-split escrow wallets and their
// participant ledgers. One split owns exactly one escrow wallet; the wallet
// never serves a second split.
package registry

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/keyvault"
	"github.com/splitsquad/splitpay/internal/logging"
	"github.com/splitsquad/splitpay/internal/model"
	"github.com/splitsquad/splitpay/internal/store"
)

// Registry provisions escrow wallets through the key vault and keeps the
// per-split participant ledger in the store.
type Registry struct {
	vault   *keyvault.Vault
	store   store.Store
	epsilon uint64
}

// New creates a Registry. epsilon is the sum-check tolerance in base units.
func New(vault *keyvault.Vault, st store.Store, epsilon uint64) *Registry {
	return &Registry{vault: vault, store: st, epsilon: epsilon}
}

// Share is one participant's portion of a split at creation time.
type Share struct {
	UserID string
	Amount uint64
}

// CreateSplitWallet generates a fresh escrow wallet for a split, encrypts its
// mnemonic under the given credential, and records the participant ledger.
// The plaintext mnemonic and private key never leave this call.
func (r *Registry) CreateSplitWallet(ctx context.Context, splitID string, total uint64, shares []Share, credential []byte) (*model.EscrowWallet, error) {
	if splitID == "" {
		return nil, apperr.New(apperr.CodeValidation, "split id is required")
	}
	if len(shares) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "at least one participant share is required")
	}
	if err := r.checkShareSum(total, shares); err != nil {
		return nil, err
	}
	if existing, err := r.store.LoadWallet(ctx, splitID); err == nil && existing != nil {
		return nil, apperr.Newf(apperr.CodeValidation, "split %s already has an escrow wallet", splitID)
	}

	created, err := r.vault.CreateWallet(credential)
	if err != nil {
		return nil, err
	}

	qr, err := fundingQRCode(created.Address)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeKeyGeneration, "failed to generate funding QR code", err)
	}

	wallet := &model.EscrowWallet{
		ID:                uuid.NewString(),
		SplitID:           splitID,
		PublicAddress:     created.Address,
		EncryptedMnemonic: created.EncryptedMnemonic,
		FundingQR:         qr,
		CreatedAt:         time.Now(),
	}
	if err := r.store.SaveWallet(ctx, wallet); err != nil {
		return nil, err
	}

	for _, share := range shares {
		participant := &model.Participant{
			UserID:      share.UserID,
			SplitID:     splitID,
			ShareAmount: share.Amount,
			Status:      model.ParticipantUnpaid,
		}
		if err := r.store.SaveParticipant(ctx, participant); err != nil {
			return nil, err
		}
	}

	logging.Registry.Info().
		Str("splitId", splitID).
		Str("address", wallet.PublicAddress).
		Int("participants", len(shares)).
		Msg("escrow wallet created")
	return wallet, nil
}

// Wallet returns the escrow wallet for a split.
func (r *Registry) Wallet(ctx context.Context, splitID string) (*model.EscrowWallet, error) {
	return r.store.LoadWallet(ctx, splitID)
}

// Participants returns the participant ledger for a split.
func (r *Registry) Participants(ctx context.Context, splitID string) ([]*model.Participant, error) {
	return r.store.LoadParticipants(ctx, splitID)
}

// ApplyFunding credits a confirmed funding amount to one participant's paid
// total. The read-modify-write happens inside a single store transaction so
// concurrent confirmations for the same participant cannot lose an update.
func (r *Registry) ApplyFunding(ctx context.Context, splitID, userID string, amount uint64) (*model.Participant, error) {
	if amount == 0 {
		return nil, apperr.New(apperr.CodeValidation, "funding amount must be positive")
	}
	return r.store.UpdateParticipant(ctx, splitID, userID, func(p *model.Participant) error {
		if p.Status == model.ParticipantSkipped {
			return apperr.Newf(apperr.CodeValidation, "participant %s is skipped and cannot fund", userID)
		}
		p.AmountPaid += amount
		if p.AmountPaid >= p.ShareAmount {
			p.Status = model.ParticipantPaid
		} else {
			p.Status = model.ParticipantPartial
		}
		return nil
	})
}

// MarkSkipped excludes a participant from funding obligations. Used by winner
// settlement, where everyone but the winner is released.
func (r *Registry) MarkSkipped(ctx context.Context, splitID, userID string) (*model.Participant, error) {
	return r.store.UpdateParticipant(ctx, splitID, userID, func(p *model.Participant) error {
		p.Status = model.ParticipantSkipped
		return nil
	})
}

// SetShare replaces a participant's target share. Used when a selection
// process reassigns who owes what after creation.
func (r *Registry) SetShare(ctx context.Context, splitID, userID string, amount uint64) (*model.Participant, error) {
	return r.store.UpdateParticipant(ctx, splitID, userID, func(p *model.Participant) error {
		p.ShareAmount = amount
		return nil
	})
}

// FullyFunded reports whether every non-skipped participant has paid at least
// their share.
func (r *Registry) FullyFunded(ctx context.Context, splitID string) (bool, error) {
	participants, err := r.store.LoadParticipants(ctx, splitID)
	if err != nil {
		return false, err
	}
	for _, p := range participants {
		if p.Status == model.ParticipantSkipped {
			continue
		}
		if p.AmountPaid < p.ShareAmount {
			return false, nil
		}
	}
	return true, nil
}

// checkShareSum requires the shares to add up to the total within the
// configured tolerance, absorbing integer-division remainders from uneven
// splits.
func (r *Registry) checkShareSum(total uint64, shares []Share) error {
	var sum uint64
	for _, share := range shares {
		if share.UserID == "" {
			return apperr.New(apperr.CodeValidation, "participant user id is required")
		}
		if share.Amount == 0 {
			return apperr.New(apperr.CodeValidation, "participant share must be positive")
		}
		sum += share.Amount
	}
	var diff uint64
	if sum > total {
		diff = sum - total
	} else {
		diff = total - sum
	}
	if diff > r.epsilon {
		return apperr.Newf(apperr.CodeValidation,
			"participant shares sum to %d, expected %d within tolerance %d", sum, total, r.epsilon)
	}
	return nil
}

func fundingQRCode(address string) (string, error) {
	qr, err := qrcode.New(address, qrcode.Medium)
	if err != nil {
		return "", err
	}
	png, err := qr.PNG(256)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
