// Package split implements the two split-payment policies on top of the
// transfer pipeline: proportional Fair Split and lottery-style Degen Split.
// The policy layer decides who pays how much and when funding is complete;
// the actual token movement always goes through the Coordinator.
package split

import (
	"context"
	"sync"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/chain"
	"github.com/splitsquad/splitpay/internal/keyvault"
	"github.com/splitsquad/splitpay/internal/logging"
	"github.com/splitsquad/splitpay/internal/model"
	"github.com/splitsquad/splitpay/internal/notify"
	"github.com/splitsquad/splitpay/internal/registry"
	"github.com/splitsquad/splitpay/internal/signing"
)

// Pipeline executes one transfer end to end. Satisfied by
// *signing.Coordinator; tests substitute a fake.
type Pipeline interface {
	Execute(ctx context.Context, intent signing.Intent) (*model.SplitPayment, error)
}

// Reconciler checks the escrow ledger against the chain before funds leave.
// Satisfied by *reconcile.Reconciler.
type Reconciler interface {
	CheckBeforeWithdrawal(ctx context.Context, splitID string, escrowTokenAccount string) error
}

// Service owns the lifecycle of fair and degen splits. Split lifecycle state
// is held in memory and is always re-derivable from the participant ledger
// and confirmed payments.
type Service struct {
	registry *registry.Registry
	pipeline Pipeline
	rpc      chain.RPC
	vault    *keyvault.Vault
	recon    Reconciler
	notifier notify.Notifier
	epsilon  uint64

	mu    sync.Mutex
	fair  map[string]*FairSplit
	degen map[string]*DegenSplit
}

// NewService wires the policy layer. epsilon is the funding-completion
// tolerance in base units.
func NewService(reg *registry.Registry, pipeline Pipeline, rpc chain.RPC, vault *keyvault.Vault, recon Reconciler, notifier notify.Notifier, epsilon uint64) *Service {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Service{
		registry: reg,
		pipeline: pipeline,
		rpc:      rpc,
		vault:    vault,
		recon:    recon,
		notifier: notifier,
		epsilon:  epsilon,
		fair:     make(map[string]*FairSplit),
		degen:    make(map[string]*DegenSplit),
	}
}

// transferRequest is one purpose-tagged transfer entering the policy layer.
type transferRequest struct {
	splitID string
	userID  string
	from    string
	to      string
	amount  uint64
	purpose model.Purpose
	signer  signing.Signer
}

// execute dispatches to the purpose handler, runs the pipeline, and lets the
// handler apply ledger and state effects once the transfer is confirmed.
func (s *Service) execute(ctx context.Context, req transferRequest) (*model.SplitPayment, error) {
	h, ok := purposeHandlers[req.purpose]
	if !ok {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown transfer purpose %q", req.purpose)
	}
	if err := h.validate(ctx, s, req); err != nil {
		return nil, err
	}

	payment, err := s.pipeline.Execute(ctx, signing.Intent{
		SplitID: req.splitID,
		UserID:  req.userID,
		From:    req.from,
		To:      req.to,
		Amount:  req.amount,
		Purpose: req.purpose,
		Signer:  req.signer,
	})
	if err != nil {
		if payment != nil && payment.Status == model.PaymentFailed {
			s.emit(model.EventTransactionFailed, req.splitID, req.userID, req.amount)
		}
		return payment, err
	}
	if payment.Status == model.PaymentConfirmed {
		if err := h.postProcess(ctx, s, req, payment); err != nil {
			return payment, err
		}
	}
	return payment, nil
}

// P2P sends a direct user-to-user transfer outside any split.
func (s *Service) P2P(ctx context.Context, from, to string, amount uint64, signer signing.Signer) (*model.SplitPayment, error) {
	return s.execute(ctx, transferRequest{
		from:    from,
		to:      to,
		amount:  amount,
		purpose: model.PurposeP2P,
		signer:  signer,
	})
}

// Fund routes a participant's funding transfer into the split's escrow
// wallet. Works for both policies; the funding handler enforces the
// policy-specific rules.
func (s *Service) Fund(ctx context.Context, splitID, userID, from string, amount uint64, signer signing.Signer) (*model.SplitPayment, error) {
	escrow, err := s.escrowAddress(ctx, splitID)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, transferRequest{
		splitID: splitID,
		userID:  userID,
		from:    from,
		to:      escrow,
		amount:  amount,
		purpose: model.PurposeFunding,
		signer:  signer,
	})
}

// Withdraw moves escrowed funds out to a recipient. The escrow wallet signs
// as sender, so the caller must present the vault credential. Withdrawal
// carries no service fee: the recipient receives the full amount.
func (s *Service) Withdraw(ctx context.Context, splitID, to string, amount uint64, credential []byte) (*model.SplitPayment, error) {
	wallet, err := s.registry.Wallet(ctx, splitID)
	if err != nil {
		return nil, err
	}
	signer, err := signing.NewVaultSigner(s.vault, wallet.EncryptedMnemonic, credential, wallet.PublicAddress)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, transferRequest{
		splitID: splitID,
		from:    wallet.PublicAddress,
		to:      to,
		amount:  amount,
		purpose: model.PurposeWithdrawal,
		signer:  signer,
	})
}

func (s *Service) escrowAddress(ctx context.Context, splitID string) (string, error) {
	wallet, err := s.registry.Wallet(ctx, splitID)
	if err != nil {
		return "", err
	}
	return wallet.PublicAddress, nil
}

func (s *Service) emit(typ model.EventType, splitID, participantID string, amount uint64) {
	s.notifier.Emit(notify.NewEvent(typ, splitID, participantID, amount))
}

// paidTotal sums amountPaid across non-skipped participants.
func (s *Service) paidTotal(ctx context.Context, splitID string) (uint64, error) {
	participants, err := s.registry.Participants(ctx, splitID)
	if err != nil {
		return 0, err
	}
	var sum uint64
	for _, p := range participants {
		if p.Status == model.ParticipantSkipped {
			continue
		}
		sum += p.AmountPaid
	}
	return sum, nil
}

// fundingComplete applies the completion tolerance: funding is done once the
// paid total reaches the split total minus epsilon.
func (s *Service) fundingComplete(paid, total uint64) bool {
	if paid >= total {
		return true
	}
	return total-paid <= s.epsilon
}

func (s *Service) logStateChange(splitID, from, to string) {
	logging.Split.Info().
		Str("splitId", splitID).
		Str("from", from).
		Str("to", to).
		Msg("split state transition")
}
