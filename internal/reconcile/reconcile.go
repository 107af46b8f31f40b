// Package reconcile compares the escrow wallet's on-chain balance against the
// application ledger before funds are allowed to leave. The ledger is never
// trusted on its own for a withdrawal.
package reconcile

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/chain"
	"github.com/splitsquad/splitpay/internal/logging"
	"github.com/splitsquad/splitpay/internal/model"
	"github.com/splitsquad/splitpay/internal/store"
)

// Reconciler checks escrow balances against confirmed payment history.
type Reconciler struct {
	rpc       chain.RPC
	store     store.Store
	mint      solana.PublicKey
	tolerance uint64
}

// New creates a Reconciler. tolerance is the acceptable absolute difference
// in base units between the chain and the ledger.
func New(rpc chain.RPC, st store.Store, mint solana.PublicKey, tolerance uint64) *Reconciler {
	return &Reconciler{rpc: rpc, store: st, mint: mint, tolerance: tolerance}
}

// LedgerBalance computes what the escrow should hold from confirmed payments
// alone: inbound transfers credit the net amount after fees, withdrawals
// debit the full amount. Pending and failed payments contribute nothing.
func (r *Reconciler) LedgerBalance(ctx context.Context, splitID string) (uint64, error) {
	payments, err := r.store.PaymentsBySplit(ctx, splitID)
	if err != nil {
		return 0, err
	}
	var balance uint64
	for _, p := range payments {
		if p.Status != model.PaymentConfirmed {
			continue
		}
		switch p.Purpose {
		case model.PurposeFunding, model.PurposeSplitCreation:
			balance += p.Amount - p.FeeAmount
		case model.PurposeWithdrawal:
			if p.Amount > balance {
				return 0, apperr.Newf(apperr.CodeLedgerMismatch,
					"confirmed withdrawals exceed confirmed funding for split %s", splitID)
			}
			balance -= p.Amount
		}
	}
	return balance, nil
}

// CheckBeforeWithdrawal re-reads the escrow's on-chain token balance and
// compares it to the confirmed ledger. A difference beyond the tolerance
// blocks the withdrawal with a LedgerMismatchError.
func (r *Reconciler) CheckBeforeWithdrawal(ctx context.Context, splitID, escrowOwner string) error {
	owner, err := solana.PublicKeyFromBase58(escrowOwner)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidAddress, "invalid escrow address", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, r.mint)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidAddress, "failed to derive escrow token account", err)
	}

	onChain, err := r.rpc.TokenAccountBalance(ctx, ata)
	if err != nil {
		return err
	}
	ledger, err := r.LedgerBalance(ctx, splitID)
	if err != nil {
		return err
	}

	var diff uint64
	if onChain > ledger {
		diff = onChain - ledger
	} else {
		diff = ledger - onChain
	}
	if diff > r.tolerance {
		logging.Reconcile.Warn().
			Str("splitId", splitID).
			Uint64("onChain", onChain).
			Uint64("ledger", ledger).
			Msg("escrow balance does not match ledger")
		return apperr.Newf(apperr.CodeLedgerMismatch,
			"escrow holds %d but ledger expects %d (tolerance %d)", onChain, ledger, r.tolerance)
	}
	return nil
}
