// Package confirm submits fully signed envelopes and tracks them to a
// terminal or pending verdict. Cancellation only stops local observation:
// once submitted, a transaction cannot be undone by cancelling the watch.
package confirm

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/chain"
	"github.com/splitsquad/splitpay/internal/logging"
	"github.com/splitsquad/splitpay/internal/model"
)

// Verdict is the outcome of a submit-and-confirm cycle.
type Verdict int

const (
	// VerdictConfirmed: the transfer landed on chain.
	VerdictConfirmed Verdict = iota
	// VerdictPending: polling capped out inconclusively and the balance diff
	// showed nothing. Never treated as failure and never auto-retried.
	VerdictPending
	// VerdictFailed: the chain rejected or reverted the transaction.
	VerdictFailed
)

// Manager polls signature status with profile-dependent caps and falls back
// to a balance-diff check when polling is inconclusive.
type Manager struct {
	rpc      chain.RPC
	attempts int
	interval time.Duration
}

// NewManager creates a Manager. attempts/interval come from the network
// profile: 30×2s on mainnet, 15×2s on devnet.
func NewManager(rpc chain.RPC, attempts int, interval time.Duration) *Manager {
	if attempts <= 0 {
		attempts = 15
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Manager{rpc: rpc, attempts: attempts, interval: interval}
}

// SubmitAndConfirm broadcasts the envelope's transaction and waits for a
// verdict. A blockhash expiry surfaces as a BlockhashExpiredError so the
// caller can rebuild from scratch; the old signed envelope must never be
// resubmitted.
func (m *Manager) SubmitAndConfirm(ctx context.Context, env *model.TransactionEnvelope) (solana.Signature, Verdict, error) {
	sig, err := m.rpc.SendTransaction(ctx, env.Tx)
	if err != nil {
		return solana.Signature{}, VerdictFailed, err
	}

	verdict, err := m.await(ctx, sig)
	if verdict != VerdictPending {
		return sig, verdict, err
	}

	// Inconclusive: compare the recipient balance against the pre-build
	// snapshot. A matching diff means the transfer landed even though we
	// never saw the status; no diff stays pending, never failed.
	confirmed, diffErr := m.balanceDiffMatches(ctx, env)
	if diffErr != nil {
		logging.Confirm.Warn().Err(diffErr).Msg("balance-diff fallback failed, reporting pending")
		return sig, VerdictPending, apperr.Wrap(apperr.CodeConfirmationTimeout,
			"confirmation timed out and balance check failed", diffErr)
	}
	if confirmed {
		logging.Confirm.Info().Str("signature", sig.String()).Msg("confirmed via balance diff")
		return sig, VerdictConfirmed, nil
	}
	return sig, VerdictPending, apperr.New(apperr.CodeConfirmationTimeout,
		"transaction still pending after polling window")
}

// await polls until confirmed, failed, or the attempt cap is reached.
func (m *Manager) await(ctx context.Context, sig solana.Signature) (Verdict, error) {
	for attempt := 0; attempt < m.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return VerdictPending, apperr.Wrap(apperr.CodeConfirmationTimeout,
				"confirmation watch cancelled", ctx.Err())
		case <-time.After(m.interval):
		}

		status, err := m.rpc.GetSignatureStatus(ctx, sig)
		if err != nil {
			// Transient status-poll failures burn an attempt, nothing more.
			logging.Confirm.Warn().Err(err).Int("attempt", attempt+1).Msg("status poll failed")
			continue
		}
		if status.Known && status.Err != "" {
			return VerdictFailed, apperr.Newf(apperr.CodeValidation,
				"transaction failed on chain: %s", status.Err)
		}
		if status.Confirmed {
			return VerdictConfirmed, nil
		}
	}
	return VerdictPending, nil
}

func (m *Manager) balanceDiffMatches(ctx context.Context, env *model.TransactionEnvelope) (bool, error) {
	current, err := m.rpc.TokenAccountBalance(ctx, env.RecipientTokenAccount)
	if err != nil {
		return false, err
	}
	// Exact match only: an unrelated deposit in the same window moves the
	// balance by a different amount, and the verdict must stay pending
	// rather than claim a confirmation we cannot attribute to this transfer.
	return current == env.RecipientPreBalance+env.RecipientDelta(), nil
}
