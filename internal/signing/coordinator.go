package signing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/confirm"
	"github.com/splitsquad/splitpay/internal/dedup"
	"github.com/splitsquad/splitpay/internal/logging"
	"github.com/splitsquad/splitpay/internal/model"
	"github.com/splitsquad/splitpay/internal/store"
	"github.com/splitsquad/splitpay/internal/txbuilder"
)

// State names one step of the dual-signature flow. The current state and last
// error are persisted on the payment record so a mid-flow crash can be
// inspected or safely aborted from durable state.
type State string

const (
	StateBuilt            State = "built"
	StateUserSigned       State = "user_signed"
	StateSponsorValidated State = "sponsor_validated"
	StateSponsorSigned    State = "sponsor_signed"
	StateSubmitted        State = "submitted"
	StateConfirmed        State = "confirmed"
	StateFailed           State = "failed"
)

// Intent is one requested transfer entering the pipeline.
type Intent struct {
	SplitID string
	UserID  string
	From    string
	To      string
	// Amount is the gross amount in base units leaving the sender.
	Amount  uint64
	Purpose model.Purpose
	// Signer provides the sender authority signature just in time.
	Signer Signer
}

// Coordinator drives build → user-sign → sponsor-sign → submit → confirm as
// an explicit sequential state machine.
type Coordinator struct {
	builder *txbuilder.Builder
	sponsor SponsorClient
	confirm *confirm.Manager
	guard   dedup.Guard
	store   store.Store

	maxBlockhashRetries int
	dedupBucket         time.Duration
}

// NewCoordinator wires the pipeline. maxBlockhashRetries bounds automatic
// rebuilds after an expired blockhash (1 by default) to avoid duplicate
// spends.
func NewCoordinator(builder *txbuilder.Builder, sponsor SponsorClient, confirmer *confirm.Manager, guard dedup.Guard, st store.Store, maxBlockhashRetries int, dedupBucket time.Duration) *Coordinator {
	if maxBlockhashRetries < 0 {
		maxBlockhashRetries = 1
	}
	return &Coordinator{
		builder:             builder,
		sponsor:             sponsor,
		confirm:             confirmer,
		guard:               guard,
		store:               st,
		maxBlockhashRetries: maxBlockhashRetries,
		dedupBucket:         dedupBucket,
	}
}

// Execute runs one transfer to a terminal or pending verdict and returns its
// payment record. The idempotency key is reserved before anything is signed;
// a duplicate intent within the window fails with DuplicateTransactionError
// without touching the chain.
func (c *Coordinator) Execute(ctx context.Context, intent Intent) (*model.SplitPayment, error) {
	key := dedup.Key(intent.From, intent.To, intent.Amount, intent.Purpose, intent.SplitID, time.Now(), c.dedupBucket)

	if err := c.guard.CheckAndReserve(ctx, key); err != nil {
		return nil, err
	}

	payment := &model.SplitPayment{
		ID:             uuid.NewString(),
		SplitID:        intent.SplitID,
		UserID:         intent.UserID,
		FromAddress:    intent.From,
		ToAddress:      intent.To,
		Amount:         intent.Amount,
		Purpose:        intent.Purpose,
		Status:         model.PaymentPending,
		IdempotencyKey: key,
		CreatedAt:      time.Now(),
	}

	err := c.run(ctx, intent, key, payment)
	switch {
	case err == nil:
		// resolved inside run
	case apperr.HasCode(err, apperr.CodeConfirmationTimeout):
		// Terminal-unknown: the reservation stays in flight, blocking a
		// second attempt for the rest of the window.
	default:
		payment.Status = model.PaymentFailed
		payment.LastError = err.Error()
		if resolveErr := c.guard.Resolve(ctx, key, dedup.OutcomeFailed); resolveErr != nil {
			logging.Sponsor.Warn().Err(resolveErr).Msg("failed to resolve reservation")
		}
	}

	if saveErr := c.store.SaveSplitPayment(ctx, payment); saveErr != nil {
		logging.Sponsor.Error().Err(saveErr).Str("paymentId", payment.ID).Msg("failed to persist payment")
	}
	return payment, err
}

// run executes the state machine, retrying once from scratch when the
// blockhash expires before confirmation. The stale signed envelope is always
// discarded; every attempt starts with a fresh build.
func (c *Coordinator) run(ctx context.Context, intent Intent, key string, payment *model.SplitPayment) error {
	attempts := 1 + c.maxBlockhashRetries
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		env, err := c.builder.BuildTransfer(ctx, txbuilder.BuildRequest{
			From:           intent.From,
			To:             intent.To,
			Amount:         intent.Amount,
			Purpose:        intent.Purpose,
			IdempotencyKey: key,
		})
		if err != nil {
			return err
		}
		payment.FeeAmount = env.Fee
		payment.FeeBps = c.builder.Fees().Bps(intent.Purpose)
		c.transition(payment, StateBuilt, nil)

		if err := PartialSign(env.Tx, intent.Signer); err != nil {
			return err
		}
		c.transition(payment, StateUserSigned, nil)

		serialized, err := EncodeBase64Tx(env.Tx)
		if err != nil {
			return apperr.Wrap(apperr.CodeValidation, "failed to serialize partially signed transaction", err)
		}

		resp, err := c.sponsor.Sign(ctx, model.SponsorSignRequest{
			SerializedTx:   serialized,
			Purpose:        intent.Purpose,
			IdempotencyKey: key,
		})
		if err != nil {
			return err
		}
		// A successful response means the sponsor's policy checks all passed
		// before it signed.
		c.transition(payment, StateSponsorValidated, nil)
		c.transition(payment, StateSponsorSigned, nil)

		signedTx, err := DecodeBase64Tx(resp.SerializedTx)
		if err != nil {
			return apperr.Wrap(apperr.CodeValidation, "sponsor returned malformed transaction", err)
		}
		env.Tx = signedTx

		sig, verdict, err := c.confirm.SubmitAndConfirm(ctx, env)
		if !sig.IsZero() {
			payment.Signature = sig.String()
			payment.Status = model.PaymentSubmitted
			c.transition(payment, StateSubmitted, nil)
		}

		switch verdict {
		case confirm.VerdictConfirmed:
			now := time.Now()
			payment.Status = model.PaymentConfirmed
			payment.ConfirmedAt = &now
			c.transition(payment, StateConfirmed, nil)
			// The transfer is on chain; a failed Resolve must not demote it.
			// The reservation simply stays in flight and keeps blocking
			// duplicates until the window lapses.
			if resolveErr := c.guard.Resolve(ctx, key, dedup.OutcomeConfirmed); resolveErr != nil {
				logging.Sponsor.Warn().Err(resolveErr).
					Str("paymentId", payment.ID).
					Msg("failed to resolve reservation for confirmed payment")
			}
			return nil
		case confirm.VerdictPending:
			c.transition(payment, StateSubmitted, err)
			return err
		default:
			if apperr.HasCode(err, apperr.CodeBlockhashExpired) && attempt < attempts-1 {
				logging.Sponsor.Warn().
					Str("paymentId", payment.ID).
					Int("attempt", attempt+1).
					Msg("blockhash expired, rebuilding with a fresh one")
				lastErr = err
				continue
			}
			c.transition(payment, StateFailed, err)
			return err
		}
	}
	return lastErr
}

// transition persists the current state and last error on the payment record.
func (c *Coordinator) transition(payment *model.SplitPayment, state State, err error) {
	if err != nil {
		payment.LastError = err.Error()
	}
	logging.Sponsor.Debug().
		Str("paymentId", payment.ID).
		Str("state", string(state)).
		Msg("signing state transition")
	if saveErr := c.store.SaveSplitPayment(context.Background(), payment); saveErr != nil {
		logging.Sponsor.Warn().Err(saveErr).Msg("failed to persist state transition")
	}
}
