package signing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/chain"
	"github.com/splitsquad/splitpay/internal/chain/chaintest"
	"github.com/splitsquad/splitpay/internal/confirm"
	"github.com/splitsquad/splitpay/internal/dedup"
	"github.com/splitsquad/splitpay/internal/model"
	"github.com/splitsquad/splitpay/internal/store"
	"github.com/splitsquad/splitpay/internal/txbuilder"
)

type coordFixture struct {
	rpc         *chaintest.FakeRPC
	coordinator *Coordinator
	store       *store.MemoryStore
	user        *KeypairSigner
	to          solana.PublicKey
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()
	return newCoordFixtureWithGuard(t, dedup.NewMemoryGuard(time.Minute))
}

func newCoordFixtureWithGuard(t *testing.T, guard dedup.Guard) *coordFixture {
	t.Helper()
	rpc := chaintest.NewFakeRPC()
	mint := solana.NewWallet().PublicKey()
	treasury := NewKeypairSigner(solana.NewWallet().PrivateKey)
	user := NewKeypairSigner(solana.NewWallet().PrivateKey)
	to := solana.NewWallet().PublicKey()

	builder := txbuilder.New(rpc, mint, treasury.PublicKey(), 6, txbuilder.DefaultFeeSchedule())

	sourceATA, _, err := solana.FindAssociatedTokenAddress(user.PublicKey(), mint)
	if err != nil {
		t.Fatalf("failed to derive source token account: %v", err)
	}
	rpc.SetBalance(sourceATA, 10_000_000_000)

	sponsor, err := NewSponsorService(treasury, mint, txbuilder.DefaultFeeSchedule(),
		dedup.NewMemoryGuard(time.Minute), 100)
	if err != nil {
		t.Fatalf("NewSponsorService failed: %v", err)
	}

	st := store.NewMemoryStore()
	coordinator := NewCoordinator(
		builder,
		&LocalSponsorClient{Service: sponsor},
		confirm.NewManager(rpc, 2, time.Millisecond),
		guard,
		st,
		1,
		10*time.Minute,
	)
	return &coordFixture{rpc: rpc, coordinator: coordinator, store: st, user: user, to: to}
}

func (f *coordFixture) intent(amount uint64) Intent {
	return Intent{
		SplitID: "split-1",
		UserID:  "user-1",
		From:    f.user.PublicKey().String(),
		To:      f.to.String(),
		Amount:  amount,
		Purpose: model.PurposeFunding,
		Signer:  f.user,
	}
}

func TestExecuteHappyPath(t *testing.T) {
	f := newCoordFixture(t)

	payment, err := f.coordinator.Execute(context.Background(), f.intent(100_000_000))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if payment.Status != model.PaymentConfirmed {
		t.Errorf("status = %s, want confirmed", payment.Status)
	}
	if payment.Signature == "" {
		t.Error("confirmed payment must carry the transaction signature")
	}
	if payment.ConfirmedAt == nil {
		t.Error("confirmed payment must carry a confirmation timestamp")
	}
	if payment.FeeAmount != 1_500_000 {
		t.Errorf("fee = %d, want 1_500_000", payment.FeeAmount)
	}
	if len(f.rpc.Sent) != 1 {
		t.Errorf("expected exactly 1 submission, got %d", len(f.rpc.Sent))
	}

	// Both signatures must be present on the submitted transaction.
	sent := f.rpc.Sent[0]
	if len(sent.Signatures) != 2 || sent.Signatures[0].IsZero() || sent.Signatures[1].IsZero() {
		t.Error("submitted transaction is not fully signed")
	}

	stored, err := f.store.LoadSplitPayment(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("payment not persisted: %v", err)
	}
	if stored.Status != model.PaymentConfirmed {
		t.Errorf("persisted status = %s, want confirmed", stored.Status)
	}
}

func TestExecuteRejectsDuplicateIntent(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	if _, err := f.coordinator.Execute(ctx, f.intent(100_000_000)); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	_, err := f.coordinator.Execute(ctx, f.intent(100_000_000))
	if !apperr.HasCode(err, apperr.CodeDuplicateTransaction) {
		t.Errorf("expected DUPLICATE_TRANSACTION, got %v", err)
	}
	if len(f.rpc.Sent) != 1 {
		t.Errorf("duplicate intent must not reach the chain, got %d submissions", len(f.rpc.Sent))
	}
}

func TestExecuteRetriesOnceOnBlockhashExpiry(t *testing.T) {
	f := newCoordFixture(t)

	var sends atomic.Int32
	f.rpc.SendFunc = func(tx *solana.Transaction) (solana.Signature, error) {
		if sends.Add(1) == 1 {
			f.rpc.RotateBlockhash("rotated")
			return solana.Signature{}, apperr.New(apperr.CodeBlockhashExpired, "Blockhash not found")
		}
		return tx.Signatures[0], nil
	}

	payment, err := f.coordinator.Execute(context.Background(), f.intent(100_000_000))
	if err != nil {
		t.Fatalf("Execute failed after retry: %v", err)
	}
	if payment.Status != model.PaymentConfirmed {
		t.Errorf("status = %s, want confirmed after one rebuild", payment.Status)
	}
	if got := sends.Load(); got != 2 {
		t.Errorf("expected 2 submissions (expired + retry), got %d", got)
	}

	// The retry must be a fresh build, not a resubmission of the stale tx.
	first, second := f.rpc.Sent[0], f.rpc.Sent[1]
	if first.Message.RecentBlockhash == second.Message.RecentBlockhash {
		t.Error("retry reused the expired blockhash")
	}
}

func TestExecuteGivesUpAfterRetryBudget(t *testing.T) {
	f := newCoordFixture(t)

	f.rpc.SendFunc = func(tx *solana.Transaction) (solana.Signature, error) {
		f.rpc.RotateBlockhash("again")
		return solana.Signature{}, apperr.New(apperr.CodeBlockhashExpired, "Blockhash not found")
	}

	payment, err := f.coordinator.Execute(context.Background(), f.intent(100_000_000))
	if !apperr.HasCode(err, apperr.CodeBlockhashExpired) {
		t.Errorf("expected BLOCKHASH_EXPIRED after budget exhausted, got %v", err)
	}
	if payment.Status != model.PaymentFailed {
		t.Errorf("status = %s, want failed", payment.Status)
	}
	if len(f.rpc.Sent) != 2 {
		t.Errorf("expected 2 attempts (initial + 1 retry), got %d", len(f.rpc.Sent))
	}
}

func TestExecutePendingKeepsReservation(t *testing.T) {
	f := newCoordFixture(t)
	f.rpc.StatusFunc = func(sig solana.Signature) (chain.SignatureStatus, error) {
		return chain.SignatureStatus{}, nil // never confirms
	}

	payment, err := f.coordinator.Execute(context.Background(), f.intent(100_000_000))
	if !apperr.HasCode(err, apperr.CodeConfirmationTimeout) {
		t.Fatalf("expected CONFIRMATION_TIMEOUT, got %v", err)
	}
	if payment.Status != model.PaymentSubmitted {
		t.Errorf("status = %s, want submitted (terminal-unknown)", payment.Status)
	}

	// Fail closed: the same intent must stay blocked while the outcome is
	// unknown, so an automatic retry can never double-spend.
	_, err = f.coordinator.Execute(context.Background(), f.intent(100_000_000))
	if !apperr.HasCode(err, apperr.CodeDuplicateTransaction) {
		t.Errorf("pending transfer should block a second attempt, got %v", err)
	}
}

// unresolvableGuard reserves normally but fails every terminal Resolve call,
// simulating a reservation store outage after submission.
type unresolvableGuard struct {
	dedup.Guard
	resolveCalls []dedup.Outcome
}

func (g *unresolvableGuard) Resolve(ctx context.Context, key string, outcome dedup.Outcome) error {
	g.resolveCalls = append(g.resolveCalls, outcome)
	return errors.New("simulated reservation store outage")
}

func TestExecuteConfirmedSurvivesResolveFailure(t *testing.T) {
	guard := &unresolvableGuard{Guard: dedup.NewMemoryGuard(time.Minute)}
	f := newCoordFixtureWithGuard(t, guard)
	ctx := context.Background()

	payment, err := f.coordinator.Execute(ctx, f.intent(100_000_000))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if payment.Status != model.PaymentConfirmed {
		t.Errorf("status = %s, want confirmed despite the resolve failure", payment.Status)
	}
	if len(f.rpc.Sent) != 1 {
		t.Errorf("expected exactly 1 submission, got %d", len(f.rpc.Sent))
	}

	// Resolve was attempted exactly once, with the confirmed outcome. The
	// failure must not cascade into a second resolve that frees the key.
	if len(guard.resolveCalls) != 1 || guard.resolveCalls[0] != dedup.OutcomeConfirmed {
		t.Errorf("resolve calls = %v, want exactly one confirmed resolution", guard.resolveCalls)
	}

	stored, err := f.store.LoadSplitPayment(ctx, payment.ID)
	if err != nil {
		t.Fatalf("payment not persisted: %v", err)
	}
	if stored.Status != model.PaymentConfirmed {
		t.Errorf("persisted status = %s, want confirmed", stored.Status)
	}

	// The stuck reservation keeps blocking duplicates until the window lapses.
	_, err = f.coordinator.Execute(ctx, f.intent(100_000_000))
	if !apperr.HasCode(err, apperr.CodeDuplicateTransaction) {
		t.Errorf("unresolved reservation should block a duplicate, got %v", err)
	}
}

func TestExecuteFailedOutcomeFreesKey(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	f.rpc.StatusFunc = func(sig solana.Signature) (chain.SignatureStatus, error) {
		return chain.SignatureStatus{Known: true, Err: "custom program error"}, nil
	}
	payment, err := f.coordinator.Execute(ctx, f.intent(100_000_000))
	if err == nil {
		t.Fatal("on-chain failure should surface an error")
	}
	if payment.Status != model.PaymentFailed {
		t.Errorf("status = %s, want failed", payment.Status)
	}
	if payment.LastError == "" {
		t.Error("failed payment should record the last error")
	}

	// A failed attempt frees the key for a clean retry against the current
	// blockhash.
	f.rpc.StatusFunc = nil
	f.rpc.RotateBlockhash("fresh")
	retried, err := f.coordinator.Execute(ctx, f.intent(100_000_000))
	if err != nil {
		t.Fatalf("retry after failure should succeed, got %v", err)
	}
	if retried.Status != model.PaymentConfirmed {
		t.Errorf("retry status = %s, want confirmed", retried.Status)
	}
}
