package confirm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/chain"
	"github.com/splitsquad/splitpay/internal/chain/chaintest"
	"github.com/splitsquad/splitpay/internal/model"
)

func testEnvelope(t *testing.T) *model.TransactionEnvelope {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{}, []byte{0}),
		},
		solana.HashFromBytes([]byte("confirm-test-blockhash-000000001")),
		solana.TransactionPayer(solana.NewWallet().PublicKey()),
	)
	if err != nil {
		t.Fatalf("failed to build test transaction: %v", err)
	}
	tx.Signatures = []solana.Signature{{1, 2, 3}}
	return &model.TransactionEnvelope{
		Tx:                    tx,
		Purpose:               model.PurposeFunding,
		Amount:                100_000_000,
		Fee:                   1_500_000,
		RecipientTokenAccount: solana.NewWallet().PublicKey(),
		RecipientPreBalance:   0,
	}
}

func TestSubmitAndConfirmHappyPath(t *testing.T) {
	rpc := chaintest.NewFakeRPC()
	m := NewManager(rpc, 3, time.Millisecond)

	sig, verdict, err := m.SubmitAndConfirm(context.Background(), testEnvelope(t))
	if err != nil {
		t.Fatalf("SubmitAndConfirm failed: %v", err)
	}
	if verdict != VerdictConfirmed {
		t.Errorf("verdict = %v, want VerdictConfirmed", verdict)
	}
	if sig.IsZero() {
		t.Error("signature should be the submitted transaction's signature")
	}
}

func TestSubmitFailurePropagates(t *testing.T) {
	rpc := chaintest.NewFakeRPC()
	rpc.SendFunc = func(tx *solana.Transaction) (solana.Signature, error) {
		return solana.Signature{}, apperr.New(apperr.CodeBlockhashExpired, "Blockhash not found")
	}
	m := NewManager(rpc, 3, time.Millisecond)

	_, verdict, err := m.SubmitAndConfirm(context.Background(), testEnvelope(t))
	if verdict != VerdictFailed {
		t.Errorf("verdict = %v, want VerdictFailed", verdict)
	}
	if !apperr.HasCode(err, apperr.CodeBlockhashExpired) {
		t.Errorf("expected BLOCKHASH_EXPIRED to propagate, got %v", err)
	}
}

func TestOnChainFailureIsTerminal(t *testing.T) {
	rpc := chaintest.NewFakeRPC()
	rpc.StatusFunc = func(sig solana.Signature) (chain.SignatureStatus, error) {
		return chain.SignatureStatus{Known: true, Err: "custom program error"}, nil
	}
	m := NewManager(rpc, 3, time.Millisecond)

	_, verdict, err := m.SubmitAndConfirm(context.Background(), testEnvelope(t))
	if verdict != VerdictFailed {
		t.Errorf("verdict = %v, want VerdictFailed", verdict)
	}
	if err == nil {
		t.Error("on-chain failure should surface an error")
	}
}

func TestPollingCapReportsPending(t *testing.T) {
	rpc := chaintest.NewFakeRPC()
	rpc.StatusFunc = func(sig solana.Signature) (chain.SignatureStatus, error) {
		return chain.SignatureStatus{}, nil // never seen
	}
	m := NewManager(rpc, 2, time.Millisecond)

	_, verdict, err := m.SubmitAndConfirm(context.Background(), testEnvelope(t))
	if verdict != VerdictPending {
		t.Errorf("verdict = %v, want VerdictPending", verdict)
	}
	if !apperr.HasCode(err, apperr.CodeConfirmationTimeout) {
		t.Errorf("expected CONFIRMATION_TIMEOUT, got %v", err)
	}
}

func TestBalanceDiffFallbackConfirms(t *testing.T) {
	rpc := chaintest.NewFakeRPC()
	rpc.StatusFunc = func(sig solana.Signature) (chain.SignatureStatus, error) {
		return chain.SignatureStatus{}, nil // polling always inconclusive
	}
	m := NewManager(rpc, 2, time.Millisecond)

	env := testEnvelope(t)
	// The transfer actually landed: the recipient balance grew by amount-fee.
	rpc.SetBalance(env.RecipientTokenAccount, env.RecipientPreBalance+env.RecipientDelta())

	_, verdict, err := m.SubmitAndConfirm(context.Background(), env)
	if err != nil {
		t.Fatalf("SubmitAndConfirm failed: %v", err)
	}
	if verdict != VerdictConfirmed {
		t.Errorf("verdict = %v, want VerdictConfirmed via balance diff", verdict)
	}
}

func TestBalanceDiffIgnoresUnrelatedDeposit(t *testing.T) {
	rpc := chaintest.NewFakeRPC()
	rpc.StatusFunc = func(sig solana.Signature) (chain.SignatureStatus, error) {
		return chain.SignatureStatus{}, nil // polling always inconclusive
	}
	m := NewManager(rpc, 2, time.Millisecond)

	env := testEnvelope(t)
	// The recipient balance moved by more than this transfer's delta, so the
	// growth cannot be attributed to this transfer. The verdict must stay
	// pending instead of claiming a confirmation.
	rpc.SetBalance(env.RecipientTokenAccount, env.RecipientPreBalance+env.RecipientDelta()+1)

	_, verdict, err := m.SubmitAndConfirm(context.Background(), env)
	if verdict != VerdictPending {
		t.Errorf("verdict = %v, want VerdictPending when the diff is ambiguous", verdict)
	}
	if !apperr.HasCode(err, apperr.CodeConfirmationTimeout) {
		t.Errorf("expected CONFIRMATION_TIMEOUT, got %v", err)
	}
}

func TestTransientPollErrorsBurnAttempts(t *testing.T) {
	rpc := chaintest.NewFakeRPC()
	calls := 0
	rpc.StatusFunc = func(sig solana.Signature) (chain.SignatureStatus, error) {
		calls++
		if calls == 1 {
			return chain.SignatureStatus{}, errors.New("rpc hiccup")
		}
		return chain.SignatureStatus{Known: true, Confirmed: true}, nil
	}
	m := NewManager(rpc, 3, time.Millisecond)

	_, verdict, err := m.SubmitAndConfirm(context.Background(), testEnvelope(t))
	if err != nil {
		t.Fatalf("SubmitAndConfirm failed: %v", err)
	}
	if verdict != VerdictConfirmed {
		t.Errorf("verdict = %v, want VerdictConfirmed after a transient poll error", verdict)
	}
}

func TestCancelStopsObservationOnly(t *testing.T) {
	rpc := chaintest.NewFakeRPC()
	rpc.StatusFunc = func(sig solana.Signature) (chain.SignatureStatus, error) {
		return chain.SignatureStatus{}, nil
	}
	m := NewManager(rpc, 100, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, verdict, err := m.SubmitAndConfirm(ctx, testEnvelope(t))
	if verdict == VerdictFailed {
		t.Error("cancellation must not report failure, only pending")
	}
	if err == nil {
		t.Error("cancelled watch should surface a timeout error")
	}
	if len(rpc.Sent) != 1 {
		t.Errorf("transaction should have been submitted exactly once, got %d", len(rpc.Sent))
	}
}
