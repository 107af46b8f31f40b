package registry

import (
	"context"
	"testing"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/keyvault"
	"github.com/splitsquad/splitpay/internal/model"
	"github.com/splitsquad/splitpay/internal/store"
)

func newTestRegistry() *Registry {
	vault := keyvault.New(keyvault.KDF{N: 1 << 10, R: 8, P: 1})
	return New(vault, store.NewMemoryStore(), 10_000)
}

var testCredential = []byte("credential")

func TestCreateSplitWallet(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	shares := []Share{
		{UserID: "alice", Amount: 50_000_000},
		{UserID: "bob", Amount: 50_000_000},
	}
	wallet, err := r.CreateSplitWallet(ctx, "split-1", 100_000_000, shares, testCredential)
	if err != nil {
		t.Fatalf("CreateSplitWallet failed: %v", err)
	}
	if wallet.PublicAddress == "" {
		t.Error("wallet should have a public address")
	}
	if wallet.FundingQR == "" {
		t.Error("wallet should carry a funding QR code")
	}
	if wallet.EncryptedMnemonic.CipherText == "" {
		t.Error("wallet should carry the encrypted mnemonic")
	}

	participants, err := r.Participants(ctx, "split-1")
	if err != nil {
		t.Fatalf("Participants failed: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(participants))
	}
	for _, p := range participants {
		if p.Status != model.ParticipantUnpaid {
			t.Errorf("participant %s status = %s, want unpaid", p.UserID, p.Status)
		}
		if p.AmountPaid != 0 {
			t.Errorf("participant %s starts with amountPaid %d", p.UserID, p.AmountPaid)
		}
	}
}

func TestCreateSplitWalletRejectsBadShareSum(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	shares := []Share{
		{UserID: "alice", Amount: 40_000_000},
		{UserID: "bob", Amount: 40_000_000},
	}
	_, err := r.CreateSplitWallet(ctx, "split-1", 100_000_000, shares, testCredential)
	if !apperr.HasCode(err, apperr.CodeValidation) {
		t.Errorf("shares off by 20 tokens should be rejected, got %v", err)
	}
}

func TestCreateSplitWalletToleratesRoundingRemainder(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	// Three-way split of 100: shares of 33.333333 leave a 1-unit remainder,
	// well inside the 0.01 tolerance.
	shares := []Share{
		{UserID: "a", Amount: 33_333_333},
		{UserID: "b", Amount: 33_333_333},
		{UserID: "c", Amount: 33_333_333},
	}
	if _, err := r.CreateSplitWallet(ctx, "split-1", 100_000_000, shares, testCredential); err != nil {
		t.Errorf("rounding remainder within tolerance should pass, got %v", err)
	}
}

func TestCreateSplitWalletRejectsSecondWallet(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	shares := []Share{{UserID: "alice", Amount: 100}}

	if _, err := r.CreateSplitWallet(ctx, "split-1", 100, shares, testCredential); err != nil {
		t.Fatalf("CreateSplitWallet failed: %v", err)
	}
	if _, err := r.CreateSplitWallet(ctx, "split-1", 100, shares, testCredential); err == nil {
		t.Error("a split must never get a second escrow wallet")
	}
}

func TestApplyFundingTransitions(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	shares := []Share{{UserID: "alice", Amount: 50_000_000}, {UserID: "bob", Amount: 50_000_000}}
	if _, err := r.CreateSplitWallet(ctx, "split-1", 100_000_000, shares, testCredential); err != nil {
		t.Fatalf("CreateSplitWallet failed: %v", err)
	}

	p, err := r.ApplyFunding(ctx, "split-1", "alice", 20_000_000)
	if err != nil {
		t.Fatalf("ApplyFunding failed: %v", err)
	}
	if p.Status != model.ParticipantPartial || p.AmountPaid != 20_000_000 {
		t.Errorf("after partial funding: status=%s paid=%d", p.Status, p.AmountPaid)
	}

	p, err = r.ApplyFunding(ctx, "split-1", "alice", 30_000_000)
	if err != nil {
		t.Fatalf("ApplyFunding failed: %v", err)
	}
	if p.Status != model.ParticipantPaid || p.AmountPaid != 50_000_000 {
		t.Errorf("after full funding: status=%s paid=%d", p.Status, p.AmountPaid)
	}

	done, err := r.FullyFunded(ctx, "split-1")
	if err != nil {
		t.Fatalf("FullyFunded failed: %v", err)
	}
	if done {
		t.Error("split with one unpaid participant is not fully funded")
	}

	if _, err := r.ApplyFunding(ctx, "split-1", "bob", 50_000_000); err != nil {
		t.Fatalf("ApplyFunding failed: %v", err)
	}
	done, err = r.FullyFunded(ctx, "split-1")
	if err != nil {
		t.Fatalf("FullyFunded failed: %v", err)
	}
	if !done {
		t.Error("split should be fully funded once both shares are paid")
	}
}

func TestApplyFundingRejectsSkippedParticipant(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	shares := []Share{{UserID: "alice", Amount: 50}, {UserID: "bob", Amount: 50}}
	if _, err := r.CreateSplitWallet(ctx, "split-1", 100, shares, testCredential); err != nil {
		t.Fatalf("CreateSplitWallet failed: %v", err)
	}

	if _, err := r.MarkSkipped(ctx, "split-1", "bob"); err != nil {
		t.Fatalf("MarkSkipped failed: %v", err)
	}
	if _, err := r.ApplyFunding(ctx, "split-1", "bob", 10); err == nil {
		t.Error("skipped participant must not accept funding")
	}
}

func TestFullyFundedIgnoresSkipped(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	shares := []Share{{UserID: "alice", Amount: 50}, {UserID: "bob", Amount: 50}}
	if _, err := r.CreateSplitWallet(ctx, "split-1", 100, shares, testCredential); err != nil {
		t.Fatalf("CreateSplitWallet failed: %v", err)
	}

	if _, err := r.MarkSkipped(ctx, "split-1", "bob"); err != nil {
		t.Fatalf("MarkSkipped failed: %v", err)
	}
	if _, err := r.ApplyFunding(ctx, "split-1", "alice", 50); err != nil {
		t.Fatalf("ApplyFunding failed: %v", err)
	}
	done, err := r.FullyFunded(ctx, "split-1")
	if err != nil {
		t.Fatalf("FullyFunded failed: %v", err)
	}
	if !done {
		t.Error("skipped participants must not block completion")
	}
}
