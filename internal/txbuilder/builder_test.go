package txbuilder

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/chain/chaintest"
	"github.com/splitsquad/splitpay/internal/model"
)

type builderFixture struct {
	rpc      *chaintest.FakeRPC
	builder  *Builder
	mint     solana.PublicKey
	treasury solana.PublicKey
	from     solana.PublicKey
	to       solana.PublicKey
}

func newBuilderFixture(t *testing.T) *builderFixture {
	t.Helper()
	rpc := chaintest.NewFakeRPC()
	mint := solana.NewWallet().PublicKey()
	treasury := solana.NewWallet().PublicKey()
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()

	b := New(rpc, mint, treasury, 6, DefaultFeeSchedule())

	sourceATA, _, err := solana.FindAssociatedTokenAddress(from, mint)
	if err != nil {
		t.Fatalf("failed to derive source token account: %v", err)
	}
	rpc.SetBalance(sourceATA, 1_000_000_000)

	return &builderFixture{rpc: rpc, builder: b, mint: mint, treasury: treasury, from: from, to: to}
}

// compiled returns (program, instruction) pairs from the built message.
func compiled(t *testing.T, tx *solana.Transaction) []struct {
	program solana.PublicKey
	ci      solana.CompiledInstruction
} {
	t.Helper()
	var out []struct {
		program solana.PublicKey
		ci      solana.CompiledInstruction
	}
	for _, ci := range tx.Message.Instructions {
		if int(ci.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			t.Fatal("instruction references unknown program")
		}
		out = append(out, struct {
			program solana.PublicKey
			ci      solana.CompiledInstruction
		}{tx.Message.AccountKeys[ci.ProgramIDIndex], ci})
	}
	return out
}

func transferAmount(t *testing.T, ci solana.CompiledInstruction) uint64 {
	t.Helper()
	if len(ci.Data) < 10 || ci.Data[0] != transferCheckedTag {
		t.Fatalf("not a TransferChecked instruction: %v", ci.Data)
	}
	return binary.LittleEndian.Uint64(ci.Data[1:9])
}

const transferCheckedTag = 12

func TestBuildFundingAppliesFee(t *testing.T) {
	f := newBuilderFixture(t)

	// 100 tokens at 1.5%: recipient gets 98.5, treasury gets 1.5.
	env, err := f.builder.BuildTransfer(context.Background(), BuildRequest{
		From:           f.from.String(),
		To:             f.to.String(),
		Amount:         100_000_000,
		Purpose:        model.PurposeFunding,
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("BuildTransfer failed: %v", err)
	}
	if env.Fee != 1_500_000 {
		t.Errorf("fee = %d, want 1_500_000", env.Fee)
	}
	if env.RecipientDelta() != 98_500_000 {
		t.Errorf("recipient delta = %d, want 98_500_000", env.RecipientDelta())
	}

	instrs := compiled(t, env.Tx)
	if len(instrs) != 3 {
		t.Fatalf("expected 3 instructions (transfer, fee, memo), got %d", len(instrs))
	}
	if !instrs[0].program.Equals(solana.TokenProgramID) {
		t.Error("first instruction should be the principal transfer")
	}
	if got := transferAmount(t, instrs[0].ci); got != 98_500_000 {
		t.Errorf("principal transfer amount = %d, want 98_500_000", got)
	}
	if got := transferAmount(t, instrs[1].ci); got != 1_500_000 {
		t.Errorf("fee transfer amount = %d, want 1_500_000", got)
	}

	treasuryATA, _, _ := solana.FindAssociatedTokenAddress(f.treasury, f.mint)
	feeDest := env.Tx.Message.AccountKeys[instrs[1].ci.Accounts[2]]
	if !feeDest.Equals(treasuryATA) {
		t.Error("fee transfer should pay the treasury token account")
	}

	if !instrs[2].program.Equals(MemoProgramID) {
		t.Error("last instruction should be the memo")
	}
	if !bytes.Contains(instrs[2].ci.Data, []byte("key-1")) {
		t.Error("memo should carry the idempotency key")
	}
}

func TestBuildWithdrawalIsFeeFree(t *testing.T) {
	f := newBuilderFixture(t)

	env, err := f.builder.BuildTransfer(context.Background(), BuildRequest{
		From:           f.from.String(),
		To:             f.to.String(),
		Amount:         98_500_000,
		Purpose:        model.PurposeWithdrawal,
		IdempotencyKey: "key-2",
	})
	if err != nil {
		t.Fatalf("BuildTransfer failed: %v", err)
	}
	if env.Fee != 0 {
		t.Errorf("withdrawal fee = %d, want 0", env.Fee)
	}
	// The recipient receives the full amount.
	if env.RecipientDelta() != 98_500_000 {
		t.Errorf("recipient delta = %d, want 98_500_000", env.RecipientDelta())
	}

	instrs := compiled(t, env.Tx)
	if len(instrs) != 2 {
		t.Fatalf("expected 2 instructions (transfer, memo), got %d", len(instrs))
	}
	if got := transferAmount(t, instrs[0].ci); got != 98_500_000 {
		t.Errorf("transfer amount = %d, want 98_500_000", got)
	}
}

func TestBuildCreatesMissingRecipientAccount(t *testing.T) {
	f := newBuilderFixture(t)

	destATA, _, _ := solana.FindAssociatedTokenAddress(f.to, f.mint)
	f.rpc.SetMissing(destATA)

	env, err := f.builder.BuildTransfer(context.Background(), BuildRequest{
		From:           f.from.String(),
		To:             f.to.String(),
		Amount:         10_000_000,
		Purpose:        model.PurposeFunding,
		IdempotencyKey: "key-3",
	})
	if err != nil {
		t.Fatalf("BuildTransfer failed: %v", err)
	}

	instrs := compiled(t, env.Tx)
	if len(instrs) != 4 {
		t.Fatalf("expected 4 instructions with account creation, got %d", len(instrs))
	}
	if !instrs[0].program.Equals(solana.SPLAssociatedTokenAccountProgramID) {
		t.Error("first instruction should create the recipient token account")
	}
	// The treasury funds the rent, not the sender.
	funder := env.Tx.Message.AccountKeys[instrs[0].ci.Accounts[0]]
	if !funder.Equals(f.treasury) {
		t.Error("account creation should be funded by the treasury")
	}
}

func TestBuildTreasuryIsFeePayer(t *testing.T) {
	f := newBuilderFixture(t)

	env, err := f.builder.BuildTransfer(context.Background(), BuildRequest{
		From:           f.from.String(),
		To:             f.to.String(),
		Amount:         10_000_000,
		Purpose:        model.PurposeP2P,
		IdempotencyKey: "key-4",
	})
	if err != nil {
		t.Fatalf("BuildTransfer failed: %v", err)
	}
	if !env.Tx.Message.AccountKeys[0].Equals(f.treasury) {
		t.Error("treasury must be account 0 (the fee payer)")
	}
	if got := env.Tx.Message.Header.NumRequiredSignatures; got != 2 {
		t.Errorf("required signatures = %d, want 2 (treasury + sender)", got)
	}
}

func TestBuildRejectsZeroAmount(t *testing.T) {
	f := newBuilderFixture(t)

	_, err := f.builder.BuildTransfer(context.Background(), BuildRequest{
		From:    f.from.String(),
		To:      f.to.String(),
		Amount:  0,
		Purpose: model.PurposeFunding,
	})
	if !apperr.HasCode(err, apperr.CodeAmountNotPositive) {
		t.Errorf("expected AMOUNT_NOT_POSITIVE, got %v", err)
	}
}

func TestBuildRejectsInvalidAddress(t *testing.T) {
	f := newBuilderFixture(t)

	_, err := f.builder.BuildTransfer(context.Background(), BuildRequest{
		From:    "not-an-address",
		To:      f.to.String(),
		Amount:  1_000_000,
		Purpose: model.PurposeFunding,
	})
	if !apperr.HasCode(err, apperr.CodeInvalidAddress) {
		t.Errorf("expected INVALID_ADDRESS, got %v", err)
	}
}

func TestBuildRejectsInsufficientBalance(t *testing.T) {
	f := newBuilderFixture(t)

	_, err := f.builder.BuildTransfer(context.Background(), BuildRequest{
		From:           f.from.String(),
		To:             f.to.String(),
		Amount:         2_000_000_000,
		Purpose:        model.PurposeFunding,
		IdempotencyKey: "key-5",
	})
	if !apperr.HasCode(err, apperr.CodeInsufficientBalance) {
		t.Errorf("expected INSUFFICIENT_BALANCE, got %v", err)
	}
}

func TestBuildFetchesFreshBlockhash(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()
	req := BuildRequest{
		From:           f.from.String(),
		To:             f.to.String(),
		Amount:         1_000_000,
		Purpose:        model.PurposeP2P,
		IdempotencyKey: "key-6",
	}

	env1, err := f.builder.BuildTransfer(ctx, req)
	if err != nil {
		t.Fatalf("BuildTransfer failed: %v", err)
	}
	f.rpc.RotateBlockhash("next")
	env2, err := f.builder.BuildTransfer(ctx, req)
	if err != nil {
		t.Fatalf("BuildTransfer failed: %v", err)
	}
	if env1.Blockhash == env2.Blockhash {
		t.Error("each build must stamp the current blockhash")
	}
}

func TestFeeScheduleByPurpose(t *testing.T) {
	fees := DefaultFeeSchedule()
	cases := []struct {
		purpose model.Purpose
		amount  uint64
		want    uint64
	}{
		{model.PurposeFunding, 100_000_000, 1_500_000},
		{model.PurposeP2P, 100_000_000, 1_500_000},
		{model.PurposeWithdrawal, 100_000_000, 0},
		{model.PurposeSplitCreation, 100_000_000, 0},
	}
	for _, tc := range cases {
		if got := fees.FeeFor(tc.purpose, tc.amount); got != tc.want {
			t.Errorf("FeeFor(%s, %d) = %d, want %d", tc.purpose, tc.amount, got, tc.want)
		}
	}
}
