// Package txbuilder constructs unsigned transfer transactions with the fee
// schedule applied and a fresh blockhash stamped at build time.
package txbuilder

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/chain"
	"github.com/splitsquad/splitpay/internal/logging"
	"github.com/splitsquad/splitpay/internal/model"
)

// MemoProgramID is the SPL memo program.
var MemoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// Builder assembles unsigned transfer envelopes. The treasury is the
// transaction fee payer on every envelope; the sender authority and the
// treasury are the two required signers.
type Builder struct {
	rpc      chain.RPC
	mint     solana.PublicKey
	decimals uint8
	treasury solana.PublicKey
	fees     FeeSchedule
}

// New creates a Builder for the given mint and treasury.
func New(rpc chain.RPC, mint, treasury solana.PublicKey, decimals uint8, fees FeeSchedule) *Builder {
	return &Builder{
		rpc:      rpc,
		mint:     mint,
		decimals: decimals,
		treasury: treasury,
		fees:     fees,
	}
}

// Fees returns the builder's fee schedule.
func (b *Builder) Fees() FeeSchedule {
	return b.fees
}

// Treasury returns the fee-payer address.
func (b *Builder) Treasury() solana.PublicKey {
	return b.treasury
}

// BuildRequest describes one transfer to assemble.
type BuildRequest struct {
	From           string
	To             string
	Amount         uint64 // gross, base units
	Purpose        model.Purpose
	IdempotencyKey string
}

// BuildTransfer constructs an unsigned transaction envelope:
//  1. create-recipient-token-account-if-missing (treasury pays rent)
//  2. token transfer of amount-fee from the sender authority
//  3. fee transfer to the treasury token account, when fee > 0
//  4. memo tagging purpose and idempotency key
//
// A fresh blockhash is fetched at call time and stamped together with
// lastValidBlockHeight; the envelope must not outlive the validity window.
func (b *Builder) BuildTransfer(ctx context.Context, req BuildRequest) (*model.TransactionEnvelope, error) {
	if req.Amount == 0 {
		return nil, apperr.New(apperr.CodeAmountNotPositive, "amount must be positive")
	}
	if !req.Purpose.Valid() {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown purpose %q", req.Purpose)
	}

	fromPubkey, err := solana.PublicKeyFromBase58(req.From)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidAddress, fmt.Sprintf("invalid sender address %q", req.From), err)
	}
	toPubkey, err := solana.PublicKeyFromBase58(req.To)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidAddress, fmt.Sprintf("invalid recipient address %q", req.To), err)
	}

	fee := b.fees.FeeFor(req.Purpose, req.Amount)

	sourceATA, _, err := solana.FindAssociatedTokenAddress(fromPubkey, b.mint)
	if err != nil {
		return nil, fmt.Errorf("failed to find source token account: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(toPubkey, b.mint)
	if err != nil {
		return nil, fmt.Errorf("failed to find destination token account: %w", err)
	}
	treasuryATA, _, err := solana.FindAssociatedTokenAddress(b.treasury, b.mint)
	if err != nil {
		return nil, fmt.Errorf("failed to find treasury token account: %w", err)
	}

	// Pre-check the sender balance before anything is signed.
	senderBalance, err := b.rpc.TokenAccountBalance(ctx, sourceATA)
	if err != nil {
		return nil, err
	}
	if senderBalance < req.Amount {
		return nil, apperr.Newf(apperr.CodeInsufficientBalance,
			"sender balance %d below transfer amount %d", senderBalance, req.Amount)
	}

	// Snapshot the recipient balance for the balance-diff confirmation fallback.
	recipientPre, err := b.rpc.TokenAccountBalance(ctx, destATA)
	if err != nil {
		return nil, err
	}

	instructions := make([]solana.Instruction, 0, 4)

	destExists, err := b.rpc.AccountExists(ctx, destATA)
	if err != nil {
		return nil, err
	}
	if !destExists {
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
			b.treasury, // payer
			toPubkey,   // owner
			b.mint,     // mint
		).Build())
	}

	instructions = append(instructions, token.NewTransferCheckedInstruction(
		req.Amount-fee,
		b.decimals,
		sourceATA,
		b.mint,
		destATA,
		fromPubkey,
		[]solana.PublicKey{},
	).Build())

	if fee > 0 {
		instructions = append(instructions, token.NewTransferCheckedInstruction(
			fee,
			b.decimals,
			sourceATA,
			b.mint,
			treasuryATA,
			fromPubkey,
			[]solana.PublicKey{},
		).Build())
	}

	memoText := fmt.Sprintf("splitpay:%s:%s", req.Purpose, req.IdempotencyKey)
	instructions = append(instructions, solana.NewInstruction(
		MemoProgramID,
		solana.AccountMetaSlice{},
		[]byte(memoText),
	))

	// Fresh blockhash at call time; never reuse one across builds.
	recent, err := b.rpc.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Blockhash,
		solana.TransactionPayer(b.treasury),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	logging.Builder.Debug().
		Str("purpose", string(req.Purpose)).
		Uint64("amount", req.Amount).
		Uint64("fee", fee).
		Int("instructions", len(instructions)).
		Msg("built transfer envelope")

	return &model.TransactionEnvelope{
		Tx:                    tx,
		Blockhash:             recent.Blockhash,
		LastValidBlockHeight:  recent.LastValidBlockHeight,
		Purpose:               req.Purpose,
		IdempotencyKey:        req.IdempotencyKey,
		From:                  fromPubkey,
		To:                    toPubkey,
		Amount:                req.Amount,
		Fee:                   fee,
		RecipientTokenAccount: destATA,
		RecipientPreBalance:   recipientPre,
		BuiltAt:               time.Now(),
	}, nil
}
