package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// TransactionEnvelope is the ephemeral carrier of one build→sign→submit cycle.
// It is never persisted; on blockhash expiration it is discarded and rebuilt.
type TransactionEnvelope struct {
	Tx                   *solana.Transaction
	Blockhash            solana.Hash
	LastValidBlockHeight uint64

	Purpose        Purpose
	IdempotencyKey string
	From           solana.PublicKey
	To             solana.PublicKey
	// Amount is the gross amount leaving the sender; the recipient receives
	// Amount-Fee (funding/p2p) or Amount (withdrawal).
	Amount uint64
	Fee    uint64

	// Recipient token account and its pre-build balance, snapshotted for the
	// balance-diff confirmation fallback.
	RecipientTokenAccount solana.PublicKey
	RecipientPreBalance   uint64

	BuiltAt time.Time
}

// RecipientDelta is the balance increase the recipient should observe once the
// transfer confirms.
func (e *TransactionEnvelope) RecipientDelta() uint64 {
	return e.Amount - e.Fee
}
