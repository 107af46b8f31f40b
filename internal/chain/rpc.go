// Package chain wraps the blockchain RPC collaborator behind a narrow
// interface so the transfer pipeline can be driven by a fake in tests.
package chain

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// BlockhashResult is a fresh blockhash plus the height after which it expires.
type BlockhashResult struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// SignatureStatus is the confirmation state of a submitted transaction.
type SignatureStatus struct {
	// Known is false while the cluster has not seen the signature yet.
	Known bool
	// Confirmed means the transaction reached confirmed or finalized
	// commitment.
	Confirmed bool
	// Err is non-empty when the transaction was included but failed on chain.
	Err string
}

// RPC is the blockchain collaborator consumed by the core.
type RPC interface {
	LatestBlockhash(ctx context.Context) (BlockhashResult, error)
	TokenAccountBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (SignatureStatus, error)
}
