// Package chaintest provides an in-memory RPC fake for pipeline tests.
package chaintest

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/splitsquad/splitpay/internal/chain"
)

// FakeRPC is a programmable in-memory chain.RPC. Zero value defaults: every
// account exists, balances start at zero, submissions succeed and confirm on
// the first status poll.
type FakeRPC struct {
	mu sync.Mutex

	Blockhash      chain.BlockhashResult
	BlockhashCalls int

	balances map[string]uint64
	missing  map[string]bool

	// SendFunc, when set, replaces the default submission behavior.
	SendFunc func(tx *solana.Transaction) (solana.Signature, error)
	// StatusFunc, when set, replaces the default always-confirmed behavior.
	StatusFunc func(sig solana.Signature) (chain.SignatureStatus, error)

	Sent []*solana.Transaction
}

// NewFakeRPC returns a fake with a non-zero starting blockhash.
func NewFakeRPC() *FakeRPC {
	return &FakeRPC{
		Blockhash: chain.BlockhashResult{
			Blockhash:            solana.HashFromBytes([]byte("fake-blockhash-00000000000000001")),
			LastValidBlockHeight: 1000,
		},
	}
}

// SetBalance sets the balance of a token account.
func (f *FakeRPC) SetBalance(account solana.PublicKey, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances == nil {
		f.balances = make(map[string]uint64)
	}
	f.balances[account.String()] = amount
}

// Credit adds to the balance of a token account.
func (f *FakeRPC) Credit(account solana.PublicKey, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances == nil {
		f.balances = make(map[string]uint64)
	}
	f.balances[account.String()] += amount
}

// SetMissing marks an account as nonexistent on chain.
func (f *FakeRPC) SetMissing(account solana.PublicKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing == nil {
		f.missing = make(map[string]bool)
	}
	f.missing[account.String()] = true
}

// RotateBlockhash installs a new blockhash, simulating chain progress.
func (f *FakeRPC) RotateBlockhash(seed string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	padded := make([]byte, 32)
	copy(padded, seed)
	f.Blockhash = chain.BlockhashResult{
		Blockhash:            solana.HashFromBytes(padded),
		LastValidBlockHeight: f.Blockhash.LastValidBlockHeight + 300,
	}
}

func (f *FakeRPC) LatestBlockhash(ctx context.Context) (chain.BlockhashResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BlockhashCalls++
	return f.Blockhash, nil
}

func (f *FakeRPC) TokenAccountBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[tokenAccount.String()], nil
}

func (f *FakeRPC) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.missing[account.String()], nil
}

func (f *FakeRPC) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	sendFn := f.SendFunc
	f.Sent = append(f.Sent, tx)
	f.mu.Unlock()

	if sendFn != nil {
		return sendFn(tx)
	}
	if len(tx.Signatures) > 0 {
		return tx.Signatures[0], nil
	}
	return solana.Signature{}, nil
}

func (f *FakeRPC) GetSignatureStatus(ctx context.Context, sig solana.Signature) (chain.SignatureStatus, error) {
	f.mu.Lock()
	statusFn := f.StatusFunc
	f.mu.Unlock()

	if statusFn != nil {
		return statusFn(sig)
	}
	return chain.SignatureStatus{Known: true, Confirmed: true}, nil
}

var _ chain.RPC = (*FakeRPC)(nil)
