package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/logging"
)

// transport retry: one backoff retry on transport-level failures, never on
// on-chain rejections.
const (
	transportRetries = 1
	retryBackoff     = 500 * time.Millisecond
)

// Client is the solana-go implementation of RPC.
type Client struct {
	rpcClient *rpc.Client
	rpcURL    string
}

// NewClient creates a Solana RPC client for the given endpoint.
func NewClient(rpcURL string) *Client {
	return &Client{
		rpcClient: rpc.New(rpcURL),
		rpcURL:    rpcURL,
	}
}

// LatestBlockhash fetches a fresh blockhash and its expiry height.
func (c *Client) LatestBlockhash(ctx context.Context) (BlockhashResult, error) {
	var out BlockhashResult
	err := c.withRetry(ctx, "getLatestBlockhash", func() error {
		recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		out = BlockhashResult{
			Blockhash:            recent.Value.Blockhash,
			LastValidBlockHeight: recent.Value.LastValidBlockHeight,
		}
		return nil
	})
	if err != nil {
		return out, apperr.Wrap(apperr.CodeNetwork, "failed to get latest blockhash", err)
	}
	return out, nil
}

// TokenAccountBalance returns the token account balance in base units.
// A missing account reads as zero balance.
func (c *Client) TokenAccountBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	var amount uint64
	err := c.withRetry(ctx, "getTokenAccountBalance", func() error {
		balance, err := c.rpcClient.GetTokenAccountBalance(ctx, tokenAccount, rpc.CommitmentConfirmed)
		if err != nil {
			if isAccountNotFoundError(err) {
				amount = 0
				return nil
			}
			return err
		}
		if balance.Value == nil {
			amount = 0
			return nil
		}
		parsed, err := strconv.ParseUint(balance.Value.Amount, 10, 64)
		if err != nil {
			return err
		}
		amount = parsed
		return nil
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeNetwork, "failed to get token account balance", err)
	}
	return amount, nil
}

// AccountExists reports whether an account exists on chain.
func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	var exists bool
	err := c.withRetry(ctx, "getAccountInfo", func() error {
		info, err := c.rpcClient.GetAccountInfo(ctx, account)
		if err != nil {
			if isAccountNotFoundError(err) {
				exists = false
				return nil
			}
			return err
		}
		exists = info.Value != nil
		return nil
	})
	if err != nil {
		return false, apperr.Wrap(apperr.CodeNetwork, "failed to get account info", err)
	}
	return exists, nil
}

// SendTransaction broadcasts a fully signed transaction. Blockhash expiry is
// surfaced as a typed BlockhashExpiredError so the caller can rebuild.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpcClient.SendTransactionWithOpts(
		ctx,
		tx,
		rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentConfirmed,
		},
	)
	if err != nil {
		if IsBlockhashExpired(err) {
			return solana.Signature{}, apperr.Wrap(apperr.CodeBlockhashExpired, "blockhash expired before submission", err)
		}
		return solana.Signature{}, apperr.Wrap(apperr.CodeNetwork, "failed to send transaction", err)
	}
	logging.Chain.Debug().Str("signature", sig.String()).Msg("transaction submitted")
	return sig, nil
}

// GetSignatureStatus queries the confirmation state of a signature.
func (c *Client) GetSignatureStatus(ctx context.Context, sig solana.Signature) (SignatureStatus, error) {
	var out SignatureStatus
	err := c.withRetry(ctx, "getSignatureStatuses", func() error {
		statuses, err := c.rpcClient.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			return err
		}
		if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
			out = SignatureStatus{Known: false}
			return nil
		}
		st := statuses.Value[0]
		out.Known = true
		if st.Err != nil {
			out.Err = toErrString(st.Err)
		}
		out.Confirmed = st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			st.ConfirmationStatus == rpc.ConfirmationStatusFinalized
		return nil
	})
	if err != nil {
		return out, apperr.Wrap(apperr.CodeNetwork, "failed to get signature status", err)
	}
	return out, nil
}

func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= transportRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < transportRetries {
			logging.Chain.Warn().Str("op", op).Err(err).Msg("rpc call failed, retrying")
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return err
			}
		}
	}
	return err
}

// IsBlockhashExpired checks if error indicates an expired or unknown blockhash
func IsBlockhashExpired(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Blockhash not found") ||
		strings.Contains(errStr, "BlockhashNotFound")
}

// isAccountNotFoundError checks if error indicates that the account doesn't exist
func isAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "could not find account") ||
		strings.Contains(errStr, "not found")
}

func toErrString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
