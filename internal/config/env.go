package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

// Network profiles. Devnet is the safe default; mainnet requires an explicit
// opt-in via SPLITPAY_NETWORK=mainnet.
const (
	NetworkDevnet  = "devnet"
	NetworkMainnet = "mainnet"
)

const (
	// USDC mint on Solana mainnet.
	usdcMintMainnet = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	// USDC-Dev mint on devnet (faucet-mintable test token).
	usdcMintDevnet = "Gh9ZwEmdLJ8DscKNTkTqPbNwLNNBjuSzaG9Vp2KGtKJr"
)

// Config contains all configuration parameters for the application.
//
// One Config serves two deployment roles. The sponsord server reads the
// service-side fields (port, network, mint, treasury key, data dir, fee
// schedule, dedup window, sponsor rate limit, logging). The pipeline knobs
// (PollIntervalSeconds, PollAttempts, MaxBlockhashRetries, EpsilonBaseUnits)
// configure an embedding application that runs the client-side transfer
// pipeline against a remote sponsor; sponsord itself does not read them.
//
// Note: the treasury passphrase is prompted at runtime and stored in memory -
// use GetTreasuryPassphraseBytes()
type Config struct {
	Port    string `envconfig:"PORT" default:"8080"`
	Network string `envconfig:"SPLITPAY_NETWORK" default:"devnet"`

	// Optional overrides; empty means the network-profile default is used.
	RPCURL    string `envconfig:"SPLITPAY_RPC_URL"`
	TokenMint string `envconfig:"SPLITPAY_TOKEN_MINT"`

	TreasuryKeyFile string `envconfig:"SPLITPAY_TREASURY_KEY_FILE" required:"true"`
	DataDir         string `envconfig:"SPLITPAY_DATA_DIR" default:"splitpay-data"`

	FundingFeeBps uint32 `envconfig:"SPLITPAY_FUNDING_FEE_BPS" default:"150"`
	P2PFeeBps     uint32 `envconfig:"SPLITPAY_P2P_FEE_BPS" default:"150"`

	PollIntervalSeconds int `envconfig:"SPLITPAY_POLL_INTERVAL_SECONDS" default:"2"`
	// Zero means "use the network-profile default" (30 mainnet, 15 devnet).
	PollAttempts int `envconfig:"SPLITPAY_POLL_ATTEMPTS" default:"0"`

	// Bound on automatic rebuild+retry after a blockhash expires mid-flight.
	MaxBlockhashRetries int `envconfig:"SPLITPAY_MAX_BLOCKHASH_RETRIES" default:"1"`

	// Funding completion tolerance in base units (0.01 token by default).
	EpsilonBaseUnits uint64 `envconfig:"SPLITPAY_EPSILON_BASE_UNITS" default:"10000"`

	DedupWindowMinutes int `envconfig:"SPLITPAY_DEDUP_WINDOW_MINUTES" default:"10"`

	SponsorSignsPerMinute int `envconfig:"SPLITPAY_SPONSOR_SIGNS_PER_MINUTE" default:"5"`

	LogLevel string `envconfig:"SPLITPAY_LOG_LEVEL" default:"info"`
	LogJSON  bool   `envconfig:"SPLITPAY_LOG_JSON" default:"false"`
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
func Init() error {
	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return fmt.Errorf("failed to process config: %w", err)
	}
	if c.Network != NetworkDevnet && c.Network != NetworkMainnet {
		return fmt.Errorf("unknown network %q: must be %q or %q", c.Network, NetworkDevnet, NetworkMainnet)
	}
	cfg = c
	return nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// RPCEndpoint returns the RPC URL for the configured network, honoring the
// SPLITPAY_RPC_URL override.
func (c *Config) RPCEndpoint() string {
	if c.RPCURL != "" {
		return c.RPCURL
	}
	if c.Network == NetworkMainnet {
		return rpc.MainNetBeta_RPC
	}
	return rpc.DevNet_RPC
}

// MintAddress returns the split-token mint for the configured network,
// honoring the SPLITPAY_TOKEN_MINT override.
func (c *Config) MintAddress() string {
	if c.TokenMint != "" {
		return c.TokenMint
	}
	if c.Network == NetworkMainnet {
		return usdcMintMainnet
	}
	return usdcMintDevnet
}

// ConfirmAttempts returns the confirmation polling cap for the configured
// network: ~60s on mainnet, ~30s on devnet at the default 2s interval.
func (c *Config) ConfirmAttempts() int {
	if c.PollAttempts > 0 {
		return c.PollAttempts
	}
	if c.Network == NetworkMainnet {
		return 30
	}
	return 15
}

// PollInterval returns the confirmation polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// DedupWindow returns the idempotency-reservation validity window.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowMinutes) * time.Minute
}

var passphraseBytes []byte

// PromptForPassphrase prompts for the treasury key passphrase in the terminal.
// The passphrase is read without echoing (hidden input) and stored in memory.
// Call this at startup before the server begins handling requests.
func PromptForPassphrase() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("stdin is not a terminal: run the app interactively to enter passphrase")
	}
	fmt.Fprint(os.Stderr, "Enter treasury key passphrase: ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(raw) == 0 {
		return errors.New("passphrase cannot be empty")
	}

	passphraseBytes = make([]byte, len(raw))
	copy(passphraseBytes, raw)
	clear(raw)
	return nil
}

// GetTreasuryPassphraseBytes returns the passphrase stored in memory (from
// PromptForPassphrase). Returns an error if the passphrase was not set.
// Caller must zero the returned slice after use for security.
func GetTreasuryPassphraseBytes() ([]byte, error) {
	if len(passphraseBytes) == 0 {
		return nil, errors.New("passphrase not set: call PromptForPassphrase at startup")
	}
	out := make([]byte, len(passphraseBytes))
	copy(out, passphraseBytes)
	return out, nil
}
