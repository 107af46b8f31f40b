// sponsord is the trusted fee-sponsor signing service. It holds the treasury
// key (decrypted once at startup from an encrypted key file), validates
// user-signed transactions against the sponsor policy, and adds the fee-payer
// signature.
package main

import (
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/splitsquad/splitpay/internal/api"
	"github.com/splitsquad/splitpay/internal/config"
	"github.com/splitsquad/splitpay/internal/dedup"
	"github.com/splitsquad/splitpay/internal/keyvault"
	"github.com/splitsquad/splitpay/internal/logging"
	"github.com/splitsquad/splitpay/internal/signing"
	"github.com/splitsquad/splitpay/internal/txbuilder"
)

func main() {
	if err := config.Init(); err != nil {
		logging.Logger.Fatal().Err(err).Msg("failed to load config")
	}
	cfg := config.Get()
	logging.Init(cfg.LogLevel, cfg.LogJSON)

	if err := config.PromptForPassphrase(); err != nil {
		logging.Logger.Fatal().Err(err).Msg("failed to read treasury passphrase")
	}

	treasury, err := loadTreasurySigner(cfg.TreasuryKeyFile)
	if err != nil {
		logging.Logger.Fatal().Err(err).Msg("failed to load treasury key")
	}

	mint, err := solana.PublicKeyFromBase58(cfg.MintAddress())
	if err != nil {
		logging.Logger.Fatal().Err(err).Str("mint", cfg.MintAddress()).Msg("invalid token mint")
	}

	guard, err := dedup.OpenBadgerGuard(cfg.DataDir, cfg.DedupWindow())
	if err != nil {
		logging.Logger.Fatal().Err(err).Msg("failed to open reservation store")
	}
	defer guard.Close()

	fees := txbuilder.FeeSchedule{
		FundingBps: cfg.FundingFeeBps,
		P2PBps:     cfg.P2PFeeBps,
	}

	service, err := signing.NewSponsorService(treasury, mint, fees, guard, cfg.SponsorSignsPerMinute)
	if err != nil {
		logging.Logger.Fatal().Err(err).Msg("failed to create sponsor service")
	}

	router := api.SetupRouter(service)

	logging.Logger.Info().
		Str("port", cfg.Port).
		Str("network", cfg.Network).
		Str("treasury", service.TreasuryAddress()).
		Msg("sponsor service listening")
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		logging.Logger.Fatal().Err(err).Msg("server stopped")
	}
}

// loadTreasurySigner decrypts the treasury key file with the prompted
// passphrase. The passphrase copy is zeroed before returning; the decrypted
// key lives only inside the returned signer.
func loadTreasurySigner(path string) (signing.Signer, error) {
	enc, err := keyvault.LoadKeyFile(path)
	if err != nil {
		return nil, err
	}

	passphrase, err := config.GetTreasuryPassphraseBytes()
	if err != nil {
		return nil, err
	}
	defer clear(passphrase)

	vault := keyvault.New(keyvault.DefaultKDF())
	key, err := vault.Decrypt(enc, passphrase)
	if err != nil {
		return nil, err
	}
	return signing.NewKeypairSigner(key), nil
}
