package keyvault

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/splitsquad/splitpay/internal/model"
)

// LoadKeyFile reads an encrypted-mnemonic JSON file, e.g. the treasury key.
func LoadKeyFile(path string) (model.EncryptedMnemonic, error) {
	var enc model.EncryptedMnemonic
	data, err := os.ReadFile(path)
	if err != nil {
		return enc, fmt.Errorf("failed to read key file: %w", err)
	}
	if err := json.Unmarshal(data, &enc); err != nil {
		return enc, fmt.Errorf("failed to parse key file: %w", err)
	}
	if enc.Salt == "" || enc.Nonce == "" || enc.CipherText == "" {
		return enc, fmt.Errorf("key file %s is missing encrypted fields", path)
	}
	return enc, nil
}

// SaveKeyFile writes an encrypted mnemonic as JSON, owner-readable only.
func SaveKeyFile(path string, enc model.EncryptedMnemonic) error {
	data, err := json.MarshalIndent(enc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode key file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}
