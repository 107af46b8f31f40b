package keyvault

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"

	"github.com/splitsquad/splitpay/internal/apperr"
)

// mnemonicEntropyBits yields a 24-word BIP-39 mnemonic.
const mnemonicEntropyBits = 256

// derivationPath is the standard Solana path m/44'/501'/0'/0' (all hardened,
// as SLIP-10 ed25519 requires).
var derivationPath = []uint32{44, 501, 0, 0}

// NewMnemonic generates a fresh 24-word BIP-39 mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeKeyGeneration, "failed to generate entropy", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeKeyGeneration, "failed to generate mnemonic", err)
	}
	return mnemonic, nil
}

// KeypairFromMnemonic re-derives the wallet keypair from a mnemonic via the
// BIP-39 seed and SLIP-10 ed25519 derivation at m/44'/501'/0'/0'.
// Caller should zero the returned key after use.
func KeypairFromMnemonic(mnemonic string) (solana.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, apperr.New(apperr.CodeDecryption, "invalid mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	defer clear(seed)

	key := deriveSLIP10(seed, derivationPath)
	defer clear(key)

	priv := ed25519.NewKeyFromSeed(key)
	return solana.PrivateKey(priv), nil
}

// deriveSLIP10 walks a hardened ed25519 SLIP-10 path from a BIP-39 seed and
// returns the 32-byte child key.
func deriveSLIP10(seed []byte, path []uint32) []byte {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	key, chainCode := sum[:32], sum[32:]

	for _, index := range path {
		hardened := index | 0x80000000
		data := make([]byte, 0, 1+32+4)
		data = append(data, 0x00)
		data = append(data, key...)
		data = binary.BigEndian.AppendUint32(data, hardened)

		mac = hmac.New(sha512.New, chainCode)
		mac.Write(data)
		sum = mac.Sum(nil)
		clear(key)
		key, chainCode = sum[:32], sum[32:]
	}
	return key
}
