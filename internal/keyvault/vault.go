// Package keyvault encrypts and decrypts escrow-wallet key material. Raw
// private keys are never persisted: only the scrypt+AES-GCM encrypted mnemonic
// leaves this package, and decrypted material is zeroed as soon as the signing
// call that needed it returns.
package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/model"
)

const (
	saltLen  = 32
	nonceLen = 12
	keyLen   = 32
)

// KDF holds scrypt parameters.
//
// N=2^18 (~256MB RAM, 0.5-2s) is the production default: maximum security
// while remaining compatible with mobile devices, where Android memory limits
// per app (~256-512MB) rule out N=2^20.
type KDF struct {
	N int
	R int
	P int
}

// DefaultKDF returns the production scrypt parameters.
func DefaultKDF() KDF {
	return KDF{N: 1 << 18, R: 8, P: 1}
}

// Vault derives encryption keys from user credentials and seals mnemonics.
type Vault struct {
	kdf KDF
}

// New creates a Vault with the given KDF parameters. Tests pass cheap
// parameters; production callers use DefaultKDF().
func New(kdf KDF) *Vault {
	return &Vault{kdf: kdf}
}

// CreatedWallet is the result of CreateWallet.
type CreatedWallet struct {
	Address           string
	EncryptedMnemonic model.EncryptedMnemonic
}

// CreateWallet generates a mnemonic, derives its keypair, and encrypts the
// mnemonic with a key derived from the credential. The mnemonic and keypair
// are zeroed before returning.
func (v *Vault) CreateWallet(credential []byte) (*CreatedWallet, error) {
	mnemonic, err := NewMnemonic()
	if err != nil {
		return nil, err
	}
	mnemonicBytes := []byte(mnemonic)
	defer clear(mnemonicBytes)

	key, err := KeypairFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	address := key.PublicKey().String()
	clear(key)

	enc, err := v.Encrypt(mnemonicBytes, credential)
	if err != nil {
		return nil, err
	}

	return &CreatedWallet{Address: address, EncryptedMnemonic: enc}, nil
}

// Encrypt seals plaintext under a key derived from the credential.
func (v *Vault) Encrypt(plaintext, credential []byte) (model.EncryptedMnemonic, error) {
	var out model.EncryptedMnemonic

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return out, apperr.Wrap(apperr.CodeKeyGeneration, "failed to generate salt", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return out, apperr.Wrap(apperr.CodeKeyGeneration, "failed to generate nonce", err)
	}

	aesGCM, err := v.aead(credential, salt)
	if err != nil {
		return out, err
	}

	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)

	out = model.EncryptedMnemonic{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return out, nil
}

// Decrypt authenticated-decrypts an encrypted mnemonic and re-derives the
// wallet keypair. A wrong credential or corrupt ciphertext fails the GCM tag
// check and surfaces as a DecryptionError, never a plausible wrong key.
// Caller must zero the returned key after signing.
func (v *Vault) Decrypt(enc model.EncryptedMnemonic, credential []byte) (solana.PrivateKey, error) {
	mnemonic, err := v.DecryptMnemonic(enc, credential)
	if err != nil {
		return nil, err
	}
	defer clear(mnemonic)

	return KeypairFromMnemonic(string(mnemonic))
}

// DecryptMnemonic returns the raw mnemonic bytes. Used by Decrypt and by
// credential rotation. Caller must zero the returned slice.
func (v *Vault) DecryptMnemonic(enc model.EncryptedMnemonic, credential []byte) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(enc.Salt)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDecryption, "failed to decode salt", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(enc.Nonce)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDecryption, "failed to decode nonce", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(enc.CipherText)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDecryption, "failed to decode ciphertext", err)
	}

	aesGCM, err := v.aead(credential, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// GCM authenticates before decrypting; this covers both wrong
		// credential and corrupt ciphertext.
		return nil, apperr.New(apperr.CodeDecryption, "wrong credential or corrupt ciphertext")
	}
	return plaintext, nil
}

func (v *Vault) aead(credential, salt []byte) (cipher.AEAD, error) {
	key, err := scryptKey(credential, salt, v.kdf)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
