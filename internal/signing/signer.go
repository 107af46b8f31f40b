// Package signing implements the dual-signature protocol: the sender
// authority signs first on the client side, then the trusted fee sponsor
// validates and co-signs. The sponsor check is the single trust boundary
// protecting the treasury key.
package signing

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/keyvault"
	"github.com/splitsquad/splitpay/internal/model"
)

// Signer produces an ed25519 signature over a transaction message. Both the
// sender authority and the fee sponsor satisfy it, which keeps the treasury
// signer an injected dependency rather than a module-level singleton.
type Signer interface {
	PublicKey() solana.PublicKey
	SignMessage(message []byte) (solana.Signature, error)
}

// KeypairSigner signs with an in-memory keypair. Used for the treasury inside
// the trusted service and for fakes in tests.
type KeypairSigner struct {
	key solana.PrivateKey
}

// NewKeypairSigner wraps a private key.
func NewKeypairSigner(key solana.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key}
}

func (s *KeypairSigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

func (s *KeypairSigner) SignMessage(message []byte) (solana.Signature, error) {
	return s.key.Sign(message)
}

// VaultSigner decrypts the escrow key just in time for each signature and
// zeroes it before returning. The decrypted key is owned exclusively by the
// active signing call.
type VaultSigner struct {
	vault      *keyvault.Vault
	encrypted  model.EncryptedMnemonic
	credential []byte
	pub        solana.PublicKey
}

// NewVaultSigner creates a signer over an encrypted mnemonic. The expected
// public address pins the signer to its wallet record.
func NewVaultSigner(vault *keyvault.Vault, encrypted model.EncryptedMnemonic, credential []byte, publicAddress string) (*VaultSigner, error) {
	pub, err := solana.PublicKeyFromBase58(publicAddress)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidAddress, "invalid wallet address", err)
	}
	return &VaultSigner{
		vault:      vault,
		encrypted:  encrypted,
		credential: credential,
		pub:        pub,
	}, nil
}

func (s *VaultSigner) PublicKey() solana.PublicKey {
	return s.pub
}

func (s *VaultSigner) SignMessage(message []byte) (solana.Signature, error) {
	key, err := s.vault.Decrypt(s.encrypted, s.credential)
	if err != nil {
		return solana.Signature{}, err
	}
	defer clear(key)

	if !key.PublicKey().Equals(s.pub) {
		return solana.Signature{}, apperr.New(apperr.CodeDecryption, "decrypted key does not match wallet address")
	}
	return key.Sign(message)
}

// PartialSign places the signer's signature into its slot of the transaction
// without touching other signatures. All required signers sign the same
// serialized message.
func PartialSign(tx *solana.Transaction, signer Signer) error {
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	numRequired := int(tx.Message.Header.NumRequiredSignatures)
	for len(tx.Signatures) < numRequired {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}

	idx := -1
	pub := signer.PublicKey()
	for i := 0; i < numRequired && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(pub) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperr.Newf(apperr.CodeValidation, "%s is not a required signer of this transaction", pub)
	}

	sig, err := signer.SignMessage(message)
	if err != nil {
		return fmt.Errorf("failed to sign message: %w", err)
	}
	tx.Signatures[idx] = sig
	return nil
}
