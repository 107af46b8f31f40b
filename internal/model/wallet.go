package model

import "time"

// EncryptedMnemonic is the at-rest form of an escrow wallet's key material.
// The mnemonic itself exists unencrypted only transiently in memory, derived
// on demand for a single signing call.
type EncryptedMnemonic struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipherText"`
}

// EscrowWallet is a wallet created solely to hold funds for one group split.
type EscrowWallet struct {
	ID                string            `json:"id"`
	SplitID           string            `json:"splitId"`
	PublicAddress     string            `json:"publicAddress"`
	EncryptedMnemonic EncryptedMnemonic `json:"encryptedMnemonic"`
	// FundingQR is a base64 PNG of the public address, for sharing with the group.
	FundingQR string    `json:"fundingQR,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
