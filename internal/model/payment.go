package model

import "time"

// Purpose tags what a transfer is for; it selects the fee-schedule row and the
// per-purpose handler.
type Purpose string

const (
	PurposeFunding       Purpose = "funding"
	PurposeWithdrawal    Purpose = "withdrawal"
	PurposeP2P           Purpose = "p2p"
	PurposeSplitCreation Purpose = "split_creation"
)

// Valid reports whether p names a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeFunding, PurposeWithdrawal, PurposeP2P, PurposeSplitCreation:
		return true
	}
	return false
}

// PaymentStatus is the lifecycle status of a SplitPayment record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSubmitted PaymentStatus = "submitted"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// SplitPayment is one transfer attempt through an escrow wallet. Immutable
// once confirmed or failed. Amounts are in base units; FeeAmount is deducted
// from Amount for funding/p2p and zero for withdrawal/split_creation.
type SplitPayment struct {
	ID          string        `json:"id"`
	SplitID     string        `json:"splitId,omitempty"`
	UserID      string        `json:"userId,omitempty"`
	FromAddress string        `json:"fromAddress"`
	ToAddress   string        `json:"toAddress"`
	Amount      uint64        `json:"amount"`
	FeeAmount   uint64        `json:"feeAmount"`
	FeeBps      uint32        `json:"feeBps"`
	Purpose     Purpose       `json:"purpose"`
	Status      PaymentStatus `json:"status"`
	// Signature is set only once the transaction has been submitted.
	Signature      string     `json:"signature,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey"`
	LastError      string     `json:"lastError,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ConfirmedAt    *time.Time `json:"confirmedAt,omitempty"`
}

// Terminal reports whether the payment reached a final state.
func (p *SplitPayment) Terminal() bool {
	return p.Status == PaymentConfirmed || p.Status == PaymentFailed
}
