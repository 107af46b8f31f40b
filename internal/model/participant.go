package model

// ParticipantStatus is the payment status of a split participant.
type ParticipantStatus string

const (
	ParticipantUnpaid  ParticipantStatus = "unpaid"
	ParticipantPartial ParticipantStatus = "partial"
	ParticipantPaid    ParticipantStatus = "paid"
	ParticipantSkipped ParticipantStatus = "skipped"
)

// Participant is one member's ledger entry in a split. Amounts are in base
// units of the split token.
type Participant struct {
	UserID      string            `json:"userId"`
	SplitID     string            `json:"splitId"`
	ShareAmount uint64            `json:"shareAmount"`
	AmountPaid  uint64            `json:"amountPaid"`
	Status      ParticipantStatus `json:"status"`
}
