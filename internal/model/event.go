package model

import "time"

// EventType identifies a notification event emitted after a terminal
// transition.
type EventType string

const (
	EventFundingReceived     EventType = "funding_received"
	EventSplitFullyFunded    EventType = "split_fully_funded"
	EventWithdrawalCompleted EventType = "withdrawal_completed"
	EventTransactionFailed   EventType = "transaction_failed"
)

// Event is the fire-and-forget payload handed to the notification
// collaborator.
type Event struct {
	Type          EventType `json:"type"`
	SplitID       string    `json:"splitId"`
	ParticipantID string    `json:"participantId,omitempty"`
	Amount    TokenAmount `json:"amount"`
	Timestamp time.Time   `json:"timestamp"`
}
