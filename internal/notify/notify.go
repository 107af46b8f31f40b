// Package notify is the fire-and-forget notification collaborator boundary.
package notify

import (
	"time"

	"github.com/splitsquad/splitpay/internal/logging"
	"github.com/splitsquad/splitpay/internal/model"
)

// Notifier receives events after terminal transitions. Implementations must
// not block the payment pipeline; delivery is best-effort.
type Notifier interface {
	Emit(event model.Event)
}

// NewEvent builds an event stamped now.
func NewEvent(typ model.EventType, splitID, participantID string, amount uint64) model.Event {
	return model.Event{
		Type:          typ,
		SplitID:       splitID,
		ParticipantID: participantID,
		Amount:        model.TokenAmount(amount),
		Timestamp:     time.Now(),
	}
}

// LogNotifier writes events to the structured log. The default when no
// external notification collaborator is wired.
type LogNotifier struct{}

func (LogNotifier) Emit(event model.Event) {
	logging.Notify.Info().
		Str("type", string(event.Type)).
		Str("splitId", event.SplitID).
		Str("participantId", event.ParticipantID).
		Uint64("amount", uint64(event.Amount)).
		Msg("event emitted")
}

// ChannelNotifier delivers events to a buffered channel; events beyond the
// buffer are dropped rather than blocking the pipeline. Useful in tests.
type ChannelNotifier struct {
	C chan model.Event
}

// NewChannelNotifier creates a ChannelNotifier with the given buffer.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	return &ChannelNotifier{C: make(chan model.Event, buffer)}
}

func (n *ChannelNotifier) Emit(event model.Event) {
	select {
	case n.C <- event:
	default:
	}
}
