package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventEscalationRequested EventType = "escalation_requested"
	EventDialogStarted       EventType = "dialog_started"
	EventClaimRejected       EventType = "claim_rejected"
	EventDialogEnded         EventType = "dialog_ended"
	EventMessageRelayed      EventType = "message_relayed"
	EventAdminRegistered     EventType = "admin_registered"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ActorID   int64       `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with a fresh ID and the current time.
func New(eventType EventType, actorID int64, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// EscalationRequestedPayload payload.
type EscalationRequestedPayload struct {
	UserID         int64  `json:"user_id"`
	Outcome        string `json:"outcome"`
	Position       int    `json:"position"`
	AdminsNotified int    `json:"admins_notified"`
}

// DialogStartedPayload payload.
type DialogStartedPayload struct {
	UserID  int64 `json:"user_id"`
	AdminID int64 `json:"admin_id"`
}

// ClaimRejectedPayload payload.
type ClaimRejectedPayload struct {
	AdminID int64  `json:"admin_id"`
	Reason  string `json:"reason"`
}

// DialogEndedPayload payload.
type DialogEndedPayload struct {
	EndedBy   int64 `json:"ended_by"`
	PartnerID int64 `json:"partner_id"`
}

// MessageRelayedPayload payload. Message text is deliberately not carried.
type MessageRelayedPayload struct {
	From   int64 `json:"from"`
	To     int64 `json:"to"`
	Length int   `json:"length"`
}

// AdminRegisteredPayload payload.
type AdminRegisteredPayload struct {
	UserID int64 `json:"user_id"`
}
