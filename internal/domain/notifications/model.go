package notifications

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAccessRequested EventType = "access_requested"
	EventRequestAccepted EventType = "request_accepted"
	EventRequestRejected EventType = "request_rejected"
	EventAccessGranted   EventType = "access_granted"
	EventAccessRevoked   EventType = "access_revoked"
	EventRecordCreated   EventType = "record_created"
	EventActorRevoked    EventType = "actor_revoked"
)

// Message es una fila del outbox. Se escribe en la misma transacción que la
// mutación que la origina y la despacha Dispatcher fuera de esa transacción.
type Message struct {
	ID        string
	EventType EventType

	Recipient    string // actor id destinatario
	TemplateData map[string]string

	CreatedAt    time.Time
	DispatchedAt *time.Time
	Attempts     int
	LastError    string
}

func NewMessage(t EventType, recipient string, data map[string]string, now time.Time) Message {
	if data == nil {
		data = map[string]string{}
	}
	return Message{
		ID:           uuid.NewString(),
		EventType:    t,
		Recipient:    recipient,
		TemplateData: data,
		CreatedAt:    now,
	}
}
