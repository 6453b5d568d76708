package notify

import (
	"time"

	"healthsafe/internal/domain/notifications"
)

// Payload es el formato en el cable común a todos los publishers.
type Payload struct {
	ID           string            `json:"id"`
	EventType    string            `json:"event_type"`
	Recipient    string            `json:"recipient"`
	TemplateData map[string]string `json:"template_data"`
	CreatedAt    time.Time         `json:"created_at"`
	Attempt      int               `json:"attempt"`
}

func FromMessage(m notifications.Message) Payload {
	data := m.TemplateData
	if data == nil {
		data = map[string]string{}
	}
	return Payload{
		ID:           m.ID,
		EventType:    string(m.EventType),
		Recipient:    m.Recipient,
		TemplateData: data,
		CreatedAt:    m.CreatedAt,
		Attempt:      m.Attempts + 1,
	}
}
