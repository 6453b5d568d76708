package logpub

import (
	"context"

	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/platform/logger"
)

// Publisher solo loguea. Es el default cuando no hay cola ni webhook.
type Publisher struct {
	log logger.Logger
}

func New(log logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{log: log}
}

// El template data no se loguea: puede traer nombres de pacientes.
func (p *Publisher) Publish(ctx context.Context, m notifications.Message) error {
	p.log.Info("notification", map[string]any{
		"outbox_id":  m.ID,
		"event_type": string(m.EventType),
		"recipient":  m.Recipient,
	})
	return nil
}
