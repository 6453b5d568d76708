package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"healthsafe/internal/adapters/notify"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/platform/httpclient"
)

// Publisher hace POST de cada mensaje como JSON a un endpoint externo.
type Publisher struct {
	client *httpclient.Client
	url    string
}

func New(client *httpclient.Client, url string) (*Publisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("webhook url required")
	}
	if client == nil {
		client = httpclient.New(0)
	}
	return &Publisher{client: client, url: url}, nil
}

func (p *Publisher) Publish(ctx context.Context, m notifications.Message) error {
	headers := map[string]string{
		"Idempotency-Key": m.ID,
		"X-Event-Type":    string(m.EventType),
	}
	return p.client.DoJSON(ctx, http.MethodPost, p.url, headers, notify.FromMessage(m), nil)
}
