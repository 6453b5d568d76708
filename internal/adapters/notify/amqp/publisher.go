package amqp

import (
	"context"
	"fmt"
	"sync"

	"healthsafe/internal/adapters/notify"
	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/notifications"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher deja cada mensaje del outbox en una cola durable de RabbitMQ.
type Publisher struct {
	ch    channel
	queue string
	mu    sync.Mutex
}

// Dial abre conexión y canal, y declara la cola durable.
func Dial(url, queue string) (*Publisher, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp queue declare: %w", err)
	}

	closeFn := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return New(ch, queue), closeFn, nil
}

func New(ch channel, queue string) *Publisher {
	return &Publisher{ch: ch, queue: queue}
}

func (p *Publisher) Publish(ctx context.Context, m notifications.Message) error {
	body, err := json.Marshal(notify.FromMessage(m))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    m.ID,
		Type:         string(m.EventType),
		Timestamp:    m.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: amqp publish %s: %w", apperr.ErrTransient, p.queue, err)
	}
	return nil
}
