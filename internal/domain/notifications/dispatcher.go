package notifications

import (
	"context"
	"time"

	"healthsafe/internal/platform/logger"
)

const (
	defaultBatchSize   = 50
	defaultMaxAttempts = 5
)

// Dispatcher publica los mensajes pendientes del outbox.
// Un fallo de publicación solo marca el mensaje; nunca toca el estado del core.
type Dispatcher struct {
	Outbox      Repository
	Publisher   Publisher
	Logger      logger.Logger
	BatchSize   int
	MaxAttempts int

	now func() time.Time
}

func NewDispatcher(outbox Repository, pub Publisher, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		Outbox:      outbox,
		Publisher:   pub,
		Logger:      log,
		BatchSize:   defaultBatchSize,
		MaxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
}

// RunOnce procesa un lote y devuelve cuántos mensajes se publicaron.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	limit := d.BatchSize
	if limit <= 0 {
		limit = defaultBatchSize
	}
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	pending, err := d.Outbox.ListPending(ctx, limit, maxAttempts)
	if err != nil {
		d.Logger.Error("outbox list failed", map[string]any{"err": err})
		return 0, err
	}

	sent := 0
	for _, m := range pending {
		fields := map[string]any{
			"outbox_id":  m.ID,
			"event_type": string(m.EventType),
			"recipient":  m.Recipient,
		}

		if err := d.Publisher.Publish(ctx, m); err != nil {
			fields["err"] = err
			fields["attempts"] = m.Attempts + 1
			d.Logger.Warn("outbox publish failed", fields)
			if mErr := d.Outbox.MarkFailed(ctx, m.ID, err.Error()); mErr != nil {
				d.Logger.Error("outbox mark failed failed", map[string]any{"outbox_id": m.ID, "err": mErr})
			}
			continue
		}

		if err := d.Outbox.MarkDispatched(ctx, m.ID, d.now()); err != nil {
			// Se reenviará en el próximo ciclo (at-least-once).
			d.Logger.Error("outbox mark dispatched failed", map[string]any{"outbox_id": m.ID, "err": err})
			continue
		}
		sent++
	}

	if sent > 0 {
		d.Logger.Info("outbox relay cycle completed", map[string]any{"published_count": sent})
	}
	return sent, nil
}

// Run ejecuta RunOnce cada interval hasta que ctx termine.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = d.RunOnce(ctx)
		}
	}
}
