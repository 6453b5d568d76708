package memory

import (
	"context"
	"time"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/notifications"
)

type OutboxRepo struct {
	db *DB
}

func NewOutboxRepo(db *DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

func (r *OutboxRepo) ListPending(ctx context.Context, limit, maxAttempts int) ([]notifications.Message, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]notifications.Message, 0)
	for _, id := range r.db.outboxOrder {
		m := r.db.outbox[id]
		if m.DispatchedAt != nil || m.Attempts >= maxAttempts {
			continue
		}
		m.TemplateData = copyStrings(m.TemplateData)
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepo) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	m, ok := r.db.outbox[id]
	if !ok {
		return apperr.ErrNotFound
	}
	m.DispatchedAt = &at
	m.Attempts++
	r.db.outbox[id] = m
	return nil
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	m, ok := r.db.outbox[id]
	if !ok {
		return apperr.ErrNotFound
	}
	m.Attempts++
	m.LastError = reason
	r.db.outbox[id] = m
	return nil
}
