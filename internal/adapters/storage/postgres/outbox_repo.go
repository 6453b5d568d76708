package postgres

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/notifications"
)

type OutboxRepo struct {
	db *sql.DB
}

func NewOutboxRepo(db *sql.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// outboxLease es cuánto queda reservado un lote para el dispatcher que lo tomó.
const outboxLease = time.Minute

// claimPendingQuery reserva el lote: SKIP LOCKED evita que dos instancias
// tomen la misma fila y claimed_until la esconde mientras se publica.
const claimPendingQuery = `
	UPDATE outbox o SET claimed_until = now() + make_interval(secs => $3)
	WHERE o.id IN (
		SELECT id FROM outbox
		WHERE dispatched_at IS NULL AND attempts < $2
		  AND (claimed_until IS NULL OR claimed_until < now())
		ORDER BY created_at ASC, id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING o.id, o.event_type, o.recipient, o.template_data, o.created_at, o.dispatched_at, o.attempts, o.last_error
`

// ListPending reserva hasta limit mensajes pendientes. La entrega sigue siendo
// at-least-once: un lease vencido (proceso caído a mitad) se vuelve a tomar.
func (r *OutboxRepo) ListPending(ctx context.Context, limit, maxAttempts int) ([]notifications.Message, error) {
	rows, err := r.db.QueryContext(ctx, claimPendingQuery, limit, maxAttempts, outboxLease.Seconds())
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]notifications.Message, 0)
	for rows.Next() {
		var (
			m            notifications.Message
			eventType    string
			data         []byte
			dispatchedAt sql.NullTime
		)
		if err := rows.Scan(
			&m.ID,
			&eventType,
			&m.Recipient,
			&data,
			&m.CreatedAt,
			&dispatchedAt,
			&m.Attempts,
			&m.LastError,
		); err != nil {
			return nil, classify(err)
		}
		m.EventType = notifications.EventType(eventType)
		m.DispatchedAt = fromNullTime(dispatchedAt)
		if m.TemplateData, err = decodeMap(data); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	// RETURNING no respeta el ORDER BY del subselect.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *OutboxRepo) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	return r.mark(ctx, `
		UPDATE outbox SET dispatched_at = $2, attempts = attempts + 1 WHERE id = $1
	`, id, at)
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.mark(ctx, `
		UPDATE outbox SET attempts = attempts + 1, last_error = $2, claimed_until = NULL WHERE id = $1
	`, id, reason)
}

func (r *OutboxRepo) mark(ctx context.Context, q string, id string, v any) error {
	res, err := r.db.ExecContext(ctx, q, id, v)
	if err != nil {
		return classify(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
