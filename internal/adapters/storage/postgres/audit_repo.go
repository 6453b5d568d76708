package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"healthsafe/internal/domain/audit"
)

// AuditRepo es append-only: no hay UPDATE ni DELETE sobre audit_events.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Append(ctx context.Context, e audit.Event) error {
	meta, err := encodeMap(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, occurred_at, actor_id, actor_role, action,
			target_actor_id, record_id, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		e.ID,
		e.OccurredAt,
		e.ActorID,
		e.ActorRole,
		string(e.Action),
		e.TargetActorID,
		e.RecordID,
		meta,
	)
	return classify(err)
}

func (r *AuditRepo) Query(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	f = f.Normalize()

	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.RecordID != "" {
		add("record_id = $%d", f.RecordID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.Since != nil {
		add("occurred_at >= $%d", *f.Since)
	}

	q := `
		SELECT id, occurred_at, actor_id, actor_role, action, target_actor_id, record_id, metadata
		FROM audit_events`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit)
	q += fmt.Sprintf(` ORDER BY occurred_at DESC, seq DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e      audit.Event
			action string
			meta   []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.OccurredAt,
			&e.ActorID,
			&e.ActorRole,
			&action,
			&e.TargetActorID,
			&e.RecordID,
			&meta,
		); err != nil {
			return nil, classify(err)
		}
		e.Action = audit.Action(action)
		if e.Metadata, err = decodeMap(meta); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, classify(rows.Err())
}
