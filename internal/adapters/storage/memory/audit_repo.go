package memory

import (
	"context"
	"sort"

	"healthsafe/internal/domain/audit"
)

// AuditRepo es append-only: no hay update ni delete.
type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Append(ctx context.Context, e audit.Event) error {
	if e.Metadata != nil {
		e.Metadata = copyStrings(e.Metadata)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.events = append(r.db.events, e)
	return nil
}

func (r *AuditRepo) Query(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	f = f.Normalize()

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]audit.Event, 0)
	// De atrás para adelante: orden de inserción inverso como desempate.
	for i := len(r.db.events) - 1; i >= 0; i-- {
		e := r.db.events[i]
		if f.Matches(e) {
			e.Metadata = copyStrings(e.Metadata)
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })

	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
