package audit

import (
	"context"
	"time"

	"healthsafe/internal/platform/logger"
	"healthsafe/internal/platform/retry"

	"github.com/google/uuid"
)

// Recorder escribe eventos de auditoría. Un fallo del store nunca cambia el
// resultado de la operación auditada: se reintenta y luego se loguea.
type Recorder struct {
	repo  Repository
	log   logger.Logger
	retry retry.Policy
	now   func() time.Time
}

func NewRecorder(repo Repository, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{
		repo:  repo,
		log:   log,
		retry: retry.Default(),
		now:   time.Now,
	}
}

func (r *Recorder) Record(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now().UTC()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}

	// El evento se escribe aunque el cliente haya cortado la conexión.
	ctx = context.WithoutCancel(ctx)

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		return r.repo.Append(ctx, e)
	})
	if err != nil {
		r.log.Error("audit append failed", map[string]any{
			"err":       err,
			"action":    string(e.Action),
			"actor_id":  e.ActorID,
			"record_id": e.RecordID,
		})
	}
}

func (r *Recorder) Query(ctx context.Context, f Filter) ([]Event, error) {
	f = f.Normalize()
	return retry.Value(ctx, r.retry, func(ctx context.Context) ([]Event, error) {
		return r.repo.Query(ctx, f)
	})
}
