package access

import (
	"context"
	"fmt"
	"strings"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/audit"
	"healthsafe/internal/domain/grants"
	"healthsafe/internal/domain/records"
	"healthsafe/internal/platform/retry"
)

// Gate carga los hechos de un record, llama a Evaluate y audita.
type Gate struct {
	records *records.Service
	actors  *actors.Service
	grants  *grants.Service
	audit   *audit.Recorder
	retry   retry.Policy
}

func NewGate(recordsSvc *records.Service, actorsSvc *actors.Service, grantsSvc *grants.Service, rec *audit.Recorder) *Gate {
	return &Gate{
		records: recordsSvc,
		actors:  actorsSvc,
		grants:  grantsSvc,
		audit:   rec,
		retry:   retry.Default(),
	}
}

// facts solo consulta lo que la decisión va a mirar: grant y código
// únicamente para clínicos que no crearon el record.
func (g *Gate) facts(ctx context.Context, p actors.Principal, rec records.Record, code string) (Facts, error) {
	f := Facts{Record: rec, SuppliedCode: strings.TrimSpace(code)}
	if p.Role != actors.RoleClinician || !rec.Active || rec.CreatedBy(p.ID) {
		return f, nil
	}

	has, err := g.grants.HasGrant(ctx, rec.ID, p.ID)
	if err != nil {
		return Facts{}, err
	}
	f.HasGrant = has
	if has || f.SuppliedCode == "" {
		return f, nil
	}

	owner, err := retry.Value(ctx, g.retry, func(ctx context.Context) (actors.Actor, error) {
		return g.actors.Get(ctx, rec.PatientID)
	})
	if err != nil {
		return Facts{}, err
	}
	f.OwnerPatientCode = owner.PatientCode
	return f, nil
}

func (g *Gate) decide(ctx context.Context, p actors.Principal, recordID, code string) (records.Record, Decision, error) {
	rec, err := retry.Value(ctx, g.retry, func(ctx context.Context) (records.Record, error) {
		return g.records.Get(ctx, recordID)
	})
	if err != nil {
		return records.Record{}, Decision{}, err
	}

	f, err := g.facts(ctx, p, rec, code)
	if err != nil {
		return records.Record{}, Decision{}, err
	}
	return rec, Evaluate(p, f), nil
}

// View indica qué se lee del record; queda en la metadata del evento.
type View string

const (
	ViewRecord  View = "record"
	ViewHistory View = "history"
	ViewGrants  View = "grants"
	ViewCheck   View = "check"
)

func (v View) action() audit.Action {
	switch v {
	case ViewHistory:
		return audit.ActionHistoryViewed
	case ViewGrants:
		return audit.ActionGrantsViewed
	default:
		return audit.ActionRecordViewed
	}
}

func (g *Gate) emit(ctx context.Context, p actors.Principal, rec records.Record, d Decision, v View) {
	e := audit.Event{
		ActorID:       p.ID,
		ActorRole:     string(p.Role),
		TargetActorID: rec.PatientID,
		RecordID:      rec.ID,
		Metadata:      map[string]string{"reason": string(d.Reason), "view": string(v)},
	}
	switch {
	case !d.Allowed:
		e.Action = audit.ActionAccessDenied
	case d.Override:
		e.Action = audit.ActionRecordViewedOverride
	default:
		e.Action = v.action()
	}
	g.audit.Record(ctx, e)
}

func denied(d Decision) error {
	return fmt.Errorf("%w: %s", apperr.ErrUnauthorized, d.Reason)
}

// Read decide y deja exactamente un evento: ACCESS_DENIED,
// RECORD_VIEWED_OVERRIDE o la acción propia de la vista.
func (g *Gate) Read(ctx context.Context, p actors.Principal, recordID, code string, v View) (records.Record, Decision, error) {
	rec, d, err := g.decide(ctx, p, recordID, code)
	if err != nil {
		return records.Record{}, Decision{}, err
	}
	g.emit(ctx, p, rec, d, v)
	if !d.Allowed {
		return records.Record{}, d, denied(d)
	}
	return rec, d, nil
}

// View es la lectura del record (RECORD_VIEWED, RECORD_VIEWED_OVERRIDE o ACCESS_DENIED).
func (g *Gate) View(ctx context.Context, p actors.Principal, recordID, code string) (records.Record, Decision, error) {
	return g.Read(ctx, p, recordID, code, ViewRecord)
}

// ViewHistory: mismas reglas que View, evento HISTORY_VIEWED.
func (g *Gate) ViewHistory(ctx context.Context, p actors.Principal, recordID, code string) (records.Record, Decision, error) {
	return g.Read(ctx, p, recordID, code, ViewHistory)
}

// ListGrants: la decisión es la de Evaluate, pero listar grants queda para
// quien puede delegar (dueño, creador, admin). Grant o código no alcanzan.
func (g *Gate) ListGrants(ctx context.Context, p actors.Principal, recordID string) ([]grants.Grant, error) {
	rec, d, err := g.decide(ctx, p, recordID, "")
	if err != nil {
		return nil, err
	}
	if d.Allowed && !CanDelegate(d) {
		d = Decision{Reason: ReasonNoDelegation}
	}
	g.emit(ctx, p, rec, d, ViewGrants)
	if !d.Allowed {
		return nil, denied(d)
	}
	return g.grants.ListGrants(ctx, grants.Filter{RecordID: rec.ID})
}

// CanDelegate: accesos que además permiten administrar el consentimiento.
func CanDelegate(d Decision) bool {
	if !d.Allowed {
		return false
	}
	switch d.Reason {
	case ReasonOwner, ReasonCreator, ReasonAdminOverride:
		return true
	default:
		return false
	}
}

// Check es la misma decisión sin evento de lectura. Un override de admin
// siempre se audita.
func (g *Gate) Check(ctx context.Context, p actors.Principal, recordID, code string) (records.Record, Decision, error) {
	rec, d, err := g.decide(ctx, p, recordID, code)
	if err != nil {
		return records.Record{}, Decision{}, err
	}
	if d.Override {
		g.emit(ctx, p, rec, d, ViewCheck)
	}
	if !d.Allowed {
		return records.Record{}, d, denied(d)
	}
	return rec, d, nil
}
