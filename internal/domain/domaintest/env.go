// Package domaintest arma el grafo completo de servicios sobre el store en
// memoria para los tests de cada dominio.
package domaintest

import (
	"context"
	"testing"

	"healthsafe/internal/adapters/storage/memory"
	"healthsafe/internal/domain/access"
	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/audit"
	"healthsafe/internal/domain/grants"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/domain/records"
	"healthsafe/internal/domain/requests"
	"healthsafe/internal/platform/logger"
)

type Env struct {
	Audit    *audit.Recorder
	Actors   *actors.Service
	Records  *records.Service
	Grants   *grants.Service
	Requests *requests.Service
	Gate     *access.Gate

	Outbox *memory.OutboxRepo
}

// Wrap permite envolver repos del store (p.ej. para simular fallos transitorios).
type Wrap struct {
	Grants   func(grants.Repository) grants.Repository
	Requests func(requests.Repository) requests.Repository
}

func New() *Env {
	return NewWrapped(Wrap{})
}

func NewWrapped(w Wrap) *Env {
	db := memory.New()
	rec := audit.NewRecorder(memory.NewAuditRepo(db), logger.Nop())
	actorsSvc := actors.NewService(memory.NewActorsRepo(db), rec)
	recordsSvc := records.NewService(memory.NewRecordsRepo(db), actorsSvc, rec)

	var grantsRepo grants.Repository = memory.NewGrantsRepo(db)
	if w.Grants != nil {
		grantsRepo = w.Grants(grantsRepo)
	}
	var requestsRepo requests.Repository = memory.NewRequestsRepo(db)
	if w.Requests != nil {
		requestsRepo = w.Requests(requestsRepo)
	}
	grantsSvc := grants.NewService(grantsRepo, recordsSvc, actorsSvc, rec)

	return &Env{
		Audit:    rec,
		Actors:   actorsSvc,
		Records:  recordsSvc,
		Grants:   grantsSvc,
		Requests: requests.NewService(requestsRepo, actorsSvc, grantsSvc, rec),
		Gate:     access.NewGate(recordsSvc, actorsSvc, grantsSvc, rec),
		Outbox:   memory.NewOutboxRepo(db),
	}
}

func Admin(id string) actors.Principal {
	return actors.Principal{ID: id, Role: actors.RoleSuperAdmin}
}

// Patient registra un paciente y devuelve su principal y su código.
func (e *Env) Patient(t testing.TB, id, first, last string) (actors.Principal, string) {
	t.Helper()
	p := actors.Principal{ID: id, Role: actors.RolePatient}
	a, err := e.Actors.RegisterProfile(context.Background(), p, actors.RegisterInput{FirstName: first, LastName: last})
	if err != nil {
		t.Fatalf("register patient %s: %v", id, err)
	}
	return p, a.PatientCode
}

func (e *Env) Clinician(t testing.TB, id, first, last, license string) actors.Principal {
	t.Helper()
	p := actors.Principal{ID: id, Role: actors.RoleClinician}
	_, err := e.Actors.RegisterProfile(context.Background(), p, actors.RegisterInput{
		FirstName:     first,
		LastName:      last,
		LicenseNumber: license,
	})
	if err != nil {
		t.Fatalf("register clinician %s: %v", id, err)
	}
	return p
}

func (e *Env) Record(t testing.TB, author actors.Principal, patientCode, title string) records.Record {
	t.Helper()
	rec, err := e.Records.Create(context.Background(), author, records.CreateInput{PatientCode: patientCode, Title: title})
	if err != nil {
		t.Fatalf("create record %q: %v", title, err)
	}
	return rec
}

// Events devuelve los eventos que cumplen f, del más reciente al más antiguo.
func (e *Env) Events(t testing.TB, f audit.Filter) []audit.Event {
	t.Helper()
	items, err := e.Audit.Query(context.Background(), f)
	if err != nil {
		t.Fatalf("audit query: %v", err)
	}
	return items
}

// Pending devuelve los mensajes del outbox aún no despachados.
func (e *Env) Pending(t testing.TB) []notifications.Message {
	t.Helper()
	items, err := e.Outbox.ListPending(context.Background(), 1000, 1000)
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	return items
}

// PendingFor filtra Pending por destinatario y tipo.
func (e *Env) PendingFor(t testing.TB, recipient string, et notifications.EventType) []notifications.Message {
	t.Helper()
	out := make([]notifications.Message, 0)
	for _, m := range e.Pending(t) {
		if m.Recipient == recipient && m.EventType == et {
			out = append(out, m)
		}
	}
	return out
}
