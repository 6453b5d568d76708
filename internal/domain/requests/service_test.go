package requests_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/audit"
	"healthsafe/internal/domain/domaintest"
	"healthsafe/internal/domain/grants"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/domain/requests"
)

func TestFile_Rules(t *testing.T) {
	env := domaintest.New()
	ctx := context.Background()
	patient, code := env.Patient(t, "p1", "Ana", "Gómez")
	clin := env.Clinician(t, "c1", "Luis", "Paz", "MP-1")

	req, err := env.Requests.File(ctx, clin, " "+code+" ")
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if req.Status != requests.StatePending || req.PatientID != patient.ID || req.ClinicianID != clin.ID {
		t.Fatalf("unexpected request: %#v", req)
	}
	if got := env.PendingFor(t, patient.ID, notifications.EventAccessRequested); len(got) != 1 {
		t.Fatalf("expected 1 access_requested notification, got %d", len(got))
	}

	if _, err := env.Requests.File(ctx, clin, code); !errors.Is(err, apperr.ErrAlreadyPending) {
		t.Fatalf("expected already pending, got %v", err)
	}
	if _, err := env.Requests.File(ctx, patient, code); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("patient cannot file, got %v", err)
	}
	if _, err := env.Requests.File(ctx, clin, "NOPE999"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	ghost := actors.Principal{ID: "ghost", Role: actors.RoleClinician}
	if _, err := env.Requests.File(ctx, ghost, code); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("clinician without profile cannot file, got %v", err)
	}
}

func TestRespond_AcceptFansOutGrants(t *testing.T) {
	env := domaintest.New()
	ctx := context.Background()
	patient, code := env.Patient(t, "p1", "Ana", "Gómez")
	author := env.Clinician(t, "c0", "Eva", "Sol", "MP-0")
	clin := env.Clinician(t, "c1", "Luis", "Paz", "MP-1")
	r1 := env.Record(t, author, code, "Consulta")
	env.Record(t, author, code, "Control")

	// Un grant previo no se duplica.
	if _, err := env.Grants.GrantExplicit(ctx, patient, r1.ID, grants.Target{ClinicianID: clin.ID}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	req, err := env.Requests.File(ctx, clin, code)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	updated, created, err := env.Requests.Respond(ctx, patient, req.ID, "accepted")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if updated.Status != requests.StateAccepted || updated.RespondedAt == nil || created != 1 {
		t.Fatalf("unexpected result: %#v created=%d", updated, created)
	}

	gs, err := env.Grants.ListGrants(ctx, grants.Filter{ClinicianID: clin.ID})
	if err != nil || len(gs) != 2 {
		t.Fatalf("expected 2 grants, got %d err=%v", len(gs), err)
	}
	if got := env.PendingFor(t, clin.ID, notifications.EventRequestAccepted); len(got) != 1 {
		t.Fatalf("expected 1 request_accepted notification, got %d", len(got))
	}

	events := env.Events(t, audit.Filter{Action: audit.ActionRequestAccepted})
	if len(events) != 1 || events[0].Metadata["grants_created"] != "1" || events[0].TargetActorID != clin.ID {
		t.Fatalf("unexpected events: %#v", events)
	}

	if _, _, err := env.Requests.Respond(ctx, patient, req.ID, "REJECTED"); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state on second respond, got %v", err)
	}

	// Resuelto el anterior, se puede volver a pedir.
	if _, err := env.Requests.File(ctx, clin, code); err != nil {
		t.Fatalf("refile after resolve: %v", err)
	}
}

func TestRespond_RejectAndRules(t *testing.T) {
	env := domaintest.New()
	ctx := context.Background()
	patient, code := env.Patient(t, "p1", "Ana", "Gómez")
	other, _ := env.Patient(t, "p2", "Juan", "Ruiz")
	clin := env.Clinician(t, "c1", "Luis", "Paz", "MP-1")
	env.Record(t, clin, code, "Consulta")
	outsider := env.Clinician(t, "c2", "Rita", "Mar", "MP-2")

	req, err := env.Requests.File(ctx, outsider, code)
	if err != nil {
		t.Fatalf("File: %v", err)
	}

	if _, _, err := env.Requests.Respond(ctx, patient, req.ID, "MAYBE"); !errors.Is(err, apperr.ErrInvalidDecision) {
		t.Fatalf("expected invalid decision, got %v", err)
	}
	if _, _, err := env.Requests.Respond(ctx, patient, req.ID, "PENDING"); !errors.Is(err, apperr.ErrInvalidDecision) {
		t.Fatalf("PENDING is not a decision, got %v", err)
	}
	if _, _, err := env.Requests.Respond(ctx, other, req.ID, "ACCEPTED"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("other patient must get not found, got %v", err)
	}
	// Ajeno o inexistente es NotFound antes de mirar la decisión.
	if _, _, err := env.Requests.Respond(ctx, other, req.ID, "MAYBE"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("foreign request with bad decision must be not found, got %v", err)
	}
	if _, _, err := env.Requests.Respond(ctx, patient, "missing", "MAYBE"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing request with bad decision must be not found, got %v", err)
	}
	if _, _, err := env.Requests.Respond(ctx, outsider, req.ID, "ACCEPTED"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("clinician cannot respond, got %v", err)
	}
	if _, _, err := env.Requests.Respond(ctx, patient, "missing", "ACCEPTED"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	updated, created, err := env.Requests.Respond(ctx, patient, req.ID, "REJECTED")
	if err != nil || updated.Status != requests.StateRejected || created != 0 {
		t.Fatalf("unexpected reject: %#v created=%d err=%v", updated, created, err)
	}
	if gs, _ := env.Grants.ListGrants(ctx, grants.Filter{ClinicianID: outsider.ID}); len(gs) != 0 {
		t.Fatalf("reject must not create grants, got %d", len(gs))
	}
	if got := env.PendingFor(t, outsider.ID, notifications.EventRequestRejected); len(got) != 1 {
		t.Fatalf("expected 1 request_rejected notification, got %d", len(got))
	}
}

func TestRespond_ConcurrentOneWinner(t *testing.T) {
	env := domaintest.New()
	ctx := context.Background()
	patient, code := env.Patient(t, "p1", "Ana", "Gómez")
	author := env.Clinician(t, "c0", "Eva", "Sol", "MP-0")
	clin := env.Clinician(t, "c1", "Luis", "Paz", "MP-1")
	env.Record(t, author, code, "Consulta")
	env.Record(t, author, code, "Control")

	req, err := env.Requests.File(ctx, clin, code)
	if err != nil {
		t.Fatalf("File: %v", err)
	}

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		created int
	)
	for i := 0; i < n; i++ {
		decision := "ACCEPTED"
		if i%2 == 1 {
			decision = "REJECTED"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, c, err := env.Requests.Respond(ctx, patient, req.ID, decision)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
				created += c
			case !errors.Is(err, apperr.ErrInvalidState):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	gs, _ := env.Grants.ListGrants(ctx, grants.Filter{ClinicianID: clin.ID})
	if len(gs) != created {
		t.Fatalf("grants %d != created %d", len(gs), created)
	}
	resolved := len(env.Events(t, audit.Filter{Action: audit.ActionRequestAccepted})) +
		len(env.Events(t, audit.Filter{Action: audit.ActionRequestRejected}))
	if resolved != 1 {
		t.Fatalf("expected one resolution event, got %d", resolved)
	}
}

func TestRevoke_ScopedToAuthorizer(t *testing.T) {
	env := domaintest.New()
	ctx := context.Background()
	ana, anaCode := env.Patient(t, "p1", "Ana", "Gómez")
	juan, juanCode := env.Patient(t, "p2", "Juan", "Ruiz")
	author := env.Clinician(t, "c0", "Eva", "Sol", "MP-0")
	clin := env.Clinician(t, "c1", "Luis", "Paz", "MP-1")
	env.Record(t, author, anaCode, "Consulta")
	env.Record(t, author, anaCode, "Control")
	env.Record(t, author, juanCode, "Consulta")

	for _, pc := range []struct {
		p    actors.Principal
		code string
	}{{ana, anaCode}, {juan, juanCode}} {
		req, err := env.Requests.File(ctx, clin, pc.code)
		if err != nil {
			t.Fatalf("File: %v", err)
		}
		if _, _, err := env.Requests.Respond(ctx, pc.p, req.ID, "ACCEPTED"); err != nil {
			t.Fatalf("Respond: %v", err)
		}
	}

	ident := actors.ClinicianIdentity{FirstName: "luis", LastName: " PAZ ", LicenseNumber: "MP-1"}
	n, err := env.Requests.Revoke(ctx, ana, ident)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 revoked, got %d err=%v", n, err)
	}
	gs, _ := env.Grants.ListGrants(ctx, grants.Filter{ClinicianID: clin.ID})
	if len(gs) != 1 || gs[0].AuthorizedBy != juan.ID {
		t.Fatalf("only juan's grant should remain, got %#v", gs)
	}
	if got := env.PendingFor(t, clin.ID, notifications.EventAccessRevoked); len(got) != 1 {
		t.Fatalf("expected 1 access_revoked notification, got %d", len(got))
	}

	// Sin grants: cero, no error.
	n, err = env.Requests.Revoke(ctx, ana, ident)
	if err != nil || n != 0 {
		t.Fatalf("second revoke: n=%d err=%v", n, err)
	}

	if _, err := env.Requests.Revoke(ctx, clin, ident); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("clinician cannot revoke, got %v", err)
	}
	unknown := actors.ClinicianIdentity{FirstName: "No", LastName: "Existe", LicenseNumber: "MP-9"}
	if _, err := env.Requests.Revoke(ctx, ana, unknown); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListMine(t *testing.T) {
	env := domaintest.New()
	ctx := context.Background()
	patient, code := env.Patient(t, "p1", "Ana", "Gómez")
	clin := env.Clinician(t, "c1", "Luis", "Paz", "MP-1")
	if _, err := env.Requests.File(ctx, clin, code); err != nil {
		t.Fatalf("File: %v", err)
	}

	for _, p := range []actors.Principal{patient, clin} {
		items, err := env.Requests.ListMine(ctx, p, requests.StatePending)
		if err != nil || len(items) != 1 {
			t.Fatalf("%s: expected 1 pending, got %d err=%v", p.Role, len(items), err)
		}
		items, _ = env.Requests.ListMine(ctx, p, requests.StateAccepted)
		if len(items) != 0 {
			t.Fatalf("%s: expected 0 accepted, got %d", p.Role, len(items))
		}
	}
	if _, err := env.Requests.ListMine(ctx, domaintest.Admin("a1"), ""); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("admin has no inbox, got %v", err)
	}
}

// flakyRequests falla Resolve con ErrTransient las primeras fails veces.
type flakyRequests struct {
	requests.Repository
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyRequests) Resolve(ctx context.Context, res requests.Resolution) (requests.Request, int, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fails > 0
	if fail {
		f.fails--
	}
	f.mu.Unlock()
	if fail {
		return requests.Request{}, 0, apperr.ErrTransient
	}
	return f.Repository.Resolve(ctx, res)
}

func TestRespond_RetriesTransientResolve(t *testing.T) {
	flaky := &flakyRequests{fails: 2}
	env := domaintest.NewWrapped(domaintest.Wrap{
		Requests: func(r requests.Repository) requests.Repository {
			flaky.Repository = r
			return flaky
		},
	})
	ctx := context.Background()
	patient, code := env.Patient(t, "p1", "Ana", "Gómez")
	author := env.Clinician(t, "c0", "Eva", "Sol", "MP-0")
	clin := env.Clinician(t, "c1", "Luis", "Paz", "MP-1")
	env.Record(t, author, code, "Consulta")

	req, err := env.Requests.File(ctx, clin, code)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	updated, created, err := env.Requests.Respond(ctx, patient, req.ID, "ACCEPTED")
	if err != nil || updated.Status != requests.StateAccepted || created != 1 {
		t.Fatalf("expected accept after retries, got %#v created=%d err=%v", updated, created, err)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 resolve calls, got %d", flaky.calls)
	}

	// Agotados los reintentos el error sale como transitorio y no hay evento.
	req2, err := env.Requests.File(ctx, env.Clinician(t, "c2", "Rita", "Mar", "MP-2"), code)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	flaky.fails = 10
	if _, _, err := env.Requests.Respond(ctx, patient, req2.ID, "REJECTED"); !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("expected transient after exhausting retries, got %v", err)
	}
	if got := env.Events(t, audit.Filter{Action: audit.ActionRequestRejected}); len(got) != 0 {
		t.Fatalf("failed respond must not be audited, got %d", len(got))
	}
}
