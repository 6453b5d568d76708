package actors

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/audit"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/platform/retry"
	"healthsafe/internal/ports/auth"
)

// -------------------------
// Test repos (in-memory)
// -------------------------

type testRepo struct {
	getErrs []error // se consumen antes de leer byID
	byID    map[string]Actor
	revoked []string
	notes   []notifications.Message
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Actor{}}
}

func (r *testRepo) codeTaken(code, exceptID string) bool {
	for _, a := range r.byID {
		if a.ID != exceptID && code != "" && a.PatientCode == code {
			return true
		}
	}
	return false
}

func (r *testRepo) Create(ctx context.Context, a Actor) error {
	if _, ok := r.byID[a.ID]; ok || r.codeTaken(a.PatientCode, a.ID) {
		return apperr.ErrConflict
	}
	r.byID[a.ID] = a
	return nil
}

func (r *testRepo) Update(ctx context.Context, a Actor) error {
	if _, ok := r.byID[a.ID]; !ok {
		return apperr.ErrNotFound
	}
	if r.codeTaken(a.PatientCode, a.ID) {
		return apperr.ErrConflict
	}
	r.byID[a.ID] = a
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Actor, error) {
	if len(r.getErrs) > 0 {
		err := r.getErrs[0]
		r.getErrs = r.getErrs[1:]
		return Actor{}, err
	}
	a, ok := r.byID[id]
	if !ok {
		return Actor{}, apperr.ErrNotFound
	}
	return a, nil
}

func (r *testRepo) GetByPatientCode(ctx context.Context, code string) (Actor, error) {
	for _, a := range r.byID {
		if a.PatientCode == code {
			return a, nil
		}
	}
	return Actor{}, apperr.ErrNotFound
}

func (r *testRepo) FindClinician(ctx context.Context, ident ClinicianIdentity) (Actor, error) {
	for _, a := range r.byID {
		if a.Role == RoleClinician &&
			strings.EqualFold(a.FirstName, ident.FirstName) &&
			strings.EqualFold(a.LastName, ident.LastName) &&
			a.LicenseNumber == ident.LicenseNumber {
			return a, nil
		}
	}
	return Actor{}, apperr.ErrNotFound
}

func (r *testRepo) Revoke(ctx context.Context, id string, at time.Time, notes ...notifications.Message) (Actor, error) {
	a, ok := r.byID[id]
	if !ok {
		return Actor{}, apperr.ErrNotFound
	}
	a.Role = RoleRevoked
	a.Active = false
	a.UpdatedAt = at
	r.byID[id] = a
	r.revoked = append(r.revoked, id)
	r.notes = append(r.notes, notes...)
	return a, nil
}

type memAudit struct{ events []audit.Event }

func (m *memAudit) Append(ctx context.Context, e audit.Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memAudit) Query(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	return m.events, nil
}

func newTestService(codes ...string) (*Service, *testRepo, *memAudit) {
	repo := newTestRepo()
	au := &memAudit{}
	svc := NewService(repo, audit.NewRecorder(au, nil))
	svc.now = func() time.Time { return time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC) }
	svc.retry = retry.Policy{Attempts: 3}

	if len(codes) > 0 {
		i := 0
		svc.newCode = func() (string, error) {
			c := codes[i%len(codes)]
			i++
			return c, nil
		}
	}
	return svc, repo, au
}

func ptr(s string) *string { return &s }

// -------------------------
// Tests
// -------------------------

func TestRegisterProfile_PatientGetsCode(t *testing.T) {
	svc, _, au := newTestService("PAT12345")

	a, err := svc.RegisterProfile(context.Background(), Principal{ID: "p1", Role: RolePatient}, RegisterInput{
		FirstName: "Ana", LastName: "Diaz",
	})
	if err != nil {
		t.Fatalf("RegisterProfile error: %v", err)
	}
	if a.PatientCode != "PAT12345" || !a.Active || !a.Verified {
		t.Fatalf("unexpected patient: %#v", a)
	}
	if len(au.events) != 1 || au.events[0].Action != audit.ActionProfileRegistered {
		t.Fatalf("expected one profile audit event, got %#v", au.events)
	}
}

func TestRegisterProfile_RetriesCodeCollision(t *testing.T) {
	svc, repo, _ := newTestService("DUPLICAT", "DUPLICAT", "FRESH001")
	repo.byID["other"] = Actor{ID: "other", Role: RolePatient, PatientCode: "DUPLICAT"}

	a, err := svc.RegisterProfile(context.Background(), Principal{ID: "p1", Role: RolePatient}, RegisterInput{
		FirstName: "Ana", LastName: "Diaz",
	})
	if err != nil {
		t.Fatalf("RegisterProfile error: %v", err)
	}
	if a.PatientCode != "FRESH001" {
		t.Fatalf("expected fresh code after collisions, got %s", a.PatientCode)
	}
}

func TestRegisterProfile_Rules(t *testing.T) {
	svc, _, _ := newTestService("PAT00001")
	ctx := context.Background()

	if _, err := svc.RegisterProfile(ctx, Principal{ID: "a1", Role: RoleSuperAdmin}, RegisterInput{FirstName: "x", LastName: "y"}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for admin self-register, got %v", err)
	}
	if _, err := svc.RegisterProfile(ctx, Principal{ID: "c1", Role: RoleClinician}, RegisterInput{FirstName: "x", LastName: "y"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input without licence, got %v", err)
	}

	c, err := svc.RegisterProfile(ctx, Principal{ID: "c1", Role: RoleClinician}, RegisterInput{FirstName: "Luis", LastName: "Paz", LicenseNumber: "MP-1"})
	if err != nil {
		t.Fatalf("clinician register error: %v", err)
	}
	if c.Verified || c.PatientCode != "" {
		t.Fatalf("clinician should start unverified without code: %#v", c)
	}

	if _, err := svc.RegisterProfile(ctx, Principal{ID: "c1", Role: RoleClinician}, RegisterInput{FirstName: "Luis", LastName: "Paz", LicenseNumber: "MP-1"}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict on duplicate profile, got %v", err)
	}
}

func TestReissuePatientCode_InvalidatesPrevious(t *testing.T) {
	svc, repo, au := newTestService("OLDCODE1", "NEWCODE2")
	ctx := context.Background()
	p := Principal{ID: "p1", Role: RolePatient}

	if _, err := svc.RegisterProfile(ctx, p, RegisterInput{FirstName: "Ana", LastName: "Diaz"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	a, err := svc.ReissuePatientCode(ctx, p)
	if err != nil {
		t.Fatalf("ReissuePatientCode error: %v", err)
	}
	if a.PatientCode != "NEWCODE2" {
		t.Fatalf("expected new code, got %s", a.PatientCode)
	}
	if _, err := svc.FindByPatientCode(ctx, "oldcode1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("old code must stop resolving, got %v", err)
	}
	if got, err := svc.FindByPatientCode(ctx, " newcode2 "); err != nil || got.ID != "p1" {
		t.Fatalf("new code must resolve to p1, got %#v %v", got, err)
	}
	if repo.byID["p1"].PatientCode != "NEWCODE2" {
		t.Fatalf("repo not updated")
	}

	last := au.events[len(au.events)-1]
	if last.Action != audit.ActionPatientCodeReissued {
		t.Fatalf("expected reissue audit, got %s", last.Action)
	}
	for _, v := range last.Metadata {
		if v == "NEWCODE2" || v == "OLDCODE1" {
			t.Fatalf("patient code leaked into audit metadata")
		}
	}

	if _, err := svc.ReissuePatientCode(ctx, Principal{ID: "c1", Role: RoleClinician}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for clinician, got %v", err)
	}
}

func TestAdminLifecycle_PromoteValidateRevoke(t *testing.T) {
	svc, repo, au := newTestService()
	ctx := context.Background()

	repo.byID["c1"] = Actor{ID: "c1", Role: RoleClinician, Active: true, FacilityID: ptr("fac-1")}
	repo.byID["c2"] = Actor{ID: "c2", Role: RoleClinician, Active: true, FacilityID: ptr("fac-2")}

	super := Principal{ID: "root", Role: RoleSuperAdmin}
	facAdmin := Principal{ID: "c1", Role: RoleFacilityAdmin, FacilityID: "fac-1"}

	if _, err := svc.Promote(ctx, facAdmin, "c2", "fac-1"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("only super admin promotes, got %v", err)
	}

	a, err := svc.Promote(ctx, super, "c1", "fac-1")
	if err != nil {
		t.Fatalf("Promote error: %v", err)
	}
	if a.Role != RoleFacilityAdmin || a.Verified || *a.FacilityID != "fac-1" {
		t.Fatalf("unexpected promoted actor: %#v", a)
	}

	if a, err = svc.Validate(ctx, super, "c1"); err != nil || !a.Verified {
		t.Fatalf("super admin validates facility admin: %#v %v", a, err)
	}

	// Facility admin solo gestiona clínicos de su facility.
	if _, err := svc.Validate(ctx, facAdmin, "c2"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized across facilities, got %v", err)
	}
	if _, err := svc.Revoke(ctx, facAdmin, "c2"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized revoke across facilities, got %v", err)
	}

	r, err := svc.Revoke(ctx, super, "c2")
	if err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	if r.Role != RoleRevoked || r.Active {
		t.Fatalf("unexpected revoked actor: %#v", r)
	}
	if len(repo.notes) != 1 || repo.notes[0].EventType != notifications.EventActorRevoked || repo.notes[0].Recipient != "c2" {
		t.Fatalf("expected actor_revoked outbox message, got %#v", repo.notes)
	}
	if _, err := svc.Revoke(ctx, super, "c2"); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state on double revoke, got %v", err)
	}

	last := au.events[len(au.events)-1]
	if last.Action != audit.ActionActorRevoked || last.TargetActorID != "c2" {
		t.Fatalf("expected revoke audit, got %#v", last)
	}
}

func TestResolve_UsesStoredRole(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.byID["c9"] = Actor{ID: "c9", Role: RoleRevoked, Active: false}

	got, err := svc.Resolve(context.Background(), auth.Claims{UserID: "c9", Role: "CLINICIAN"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got.Role != string(RoleRevoked) {
		t.Fatalf("expected stored REVOKED role to win, got %s", got.Role)
	}

	got, _ = svc.Resolve(context.Background(), auth.Claims{UserID: "root", Role: "SUPER_ADMIN"})
	if got.Role != "SUPER_ADMIN" {
		t.Fatalf("claims without profile pass through, got %s", got.Role)
	}
}

func TestResolve_StoreFailureReturnsNoClaims(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.byID["c9"] = Actor{ID: "c9", Role: RoleRevoked, Active: false}

	// Un fallo transitorio se reintenta.
	repo.getErrs = []error{apperr.ErrTransient}
	got, err := svc.Resolve(context.Background(), auth.Claims{UserID: "c9", Role: "CLINICIAN"})
	if err != nil || got.Role != string(RoleRevoked) {
		t.Fatalf("expected REVOKED after retry, got %#v %v", got, err)
	}

	repo.getErrs = []error{apperr.ErrTransient, apperr.ErrTransient, apperr.ErrTransient}
	got, err = svc.Resolve(context.Background(), auth.Claims{UserID: "c9", Role: "CLINICIAN"})
	if !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if got.UserID != "" || got.Role != "" {
		t.Fatalf("failed resolve must not return the token claims, got %#v", got)
	}
}

func TestParseRole(t *testing.T) {
	if ParseRole(" clinician ") != RoleClinician {
		t.Fatalf("expected CLINICIAN")
	}
	if ParseRole("NURSE") != "" {
		t.Fatalf("unknown role must parse to empty")
	}
}
