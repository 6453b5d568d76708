package records_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/audit"
	"healthsafe/internal/domain/domaintest"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/domain/records"
)

func strPtr(s string) *string { return &s }

func TestCreate_NumbersPerPatientAndNotifies(t *testing.T) {
	env := domaintest.New()
	patient, code := env.Patient(t, "p1", "Ana", "Gómez")
	_, otherCode := env.Patient(t, "p2", "Juan", "Ruiz")
	author := env.Clinician(t, "c1", "Eva", "Sol", "MP-1")

	r1 := env.Record(t, author, code, "Consulta")
	r2 := env.Record(t, author, code, "Control")
	r3 := env.Record(t, author, otherCode, "Ingreso")

	if r1.Number != "DOS-01" || r2.Number != "DOS-02" || r3.Number != "DOS-01" {
		t.Fatalf("unexpected numbering: %s %s %s", r1.Number, r2.Number, r3.Number)
	}
	if r1.PatientID != patient.ID || !r1.CreatedBy(author.ID) || !r1.Active {
		t.Fatalf("unexpected record: %#v", r1)
	}

	if got := env.PendingFor(t, patient.ID, notifications.EventRecordCreated); len(got) != 2 {
		t.Fatalf("expected 2 record_created notifications, got %d", len(got))
	}
	if got := env.Events(t, audit.Filter{RecordID: r1.ID, Action: audit.ActionRecordCreated}); len(got) != 1 {
		t.Fatalf("expected one RECORD_CREATED event, got %d", len(got))
	}
}

func TestCreate_Rules(t *testing.T) {
	env := domaintest.New()
	ctx := context.Background()
	patient, code := env.Patient(t, "p1", "Ana", "Gómez")
	author := env.Clinician(t, "c1", "Eva", "Sol", "MP-1")

	cases := []struct {
		name string
		p    actors.Principal
		in   records.CreateInput
		want error
	}{
		{"patient cannot create", patient, records.CreateInput{PatientCode: code, Title: "x"}, apperr.ErrUnauthorized},
		{"clinician without profile", actors.Principal{ID: "ghost", Role: actors.RoleClinician}, records.CreateInput{PatientCode: code, Title: "x"}, apperr.ErrUnauthorized},
		{"unknown code", author, records.CreateInput{PatientCode: "NOPE1234", Title: "x"}, apperr.ErrNotFound},
		{"empty title", author, records.CreateInput{PatientCode: code, Title: "  "}, apperr.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.Records.Create(ctx, tc.p, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	// El código se normaliza (minúsculas y espacios).
	if _, err := env.Records.Create(ctx, author, records.CreateInput{PatientCode: "  " + strings.ToLower(code) + " ", Title: "ok"}); err != nil {
		t.Fatalf("normalized code should resolve: %v", err)
	}
}

func TestUpdate_OnlyCreatorAndActive(t *testing.T) {
	env := domaintest.New()
	ctx := context.Background()
	_, code := env.Patient(t, "p1", "Ana", "Gómez")
	author := env.Clinician(t, "c1", "Eva", "Sol", "MP-1")
	other := env.Clinician(t, "c2", "Luis", "Paz", "MP-2")
	rec := env.Record(t, author, code, "Consulta")

	if _, err := env.Records.Update(ctx, other, rec.ID, records.UpdateInput{Title: strPtr("x")}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for non-creator, got %v", err)
	}

	updated, err := env.Records.Update(ctx, author, rec.ID, records.UpdateInput{Content: strPtr("Sin novedades")})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.Title != "Consulta" || updated.Content != "Sin novedades" || updated.Number != rec.Number {
		t.Fatalf("unexpected update: %#v", updated)
	}
	if _, err := env.Records.Update(ctx, author, rec.ID, records.UpdateInput{Title: strPtr(" ")}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty title, got %v", err)
	}

	if _, err := env.Records.Deactivate(ctx, domaintest.Admin("a1"), rec.ID); err != nil {
		t.Fatalf("Deactivate error: %v", err)
	}
	if _, err := env.Records.Update(ctx, author, rec.ID, records.UpdateInput{Title: strPtr("y")}); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state on inactive record, got %v", err)
	}
}

func TestDeactivate_AdminOnlyAndIdempotent(t *testing.T) {
	env := domaintest.New()
	ctx := context.Background()
	patient, code := env.Patient(t, "p1", "Ana", "Gómez")
	author := env.Clinician(t, "c1", "Eva", "Sol", "MP-1")
	rec := env.Record(t, author, code, "Consulta")

	for _, p := range []actors.Principal{patient, author} {
		if _, err := env.Records.Deactivate(ctx, p, rec.ID); !errors.Is(err, apperr.ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized, got %v", p.Role, err)
		}
	}

	admin := domaintest.Admin("a1")
	for i := 0; i < 2; i++ {
		got, err := env.Records.Deactivate(ctx, admin, rec.ID)
		if err != nil || got.Active {
			t.Fatalf("Deactivate #%d: %#v %v", i+1, got, err)
		}
	}
	if got := env.Events(t, audit.Filter{RecordID: rec.ID, Action: audit.ActionRecordDeactivated}); len(got) != 1 {
		t.Fatalf("expected a single RECORD_DEACTIVATED event, got %d", len(got))
	}

	// Sigue existiendo y listándose para el dueño.
	mine, err := env.Records.ListMine(ctx, patient)
	if err != nil || len(mine) != 1 || mine[0].Active {
		t.Fatalf("soft-deleted record must still be listed: %#v %v", mine, err)
	}
}

func TestListMine(t *testing.T) {
	env := domaintest.New()
	ctx := context.Background()
	patient, code := env.Patient(t, "p1", "Ana", "Gómez")
	author := env.Clinician(t, "c1", "Eva", "Sol", "MP-1")
	other := env.Clinician(t, "c2", "Luis", "Paz", "MP-2")
	env.Record(t, author, code, "Consulta")
	env.Record(t, author, code, "Control")

	if got, _ := env.Records.ListMine(ctx, patient); len(got) != 2 {
		t.Fatalf("patient should see 2, got %d", len(got))
	}
	if got, _ := env.Records.ListMine(ctx, author); len(got) != 2 {
		t.Fatalf("creator should see 2, got %d", len(got))
	}
	if got, _ := env.Records.ListMine(ctx, other); len(got) != 0 {
		t.Fatalf("other clinician should see none, got %d", len(got))
	}
	if _, err := env.Records.ListMine(ctx, domaintest.Admin("a1")); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("admins have no personal list, got %v", err)
	}
}
