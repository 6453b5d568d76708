package records

import (
	"fmt"
	"time"
)

// Record es el dossier médico. El paciente dueño nunca cambia; el creador
// puede quedar en nil si el clínico es revocado.
type Record struct {
	ID        string
	Number    string // DOS-01, DOS-02... único por paciente
	PatientID string
	CreatorID *string

	Title   string
	Content string

	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func FormatNumber(seq int) string {
	return fmt.Sprintf("DOS-%02d", seq)
}

func (r Record) CreatedBy(actorID string) bool {
	return r.CreatorID != nil && actorID != "" && *r.CreatorID == actorID
}
