package grants

import "time"

// Grant autoriza a un clínico a leer un record. Como mucho uno por
// (record, clínico); lo garantiza el store, no el servicio.
type Grant struct {
	ID          string
	RecordID    string
	ClinicianID string

	AuthorizedBy string // paciente o admin que lo otorgó

	CreatedAt time.Time
}

// Filter: campos vacíos no filtran.
type Filter struct {
	RecordID     string
	ClinicianID  string
	AuthorizedBy string
}

func (f Filter) Matches(g Grant) bool {
	if f.RecordID != "" && g.RecordID != f.RecordID {
		return false
	}
	if f.ClinicianID != "" && g.ClinicianID != f.ClinicianID {
		return false
	}
	if f.AuthorizedBy != "" && g.AuthorizedBy != f.AuthorizedBy {
		return false
	}
	return true
}
