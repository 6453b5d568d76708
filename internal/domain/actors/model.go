package actors

import (
	"strings"
	"time"

	"healthsafe/internal/ports/auth"
)

type Role string

const (
	RolePatient       Role = "PATIENT"
	RoleClinician     Role = "CLINICIAN"
	RoleFacilityAdmin Role = "FACILITY_ADMIN"
	RoleSuperAdmin    Role = "SUPER_ADMIN"
	RoleRevoked       Role = "REVOKED"
)

// ParseRole devuelve "" para valores desconocidos (el evaluador lo deniega).
func ParseRole(s string) Role {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RolePatient, RoleClinician, RoleFacilityAdmin, RoleSuperAdmin, RoleRevoked:
		return r
	default:
		return ""
	}
}

func (r Role) IsAdmin() bool {
	return r == RoleFacilityAdmin || r == RoleSuperAdmin
}

type Actor struct {
	ID         string
	Role       Role
	FacilityID *string

	Active   bool
	Verified bool

	FirstName     string
	LastName      string
	LicenseNumber string // solo clínicos
	Email         string

	PatientCode string // solo pacientes

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClinicianIdentity es el triple (nombre, apellido, matrícula) con el que un
// paciente identifica a un clínico sin conocer su id.
type ClinicianIdentity struct {
	FirstName     string
	LastName      string
	LicenseNumber string
}

func (c ClinicianIdentity) Normalize() ClinicianIdentity {
	return ClinicianIdentity{
		FirstName:     strings.TrimSpace(c.FirstName),
		LastName:      strings.TrimSpace(c.LastName),
		LicenseNumber: strings.TrimSpace(c.LicenseNumber),
	}
}

func (c ClinicianIdentity) Valid() bool {
	n := c.Normalize()
	return n.FirstName != "" && n.LastName != "" && n.LicenseNumber != ""
}

// Principal es el llamador tal como lo entrega el Identity Context.
type Principal struct {
	ID         string
	Role       Role
	FacilityID string
}

func PrincipalFromClaims(c auth.Claims) Principal {
	return Principal{
		ID:         strings.TrimSpace(c.UserID),
		Role:       ParseRole(c.Role),
		FacilityID: strings.TrimSpace(c.FacilityID),
	}
}

func (a Actor) Principal() Principal {
	p := Principal{ID: a.ID, Role: a.Role}
	if a.FacilityID != nil {
		p.FacilityID = *a.FacilityID
	}
	if !a.Active {
		p.Role = RoleRevoked
	}
	return p
}

func (a Actor) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}
