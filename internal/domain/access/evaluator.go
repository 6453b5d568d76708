// Package access concentra la política de acceso a records: una sola función
// pura (Evaluate) que todos los entry points usan, y un Gate que carga los
// hechos, decide y audita.
package access

import (
	"crypto/subtle"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/records"
)

type Reason string

const (
	ReasonRecordInactive Reason = "record_inactive"
	ReasonOwner          Reason = "owner"
	ReasonNotOwner       Reason = "not_owner"
	ReasonCreator        Reason = "creator"
	ReasonGrant          Reason = "grant"
	ReasonPatientCode    Reason = "patient_code"
	ReasonNoGrant        Reason = "no_grant"
	ReasonAdminOverride  Reason = "admin_override"
	ReasonRoleDenied     Reason = "role_denied"
	ReasonNoDelegation   Reason = "no_delegation"
)

// Facts son los datos ya cargados que necesita la decisión.
type Facts struct {
	Record           records.Record
	OwnerPatientCode string // código vigente del dueño; "" si no se cargó
	HasGrant         bool
	SuppliedCode     string
}

type Decision struct {
	Allowed  bool
	Reason   Reason
	Override bool // acceso solo por rol administrativo
}

// Evaluate es total y sin efectos. Orden de precedencia:
// record inactivo, paciente, clínico, admin, resto.
func Evaluate(p actors.Principal, f Facts) Decision {
	if p.ID == "" {
		return Decision{Reason: ReasonRoleDenied}
	}

	if !f.Record.Active {
		if p.Role.IsAdmin() {
			return Decision{Allowed: true, Reason: ReasonAdminOverride, Override: true}
		}
		return Decision{Reason: ReasonRecordInactive}
	}

	switch p.Role {
	case actors.RolePatient:
		if f.Record.PatientID == p.ID {
			return Decision{Allowed: true, Reason: ReasonOwner}
		}
		return Decision{Reason: ReasonNotOwner}

	case actors.RoleClinician:
		switch {
		case f.Record.CreatedBy(p.ID):
			return Decision{Allowed: true, Reason: ReasonCreator}
		case f.HasGrant:
			return Decision{Allowed: true, Reason: ReasonGrant}
		case codesMatch(f.SuppliedCode, f.OwnerPatientCode):
			return Decision{Allowed: true, Reason: ReasonPatientCode}
		default:
			return Decision{Reason: ReasonNoGrant}
		}

	case actors.RoleFacilityAdmin, actors.RoleSuperAdmin:
		return Decision{Allowed: true, Reason: ReasonAdminOverride, Override: true}

	default:
		return Decision{Reason: ReasonRoleDenied}
	}
}

func CanAccess(p actors.Principal, f Facts) bool {
	return Evaluate(p, f).Allowed
}

// Un código vacío nunca matchea.
func codesMatch(supplied, current string) bool {
	supplied = actors.NormalizeCode(supplied)
	current = actors.NormalizeCode(current)
	if supplied == "" || current == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(current)) == 1
}
