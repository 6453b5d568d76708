package audit

import "time"

type Action string

const (
	ActionRecordViewed         Action = "RECORD_VIEWED"
	ActionRecordViewedOverride Action = "RECORD_VIEWED_OVERRIDE"
	ActionAccessDenied         Action = "ACCESS_DENIED"
	ActionHistoryViewed        Action = "HISTORY_VIEWED"
	ActionGrantsViewed         Action = "GRANTS_VIEWED"

	ActionRecordCreated     Action = "RECORD_CREATED"
	ActionRecordUpdated     Action = "RECORD_UPDATED"
	ActionRecordDeactivated Action = "RECORD_DEACTIVATED"

	ActionGrantCreated  Action = "GRANT_CREATED"
	ActionGrantsRevoked Action = "GRANTS_REVOKED"

	ActionRequestFiled    Action = "REQUEST_FILED"
	ActionRequestAccepted Action = "REQUEST_ACCEPTED"
	ActionRequestRejected Action = "REQUEST_REJECTED"

	ActionProfileRegistered   Action = "PROFILE_REGISTERED"
	ActionPatientCodeReissued Action = "PATIENT_CODE_REISSUED"
	ActionActorPromoted       Action = "ACTOR_PROMOTED"
	ActionActorValidated      Action = "ACTOR_VALIDATED"
	ActionActorRevoked        Action = "ACTOR_REVOKED"
)

// Event es append-only: nunca se actualiza ni se borra.
type Event struct {
	ID         string
	OccurredAt time.Time

	ActorID   string
	ActorRole string
	Action    Action

	TargetActorID string
	RecordID      string

	Metadata map[string]string
}

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

type Filter struct {
	ActorID  string
	RecordID string
	Action   Action
	Since    *time.Time
	Limit    int
}

// Normalize aplica el límite por defecto y el tope.
func (f Filter) Normalize() Filter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	return f
}

// Matches se usa en el store en memoria.
func (f Filter) Matches(e Event) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.RecordID != "" && e.RecordID != f.RecordID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Since != nil && e.OccurredAt.Before(*f.Since) {
		return false
	}
	return true
}
