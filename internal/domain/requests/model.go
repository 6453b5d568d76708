package requests

import (
	"strings"
	"time"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/notifications"
)

// State del par (clínico, paciente). NONE es "no hay fila".
type State string

const (
	StateNone     State = "NONE"
	StatePending  State = "PENDING"
	StateAccepted State = "ACCEPTED"
	StateRejected State = "REJECTED"
)

func (s State) Terminal() bool {
	return s == StateAccepted || s == StateRejected
}

// CanTransition: NONE -> PENDING -> ACCEPTED|REJECTED. Los terminales no salen.
func CanTransition(from, to State) bool {
	switch from {
	case StateNone:
		return to == StatePending
	case StatePending:
		return to == StateAccepted || to == StateRejected
	default:
		return false
	}
}

// ParseDecision acepta solo ACCEPTED o REJECTED.
func ParseDecision(s string) (State, error) {
	switch d := State(strings.ToUpper(strings.TrimSpace(s))); d {
	case StateAccepted, StateRejected:
		return d, nil
	default:
		return "", apperr.ErrInvalidDecision
	}
}

func ParseStatusFilter(s string) (State, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch st := State(s); st {
	case "", StatePending, StateAccepted, StateRejected:
		return st, nil
	default:
		return "", apperr.ErrInvalidInput
	}
}

type Request struct {
	ID          string
	ClinicianID string
	PatientID   string

	Status State

	CreatedAt   time.Time
	RespondedAt *time.Time
}

// StateOf traduce la ausencia de fila a NONE.
func StateOf(r *Request) State {
	if r == nil || r.Status == "" {
		return StateNone
	}
	return r.Status
}

// Resolution es el CAS PENDING -> Decision que aplica el store.
type Resolution struct {
	RequestID string
	PatientID string
	Decision  State
	At        time.Time
	Notes     []notifications.Message
}
