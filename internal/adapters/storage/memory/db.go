package memory

import (
	"sort"
	"sync"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/audit"
	"healthsafe/internal/domain/grants"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/domain/records"
	"healthsafe/internal/domain/requests"
)

type grantKey struct {
	recordID    string
	clinicianID string
}

type pairKey struct {
	clinicianID string
	patientID   string
}

// DB es el store en memoria. Un solo mutex cubre todas las tablas, así las
// restricciones de unicidad, el CAS de requests y el outbox se aplican en la
// misma sección crítica que la mutación (equivalente a una transacción).
type DB struct {
	mu sync.RWMutex

	actors      map[string]actors.Actor
	patientCode map[string]string // code -> actor id

	records      map[string]records.Record
	recordNumber map[string]string // patient_id|number -> record id

	grants     map[string]grants.Grant
	grantByKey map[grantKey]string

	requests      map[string]requests.Request
	pendingByPair map[pairKey]string

	events []audit.Event

	outbox      map[string]notifications.Message
	outboxOrder []string
}

func New() *DB {
	return &DB{
		actors:        make(map[string]actors.Actor),
		patientCode:   make(map[string]string),
		records:       make(map[string]records.Record),
		recordNumber:  make(map[string]string),
		grants:        make(map[string]grants.Grant),
		grantByKey:    make(map[grantKey]string),
		requests:      make(map[string]requests.Request),
		pendingByPair: make(map[pairKey]string),
		outbox:        make(map[string]notifications.Message),
	}
}

// enqueueLocked requiere db.mu tomado en escritura.
func (db *DB) enqueueLocked(notes []notifications.Message) {
	for _, m := range notes {
		if m.ID == "" {
			continue
		}
		if _, exists := db.outbox[m.ID]; exists {
			continue
		}
		if m.TemplateData != nil {
			m.TemplateData = copyStrings(m.TemplateData)
		}
		db.outbox[m.ID] = m
		db.outboxOrder = append(db.outboxOrder, m.ID)
	}
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func strPtrCopy(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func sortRecords(items []records.Record) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].Number < items[j].Number
	})
}
