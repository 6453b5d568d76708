package memory

import (
	"context"
	"errors"
	"sort"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/grants"
	"healthsafe/internal/domain/notifications"
)

type GrantsRepo struct {
	db *DB
}

func NewGrantsRepo(db *DB) *GrantsRepo {
	return &GrantsRepo{db: db}
}

func (r *GrantsRepo) Create(ctx context.Context, g grants.Grant, notes ...notifications.Message) error {
	if g.ID == "" {
		return errors.New("grant id required")
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if err := r.db.insertGrantLocked(g); err != nil {
		return err
	}
	r.db.enqueueLocked(notes)
	return nil
}

// insertGrantLocked aplica UNIQUE(record_id, clinician_id).
func (db *DB) insertGrantLocked(g grants.Grant) error {
	if _, ok := db.records[g.RecordID]; !ok {
		return apperr.ErrNotFound
	}
	if _, ok := db.actors[g.ClinicianID]; !ok {
		return apperr.ErrNotFound
	}

	key := grantKey{recordID: g.RecordID, clinicianID: g.ClinicianID}
	if _, exists := db.grantByKey[key]; exists {
		return apperr.ErrConflict
	}
	if _, exists := db.grants[g.ID]; exists {
		return apperr.ErrConflict
	}
	db.grants[g.ID] = g
	db.grantByKey[key] = g.ID
	return nil
}

func (r *GrantsRepo) List(ctx context.Context, f grants.Filter) ([]grants.Grant, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]grants.Grant, 0)
	for _, g := range r.db.grants {
		if f.Matches(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *GrantsRepo) Exists(ctx context.Context, recordID, clinicianID string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	_, ok := r.db.grantByKey[grantKey{recordID: recordID, clinicianID: clinicianID}]
	return ok, nil
}

func (r *GrantsRepo) DeleteByAuthorizer(ctx context.Context, clinicianID, authorizedBy string, notes ...notifications.Message) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	n := 0
	for id, g := range r.db.grants {
		if g.ClinicianID != clinicianID || g.AuthorizedBy != authorizedBy {
			continue
		}
		delete(r.db.grants, id)
		delete(r.db.grantByKey, grantKey{recordID: g.RecordID, clinicianID: g.ClinicianID})
		n++
	}
	if n > 0 {
		r.db.enqueueLocked(notes)
	}
	return n, nil
}
