package access

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/domain/audit"
	"healthsafe/internal/domain/grants"
	"healthsafe/internal/domain/records"
	"healthsafe/internal/platform/respond"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, gate *Gate, rec *audit.Recorder) {
	r.Get("/records/{recordID}", viewRecordHandler(gate))
	r.Get("/records/{recordID}/history", recordHistoryHandler(gate, rec))
	r.Get("/records/{recordID}/grants", listRecordGrantsHandler(gate))

	r.Get("/admin/audit", adminAuditHandler(rec))
}

type accessSummary struct {
	Reason   Reason `json:"reason"`
	Override bool   `json:"override"`
}

type viewRecordResponse struct {
	Record records.RecordResponse `json:"record"`
	Access accessSummary          `json:"access"`
}

type eventResponse struct {
	ID            string            `json:"id"`
	OccurredAt    time.Time         `json:"occurred_at"`
	ActorID       string            `json:"actor_id"`
	ActorRole     string            `json:"actor_role"`
	Action        audit.Action      `json:"action"`
	TargetActorID string            `json:"target_actor_id,omitempty"`
	RecordID      string            `json:"record_id,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

// viewRecordHandler godoc
// @Summary Ver dossier
// @Description Evalúa el acceso (dueño, creador, grant, código de paciente u override de admin) y deja un evento de auditoría en todos los casos.
// @Tags access
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario"
// @Param X-Debug-Role header string false "Solo en modo dev, rol"
// @Param Authorization header string false "Bearer token en producción"
// @Param recordID path string true "ID del dossier"
// @Param patient_code query string false "Código del paciente dueño"
// @Success 200 {object} viewRecordResponse
// @Failure 401 {object} respond.ErrorBody
// @Failure 403 {object} respond.ErrorBody
// @Failure 404 {object} respond.ErrorBody
// @Failure 503 {object} respond.ErrorBody
// @Router /records/{recordID} [get]
func viewRecordHandler(gate *Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		rec, d, err := gate.View(r.Context(), p, chi.URLParam(r, "recordID"), r.URL.Query().Get("patient_code"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		respond.JSON(w, http.StatusOK, viewRecordResponse{
			Record: records.ToResponse(rec),
			Access: accessSummary{Reason: d.Reason, Override: d.Override},
		})
	}
}

// recordHistoryHandler godoc
// @Summary Historial de accesos de un dossier
// @Description Mismas reglas que ver el dossier y deja su propio evento; devuelve los eventos del más reciente al más antiguo.
// @Tags access
// @Produce json
// @Param recordID path string true "ID del dossier"
// @Param patient_code query string false "Código del paciente dueño"
// @Param limit query int false "Máximo de eventos (1-500). Por defecto 100"
// @Success 200 {array} eventResponse
// @Failure 401 {object} respond.ErrorBody
// @Failure 403 {object} respond.ErrorBody
// @Failure 404 {object} respond.ErrorBody
// @Router /records/{recordID}/history [get]
func recordHistoryHandler(gate *Gate, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		limit, err := parseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		record, _, err := gate.ViewHistory(r.Context(), p, chi.URLParam(r, "recordID"), r.URL.Query().Get("patient_code"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		items, err := rec.Query(r.Context(), audit.Filter{RecordID: record.ID, Limit: limit})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, toEventResponses(items))
	}
}

// listRecordGrantsHandler godoc
// @Summary Listar grants de un dossier
// @Description Paciente dueño, clínico creador o admin (override auditado).
// @Tags grants
// @Produce json
// @Param recordID path string true "ID del dossier"
// @Success 200 {array} grants.GrantResponse
// @Failure 401 {object} respond.ErrorBody
// @Failure 403 {object} respond.ErrorBody
// @Failure 404 {object} respond.ErrorBody
// @Router /records/{recordID}/grants [get]
func listRecordGrantsHandler(gate *Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		items, err := gate.ListGrants(r.Context(), p, chi.URLParam(r, "recordID"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, grants.ToResponses(items))
	}
}

// adminAuditHandler: filtros actor_id, record_id, action, since (RFC3339), limit.
func adminAuditHandler(rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}
		if !p.Role.IsAdmin() {
			respond.Error(w, r, apperr.ErrUnauthorized)
			return
		}

		q := r.URL.Query()
		f := audit.Filter{
			ActorID:  strings.TrimSpace(q.Get("actor_id")),
			RecordID: strings.TrimSpace(q.Get("record_id")),
			Action:   audit.Action(strings.ToUpper(strings.TrimSpace(q.Get("action")))),
		}

		if raw := strings.TrimSpace(q.Get("since")); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				respond.Error(w, r, fmt.Errorf("%w: since must be RFC3339", apperr.ErrInvalidInput))
				return
			}
			f.Since = &t
		}

		limit, err := parseLimit(q.Get("limit"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		f.Limit = limit

		items, err := rec.Query(r.Context(), f)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, toEventResponses(items))
	}
}

// 0 = límite por defecto del recorder.
func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", apperr.ErrInvalidInput)
	}
	return n, nil
}

func toEventResponses(items []audit.Event) []eventResponse {
	out := make([]eventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse{
			ID:            e.ID,
			OccurredAt:    e.OccurredAt,
			ActorID:       e.ActorID,
			ActorRole:     e.ActorRole,
			Action:        e.Action,
			TargetActorID: e.TargetActorID,
			RecordID:      e.RecordID,
			Metadata:      e.Metadata,
		})
	}
	return out
}
