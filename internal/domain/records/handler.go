package records

import (
	"net/http"
	"time"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/platform/respond"

	"github.com/go-chi/chi/v5"
)

// GET /records/{recordID} lo registra el módulo access (pasa por el gate).
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Post("/records", createRecordHandler(svc))
	r.Patch("/records/{recordID}", updateRecordHandler(svc))
	r.Delete("/records/{recordID}", deactivateRecordHandler(svc))

	r.Get("/me/records", listMyRecordsHandler(svc))
}

type createRecordRequest struct {
	PatientCode string `json:"patient_code" validate:"required,max=32"`
	Title       string `json:"title" validate:"required,max=200"`
	Content     string `json:"content" validate:"max=20000"`
}

type updateRecordRequest struct {
	// Punteros para PATCH real: nil = no tocar.
	Title   *string `json:"title" validate:"omitempty,max=200"`
	Content *string `json:"content" validate:"omitempty,max=20000"`
}

type RecordResponse struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	PatientID string    `json:"patient_id"`
	CreatorID *string   `json:"creator_id,omitempty"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// createRecordHandler godoc
// @Summary Crear dossier
// @Description Un clínico abre un dossier para el paciente identificado por su código. Numeración DOS-NN por paciente.
// @Tags records
// @Accept json
// @Produce json
// @Param payload body createRecordRequest true "Código del paciente y datos del dossier"
// @Success 201 {object} RecordResponse
// @Failure 400 {object} respond.ErrorBody
// @Failure 401 {object} respond.ErrorBody
// @Failure 403 {object} respond.ErrorBody
// @Failure 404 {object} respond.ErrorBody "patient not found"
// @Router /records [post]
func createRecordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		var req createRecordRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		rec, err := svc.Create(r.Context(), p, CreateInput{
			PatientCode: req.PatientCode,
			Title:       req.Title,
			Content:     req.Content,
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, ToResponse(rec))
	}
}

func listMyRecordsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		items, err := svc.ListMine(r.Context(), p)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		out := make([]RecordResponse, 0, len(items))
		for _, rec := range items {
			out = append(out, ToResponse(rec))
		}
		respond.JSON(w, http.StatusOK, out)
	}
}

func updateRecordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		var req updateRecordRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		rec, err := svc.Update(r.Context(), p, chi.URLParam(r, "recordID"), UpdateInput{
			Title:   req.Title,
			Content: req.Content,
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, ToResponse(rec))
	}
}

func deactivateRecordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		rec, err := svc.Deactivate(r.Context(), p, chi.URLParam(r, "recordID"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, ToResponse(rec))
	}
}

func ToResponse(rec Record) RecordResponse {
	return RecordResponse{
		ID:        rec.ID,
		Number:    rec.Number,
		PatientID: rec.PatientID,
		CreatorID: rec.CreatorID,
		Title:     rec.Title,
		Content:   rec.Content,
		Active:    rec.Active,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
