package requests

import (
	"net/http"
	"time"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/platform/respond"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Post("/access-requests", fileRequestHandler(svc))
	r.Post("/access-requests/{requestID}/respond", respondRequestHandler(svc))
	r.Post("/access-revocations", revokeAccessHandler(svc))

	r.Get("/me/access-requests", listMyRequestsHandler(svc))
}

type fileRequest struct {
	PatientCode string `json:"patient_code" validate:"required,max=32"`
}

type respondRequest struct {
	Decision string `json:"decision" validate:"required"`
}

type revokeRequest struct {
	FirstName     string `json:"first_name" validate:"required,max=100"`
	LastName      string `json:"last_name" validate:"required,max=100"`
	LicenseNumber string `json:"license_number" validate:"required,max=50"`
}

type requestResponse struct {
	ID          string     `json:"id"`
	ClinicianID string     `json:"clinician_id"`
	PatientID   string     `json:"patient_id"`
	Status      State      `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

type respondResponse struct {
	Request       requestResponse `json:"request"`
	GrantsCreated int             `json:"grants_created"`
}

type revokeResponse struct {
	Revoked int `json:"revoked"`
}

// fileRequestHandler godoc
// @Summary Pedir acceso a un paciente
// @Description Un clínico pide acceso a todos los dossiers del paciente identificado por su código. Un pedido PENDING duplicado responde 409.
// @Tags access-requests
// @Accept json
// @Produce json
// @Param payload body fileRequest true "Código del paciente"
// @Success 201 {object} requestResponse
// @Failure 400 {object} respond.ErrorBody
// @Failure 401 {object} respond.ErrorBody
// @Failure 403 {object} respond.ErrorBody
// @Failure 404 {object} respond.ErrorBody "patient not found"
// @Failure 409 {object} respond.ErrorBody "already pending"
// @Router /access-requests [post]
func fileRequestHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		var req fileRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		out, err := svc.File(r.Context(), p, req.PatientCode)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, toRequestResponse(out))
	}
}

// respondRequestHandler godoc
// @Summary Responder un pedido de acceso
// @Description El paciente acepta o rechaza. Aceptar crea un grant por cada dossier suyo. Un pedido ya respondido devuelve 409.
// @Tags access-requests
// @Accept json
// @Produce json
// @Param requestID path string true "ID del pedido"
// @Param payload body respondRequest true "ACCEPTED o REJECTED"
// @Success 200 {object} respondResponse
// @Failure 400 {object} respond.ErrorBody "invalid decision"
// @Failure 401 {object} respond.ErrorBody
// @Failure 403 {object} respond.ErrorBody
// @Failure 404 {object} respond.ErrorBody
// @Failure 409 {object} respond.ErrorBody "request not pending"
// @Router /access-requests/{requestID}/respond [post]
func respondRequestHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		var req respondRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		out, created, err := svc.Respond(r.Context(), p, chi.URLParam(r, "requestID"), req.Decision)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, respondResponse{
			Request:       toRequestResponse(out),
			GrantsCreated: created,
		})
	}
}

// revokeAccessHandler godoc
// @Summary Revocar acceso de un clínico
// @Description El paciente revoca todos los grants que otorgó al clínico identificado por nombre, apellido y matrícula. Cero grants no es error.
// @Tags access-requests
// @Accept json
// @Produce json
// @Param payload body revokeRequest true "Identidad del clínico"
// @Success 200 {object} revokeResponse
// @Failure 400 {object} respond.ErrorBody
// @Failure 401 {object} respond.ErrorBody
// @Failure 403 {object} respond.ErrorBody
// @Failure 404 {object} respond.ErrorBody "clinician not found"
// @Router /access-revocations [post]
func revokeAccessHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		var req revokeRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		n, err := svc.Revoke(r.Context(), p, actors.ClinicianIdentity{
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			LicenseNumber: req.LicenseNumber,
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, revokeResponse{Revoked: n})
	}
}

func listMyRequestsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		status, err := ParseStatusFilter(r.URL.Query().Get("status"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		items, err := svc.ListMine(r.Context(), p, status)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		out := make([]requestResponse, 0, len(items))
		for _, it := range items {
			out = append(out, toRequestResponse(it))
		}
		respond.JSON(w, http.StatusOK, out)
	}
}

func toRequestResponse(r Request) requestResponse {
	return requestResponse{
		ID:          r.ID,
		ClinicianID: r.ClinicianID,
		PatientID:   r.PatientID,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		RespondedAt: r.RespondedAt,
	}
}
