package actors

import (
	"net/http"
	"time"

	"healthsafe/internal/middleware"
	"healthsafe/internal/platform/respond"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	// Rutas planas: /me y /admin los comparten varios módulos.
	r.Get("/me", getMeHandler(svc))
	r.Post("/me/profile", registerProfileHandler(svc))
	r.Post("/me/patient-code", reissueCodeHandler(svc))

	r.Post("/admin/clinicians/{actorID}/promote", promoteHandler(svc))
	r.Post("/admin/actors/{actorID}/validate", validateHandler(svc))
	r.Post("/admin/actors/{actorID}/revoke", revokeHandler(svc))
}

// CurrentPrincipal lee la identidad del request; false si no hay claims.
func CurrentPrincipal(r *http.Request) (Principal, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		return Principal{}, false
	}
	return PrincipalFromClaims(claims), true
}

type registerProfileRequest struct {
	FirstName     string `json:"first_name" validate:"required,max=100"`
	LastName      string `json:"last_name" validate:"required,max=100"`
	LicenseNumber string `json:"license_number" validate:"omitempty,max=50"`
	Email         string `json:"email" validate:"omitempty,email"`
	FacilityID    string `json:"facility_id" validate:"omitempty,max=64"`
}

type promoteRequest struct {
	FacilityID string `json:"facility_id" validate:"required,max=64"`
}

type actorResponse struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	FacilityID    *string   `json:"facility_id,omitempty"`
	Active        bool      `json:"active"`
	Verified      bool      `json:"verified"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	LicenseNumber string    `json:"license_number,omitempty"`
	Email         string    `json:"email,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Solo el propio paciente ve su código.
type meResponse struct {
	actorResponse
	PatientCode string `json:"patient_code,omitempty"`
}

// registerProfileHandler godoc
// @Summary Registrar perfil
// @Description Crea el perfil de dominio del usuario autenticado. El rol sale del Identity Context (PATIENT o CLINICIAN). Los pacientes reciben su código de paciente.
// @Tags actors
// @Accept json
// @Produce json
// @Param payload body registerProfileRequest true "Datos del perfil"
// @Success 201 {object} meResponse
// @Failure 400 {object} respond.ErrorBody
// @Failure 401 {object} respond.ErrorBody
// @Failure 403 {object} respond.ErrorBody
// @Failure 409 {object} respond.ErrorBody
// @Router /me/profile [post]
func registerProfileHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		var req registerProfileRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		a, err := svc.RegisterProfile(r.Context(), p, RegisterInput{
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			LicenseNumber: req.LicenseNumber,
			Email:         req.Email,
			FacilityID:    req.FacilityID,
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		respond.JSON(w, http.StatusCreated, toMeResponse(a))
	}
}

func getMeHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		a, err := svc.Get(r.Context(), p.ID)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, toMeResponse(a))
	}
}

func reissueCodeHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		a, err := svc.ReissuePatientCode(r.Context(), p)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, toMeResponse(a))
	}
}

func promoteHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		var req promoteRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		a, err := svc.Promote(r.Context(), p, chi.URLParam(r, "actorID"), req.FacilityID)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, toActorResponse(a))
	}
}

func validateHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		a, err := svc.Validate(r.Context(), p, chi.URLParam(r, "actorID"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, toActorResponse(a))
	}
}

// revokeHandler godoc
// @Summary Revocar actor
// @Description Pasa un clínico o admin de facility a REVOKED. Sus records quedan sin creador; los grants se conservan.
// @Tags admin
// @Produce json
// @Param actorID path string true "ID del actor"
// @Success 200 {object} actorResponse
// @Failure 401 {object} respond.ErrorBody
// @Failure 403 {object} respond.ErrorBody
// @Failure 404 {object} respond.ErrorBody
// @Failure 409 {object} respond.ErrorBody
// @Router /admin/actors/{actorID}/revoke [post]
func revokeHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		a, err := svc.Revoke(r.Context(), p, chi.URLParam(r, "actorID"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, toActorResponse(a))
	}
}

func toActorResponse(a Actor) actorResponse {
	return actorResponse{
		ID:            a.ID,
		Role:          a.Role,
		FacilityID:    a.FacilityID,
		Active:        a.Active,
		Verified:      a.Verified,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		LicenseNumber: a.LicenseNumber,
		Email:         a.Email,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func toMeResponse(a Actor) meResponse {
	return meResponse{actorResponse: toActorResponse(a), PatientCode: a.PatientCode}
}
