package grants

import (
	"net/http"
	"strings"
	"time"

	"healthsafe/internal/domain/actors"
	"healthsafe/internal/platform/respond"

	"github.com/go-chi/chi/v5"
)

// El listado por record vive en access: pasa por la misma decisión que la lectura.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Post("/records/{recordID}/grants", grantExplicitHandler(svc))

	r.Get("/me/grants", listMyGrantsHandler(svc))
}

// Se acepta clinician_id o el triple completo (lo valida el servicio).
type grantRequest struct {
	ClinicianID   string `json:"clinician_id" validate:"max=64"`
	FirstName     string `json:"first_name" validate:"max=100"`
	LastName      string `json:"last_name" validate:"max=100"`
	LicenseNumber string `json:"license_number" validate:"max=50"`
}

type GrantResponse struct {
	ID           string    `json:"id"`
	RecordID     string    `json:"record_id"`
	ClinicianID  string    `json:"clinician_id"`
	AuthorizedBy string    `json:"authorized_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// grantExplicitHandler godoc
// @Summary Otorgar acceso a un dossier
// @Description El paciente dueño, el clínico creador o un admin otorgan lectura a un clínico. Un grant duplicado responde 409.
// @Tags grants
// @Accept json
// @Produce json
// @Param recordID path string true "ID del dossier"
// @Param payload body grantRequest true "clinician_id o first_name/last_name/license_number"
// @Success 201 {object} GrantResponse
// @Failure 400 {object} respond.ErrorBody
// @Failure 401 {object} respond.ErrorBody
// @Failure 403 {object} respond.ErrorBody
// @Failure 404 {object} respond.ErrorBody
// @Failure 409 {object} respond.ErrorBody "grant already exists"
// @Router /records/{recordID}/grants [post]
func grantExplicitHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actors.CurrentPrincipal(r)
		if !ok {
			respond.Unauthenticated(w)
			return
		}

		var req grantRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		g, err := svc.GrantExplicit(r.Context(), p, chi.URLParam(r, "recordID"), Target{
			ClinicianID: strings.TrimSpace(req.ClinicianID),
			Identity: actors.ClinicianIdentity{
				FirstName:     req.FirstName,
				LastName:      req.LastName,
				LicenseNumber: req.LicenseNumber,
			},
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, ToResponse(g))
	}
}

// listMyGrantsHandler godoc
// @Summary Listar mis grants
// @Description Paciente: grants que otorgó. Clínico: grants que tiene.
// @Tags grants
// @Produce json
// @Success 200 {array} GrantResponse
// @Failure 401 {object} respond.ErrorBody
// @Failure 403 {object} respond.ErrorBody
// @Router /me/grants [get]
func listMyGrantsHandler(svc *Service) http.HandlerFunc {
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
		respond.JSON(w, http.StatusOK, ToResponses(items))
	}
}

func ToResponse(g Grant) GrantResponse {
	return GrantResponse{
		ID:           g.ID,
		RecordID:     g.RecordID,
		ClinicianID:  g.ClinicianID,
		AuthorizedBy: g.AuthorizedBy,
		CreatedAt:    g.CreatedAt,
	}
}

func ToResponses(items []Grant) []GrantResponse {
	out := make([]GrantResponse, 0, len(items))
	for _, g := range items {
		out = append(out, ToResponse(g))
	}
	return out
}
