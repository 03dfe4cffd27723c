package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldops-backend/api/responses"
	"github.com/angelmondragon/fieldops-backend/api/validators"
	"github.com/angelmondragon/fieldops-backend/internal/representatives"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
)

type representativeCreateRequest struct {
	Name         string  `json:"name" validate:"required,min=1,max=120"`
	Email        string  `json:"email" validate:"required,email"`
	Mobile       *string `json:"mobile"`
	EmployeeCode *string `json:"employee_code"`
	Password     string  `json:"password" validate:"omitempty,min=8"`
	Role         string  `json:"role"`
	Territory    *string `json:"territory"`
}

type representativeCreateResponse struct {
	Representative *representatives.RepresentativeDTO `json:"representative"`
	TempPassword   string                             `json:"temp_password,omitempty"`
}

type territoryAssignmentRequest struct {
	Territory    *string `json:"territory"`
	Unrestricted bool    `json:"unrestricted"`
}

type targetsRequest struct {
	DailyVisitTarget *int             `json:"daily_visit_target" validate:"omitempty,min=0"`
	DailySalesTarget *decimal.Decimal `json:"daily_sales_target"`
}

// RepresentativeCreate creates an account. When no password is supplied a
// temporary one is generated and returned once.
func RepresentativeCreate(svc representatives.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "representative service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var body representativeCreateRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var role enums.Role
		if strings.TrimSpace(body.Role) != "" {
			parsed, err := enums.ParseRole(body.Role)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
				return
			}
			role = parsed
		}

		rep, tempPassword, err := svc.Create(r.Context(), actor, representatives.CreateInput{
			Name:         validators.SanitizeString(body.Name, 120),
			Email:        strings.ToLower(strings.TrimSpace(body.Email)),
			Mobile:       body.Mobile,
			EmployeeCode: body.EmployeeCode,
			Password:     body.Password,
			Role:         role,
			TerritoryRef: body.Territory,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, representativeCreateResponse{
			Representative: rep,
			TempPassword:   tempPassword,
		})
	}
}

// RepresentativeList lists company accounts, optionally by ?role=.
func RepresentativeList(svc representatives.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "representative service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var role *enums.Role
		if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
			parsed, err := enums.ParseRole(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
				return
			}
			role = &parsed
		}

		rows, err := svc.List(r.Context(), actor, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func RepresentativeAssignTerritory(svc representatives.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "representative service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		repID, err := validators.ParseUUIDParam(r, "repId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body territoryAssignmentRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !body.Unrestricted && (body.Territory == nil || strings.TrimSpace(*body.Territory) == "") {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "territory or unrestricted is required"))
			return
		}

		rep, err := svc.AssignTerritory(r.Context(), actor, repID, representatives.TerritoryAssignment{
			TerritoryRef: body.Territory,
			Unrestricted: body.Unrestricted,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rep)
	}
}

func RepresentativeUpdateTargets(svc representatives.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "representative service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		repID, err := validators.ParseUUIDParam(r, "repId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body targetsRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rep, err := svc.UpdateTargets(r.Context(), actor, repID, representatives.TargetsInput{
			DailyVisitTarget: body.DailyVisitTarget,
			DailySalesTarget: body.DailySalesTarget,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rep)
	}
}

// TrackingLive returns every sales rep's last known position.
func TrackingLive(svc representatives.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "representative service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		rows, err := svc.LiveTracking(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// RepresentativeDeactivate retires an account. The row stays so visit
// history keeps its author.
func RepresentativeDeactivate(svc representatives.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "representative service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		repID, err := validators.ParseUUIDParam(r, "repId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rep, err := svc.Deactivate(r.Context(), actor, repID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rep)
	}
}
