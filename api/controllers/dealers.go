package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/fieldops-backend/api/responses"
	"github.com/angelmondragon/fieldops-backend/api/validators"
	"github.com/angelmondragon/fieldops-backend/internal/dealers"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
)

type dealerRequest struct {
	Name            string     `json:"name" validate:"required,min=1,max=200"`
	DealerType      string     `json:"dealer_type" validate:"required"`
	CategoryMapping []string   `json:"category_mapping"`
	Location        *geo.Point `json:"location"`
	Address         *string    `json:"address"`
	Territory       *string    `json:"territory"`
	State           *string    `json:"state"`
	City            *string    `json:"city"`
	VisitFrequency  string     `json:"visit_frequency"`
	Priority        int        `json:"priority" validate:"omitempty,min=1,max=3"`
	ContactPerson   *string    `json:"contact_person"`
	Phone           *string    `json:"phone"`
	PlaceID         *string    `json:"place_id"`
}

func (b dealerRequest) input() (dealers.DealerInput, error) {
	var frequency enums.VisitFrequency
	if strings.TrimSpace(b.VisitFrequency) != "" {
		parsed, err := enums.ParseVisitFrequency(b.VisitFrequency)
		if err != nil {
			return dealers.DealerInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid visit_frequency")
		}
		frequency = parsed
	}
	return dealers.DealerInput{
		Name:            validators.SanitizeString(b.Name, 200),
		DealerType:      strings.TrimSpace(b.DealerType),
		CategoryMapping: b.CategoryMapping,
		Location:        b.Location,
		Address:         b.Address,
		TerritoryRef:    b.Territory,
		State:           b.State,
		City:            b.City,
		VisitFrequency:  frequency,
		Priority:        b.Priority,
		ContactPerson:   b.ContactPerson,
		Phone:           b.Phone,
		PlaceID:         b.PlaceID,
	}, nil
}

func DealerCreate(svc dealers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "dealer service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var body dealerRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.input()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dealer, err := svc.Create(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dealer)
	}
}

// DealerList supports ?territory_id=, ?state= and ?city= filters.
func DealerList(svc dealers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "dealer service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		territoryID, err := validators.ParseQueryUUID(r, "territory_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := dealers.ListFilter{TerritoryID: territoryID}
		if v := strings.TrimSpace(r.URL.Query().Get("state")); v != "" {
			filter.State = &v
		}
		if v := strings.TrimSpace(r.URL.Query().Get("city")); v != "" {
			filter.City = &v
		}

		rows, err := svc.List(r.Context(), actor, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func DealerUpdate(svc dealers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "dealer service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "dealerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body dealerRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.input()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dealer, err := svc.Update(r.Context(), actor, id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dealer)
	}
}

func DealerDelete(svc dealers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "dealer service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "dealerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), actor, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
