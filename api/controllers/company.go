package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldops-backend/api/responses"
	"github.com/angelmondragon/fieldops-backend/api/validators"
	"github.com/angelmondragon/fieldops-backend/internal/companies"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
)

type companyConfigRequest struct {
	VisitRadius        *int                     `json:"visit_radius" validate:"omitempty,min=1,max=100000"`
	VisitsPerDayTarget *int                     `json:"visits_per_day_target" validate:"omitempty,min=0"`
	DealerTypes        *[]string                `json:"dealer_types"`
	ProductCategories  *[]string                `json:"product_categories"`
	Products           *[]models.CatalogProduct `json:"products"`
	WorkingHours       *models.WorkingHours     `json:"working_hours"`
	SalesTarget        *decimal.Decimal         `json:"sales_target"`
}

// CompanyConfig returns the caller's company configuration.
func CompanyConfig(svc companies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "company service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		cfg, err := svc.GetConfig(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}

// CompanyUpdateConfig applies a partial config update.
func CompanyUpdateConfig(svc companies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "company service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var body companyConfigRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cfg, err := svc.UpdateConfig(r.Context(), actor, companies.UpdateConfigInput{
			VisitRadiusMeters:  body.VisitRadius,
			VisitsPerDayTarget: body.VisitsPerDayTarget,
			DealerTypes:        body.DealerTypes,
			ProductCategories:  body.ProductCategories,
			Products:           body.Products,
			WorkingHours:       body.WorkingHours,
			SalesTarget:        body.SalesTarget,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}
