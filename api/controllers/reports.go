package controllers

import (
	"net/http"

	"github.com/angelmondragon/fieldops-backend/api/responses"
	"github.com/angelmondragon/fieldops-backend/api/validators"
	"github.com/angelmondragon/fieldops-backend/internal/reports"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
)

func ReportDashboard(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "report service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		dashboard, err := svc.Dashboard(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dashboard)
	}
}

// ReportExecutivePerformance covers every representative unless
// ?representative_id= narrows it to one.
func ReportExecutivePerformance(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "report service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		repID, err := validators.ParseQueryUUID(r, "representative_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ExecutivePerformance(r.Context(), actor, repID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func ReportLostVisits(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "report service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		report, err := svc.LostVisits(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
