package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/api/responses"
	"github.com/angelmondragon/fieldops-backend/api/validators"
	"github.com/angelmondragon/fieldops-backend/internal/leads"
	"github.com/angelmondragon/fieldops-backend/internal/visits"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
)

type leadAssignRequest struct {
	RepresentativeID uuid.UUID `json:"representative_id" validate:"required"`
}

// LeadList filters with ?assigned=&assigned_to=&found_by=&session_id=.
func LeadList(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "lead service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var filter leads.ListFilter
		var err error
		if filter.Assigned, err = validators.ParseQueryBool(r, "assigned"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.AssignedTo, err = validators.ParseQueryUUID(r, "assigned_to"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.FoundBy, err = validators.ParseQueryUUID(r, "found_by"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.SessionID, err = validators.ParseQueryUUID(r, "session_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListLeads(r.Context(), actor, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// LeadAssigned lists the leads assigned to the caller.
func LeadAssigned(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "lead service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		rows, err := svc.ListAssigned(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func LeadAssign(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "lead service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		leadID, err := validators.ParseUUIDParam(r, "leadId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body leadAssignRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lead, err := svc.AssignLead(r.Context(), actor, leadID, body.RepresentativeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lead)
	}
}

// LeadVisit records a completed visit to an assigned lead in one call.
func LeadVisit(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "visit service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		leadID, err := validators.ParseUUIDParam(r, "leadId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body outcomeRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		location := body.location()
		if location == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Validation(pkgerrors.ReasonInvalidLocation, "lat and lng are required", nil))
			return
		}
		outcome, err := body.outcome()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		visit, err := svc.RecordLeadVisit(r.Context(), actor, leadID, visits.LeadVisitInput{
			Outcome:  outcome,
			Location: *location,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, visit)
	}
}
