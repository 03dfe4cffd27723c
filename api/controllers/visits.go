package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldops-backend/api/responses"
	"github.com/angelmondragon/fieldops-backend/api/validators"
	"github.com/angelmondragon/fieldops-backend/internal/visits"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/export"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/pagination"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

type checkInRequest struct {
	DealerRef string   `json:"dealer_ref" validate:"required"`
	Lat       *float64 `json:"lat" validate:"required"`
	Lng       *float64 `json:"lng" validate:"required"`
}

// outcomeRequest is shared by check-out and lead visits. The outcome value
// itself is validated by the visit service so legacy labels keep working.
type outcomeRequest struct {
	Outcome       string             `json:"outcome"`
	OrderValue    *decimal.Decimal   `json:"order_value"`
	OrderedItems  types.OrderedItems `json:"ordered_items"`
	Notes         *string            `json:"notes" validate:"omitempty,max=2000"`
	NextVisitDate *string            `json:"next_visit_date"`
	ContactName   *string            `json:"contact_name" validate:"omitempty,max=200"`
	ContactPhone  *string            `json:"contact_phone" validate:"omitempty,max=50"`
	ContactEmail  *string            `json:"contact_email" validate:"omitempty,email"`
	Lat           *float64           `json:"lat" validate:"required_with=Lng"`
	Lng           *float64           `json:"lng" validate:"required_with=Lat"`
}

func (b outcomeRequest) outcome() (visits.Outcome, error) {
	out := visits.Outcome{
		Outcome:      b.Outcome,
		OrderValue:   b.OrderValue,
		OrderedItems: b.OrderedItems,
		Notes:        b.Notes,
		ContactName:  b.ContactName,
		ContactPhone: b.ContactPhone,
		ContactEmail: b.ContactEmail,
	}
	if b.NextVisitDate != nil && strings.TrimSpace(*b.NextVisitDate) != "" {
		next, err := parseDate(*b.NextVisitDate)
		if err != nil {
			return visits.Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "next_visit_date must be a date").WithDetails(map[string]any{"field": "next_visit_date"})
		}
		out.NextVisitDate = &next
	}
	return out, nil
}

func (b outcomeRequest) location() *geo.Point {
	if b.Lat == nil || b.Lng == nil {
		return nil
	}
	return &geo.Point{Lat: *b.Lat, Lng: *b.Lng}
}

type forceCheckoutRequest struct {
	RepresentativeID *uuid.UUID `json:"representative_id"`
	Lat              *float64   `json:"lat" validate:"required_with=Lng"`
	Lng              *float64   `json:"lng" validate:"required_with=Lat"`
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// VisitCheckIn starts a visit at an internal dealer or a Places result.
func VisitCheckIn(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "visit service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var body checkInRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckIn(r.Context(), actor, visits.CheckInInput{
			DealerRef: strings.TrimSpace(body.DealerRef),
			Location:  geo.Point{Lat: *body.Lat, Lng: *body.Lng},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func VisitCheckOut(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "visit service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		visitID, err := validators.ParseUUIDParam(r, "visitId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body outcomeRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := body.outcome()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		visit, err := svc.CheckOut(r.Context(), actor, visitID, visits.CheckOutInput{
			Outcome:  outcome,
			Location: body.location(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, visit)
	}
}

// VisitForceCheckout abandons the open visit of the caller, or of the given
// representative when an admin asks.
func VisitForceCheckout(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "visit service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var body forceCheckoutRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := visits.ForceCheckoutInput{RepresentativeID: body.RepresentativeID}
		if body.Lat != nil && body.Lng != nil {
			input.Location = &geo.Point{Lat: *body.Lat, Lng: *body.Lng}
		}

		visit, err := svc.ForceCheckout(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, visit)
	}
}

func VisitsToday(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "visit service")
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

		rows, err := svc.ListToday(r.Context(), actor, repID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// VisitsHistory pages through visits with ?start_date=&end_date=
// &representative_id=&limit=&cursor=.
func VisitsHistory(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "visit service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		filter, err := historyFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Page = pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		page, err := svc.ListHistory(r.Context(), actor, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// VisitsExport downloads the same history as a spreadsheet. ?format=csv
// switches from the default xlsx.
func VisitsExport(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "visit service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := historyFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ExportHistory(r.Context(), actor, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var buf bytes.Buffer
		if err := export.Write(&buf, format, visitTable(rows)); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render visit export"))
			return
		}

		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename("visits", time.Now())))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)
	}
}

func historyFilter(r *http.Request) (visits.HistoryFilter, error) {
	start, err := validators.ParseQueryDate(r, "start_date")
	if err != nil {
		return visits.HistoryFilter{}, err
	}
	end, err := validators.ParseQueryDate(r, "end_date")
	if err != nil {
		return visits.HistoryFilter{}, err
	}
	repID, err := validators.ParseQueryUUID(r, "representative_id")
	if err != nil {
		return visits.HistoryFilter{}, err
	}
	return visits.HistoryFilter{StartDate: start, EndDate: end, RepresentativeID: repID}, nil
}

var visitColumns = []export.Column{
	{Header: "Visit ID", Width: 38},
	{Header: "Representative ID", Width: 38},
	{Header: "Dealer", Width: 32},
	{Header: "Source", Width: 10},
	{Header: "Check-in (UTC)", Width: 18},
	{Header: "Check-out (UTC)", Width: 18},
	{Header: "Minutes", Width: 10},
	{Header: "Distance (m)", Width: 12},
	{Header: "Outcome", Width: 18},
	{Header: "Order value", Width: 14},
	{Header: "Next visit", Width: 18},
	{Header: "Contact", Width: 24},
	{Header: "Phone", Width: 18},
	{Header: "Email", Width: 28},
	{Header: "Notes", Width: 40},
}

func visitTable(rows []visits.VisitDTO) export.Table {
	t := export.Table{Sheet: "Visits", Columns: visitColumns, Rows: make([][]any, 0, len(rows))}
	for _, v := range rows {
		outcome := ""
		if v.Outcome != nil {
			outcome = string(*v.Outcome)
		}
		t.Rows = append(t.Rows, []any{
			v.ID.String(),
			v.RepresentativeID.String(),
			v.DealerName,
			string(v.Source),
			v.CheckInTime,
			v.CheckOutTime,
			v.TimeSpentMinutes,
			v.DistanceFromDealer,
			outcome,
			v.OrderValue,
			v.NextVisitDate,
			v.ContactName,
			v.ContactPhone,
			v.ContactEmail,
			v.Notes,
		})
	}
	return t
}
