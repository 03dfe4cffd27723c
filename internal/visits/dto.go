package visits

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/pagination"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

type VisitDTO struct {
	ID                 uuid.UUID           `json:"visit_id"`
	RepresentativeID   uuid.UUID           `json:"representative_id"`
	MarketSessionID    *uuid.UUID          `json:"market_session_id,omitempty"`
	DealerRef          types.DealerRef     `json:"dealer_ref"`
	Source             enums.DealerSource  `json:"source"`
	DealerName         string              `json:"dealer_name"`
	CheckInTime        time.Time           `json:"check_in_time"`
	CheckInLocation    geo.Point           `json:"check_in_location"`
	DistanceFromDealer int                 `json:"distance_from_dealer"`
	CheckOutTime       *time.Time          `json:"check_out_time,omitempty"`
	CheckOutLocation   *geo.Point          `json:"check_out_location,omitempty"`
	Outcome            *enums.VisitOutcome `json:"outcome,omitempty"`
	OrderValue         decimal.NullDecimal `json:"order_value"`
	OrderedItems       types.OrderedItems  `json:"ordered_items,omitempty"`
	Notes              *string             `json:"notes,omitempty"`
	NextVisitDate      *time.Time          `json:"next_visit_date,omitempty"`
	ContactName        *string             `json:"contact_name,omitempty"`
	ContactPhone       *string             `json:"contact_phone,omitempty"`
	ContactEmail       *string             `json:"contact_email,omitempty"`
	TimeSpentMinutes   *int                `json:"time_spent_minutes,omitempty"`
	FastPath           bool                `json:"fast_path"`
}

func FromModel(m *models.Visit) VisitDTO {
	dto := VisitDTO{
		ID:                 m.ID,
		RepresentativeID:   m.RepresentativeID,
		MarketSessionID:    m.MarketSessionID,
		DealerRef:          m.DealerRef,
		Source:             m.Source,
		DealerName:         m.DealerName,
		CheckInTime:        m.CheckInTime,
		CheckInLocation:    geo.Point{Lat: m.CheckInLat, Lng: m.CheckInLng},
		DistanceFromDealer: m.DistanceFromDealer,
		CheckOutTime:       m.CheckOutTime,
		Outcome:            m.Outcome,
		OrderValue:         m.OrderValue,
		OrderedItems:       m.OrderedItems,
		Notes:              m.Notes,
		NextVisitDate:      m.NextVisitDate,
		ContactName:        m.ContactName,
		ContactPhone:       m.ContactPhone,
		ContactEmail:       m.ContactEmail,
		TimeSpentMinutes:   m.TimeSpentMinutes,
		FastPath:           m.FastPath,
	}
	if m.CheckOutLat != nil && m.CheckOutLng != nil {
		dto.CheckOutLocation = &geo.Point{Lat: *m.CheckOutLat, Lng: *m.CheckOutLng}
	}
	return dto
}

// CheckInInput targets an internal dealer uuid or a google_<place_id> ref.
type CheckInInput struct {
	DealerRef string
	Location  geo.Point
}

type CheckInResult struct {
	VisitID        uuid.UUID          `json:"visit_id"`
	CheckInTime    time.Time          `json:"check_in_time"`
	DistanceMeters int                `json:"distance_m"`
	DealerRef      types.DealerRef    `json:"dealer_ref"`
	DealerName     string             `json:"dealer_name"`
	Source         enums.DealerSource `json:"source"`
	SessionID      uuid.UUID          `json:"session_id"`
}

// Outcome carries the fields a representative records when closing a visit.
type Outcome struct {
	Outcome       string
	OrderValue    *decimal.Decimal
	OrderedItems  types.OrderedItems
	Notes         *string
	NextVisitDate *time.Time
	ContactName   *string
	ContactPhone  *string
	ContactEmail  *string
}

type CheckOutInput struct {
	Outcome
	Location *geo.Point
}

// ForceCheckoutInput targets the actor when RepresentativeID is nil.
type ForceCheckoutInput struct {
	RepresentativeID *uuid.UUID
	Location         *geo.Point
}

type LeadVisitInput struct {
	Outcome
	Location geo.Point
}

// HistoryFilter narrows ListHistory. Dates are inclusive calendar days in UTC.
type HistoryFilter struct {
	StartDate        *time.Time
	EndDate          *time.Time
	RepresentativeID *uuid.UUID
	Page             pagination.Params
}
