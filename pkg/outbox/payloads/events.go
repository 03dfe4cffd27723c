package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

// MarketSessionStartedEvent is emitted when a representative enters the market.
type MarketSessionStartedEvent struct {
	SessionID        uuid.UUID `json:"session_id"`
	CompanyID        uuid.UUID `json:"company_id"`
	RepresentativeID uuid.UUID `json:"representative_id"`
	StartTime        time.Time `json:"start_time"`
	StartLocation    geo.Point `json:"start_location"`
}

// MarketSessionEndedEvent carries the derived session stats at close.
type MarketSessionEndedEvent struct {
	SessionID           uuid.UUID  `json:"session_id"`
	CompanyID           uuid.UUID  `json:"company_id"`
	RepresentativeID    uuid.UUID  `json:"representative_id"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             time.Time  `json:"end_time"`
	DealersShown        int        `json:"dealers_shown"`
	VisitsCompleted     int        `json:"visits_completed"`
	LostVisits          int        `json:"lost_visits"`
	TotalDistanceMeters float64    `json:"total_distance_meters"`
	ClosedBy            *uuid.UUID `json:"closed_by,omitempty"`
}

// VisitCheckedInEvent is emitted when a visit opens.
type VisitCheckedInEvent struct {
	VisitID          uuid.UUID          `json:"visit_id"`
	CompanyID        uuid.UUID          `json:"company_id"`
	RepresentativeID uuid.UUID          `json:"representative_id"`
	SessionID        *uuid.UUID         `json:"session_id,omitempty"`
	DealerRef        types.DealerRef    `json:"dealer_ref"`
	Source           enums.DealerSource `json:"source"`
	CheckInTime      time.Time          `json:"check_in_time"`
	DistanceMeters   int                `json:"distance_m"`
}

// VisitCheckedOutEvent is emitted when a visit closes with a user outcome.
type VisitCheckedOutEvent struct {
	VisitID          uuid.UUID           `json:"visit_id"`
	CompanyID        uuid.UUID           `json:"company_id"`
	RepresentativeID uuid.UUID           `json:"representative_id"`
	SessionID        *uuid.UUID          `json:"session_id,omitempty"`
	DealerRef        types.DealerRef     `json:"dealer_ref"`
	Outcome          enums.VisitOutcome  `json:"outcome"`
	OrderValue       decimal.NullDecimal `json:"order_value"`
	CheckOutTime     time.Time           `json:"check_out_time"`
	TimeSpentMinutes int                 `json:"time_spent_minutes"`
	FastPath         bool                `json:"fast_path"`
}

// VisitAbandonedEvent is emitted when an open visit is force-closed.
type VisitAbandonedEvent struct {
	VisitID          uuid.UUID       `json:"visit_id"`
	CompanyID        uuid.UUID       `json:"company_id"`
	RepresentativeID uuid.UUID       `json:"representative_id"`
	SessionID        *uuid.UUID      `json:"session_id,omitempty"`
	DealerRef        types.DealerRef `json:"dealer_ref"`
	AbandonedBy      uuid.UUID       `json:"abandoned_by"`
	CheckOutTime     time.Time       `json:"check_out_time"`
}

// LeadDiscoveredEvent is emitted once per newly materialized potential dealer.
type LeadDiscoveredEvent struct {
	PotentialDealerID uuid.UUID  `json:"potential_dealer_id"`
	CompanyID         uuid.UUID  `json:"company_id"`
	PlaceID           string     `json:"place_id"`
	PlaceName         string     `json:"place_name"`
	FoundBy           uuid.UUID  `json:"found_by"`
	FoundInSessionID  *uuid.UUID `json:"found_in_session_id,omitempty"`
}

// LeadAssignedEvent is emitted on every assignment, including reassignment.
type LeadAssignedEvent struct {
	PotentialDealerID uuid.UUID  `json:"potential_dealer_id"`
	CompanyID         uuid.UUID  `json:"company_id"`
	AssignedTo        uuid.UUID  `json:"assigned_to"`
	AssignedBy        uuid.UUID  `json:"assigned_by"`
	AssignedAt        time.Time  `json:"assigned_at"`
	PreviousAssignee  *uuid.UUID `json:"previous_assignee,omitempty"`
}
