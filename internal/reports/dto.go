package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

type SessionStats struct {
	SessionID        uuid.UUID `json:"session_id"`
	RepresentativeID uuid.UUID `json:"representative_id"`
	IsOpen           bool      `json:"is_open"`
	DealersShown     int       `json:"dealers_shown"`
	VisitsCompleted  int       `json:"visits_completed"`
	LostVisits       int       `json:"lost_visits"`
}

type ShownDealer struct {
	DealerRef      types.DealerRef    `json:"dealer_ref"`
	Source         enums.DealerSource `json:"source"`
	DealerName     string             `json:"dealer_name"`
	DistanceMeters int                `json:"distance_m"`
	ShownAt        time.Time          `json:"shown_at"`
	IsVisited      bool               `json:"is_visited"`
}

type SessionDetail struct {
	SessionStats
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Dealers   []ShownDealer `json:"dealers"`
}

type Dashboard struct {
	TotalDealers    int64           `json:"total_dealers"`
	TotalReps       int64           `json:"total_reps"`
	ActiveReps      int64           `json:"active_reps"`
	VisitsToday     int64           `json:"visits_today"`
	TargetVisits    int64           `json:"target_visits"`
	OrderValueToday decimal.Decimal `json:"order_value_today"`
	CompletionRate  float64         `json:"completion_rate"`
}

type ExecutivePerformance struct {
	RepresentativeID   uuid.UUID       `json:"representative_id"`
	Name               string          `json:"name"`
	EmployeeCode       *string         `json:"employee_code,omitempty"`
	TotalVisits        int64           `json:"total_visits"`
	CompletedVisits    int64           `json:"completed_visits"`
	TotalOrders        decimal.Decimal `json:"total_orders"`
	AvgMinutesPerVisit float64         `json:"avg_minutes_per_visit"`
	IsInMarket         bool            `json:"is_in_market"`
	CurrentLocation    *geo.Point      `json:"current_location,omitempty"`
	LastLocationUpdate *time.Time      `json:"last_location_update,omitempty"`
}

type LostVisit struct {
	VisitID          uuid.UUID       `json:"visit_id"`
	RepresentativeID uuid.UUID       `json:"representative_id"`
	DealerRef        types.DealerRef `json:"dealer_ref"`
	DealerName       string          `json:"dealer_name"`
	CheckOutTime     *time.Time      `json:"check_out_time,omitempty"`
	Notes            *string         `json:"notes,omitempty"`
}

type SessionLost struct {
	SessionID        uuid.UUID  `json:"session_id"`
	RepresentativeID uuid.UUID  `json:"representative_id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	DealersShown     int        `json:"dealers_shown"`
	VisitsCompleted  int        `json:"visits_completed"`
	LostVisits       int        `json:"lost_visits"`
}

type LostVisitsReport struct {
	Visits           []LostVisit   `json:"visits"`
	Sessions         []SessionLost `json:"sessions"`
	TotalSessionLost int           `json:"total_session_lost"`
}
