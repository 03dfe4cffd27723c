package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

// Visit is a single check-in at a dealer or lead. CheckOutTime is nil while
// the visit is open.
type Visit struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID         uuid.UUID          `gorm:"column:company_id;type:uuid;not null"`
	RepresentativeID  uuid.UUID          `gorm:"column:representative_id;type:uuid;not null"`
	MarketSessionID   *uuid.UUID         `gorm:"column:market_session_id;type:uuid"`
	DealerRef         types.DealerRef    `gorm:"column:dealer_ref;type:text;not null"`
	Source            enums.DealerSource `gorm:"column:source;type:text;not null"`
	DealerID          *uuid.UUID         `gorm:"column:dealer_id;type:uuid"`
	PotentialDealerID *uuid.UUID         `gorm:"column:potential_dealer_id;type:uuid"`
	DealerName        string             `gorm:"column:dealer_name;not null"`

	CheckInTime        time.Time  `gorm:"column:check_in_time;not null"`
	CheckInLat         float64    `gorm:"column:check_in_lat;not null"`
	CheckInLng         float64    `gorm:"column:check_in_lng;not null"`
	DistanceFromDealer int        `gorm:"column:distance_from_dealer;not null"`
	CheckOutTime       *time.Time `gorm:"column:check_out_time"`
	CheckOutLat        *float64   `gorm:"column:check_out_lat"`
	CheckOutLng        *float64   `gorm:"column:check_out_lng"`

	Outcome          *enums.VisitOutcome `gorm:"column:outcome;type:text"`
	OrderValue       decimal.NullDecimal `gorm:"column:order_value;type:numeric(14,2)"`
	OrderedItems     types.OrderedItems  `gorm:"column:ordered_items;type:jsonb"`
	Notes            *string             `gorm:"column:notes"`
	NextVisitDate    *time.Time          `gorm:"column:next_visit_date"`
	ContactName      *string             `gorm:"column:contact_name"`
	ContactPhone     *string             `gorm:"column:contact_phone"`
	ContactEmail     *string             `gorm:"column:contact_email"`
	TimeSpentMinutes *int                `gorm:"column:time_spent_minutes"`
	FastPath         bool                `gorm:"column:fast_path;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// IsOpen reports whether the visit has not been checked out.
func (v Visit) IsOpen() bool {
	return v.CheckOutTime == nil
}
