package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
)

// Representative is any authenticated account of a company. Sales reps carry
// a territory restriction and the in-market projection.
type Representative struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID    uuid.UUID  `gorm:"column:company_id;type:uuid;not null"`
	Name         string     `gorm:"column:name;not null"`
	Email        string     `gorm:"column:email;not null;uniqueIndex"`
	Mobile       *string    `gorm:"column:mobile"`
	EmployeeCode *string    `gorm:"column:employee_code"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	Role         enums.Role `gorm:"column:role;type:text;not null"`
	IsActive     bool       `gorm:"column:is_active;not null"`

	TerritoryID    *uuid.UUID `gorm:"column:territory_id;type:uuid"`
	TerritoryState *string    `gorm:"column:territory_state"`
	TerritoryCity  *string    `gorm:"column:territory_city"`
	Unrestricted   bool       `gorm:"column:unrestricted;not null"`

	IsInMarket         bool       `gorm:"column:is_in_market;not null"`
	ActiveSessionID    *uuid.UUID `gorm:"column:active_session_id;type:uuid"`
	CurrentLat         *float64   `gorm:"column:current_lat"`
	CurrentLng         *float64   `gorm:"column:current_lng"`
	LastLocationUpdate *time.Time `gorm:"column:last_location_update"`

	DailyVisitTarget *int                `gorm:"column:daily_visit_target"`
	DailySalesTarget decimal.NullDecimal `gorm:"column:daily_sales_target;type:numeric(14,2)"`

	LastLoginAt *time.Time `gorm:"column:last_login_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TerritoryRestriction limits which dealers a representative is shown.
type TerritoryRestriction struct {
	Unrestricted bool
	State        string
	City         string
}

// Restriction derives the representative's territory filter. A representative
// without an assigned territory state is unrestricted.
func (r Representative) Restriction() TerritoryRestriction {
	if r.Unrestricted || r.TerritoryState == nil || *r.TerritoryState == "" {
		return TerritoryRestriction{Unrestricted: true}
	}
	out := TerritoryRestriction{State: *r.TerritoryState}
	if r.TerritoryCity != nil {
		out.City = *r.TerritoryCity
	}
	return out
}

// Allows reports whether a dealer located in state/city is visible. When
// restricted, an unknown state is never visible.
func (t TerritoryRestriction) Allows(state, city string) bool {
	if t.Unrestricted {
		return true
	}
	state = strings.TrimSpace(state)
	if state == "" || !strings.EqualFold(state, t.State) {
		return false
	}
	if t.City == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(city), t.City)
}

// CurrentLocation returns the last reported position, if any.
func (r Representative) CurrentLocation() (geo.Point, bool) {
	if r.CurrentLat == nil || r.CurrentLng == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *r.CurrentLat, Lng: *r.CurrentLng}, true
}
