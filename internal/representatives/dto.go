package representatives

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
)

// RepresentativeDTO never carries the password hash.
type RepresentativeDTO struct {
	ID               uuid.UUID           `json:"id"`
	CompanyID        uuid.UUID           `json:"company_id"`
	Name             string              `json:"name"`
	Email            string              `json:"email"`
	Mobile           *string             `json:"mobile,omitempty"`
	EmployeeCode     *string             `json:"employee_code,omitempty"`
	Role             enums.Role          `json:"role"`
	IsActive         bool                `json:"is_active"`
	TerritoryID      *uuid.UUID          `json:"territory_id,omitempty"`
	TerritoryState   *string             `json:"territory_state,omitempty"`
	TerritoryCity    *string             `json:"territory_city,omitempty"`
	Unrestricted     bool                `json:"unrestricted"`
	IsInMarket       bool                `json:"is_in_market"`
	ActiveSessionID  *uuid.UUID          `json:"active_session_id,omitempty"`
	CurrentLocation  *geo.Point          `json:"current_location,omitempty"`
	LastLocationAt   *time.Time          `json:"last_location_update,omitempty"`
	DailyVisitTarget *int                `json:"daily_visit_target,omitempty"`
	DailySalesTarget decimal.NullDecimal `json:"daily_sales_target"`
	LastLoginAt      *time.Time          `json:"last_login_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

func FromModel(m *models.Representative) RepresentativeDTO {
	dto := RepresentativeDTO{
		ID:               m.ID,
		CompanyID:        m.CompanyID,
		Name:             m.Name,
		Email:            m.Email,
		Mobile:           m.Mobile,
		EmployeeCode:     m.EmployeeCode,
		Role:             m.Role,
		IsActive:         m.IsActive,
		TerritoryID:      m.TerritoryID,
		TerritoryState:   m.TerritoryState,
		TerritoryCity:    m.TerritoryCity,
		Unrestricted:     m.Unrestricted,
		IsInMarket:       m.IsInMarket,
		ActiveSessionID:  m.ActiveSessionID,
		LastLocationAt:   m.LastLocationUpdate,
		DailyVisitTarget: m.DailyVisitTarget,
		DailySalesTarget: m.DailySalesTarget,
		LastLoginAt:      m.LastLoginAt,
		CreatedAt:        m.CreatedAt,
	}
	if loc, ok := m.CurrentLocation(); ok {
		dto.CurrentLocation = &loc
	}
	return dto
}

// LivePosition is one row of the live tracking board.
type LivePosition struct {
	RepresentativeID uuid.UUID  `json:"representative_id"`
	Name             string     `json:"name"`
	IsInMarket       bool       `json:"is_in_market"`
	ActiveSessionID  *uuid.UUID `json:"active_session_id,omitempty"`
	Location         *geo.Point `json:"location,omitempty"`
	LastUpdate       *time.Time `json:"last_location_update,omitempty"`
}

// CreateInput describes a new account. An empty Password generates a
// temporary one that is returned once.
type CreateInput struct {
	Name         string
	Email        string
	Mobile       *string
	EmployeeCode *string
	Password     string
	Role         enums.Role
	TerritoryRef *string
}

// TerritoryAssignment either unrestricts the representative or binds them to
// a territory given by id (or legacy name).
type TerritoryAssignment struct {
	TerritoryRef *string
	Unrestricted bool
}

type TargetsInput struct {
	DailyVisitTarget *int
	DailySalesTarget *decimal.Decimal
}
