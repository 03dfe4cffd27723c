package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

// PotentialDealer is a lead discovered through the places provider. PlaceID
// is unique per company.
type PotentialDealer struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID        uuid.UUID  `gorm:"column:company_id;type:uuid;not null"`
	PlaceID          string     `gorm:"column:place_id;not null"`
	PlaceName        string     `gorm:"column:place_name;not null"`
	Lat              float64    `gorm:"column:lat;not null"`
	Lng              float64    `gorm:"column:lng;not null"`
	Address          *string    `gorm:"column:address"`
	State            *string    `gorm:"column:state"`
	City             *string    `gorm:"column:city"`
	FoundBy          uuid.UUID  `gorm:"column:found_by;type:uuid;not null"`
	FoundInSessionID *uuid.UUID `gorm:"column:found_in_session_id;type:uuid"`
	IsAssigned       bool       `gorm:"column:is_assigned;not null"`
	AssignedTo       *uuid.UUID `gorm:"column:assigned_to;type:uuid"`
	AssignedAt       *time.Time `gorm:"column:assigned_at"`
	AssignedBy       *uuid.UUID `gorm:"column:assigned_by;type:uuid"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (p PotentialDealer) Location() geo.Point {
	return geo.Point{Lat: p.Lat, Lng: p.Lng}
}

func (p PotentialDealer) Ref() types.DealerRef {
	return types.ExternalRef(p.PlaceID)
}
