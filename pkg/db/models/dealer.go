package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
)

// Dealer is an organization-managed point of sale.
type Dealer struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID        uuid.UUID            `gorm:"column:company_id;type:uuid;not null"`
	Name             string               `gorm:"column:name;not null"`
	DealerType       string               `gorm:"column:dealer_type;not null"`
	CategoryMapping  []string             `gorm:"column:category_mapping;type:jsonb;serializer:json"`
	Lat              float64              `gorm:"column:lat;not null"`
	Lng              float64              `gorm:"column:lng;not null"`
	Address          *string              `gorm:"column:address"`
	TerritoryID      *uuid.UUID           `gorm:"column:territory_id;type:uuid"`
	State            *string              `gorm:"column:state"`
	City             *string              `gorm:"column:city"`
	VisitFrequency   enums.VisitFrequency `gorm:"column:visit_frequency;type:text;not null"`
	Priority         int                  `gorm:"column:priority;not null"`
	ContactPerson    *string              `gorm:"column:contact_person"`
	Phone            *string              `gorm:"column:phone"`
	PlaceID          *string              `gorm:"column:place_id"`
	LastVisitDate    *time.Time           `gorm:"column:last_visit_date"`
	LastVisitOutcome *enums.VisitOutcome  `gorm:"column:last_visit_outcome;type:text"`
	NextVisitDue     *time.Time           `gorm:"column:next_visit_due"`
	IsActive         bool                 `gorm:"column:is_active;not null"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (d Dealer) Location() geo.Point {
	return geo.Point{Lat: d.Lat, Lng: d.Lng}
}
