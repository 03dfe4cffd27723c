package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/enums"
)

// Territory is a node in the state > city > area > beat hierarchy. State and
// City are resolved from the ancestry at write time.
type Territory struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID uuid.UUID           `gorm:"column:company_id;type:uuid;not null"`
	Name      string              `gorm:"column:name;not null"`
	Type      enums.TerritoryType `gorm:"column:type;type:text;not null"`
	ParentID  *uuid.UUID          `gorm:"column:parent_id;type:uuid"`
	State     *string             `gorm:"column:state"`
	City      *string             `gorm:"column:city"`
	Lat       *float64            `gorm:"column:lat"`
	Lng       *float64            `gorm:"column:lng"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
