package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

// MarketSession is a representative's working period in the field. EndTime
// is nil while the session is open.
type MarketSession struct {
	ID                  uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID           uuid.UUID  `gorm:"column:company_id;type:uuid;not null"`
	RepresentativeID    uuid.UUID  `gorm:"column:representative_id;type:uuid;not null"`
	StartTime           time.Time  `gorm:"column:start_time;not null"`
	EndTime             *time.Time `gorm:"column:end_time"`
	StartLat            float64    `gorm:"column:start_lat;not null"`
	StartLng            float64    `gorm:"column:start_lng;not null"`
	EndLat              *float64   `gorm:"column:end_lat"`
	EndLng              *float64   `gorm:"column:end_lng"`
	TotalDistanceMeters float64    `gorm:"column:total_distance_meters;not null"`
	VisitsCompleted     int        `gorm:"column:visits_completed;not null"`
	ClosedBy            *uuid.UUID `gorm:"column:closed_by;type:uuid"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// IsOpen reports whether the session has not ended.
func (s MarketSession) IsOpen() bool {
	return s.EndTime == nil
}

// SessionDealerShown records that a dealer was surfaced during a session.
// Rows are insert-only.
type SessionDealerShown struct {
	SessionID      uuid.UUID          `gorm:"column:session_id;type:uuid;primaryKey"`
	DealerRef      types.DealerRef    `gorm:"column:dealer_ref;type:text;primaryKey"`
	Source         enums.DealerSource `gorm:"column:source;type:text;not null"`
	DealerName     string             `gorm:"column:dealer_name;not null"`
	DistanceMeters int                `gorm:"column:distance_meters;not null"`
	ShownAt        time.Time          `gorm:"column:shown_at;not null"`
}

func (SessionDealerShown) TableName() string {
	return "session_dealers_shown"
}
