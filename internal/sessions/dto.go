package sessions

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
)

type SessionDTO struct {
	ID                  uuid.UUID  `json:"session_id"`
	RepresentativeID    uuid.UUID  `json:"representative_id"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             *time.Time `json:"end_time,omitempty"`
	StartLocation       geo.Point  `json:"start_location"`
	EndLocation         *geo.Point `json:"end_location,omitempty"`
	TotalDistanceMeters float64    `json:"total_distance_meters"`
	VisitsCompleted     int        `json:"visits_completed"`
	IsInMarket          bool       `json:"is_in_market"`
	ClosedBy            *uuid.UUID `json:"closed_by,omitempty"`
}

func FromModel(m *models.MarketSession) SessionDTO {
	dto := SessionDTO{
		ID:                  m.ID,
		RepresentativeID:    m.RepresentativeID,
		StartTime:           m.StartTime,
		EndTime:             m.EndTime,
		StartLocation:       geo.Point{Lat: m.StartLat, Lng: m.StartLng},
		TotalDistanceMeters: m.TotalDistanceMeters,
		VisitsCompleted:     m.VisitsCompleted,
		IsInMarket:          m.IsOpen(),
		ClosedBy:            m.ClosedBy,
	}
	if m.EndLat != nil && m.EndLng != nil {
		dto.EndLocation = &geo.Point{Lat: *m.EndLat, Lng: *m.EndLng}
	}
	return dto
}

// Summary is returned when a session closes.
type Summary struct {
	SessionDTO
	DealersShown     int        `json:"dealers_shown"`
	LostVisits       int        `json:"lost_visits"`
	AbandonedVisitID *uuid.UUID `json:"abandoned_visit_id,omitempty"`
}

// LocationUpdate reports the outcome of a position ping.
type LocationUpdate struct {
	Location            geo.Point  `json:"location"`
	RecordedAt          time.Time  `json:"recorded_at"`
	SessionID           *uuid.UUID `json:"session_id,omitempty"`
	DistanceAddedMeters float64    `json:"distance_added_m"`
	TotalDistanceMeters *float64   `json:"total_distance_meters,omitempty"`
}

// LostVisits derives the lost count; it is never stored.
func LostVisits(shown, completed int) int {
	if shown <= completed {
		return 0
	}
	return shown - completed
}
