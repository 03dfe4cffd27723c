package leads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

type LeadDTO struct {
	ID               uuid.UUID       `json:"id"`
	DealerRef        types.DealerRef `json:"dealer_ref"`
	PlaceID          string          `json:"place_id"`
	PlaceName        string          `json:"place_name"`
	Location         geo.Point       `json:"location"`
	Address          *string         `json:"address,omitempty"`
	State            *string         `json:"state,omitempty"`
	City             *string         `json:"city,omitempty"`
	FoundBy          uuid.UUID       `json:"found_by"`
	FoundInSessionID *uuid.UUID      `json:"found_in_session_id,omitempty"`
	IsAssigned       bool            `json:"is_assigned"`
	AssignedTo       *uuid.UUID      `json:"assigned_to,omitempty"`
	AssignedAt       *time.Time      `json:"assigned_at,omitempty"`
	AssignedBy       *uuid.UUID      `json:"assigned_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func FromModel(m *models.PotentialDealer) LeadDTO {
	return LeadDTO{
		ID:               m.ID,
		DealerRef:        m.Ref(),
		PlaceID:          m.PlaceID,
		PlaceName:        m.PlaceName,
		Location:         m.Location(),
		Address:          m.Address,
		State:            m.State,
		City:             m.City,
		FoundBy:          m.FoundBy,
		FoundInSessionID: m.FoundInSessionID,
		IsAssigned:       m.IsAssigned,
		AssignedTo:       m.AssignedTo,
		AssignedAt:       m.AssignedAt,
		AssignedBy:       m.AssignedBy,
		CreatedAt:        m.CreatedAt,
	}
}

func fromModels(rows []models.PotentialDealer) []LeadDTO {
	out := make([]LeadDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out
}
