package territories

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
)

// TerritoryDTO is the API view of a territory node.
type TerritoryDTO struct {
	ID        uuid.UUID           `json:"id"`
	Name      string              `json:"name"`
	Type      enums.TerritoryType `json:"type"`
	ParentID  *uuid.UUID          `json:"parent_id,omitempty"`
	State     *string             `json:"state,omitempty"`
	City      *string             `json:"city,omitempty"`
	Lat       *float64            `json:"lat,omitempty"`
	Lng       *float64            `json:"lng,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

func FromModel(t *models.Territory) TerritoryDTO {
	return TerritoryDTO{
		ID:        t.ID,
		Name:      t.Name,
		Type:      t.Type,
		ParentID:  t.ParentID,
		State:     t.State,
		City:      t.City,
		Lat:       t.Lat,
		Lng:       t.Lng,
		CreatedAt: t.CreatedAt,
	}
}

// TerritoryInput is shared by create and update.
type TerritoryInput struct {
	Name     string
	Type     enums.TerritoryType
	ParentID *uuid.UUID
	Lat      *float64
	Lng      *float64
}
