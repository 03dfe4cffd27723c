package dealers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
)

type DealerDTO struct {
	ID               uuid.UUID            `json:"id"`
	Name             string               `json:"name"`
	DealerType       string               `json:"dealer_type"`
	CategoryMapping  []string             `json:"category_mapping"`
	Location         geo.Point            `json:"location"`
	Address          *string              `json:"address,omitempty"`
	TerritoryID      *uuid.UUID           `json:"territory_id,omitempty"`
	State            *string              `json:"state,omitempty"`
	City             *string              `json:"city,omitempty"`
	VisitFrequency   enums.VisitFrequency `json:"visit_frequency"`
	Priority         int                  `json:"priority"`
	ContactPerson    *string              `json:"contact_person,omitempty"`
	Phone            *string              `json:"phone,omitempty"`
	PlaceID          *string              `json:"place_id,omitempty"`
	LastVisitDate    *time.Time           `json:"last_visit_date,omitempty"`
	LastVisitOutcome *enums.VisitOutcome  `json:"last_visit_outcome,omitempty"`
	NextVisitDue     *time.Time           `json:"next_visit_due,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

func FromModel(d *models.Dealer) DealerDTO {
	categories := d.CategoryMapping
	if categories == nil {
		categories = []string{}
	}
	return DealerDTO{
		ID:               d.ID,
		Name:             d.Name,
		DealerType:       d.DealerType,
		CategoryMapping:  categories,
		Location:         d.Location(),
		Address:          d.Address,
		TerritoryID:      d.TerritoryID,
		State:            d.State,
		City:             d.City,
		VisitFrequency:   d.VisitFrequency,
		Priority:         d.Priority,
		ContactPerson:    d.ContactPerson,
		Phone:            d.Phone,
		PlaceID:          d.PlaceID,
		LastVisitDate:    d.LastVisitDate,
		LastVisitOutcome: d.LastVisitOutcome,
		NextVisitDue:     d.NextVisitDue,
		CreatedAt:        d.CreatedAt,
	}
}

// DealerInput is shared by create and update. Location may be omitted when
// PlaceID is set; it is then resolved through the places provider.
type DealerInput struct {
	Name            string
	DealerType      string
	CategoryMapping []string
	Location        *geo.Point
	Address         *string
	TerritoryRef    *string
	State           *string
	City            *string
	VisitFrequency  enums.VisitFrequency
	Priority        int
	ContactPerson   *string
	Phone           *string
	PlaceID         *string
}
