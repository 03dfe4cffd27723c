package nearby

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

// externalPriority ranks leads alongside the lowest dealer priority.
const externalPriority = 3

// Candidate is one dealer or lead suggested to a representative.
type Candidate struct {
	DealerRef      types.DealerRef    `json:"dealer_ref"`
	Source         enums.DealerSource `json:"source"`
	Name           string             `json:"name"`
	Location       geo.Point          `json:"location"`
	Address        *string            `json:"address,omitempty"`
	State          *string            `json:"state,omitempty"`
	City           *string            `json:"city,omitempty"`
	DistanceMeters int                `json:"distance_m"`
	Priority       int                `json:"priority"`
	DealerID       *uuid.UUID         `json:"dealer_id,omitempty"`
	DealerType     string             `json:"dealer_type,omitempty"`
	LastVisitDate  *time.Time         `json:"last_visit_date,omitempty"`
	NextVisitDue   *time.Time         `json:"next_visit_due,omitempty"`
	PotentialID    *uuid.UUID         `json:"potential_id,omitempty"`
	PlaceID        string             `json:"place_id,omitempty"`
	IsAssigned     bool               `json:"is_assigned"`
}

// Result is the response of a nearby lookup. When OpenVisitID is set the
// representative must check out first and Candidates is empty.
type Result struct {
	Candidates       []Candidate `json:"candidates"`
	SearchRadiusM    int         `json:"search_radius_m"`
	OpenVisitID      *uuid.UUID  `json:"open_visit_id,omitempty"`
	SessionID        *uuid.UUID  `json:"session_id,omitempty"`
	ExternalDegraded bool        `json:"external_degraded"`
}

func fromDealer(d models.Dealer, distance int) Candidate {
	id := d.ID
	return Candidate{
		DealerRef:      types.InternalRef(d.ID),
		Source:         enums.DealerSourceInternal,
		Name:           d.Name,
		Location:       d.Location(),
		Address:        d.Address,
		State:          d.State,
		City:           d.City,
		DistanceMeters: distance,
		Priority:       d.Priority,
		DealerID:       &id,
		DealerType:     d.DealerType,
		LastVisitDate:  d.LastVisitDate,
		NextVisitDue:   d.NextVisitDue,
	}
}

func fromLead(p models.PotentialDealer, distance int) Candidate {
	id := p.ID
	return Candidate{
		DealerRef:      p.Ref(),
		Source:         enums.DealerSourceExternal,
		Name:           p.PlaceName,
		Location:       p.Location(),
		Address:        p.Address,
		State:          p.State,
		City:           p.City,
		DistanceMeters: distance,
		Priority:       externalPriority,
		PotentialID:    &id,
		PlaceID:        p.PlaceID,
		IsAssigned:     p.IsAssigned,
	}
}

// Sort orders candidates by distance, then priority, then internal before
// external, then dealer ref.
func Sort(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.DistanceMeters != b.DistanceMeters {
			return a.DistanceMeters < b.DistanceMeters
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Source != b.Source {
			return a.Source == enums.DealerSourceInternal
		}
		return a.DealerRef < b.DealerRef
	})
}
