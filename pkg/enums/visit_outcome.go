package enums

import (
	"fmt"
	"strings"
)

// VisitOutcome is the terminal result recorded when a visit closes.
type VisitOutcome string

const (
	OutcomeOrderBooked      VisitOutcome = "order_booked"
	OutcomeFollowUpRequired VisitOutcome = "follow_up_required"
	OutcomeNoMeeting        VisitOutcome = "no_meeting"
	OutcomeLostVisit        VisitOutcome = "lost_visit"
	// OutcomeAbandoned is system-assigned by force checkout only.
	OutcomeAbandoned VisitOutcome = "abandoned"
)

var validVisitOutcomes = []VisitOutcome{
	OutcomeOrderBooked,
	OutcomeFollowUpRequired,
	OutcomeNoMeeting,
	OutcomeLostVisit,
	OutcomeAbandoned,
}

var legacyOutcomeLabels = map[string]VisitOutcome{
	"order booked":       OutcomeOrderBooked,
	"follow-up required": OutcomeFollowUpRequired,
	"follow up required": OutcomeFollowUpRequired,
	"no meeting":         OutcomeNoMeeting,
	"lost visit":         OutcomeLostVisit,
}

func (o VisitOutcome) String() string {
	return string(o)
}

func (o VisitOutcome) IsValid() bool {
	for _, candidate := range validVisitOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsUserSelectable reports whether a representative may pick the outcome at check-out.
func (o VisitOutcome) IsUserSelectable() bool {
	return o.IsValid() && o != OutcomeAbandoned
}

// Label returns the display label used by older clients.
func (o VisitOutcome) Label() string {
	switch o {
	case OutcomeOrderBooked:
		return "Order Booked"
	case OutcomeFollowUpRequired:
		return "Follow-up Required"
	case OutcomeNoMeeting:
		return "No Meeting"
	case OutcomeLostVisit:
		return "Lost Visit"
	case OutcomeAbandoned:
		return "Abandoned"
	}
	return string(o)
}

// ParseVisitOutcome accepts canonical values and the legacy display labels.
func ParseVisitOutcome(value string) (VisitOutcome, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validVisitOutcomes {
		if string(candidate) == trimmed {
			return candidate, nil
		}
	}
	if legacy, ok := legacyOutcomeLabels[strings.ToLower(trimmed)]; ok {
		return legacy, nil
	}
	return "", fmt.Errorf("invalid visit outcome %q", value)
}
