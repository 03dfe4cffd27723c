package enums

import (
	"fmt"
	"strings"
)

// DealerSource distinguishes organization dealers from places-provider leads.
type DealerSource string

const (
	DealerSourceInternal DealerSource = "internal"
	DealerSourceExternal DealerSource = "external"
)

func (s DealerSource) IsValid() bool {
	return s == DealerSourceInternal || s == DealerSourceExternal
}

// VisitFrequency drives next_visit_due when a visit closes.
type VisitFrequency string

const (
	VisitFrequencyDaily       VisitFrequency = "daily"
	VisitFrequencyWeekly      VisitFrequency = "weekly"
	VisitFrequencyFortnightly VisitFrequency = "fortnightly"
	VisitFrequencyMonthly     VisitFrequency = "monthly"
)

var validVisitFrequencies = []VisitFrequency{
	VisitFrequencyDaily,
	VisitFrequencyWeekly,
	VisitFrequencyFortnightly,
	VisitFrequencyMonthly,
}

func (f VisitFrequency) IsValid() bool {
	for _, candidate := range validVisitFrequencies {
		if candidate == f {
			return true
		}
	}
	return false
}

// IntervalDays returns the cadence in days; unknown values fall back to weekly.
func (f VisitFrequency) IntervalDays() int {
	switch f {
	case VisitFrequencyDaily:
		return 1
	case VisitFrequencyFortnightly:
		return 14
	case VisitFrequencyMonthly:
		return 30
	default:
		return 7
	}
}

func ParseVisitFrequency(value string) (VisitFrequency, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return VisitFrequencyWeekly, nil
	}
	for _, candidate := range validVisitFrequencies {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid visit frequency %q", value)
}
