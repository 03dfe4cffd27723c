package enums

import (
	"fmt"
	"strings"
)

// TerritoryType is the level of a territory in the hierarchy.
type TerritoryType string

const (
	TerritoryState TerritoryType = "state"
	TerritoryCity  TerritoryType = "city"
	TerritoryArea  TerritoryType = "area"
	TerritoryBeat  TerritoryType = "beat"
)

var validTerritoryTypes = []TerritoryType{TerritoryState, TerritoryCity, TerritoryArea, TerritoryBeat}

func (t TerritoryType) IsValid() bool {
	for _, candidate := range validTerritoryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTerritoryType is case-insensitive so "State" and "state" both resolve.
func ParseTerritoryType(value string) (TerritoryType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validTerritoryTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid territory type %q", value)
}
