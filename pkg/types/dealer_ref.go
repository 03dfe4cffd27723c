package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ExternalRefPrefix marks dealer refs that point at a places-provider id.
const ExternalRefPrefix = "google_"

// DealerRef identifies the target of a visit: an internal dealer uuid or a
// places id prefixed with ExternalRefPrefix.
type DealerRef string

// InternalRef builds the ref for an organization dealer.
func InternalRef(id uuid.UUID) DealerRef {
	return DealerRef(id.String())
}

// ExternalRef builds the ref for a places-provider lead.
func ExternalRef(placeID string) DealerRef {
	return DealerRef(ExternalRefPrefix + placeID)
}

// IsExternal reports whether the ref carries the places prefix.
func (r DealerRef) IsExternal() bool {
	return strings.HasPrefix(string(r), ExternalRefPrefix)
}

// PlaceID returns the provider id for external refs.
func (r DealerRef) PlaceID() (string, bool) {
	if !r.IsExternal() {
		return "", false
	}
	id := strings.TrimPrefix(string(r), ExternalRefPrefix)
	return id, id != ""
}

// DealerID parses the uuid of an internal ref.
func (r DealerRef) DealerID() (uuid.UUID, error) {
	if r.IsExternal() {
		return uuid.Nil, fmt.Errorf("dealer ref %q is external", r)
	}
	return uuid.Parse(string(r))
}

func (r DealerRef) String() string {
	return string(r)
}
