package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
)

const dateLayout = "2006-01-02"

func invalidParam(key, msg string, extra ...any) error {
	details := map[string]any{"field": key}
	for i := 0; i+1 < len(extra); i += 2 {
		details[extra[i].(string)] = extra[i+1]
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// ParseUUIDParam reads a chi path parameter as a UUID.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, key)))
	if err != nil {
		return uuid.Nil, invalidParam(key, "invalid path parameter")
	}
	return id, nil
}

// ParseQueryUUID returns nil when the parameter is absent.
func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, invalidParam(key, "query parameter must be a uuid")
	}
	return &id, nil
}

func ParseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParam(key, "query parameter must be numeric")
	}
	if value < lo || value > hi {
		return 0, invalidParam(key, "query parameter out of range", "min", lo, "max", hi)
	}
	return value, nil
}

// ParseQueryFloat requires the parameter and checks it lies in [lo, hi].
func ParseQueryFloat(r *http.Request, key string, lo, hi float64) (float64, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return 0, invalidParam(key, "query parameter required")
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, invalidParam(key, "query parameter must be numeric")
	}
	if value < lo || value > hi {
		return 0, invalidParam(key, "query parameter out of range", "min", lo, "max", hi)
	}
	return value, nil
}

// ParseQueryDate accepts YYYY-MM-DD or RFC3339 and returns nil when absent.
// Results are in UTC.
func ParseQueryDate(r *http.Request, key string) (*time.Time, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, invalidParam(key, "query parameter must be a date")
}

// ParseQueryBool returns nil when the parameter is absent.
func ParseQueryBool(r *http.Request, key string) (*bool, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, invalidParam(key, "query parameter must be a boolean")
	}
	return &value, nil
}
