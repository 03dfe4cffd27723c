// Package pagination implements keyset cursors for listings ordered newest
// first by (timestamp, id).
package pagination

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100

	cursorSep = "~"
)

type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the position of the last row already returned.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NormalizeLimit clamps limit to (0, MaxLimit], using DefaultLimit for
// unset values.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer asks for one extra row so Build can tell whether another
// page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// String renders the cursor as an opaque URL-safe token.
func (c Cursor) String() string {
	raw := c.At.UTC().Format(time.RFC3339Nano) + cursorSep + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a token from Cursor.String. A blank token is the first
// page and yields nil.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, invalidCursor(err)
	}
	at, id, ok := strings.Cut(string(raw), cursorSep)
	if !ok {
		return nil, invalidCursor(nil)
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, invalidCursor(err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, invalidCursor(err)
	}
	return &Cursor{At: ts.UTC(), ID: uid}, nil
}

func invalidCursor(cause error) error {
	if cause == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "invalid cursor")
}

// Keyset is a gorm scope that orders by column then id, newest first, skips
// everything up to and including cursor, and fetches one row past limit.
// column must be a trusted identifier.
func Keyset(column string, cursor *Cursor, limit int) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if cursor != nil {
			at := cursor.At.UTC()
			q = q.Where("("+column+" < ?) OR ("+column+" = ? AND id < ?)", at, at, cursor.ID)
		}
		return q.Order(column + " DESC").Order("id DESC").Limit(LimitWithBuffer(limit))
	}
}

// Build cuts rows fetched with LimitWithBuffer down to limit and sets the
// next cursor when the extra row was present.
func Build[T any](rows []T, limit int, cursorOf func(T) Cursor) Page[T] {
	limit = NormalizeLimit(limit)
	page := Page[T]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.NextCursor = cursorOf(page.Items[limit-1]).String()
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page
}
