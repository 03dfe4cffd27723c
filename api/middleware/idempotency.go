package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/fieldops-backend/api/responses"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/fieldops-backend/pkg/redis"
)

const (
	// IdempotencyTTL covers retries from a rep's phone over a working day.
	IdempotencyTTL = 24 * time.Hour
	// OrderIdempotencyTTL is for responses that carry order values.
	OrderIdempotencyTTL = 7 * 24 * time.Hour

	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replayed"
	maxKeyLen         = 128

	// a reservation outlives the slowest handler but not a crashed one for long
	reservationTTL = time.Minute
)

// ResponseStore persists idempotency reservations and recorded responses.
type ResponseStore = pkgredis.MarkerStore

type storedResponse struct {
	Done        bool   `json:"done"`
	Fingerprint string `json:"fp"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"ct,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type idempotencyGuard struct {
	store ResponseStore
	ttl   time.Duration
	logg  *logger.Logger
}

// Idempotent replays the first recorded response when a request repeats its
// Idempotency-Key within ttl. The key is reserved before the handler runs, so
// a concurrent duplicate gets 409 instead of a second execution. Requests
// without the header pass through; the field state machines reject
// duplicates on their own. A nil store disables replay.
func Idempotent(store ResponseStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if ttl <= 0 {
		ttl = IdempotencyTTL
	}
	g := &idempotencyGuard{store: store, ttl: ttl, logg: logg}
	return g.wrap
}

func (g *idempotencyGuard) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if clientKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(clientKey) > maxKeyLen {
			responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key too long"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		fp := fingerprint(r, body)
		key := g.store.IdempotencyKey(requestScope(r), clientKey)

		reserved, err := g.reserve(ctx, key, fp)
		if err != nil {
			responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
			return
		}
		if !reserved {
			g.replay(w, r, key, fp)
			return
		}

		capture := &responseCapture{ResponseWriter: w}
		next.ServeHTTP(capture, r)
		g.record(context.WithoutCancel(ctx), key, fp, capture)
	})
}

func (g *idempotencyGuard) reserve(ctx context.Context, key, fp string) (bool, error) {
	payload, err := json.Marshal(storedResponse{Fingerprint: fp})
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, string(payload), reservationTTL)
}

// record keeps the response for replay. Server errors release the key so the
// client can retry for real.
func (g *idempotencyGuard) record(ctx context.Context, key, fp string, capture *responseCapture) {
	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		if err := g.store.Del(ctx, key); err != nil {
			g.logError(ctx, "release idempotency key", err)
		}
		return
	}

	payload, err := json.Marshal(storedResponse{
		Done:        true,
		Fingerprint: fp,
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
	})
	if err != nil {
		g.logError(ctx, "encode idempotent response", err)
		return
	}
	if err := g.store.Set(ctx, key, string(payload), g.ttl); err != nil {
		g.logError(ctx, "persist idempotent response", err)
	}
}

func (g *idempotencyGuard) replay(w http.ResponseWriter, r *http.Request, key, fp string) {
	ctx := r.Context()
	raw, err := g.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the holder failed and released between our SETNX and GET
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key was interrupted, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotent response"))
		return
	}
	switch {
	case stored.Fingerprint != fp:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case !stored.Done:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
	default:
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set(replayHeader, "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}

func (g *idempotencyGuard) logError(ctx context.Context, msg string, err error) {
	if g.logg != nil {
		g.logg.Error(ctx, msg, err)
	}
}

// requestScope keeps one actor's keys apart from another's and from other
// endpoints.
func requestScope(r *http.Request) string {
	actor, _ := ActorFromContext(r.Context())
	return strings.Join([]string{
		actor.CompanyID.String(),
		actor.UserID.String(),
		r.Method,
		strings.TrimSuffix(r.URL.Path, "/"),
	}, "|")
}

func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.URL.RawQuery))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
