package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
)

type markerStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMarkerStore() *markerStore {
	return &markerStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *markerStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (s *markerStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key], s.ttls[key] = value.(string), ttl
	return true, nil
}

func (s *markerStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.data[key], s.ttls[key] = value.(string), ttl
	return nil
}

func (s *markerStore) IdempotencyKey(scope, id string) string { return scope + "#" + id }

func (s *markerStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func checkoutRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/visits/0b1e/check-out", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestIdempotentPassesThroughWithoutHeader(t *testing.T) {
	store := newMarkerStore()
	calls := 0
	h := Idempotent(store, IdempotencyTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for range 2 {
		assert.Equal(t, http.StatusCreated, serve(h, checkoutRequest("", `{"outcome":"no_meeting"}`)).Code)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotentReplaysRecordedResponse(t *testing.T) {
	store := newMarkerStore()
	calls := 0
	h := Idempotent(store, OrderIdempotencyTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	first := serve(h, checkoutRequest("abc", `{"outcome":"order_booked"}`))
	require.Equal(t, http.StatusAccepted, first.Code)
	assert.Empty(t, first.Header().Get(replayHeader))

	replay := serve(h, checkoutRequest("abc", `{"outcome":"order_booked"}`))
	assert.Equal(t, http.StatusAccepted, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, "true", replay.Header().Get(replayHeader))
	assert.JSONEq(t, `{"ok":true}`, replay.Body.String())
	assert.Equal(t, 1, calls)

	for key := range store.data {
		assert.Equal(t, OrderIdempotencyTTL, store.ttls[key])
	}
}

func TestIdempotentReleasesOnServerError(t *testing.T) {
	store := newMarkerStore()
	status := http.StatusServiceUnavailable
	h := Idempotent(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))

	serve(h, checkoutRequest("retry-me", `{}`))
	assert.Empty(t, store.data, "5xx responses are not recorded")

	status = http.StatusOK
	assert.Equal(t, http.StatusOK, serve(h, checkoutRequest("retry-me", `{}`)).Code)
	for key := range store.data {
		assert.Equal(t, IdempotencyTTL, store.ttls[key], "zero ttl falls back to the default")
	}
}

func TestIdempotentRejectsChangedBody(t *testing.T) {
	store := newMarkerStore()
	h := Idempotent(store, IdempotencyTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve(h, checkoutRequest("xyz", `{"outcome":"no_meeting"}`))
	resp := serve(h, checkoutRequest("xyz", `{"outcome":"lost_visit"}`))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, resp))
}

func TestIdempotentRejectsConcurrentDuplicate(t *testing.T) {
	store := newMarkerStore()
	calls := 0
	var h http.Handler
	h = Idempotent(store, IdempotencyTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			dup := serve(h, checkoutRequest("dup", `{"dealer":"d1"}`))
			assert.Equal(t, http.StatusConflict, dup.Code, "in-flight duplicate")
		}
		w.WriteHeader(http.StatusCreated)
	}))

	assert.Equal(t, http.StatusCreated, serve(h, checkoutRequest("dup", `{"dealer":"d1"}`)).Code)
	assert.Equal(t, 1, calls)
	for _, raw := range store.data {
		var stored storedResponse
		require.NoError(t, json.Unmarshal([]byte(raw), &stored))
		assert.True(t, stored.Done)
		assert.Equal(t, http.StatusCreated, stored.Status)
	}
}

func TestIdempotentScopesKeysByActor(t *testing.T) {
	store := newMarkerStore()
	calls := 0
	h := Idempotent(store, IdempotencyTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for range 2 {
		actor := authz.Actor{UserID: uuid.New(), CompanyID: uuid.New(), Role: enums.RoleSalesRep}
		req := checkoutRequest("same-key", `{}`)
		req = req.WithContext(WithActor(req.Context(), actor))
		assert.Equal(t, http.StatusCreated, serve(h, req).Code)
	}
	assert.Equal(t, 2, calls)
	assert.Len(t, store.data, 2)
}

func TestIdempotentRejectsOversizedKey(t *testing.T) {
	h := Idempotent(newMarkerStore(), IdempotencyTTL, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	resp := serve(h, checkoutRequest(strings.Repeat("k", maxKeyLen+1), `{}`))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestIdempotentWithoutStoreIsNoop(t *testing.T) {
	calls := 0
	h := Idempotent(nil, IdempotencyTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	serve(h, checkoutRequest("k", `{}`))
	serve(h, checkoutRequest("k", `{}`))
	assert.Equal(t, 2, calls)
}
