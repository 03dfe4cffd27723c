package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
)

type checkInBody struct {
	DealerRef string   `json:"dealer_ref" validate:"required"`
	Notes     string   `json:"notes" validate:"max=10"`
	Lat       *float64 `json:"lat" validate:"required_with=Lng"`
	Lng       *float64 `json:"lng" validate:"required_with=Lat"`
}

func post(body string) (*httptest.ResponseRecorder, *http.Request) {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	} else {
		r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	}
	return httptest.NewRecorder(), r
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	d, _ := pkgerrors.As(err).Details().(map[string]string)
	return d
}

func TestDecodeJSONBody(t *testing.T) {
	w, r := post(`{"dealer_ref":"place:abc","lat":19.4,"lng":-99.1}`)
	var body checkInBody
	require.NoError(t, DecodeJSONBody(w, r, &body))
	assert.Equal(t, "place:abc", body.DealerRef)
	require.NotNil(t, body.Lat)
	assert.InDelta(t, 19.4, *body.Lat, 1e-9)
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	w, r := post(`{"notes":"far too long for this","lat":1}`)
	var body checkInBody
	got := details(t, DecodeJSONBody(w, r, &body))
	assert.Equal(t, "is required", got["dealer_ref"])
	assert.Equal(t, "must be at most 10", got["notes"])
	assert.Equal(t, "is required with lat", got["lng"])
}

func TestDecodeJSONBodyRejectsBadInput(t *testing.T) {
	cases := map[string]struct {
		body string
		msg  string
	}{
		"empty":         {"", "request body is required"},
		"unknown field": {`{"dealer_ref":"x","rating":5}`, "invalid request body"},
		"wrong type":    {`{"dealer_ref":7}`, "invalid request body"},
		"syntax":        {`{"dealer_ref":`, "malformed JSON"},
		"trailing":      {`{"dealer_ref":"x"}{"dealer_ref":"y"}`, "request body must contain a single JSON object"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w, r := post(tc.body)
			var body checkInBody
			err := DecodeJSONBody(w, r, &body)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
			assert.Equal(t, tc.msg, pkgerrors.As(err).Message())
		})
	}
}

func TestDecodeJSONBodyUnknownFieldNamed(t *testing.T) {
	w, r := post(`{"dealer_ref":"x","rating":5}`)
	var body checkInBody
	assert.Equal(t, "is not allowed", details(t, DecodeJSONBody(w, r, &body))["rating"])
}

func TestDecodeJSONBodyEnforcesSizeLimit(t *testing.T) {
	w, r := post(`{"dealer_ref":"` + strings.Repeat("a", MaxBodyBytes) + `"}`)
	var body checkInBody
	err := DecodeJSONBody(w, r, &body)
	require.Error(t, err)
	assert.Equal(t, "request body too large", pkgerrors.As(err).Message())
}

func TestDecodeOptionalJSONBody(t *testing.T) {
	var body struct {
		Lat *float64 `json:"lat" validate:"required_with=Lng"`
		Lng *float64 `json:"lng" validate:"required_with=Lat"`
	}
	w, r := post("")
	require.NoError(t, DecodeOptionalJSONBody(w, r, &body))
	assert.Nil(t, body.Lat)

	w, r = post(`{"lat":4.6}`)
	assert.Error(t, DecodeOptionalJSONBody(w, r, &body))
}

func withQuery(raw string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/?"+raw, nil)
}

func TestParseQueryInt(t *testing.T) {
	v, err := ParseQueryInt(withQuery(""), "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	v, err = ParseQueryInt(withQuery("limit=40"), "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 40, v)

	_, err = ParseQueryInt(withQuery("limit=500"), "limit", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryInt(withQuery("limit=ten"), "limit", 25, 1, 100)
	assert.Error(t, err)
}

func TestParseQueryFloatRequiresValue(t *testing.T) {
	_, err := ParseQueryFloat(withQuery(""), "lat", -90, 90)
	assert.Error(t, err)
	_, err = ParseQueryFloat(withQuery("lat=91"), "lat", -90, 90)
	assert.Error(t, err)
	v, err := ParseQueryFloat(withQuery("lat=-33.45"), "lat", -90, 90)
	require.NoError(t, err)
	assert.InDelta(t, -33.45, v, 1e-9)
}

func TestParseQueryDate(t *testing.T) {
	d, err := ParseQueryDate(withQuery("from=2026-03-01"), "from")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T00:00:00Z", d.Format("2006-01-02T15:04:05Z07:00"))

	d, err = ParseQueryDate(withQuery("from=2026-03-01T10:00:00-06:00"), "from")
	require.NoError(t, err)
	assert.Equal(t, 16, d.Hour())

	d, err = ParseQueryDate(withQuery(""), "from")
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = ParseQueryDate(withQuery("from=yesterday"), "from")
	assert.Error(t, err)
}

func TestParseQueryBoolAndUUID(t *testing.T) {
	b, err := ParseQueryBool(withQuery("open=true"), "open")
	require.NoError(t, err)
	assert.True(t, *b)
	_, err = ParseQueryBool(withQuery("open=maybe"), "open")
	assert.Error(t, err)

	id, err := ParseQueryUUID(withQuery("rep=0b1e7a4e-8d0b-4c55-9e54-1d2f3a4b5c6d"), "rep")
	require.NoError(t, err)
	assert.Equal(t, "0b1e7a4e-8d0b-4c55-9e54-1d2f3a4b5c6d", id.String())
	_, err = ParseQueryUUID(withQuery("rep=42"), "rep")
	assert.Error(t, err)
}

func TestParseUUIDParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/visits/x", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("visitID", "not-a-uuid")
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	_, err := ParseUUIDParam(r, "visitID")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Abarrotes La Esperanza", SanitizeString("  Abarrotes \t La\n Esperanza ", 0))
	assert.Equal(t, "Panadería", SanitizeString("Panadería Ñuñoa", 9))
	assert.Equal(t, "ab", SanitizeString("ab cd", 3))
	assert.Equal(t, "ab", SanitizeString("a\x00b", 0))
	assert.Empty(t, SanitizeString("   ", 5))
}
