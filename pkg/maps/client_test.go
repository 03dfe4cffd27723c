package maps

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func respond(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}
}

// stubClient answers every call with status/body and hands each request to seen.
func stubClient(t *testing.T, status int, body string, seen func(*http.Request), opts ...Option) *Client {
	t.Helper()
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if seen != nil {
			seen(req)
		}
		return respond(status, body), nil
	})
	opts = append([]Option{WithBaseURL("http://maps.test/v1/"), WithHTTPClient(&http.Client{Transport: rt})}, opts...)
	c, err := NewClient("test-key", opts...)
	require.NoError(t, err)
	return c
}

func TestSearchNearbyRequestAndResults(t *testing.T) {
	const body = `{"places":[
		{"id":"place_1","displayName":{"text":"Abarrotes Don Beto"},"formattedAddress":"Av. Juárez 12","location":{"latitude":19.43,"longitude":-99.13},
		 "addressComponents":[{"longText":"Ciudad de México","types":["administrative_area_level_1","political"]},{"longText":"Cuauhtémoc","types":["locality"]}]},
		{"id":"","displayName":{"text":"ignored"}}
	]}`

	var (
		req     *http.Request
		payload searchNearbyBody
	)
	c := stubClient(t, http.StatusOK, body, func(r *http.Request) {
		req = r
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &payload))
	})

	places, err := c.SearchNearby(context.Background(), NearbyRequest{
		Center:        geo.Point{Lat: 19.4, Lng: -99.1},
		RadiusMeters:  80000,
		IncludedTypes: []string{"store"},
	})
	require.NoError(t, err)

	assert.Equal(t, "http://maps.test/v1/places:searchNearby", req.URL.String())
	assert.Equal(t, "test-key", req.Header.Get("X-Goog-Api-Key"))
	assert.Equal(t, nearbyFieldMask, req.Header.Get("X-Goog-FieldMask"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, maxNearbyResult, payload.MaxResultCount)
	assert.Equal(t, maxNearbyRadius, payload.LocationRestriction.Circle.Radius, "radius is capped")
	assert.Equal(t, []string{"store"}, payload.IncludedTypes)

	require.Len(t, places, 1)
	assert.Equal(t, Place{
		PlaceID:          "place_1",
		Name:             "Abarrotes Don Beto",
		FormattedAddress: "Av. Juárez 12",
		Location:         geo.Point{Lat: 19.43, Lng: -99.13},
		State:            "Ciudad de México",
		City:             "Cuauhtémoc",
	}, places[0])
}

func TestSearchNearbyValidatesInput(t *testing.T) {
	c := stubClient(t, http.StatusOK, `{}`, func(*http.Request) { t.Fatal("no request expected") })

	_, err := c.SearchNearby(context.Background(), NearbyRequest{Center: geo.Point{Lat: 120}, RadiusMeters: 10})
	assert.Equal(t, pkgerrors.ReasonInvalidLocation, pkgerrors.ReasonOf(err))

	_, err = c.SearchNearby(context.Background(), NearbyRequest{Center: geo.Point{Lat: 1, Lng: 1}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpstreamStatusMapping(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		code   pkgerrors.Code
		detail string
	}{
		"quota":     {http.StatusTooManyRequests, "quota", pkgerrors.CodeDependency, "quota"},
		"outage":    {http.StatusBadGateway, "", pkgerrors.CodeDependency, "502"},
		"not found": {http.StatusNotFound, `{"error":{"code":404,"message":"Place ID is no longer valid."}}`, pkgerrors.CodeValidation, "no longer valid"},
		"bad place": {http.StatusBadRequest, `{"error":{"message":"Not a valid Place ID"}}`, pkgerrors.CodeValidation, "Not a valid"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := stubClient(t, tc.status, tc.body, nil)
			_, err := c.ResolvePlace(context.Background(), "place_x")
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
			assert.ErrorContains(t, err, tc.detail)
		})
	}
}

func TestRateLimiterHonorsContext(t *testing.T) {
	calls := 0
	c := stubClient(t, http.StatusOK, `{"places":[]}`, func(*http.Request) { calls++ },
		WithRateLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))

	req := NearbyRequest{Center: geo.Point{Lat: 1, Lng: 1}, RadiusMeters: 10}
	_, err := c.SearchNearby(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.SearchNearby(ctx, req)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, 1, calls)
}

func TestResolvePlace(t *testing.T) {
	const body = `{"id":"place 123","displayName":{"text":"Demo Store"},"formattedAddress":"123 Demo St","location":{"latitude":1.23,"longitude":-4.56},"addressComponents":[{"longText":"Jalisco","types":["administrative_area_level_1"]}]}`

	var req *http.Request
	c := stubClient(t, http.StatusOK, body, func(r *http.Request) { req = r })

	place, err := c.ResolvePlace(context.Background(), " place 123 ")
	require.NoError(t, err)
	assert.Equal(t, "http://maps.test/v1/places/place%20123", req.URL.String())
	assert.Equal(t, resolveFieldMask, req.Header.Get("X-Goog-FieldMask"))
	assert.Empty(t, req.Header.Get("Content-Type"))
	assert.Equal(t, "Demo Store", place.Name)
	assert.Equal(t, geo.Point{Lat: 1.23, Lng: -4.56}, place.Location)
	assert.Equal(t, "Jalisco", place.State)
	assert.Empty(t, place.City)

	_, err = c.ResolvePlace(context.Background(), "  ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNilClientIsDependencyError(t *testing.T) {
	var c *Client
	_, err := c.ResolvePlace(context.Background(), "x")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient("  ")
	assert.ErrorIs(t, err, errAPIKeyRequired)
}
