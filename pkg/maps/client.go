// Package maps talks to the Google Places (New) API for dealer discovery and
// place resolution.
package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
)

const (
	defaultBaseURL = "https://places.googleapis.com/v1"
	defaultTimeout = 10 * time.Second

	nearbyFieldMask  = "places.id,places.displayName,places.formattedAddress,places.location,places.addressComponents"
	resolveFieldMask = "id,displayName,formattedAddress,location,addressComponents"

	errorBodyLimit  int64 = 1024
	maxNearbyResult       = 20
	maxNearbyRadius       = 50000.0
)

var errAPIKeyRequired = errors.New("google maps api key is required")

// Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithRateLimiter caps outbound calls. Callers wait for a token or fail when
// their context ends first.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) { c.limiter = limiter }
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	c := &Client{
		apiKey:     key,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// NearbyRequest describes a circular search. Radius is capped at 50km and
// results at 20, the provider's own limits.
type NearbyRequest struct {
	Center        geo.Point
	RadiusMeters  float64
	IncludedTypes []string
	MaxResults    int
}

// Place is a provider place reduced to what dealers and leads store.
type Place struct {
	PlaceID          string
	Name             string
	FormattedAddress string
	Location         geo.Point
	State            string
	City             string
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type wirePlace struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress  string `json:"formattedAddress"`
	Location          latLng `json:"location"`
	AddressComponents []struct {
		LongText string   `json:"longText"`
		Types    []string `json:"types"`
	} `json:"addressComponents"`
}

func (p wirePlace) place() Place {
	out := Place{
		PlaceID:          p.ID,
		Name:             p.DisplayName.Text,
		FormattedAddress: p.FormattedAddress,
		Location:         geo.Point{Lat: p.Location.Latitude, Lng: p.Location.Longitude},
	}
	for _, comp := range p.AddressComponents {
		for _, typ := range comp.Types {
			switch typ {
			case "administrative_area_level_1":
				out.State = comp.LongText
			case "locality":
				out.City = comp.LongText
			}
		}
	}
	return out
}

type searchNearbyBody struct {
	IncludedTypes       []string `json:"includedTypes,omitempty"`
	MaxResultCount      int      `json:"maxResultCount"`
	LocationRestriction struct {
		Circle struct {
			Center latLng  `json:"center"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationRestriction"`
}

// SearchNearby lists places inside the circle described by req. Results
// without a place id are dropped.
func (c *Client) SearchNearby(ctx context.Context, req NearbyRequest) ([]Place, error) {
	if c == nil {
		return nil, errNotConfigured()
	}
	if err := req.Center.Validate(); err != nil {
		return nil, err
	}
	if req.RadiusMeters <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "search radius must be positive")
	}

	var body searchNearbyBody
	body.IncludedTypes = req.IncludedTypes
	body.MaxResultCount = req.MaxResults
	if body.MaxResultCount <= 0 || body.MaxResultCount > maxNearbyResult {
		body.MaxResultCount = maxNearbyResult
	}
	body.LocationRestriction.Circle.Center = latLng{Latitude: req.Center.Lat, Longitude: req.Center.Lng}
	body.LocationRestriction.Circle.Radius = min(req.RadiusMeters, maxNearbyRadius)

	var out struct {
		Places []wirePlace `json:"places"`
	}
	if err := c.call(ctx, http.MethodPost, "/places:searchNearby", nearbyFieldMask, body, &out); err != nil {
		return nil, fmt.Errorf("search nearby: %w", err)
	}

	places := make([]Place, 0, len(out.Places))
	for _, p := range out.Places {
		if strings.TrimSpace(p.ID) != "" {
			places = append(places, p.place())
		}
	}
	return places, nil
}

// ResolvePlace fetches canonical data for placeID. An unknown id is a
// validation error since it came from the caller.
func (c *Client) ResolvePlace(ctx context.Context, placeID string) (*Place, error) {
	if c == nil {
		return nil, errNotConfigured()
	}
	id := strings.TrimSpace(placeID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "place ID is required")
	}

	var out wirePlace
	if err := c.call(ctx, http.MethodGet, "/places/"+url.PathEscape(id), resolveFieldMask, nil, &out); err != nil {
		return nil, fmt.Errorf("resolve place %s: %w", id, err)
	}
	place := out.place()
	return &place, nil
}

func (c *Client) call(ctx context.Context, method, path, fieldMask string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode places request")
		}
		reqBody = bytes.NewReader(payload)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "places rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build places request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "places request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode places response")
	}
	return nil
}

// statusError maps a non-200 answer. Google wraps its message in
// {"error":{"message":...}}; the raw body is kept when it does not.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}
	cause := fmt.Errorf("places status %d: %s", resp.StatusCode, msg)

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusBadRequest:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "place not found")
	case http.StatusTooManyRequests:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "places quota exceeded")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "places request rejected")
	}
}

func errNotConfigured() error {
	return pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
}
