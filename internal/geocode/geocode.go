// Package geocode resolves free-text place names to coordinates through the
// Mapbox forward-geocoding API. Only the step create/edit flows use it; the
// sync and reminder layers never geocode.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// countryBias restricts matches to the countries the app targets.
const countryBias = "CA,US"

// Result is the best match for a place query.
type Result struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name,omitempty"`
}

// Client queries Mapbox. A Client with no token is valid and simply never
// matches, so callers need no "is geocoding configured" branches.
type Client struct {
	token   string
	baseURL string
	httpc   *http.Client
}

// New constructs a Client with the given access token. An empty token
// disables geocoding.
func New(token string) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Forward returns the single best match for place, or nil when there is
// none. Errors are reserved for transport/decoding failures; "no match" and
// "not configured" are both (nil, nil).
func (c *Client) Forward(ctx context.Context, place string) (*Result, error) {
	if c.token == "" {
		return nil, nil
	}
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("access_token", c.token)
	q.Set("limit", "1")
	q.Set("types", "place,locality,poi")
	q.Set("language", "en")
	q.Set("country", countryBias)

	reqURL := fmt.Sprintf("%s/%s.json?%s", c.baseURL, url.PathEscape(place), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("geocode.Client.Forward: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode.Client.Forward: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode.Client.Forward: mapbox returned %d", resp.StatusCode)
	}

	var body struct {
		Features []struct {
			Center    []float64 `json:"center"` // [lng, lat]
			PlaceName string    `json:"place_name"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("geocode.Client.Forward: decode: %w", err)
	}

	if len(body.Features) == 0 || len(body.Features[0].Center) < 2 {
		return nil, nil
	}

	f := body.Features[0]
	return &Result{Lng: f.Center[0], Lat: f.Center[1], Name: f.PlaceName}, nil
}
