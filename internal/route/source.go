package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"smartbus/internal/geo"
)

// ErrRouteUnavailable is returned when the directions provider has no
// candidate path between the requested endpoints.
var ErrRouteUnavailable = errors.New("route: no route available")

// Source provides a routed path between two coordinates.
type Source interface {
	FetchRoute(ctx context.Context, origin, destination geo.Coordinate) (Path, error)
}

// DirectionsClient fetches routes from a Google-Directions-shaped HTTP API
// and decodes the overview polyline into a Path.
type DirectionsClient struct {
	BaseURL string // e.g. "https://maps.googleapis.com"
	APIKey  string
	HTTP    *http.Client
}

func NewDirectionsClient(baseURL, apiKey string) *DirectionsClient {
	return &DirectionsClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type directionsResponse struct {
	Routes []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
	} `json:"routes"`
	Status string `json:"status"`
}

func (c *DirectionsClient) FetchRoute(ctx context.Context, origin, destination geo.Coordinate) (Path, error) {
	q := url.Values{}
	q.Set("origin", fmt.Sprintf("%f,%f", origin.Lat, origin.Lng))
	q.Set("destination", fmt.Sprintf("%f,%f", destination.Lat, destination.Lng))
	if c.APIKey != "" {
		q.Set("key", c.APIKey)
	}
	u := fmt.Sprintf("%s/maps/api/directions/json?%s", c.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directions request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directions returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed directionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("directions decode: %w", err)
	}
	if len(parsed.Routes) == 0 {
		return nil, ErrRouteUnavailable
	}
	coords, err := geo.DecodePolyline(parsed.Routes[0].OverviewPolyline.Points)
	if err != nil {
		return nil, err
	}
	if len(coords) == 0 {
		return nil, ErrRouteUnavailable
	}
	return Path(coords), nil
}
