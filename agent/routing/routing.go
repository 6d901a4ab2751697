// Package routing talks to the maps collaborator: address geocoding for
// journey endpoints and walking directions for the route preview.
package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shieldx/companion/agent/location"
)

const defaultBaseURL = "https://maps.googleapis.com"

// GeocodeError means an address resolved to zero results, or the maps
// collaborator could not be reached at all.
type GeocodeError struct {
	Address string
	Reason  string
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("could not geocode %q: %v", e.Address, e.Reason)
}

type Client struct {
	http   *resty.Client
	apiKey string
}

func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, defaultBaseURL)
}

func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second)

	return &Client{http: httpClient, apiKey: apiKey}
}

type geocodeResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	Status string `json:"status"`
}

type directionsResponse struct {
	Routes []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
	} `json:"routes"`
	Status string `json:"status"`
}

// Geocode resolves a free-form address to coordinates, taking the first
// result the way the screens always did.
func (c *Client) Geocode(ctx context.Context, address string) (location.Coordinate, error) {
	response := geocodeResponse{}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"address": address, "key": c.apiKey}).
		SetResult(&response).
		Get("/maps/api/geocode/json")
	if err != nil {
		return location.Coordinate{}, &GeocodeError{Address: address, Reason: err.Error()}
	}
	if resp.IsError() {
		return location.Coordinate{}, &GeocodeError{Address: address, Reason: resp.Status()}
	}

	if len(response.Results) == 0 {
		return location.Coordinate{}, &GeocodeError{Address: address, Reason: "no results"}
	}

	loc := response.Results[0].Geometry.Location
	return location.Coordinate{Lat: loc.Lat, Lng: loc.Lng}, nil
}

// WalkingRoute fetches the overview polyline between two points, decoded
// into coordinates. Callers treat failure as non-fatal - a journey can run
// without a route preview.
func (c *Client) WalkingRoute(ctx context.Context, from, to location.Coordinate) ([]location.Coordinate, error) {
	response := directionsResponse{}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"origin":       fmt.Sprintf("%v,%v", from.Lat, from.Lng),
			"destination":  fmt.Sprintf("%v,%v", to.Lat, to.Lng),
			"mode":         "walking",
			"alternatives": "true",
			"key":          c.apiKey,
		}).
		SetResult(&response).
		Get("/maps/api/directions/json")
	if err != nil {
		return nil, errors.Wrap(err, "fetching directions")
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching directions: %v", resp.Status())
	}

	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("no route between %v and %v", from, to)
	}

	return DecodePolyline(response.Routes[0].OverviewPolyline.Points), nil
}
