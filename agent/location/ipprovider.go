package location

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultIPLookupURL = "https://ipapi.co"

// IPProvider approximates the device position from its public IP. It is the
// fallback provider for hosts without a platform location service; accuracy
// is city-level at best, which is still enough for the alert chain.
type IPProvider struct {
	http *resty.Client
}

func NewIPProvider() *IPProvider {
	return NewIPProviderWithBaseURL(defaultIPLookupURL)
}

func NewIPProviderWithBaseURL(baseURL string) *IPProvider {
	return &IPProvider{
		http: resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second),
	}
}

func (p *IPProvider) CurrentPosition(ctx context.Context) (Coordinate, error) {
	response := struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}{}

	resp, err := p.http.R().
		SetContext(ctx).
		SetResult(&response).
		Get("/json/")
	if err != nil || resp.IsError() {
		return Coordinate{}, ErrLocationUnavailable
	}

	if response.Latitude == 0 && response.Longitude == 0 {
		return Coordinate{}, ErrLocationUnavailable
	}

	return Coordinate{Lat: response.Latitude, Lng: response.Longitude}, nil
}
