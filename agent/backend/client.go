// Package backend is the HTTP client for the ShieldX backend, the external
// system of record for journeys, contacts and the alert chain. Calls are
// single attempt with a bounded wait; retrying is left to whoever drove the
// operation.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shieldx/companion/agent/contacts"
)

const requestTimeout = 15 * time.Second

// ErrUnavailable means the backend could not be reached at all.
var ErrUnavailable = errors.New("backend unavailable")

// Error carries a non-2xx response. The server-provided message is surfaced
// verbatim to the user when present.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return fmt.Sprintf("backend request failed with status %v", e.StatusCode)
}

type Client struct {
	http *resty.Client
}

func NewClient(baseURL string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout)

	return &Client{http: httpClient}
}

// SetBearerToken attaches the stored access token to subsequent requests.
func (c *Client) SetBearerToken(token string) {
	c.http.SetAuthToken(token)
}

type ShareRouteRequest struct {
	UserID            string   `json:"user_id"`
	StartLat          float64  `json:"start_lat"`
	StartLng          float64  `json:"start_lng"`
	EndLat            float64  `json:"end_lat"`
	EndLng            float64  `json:"end_lng"`
	EmergencyContacts []string `json:"emergency_contacts"`
}

type shareRouteResponse struct {
	JourneyID string `json:"journey_id"`
}

// StartJourney registers a journey with the backend and returns the
// backend-assigned journey id, an opaque token.
func (c *Client) StartJourney(ctx context.Context, req ShareRouteRequest) (string, error) {
	response := shareRouteResponse{}
	if err := c.post(ctx, "/api/share_route", req, &response); err != nil {
		return "", err
	}

	return response.JourneyID, nil
}

type LocationUpdate struct {
	UserID            string   `json:"user_id"`
	Lat               float64  `json:"lat"`
	Lng               float64  `json:"lng"`
	Type              string   `json:"type"`
	EmergencyContacts []string `json:"emergency_contacts"`
	JourneyID         string   `json:"journey_id"`
}

func (c *Client) UpdateLocation(ctx context.Context, update LocationUpdate) error {
	return c.post(ctx, "/api/location/update_location", update, nil)
}

type SOSRequest struct {
	UserID   string   `json:"user_id"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Contacts []string `json:"contacts"`
}

func (c *Client) SendSOS(ctx context.Context, req SOSRequest) error {
	return c.post(ctx, "/api/sos", req, nil)
}

type ShareLocationRequest struct {
	UserID            string   `json:"user_id"`
	Lat               float64  `json:"lat"`
	Lng               float64  `json:"lng"`
	EmergencyContacts []string `json:"emergency_contacts"`
	IsEmergency       bool     `json:"is_emergency"`
}

func (c *Client) ShareLocation(ctx context.Context, req ShareLocationRequest) error {
	return c.post(ctx, "/api/share-location", req, nil)
}

type SecurityCheckRequest struct {
	Code              string   `json:"code"`
	UserEmail         string   `json:"user_email"`
	EmergencyContacts []string `json:"emergency_contacts"`
}

type SecurityCheckResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) SubmitSecurityCheck(ctx context.Context, req SecurityCheckRequest) (SecurityCheckResponse, error) {
	response := SecurityCheckResponse{}
	if err := c.post(ctx, "/api/security-check", req, &response); err != nil {
		return SecurityCheckResponse{}, err
	}

	return response, nil
}

type contactResponse struct {
	Contact *contacts.EmergencyContact `json:"contact"`
	Error   string                     `json:"error"`
}

// CreateContact registers a contact with the backend, which assigns its id.
func (c *Client) CreateContact(ctx context.Context, contact contacts.EmergencyContact) (contacts.EmergencyContact, error) {
	response := contactResponse{}
	if err := c.post(ctx, "/emergency/contact", contact, &response); err != nil {
		return contacts.EmergencyContact{}, err
	}

	if response.Contact == nil {
		return contacts.EmergencyContact{}, &Error{Message: response.Error}
	}

	return *response.Contact, nil
}

func (c *Client) DeleteContact(ctx context.Context, id string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/emergency/contact/%v", id))
	if err != nil {
		return errors.Wrap(ErrUnavailable, err.Error())
	}

	return errorFrom(resp)
}

type AddressRequest struct {
	AddressType string `json:"addressType"`
	Address     string `json:"address"`
}

func (c *Client) SaveAddress(ctx context.Context, req AddressRequest) error {
	return c.post(ctx, "/emergency/address", req, nil)
}

type RegisterTokenRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
	Type  string `json:"type"`
}

func (c *Client) RegisterPushToken(ctx context.Context, req RegisterTokenRequest) error {
	return c.post(ctx, "/api/register-token", req, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	request := c.http.R().SetContext(ctx).SetBody(body)
	if out != nil {
		request.SetResult(out)
	}

	resp, err := request.Post(path)
	if err != nil {
		return errors.Wrap(ErrUnavailable, err.Error())
	}

	return errorFrom(resp)
}

func errorFrom(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}

	serverError := struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}{}

	message := ""
	if err := json.Unmarshal(resp.Body(), &serverError); err == nil {
		message = serverError.Error
		if message == "" {
			message = serverError.Message
		}
	}

	return &Error{StatusCode: resp.StatusCode(), Message: message}
}
