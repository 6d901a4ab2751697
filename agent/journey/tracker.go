// Package journey orchestrates tracked trips: geocoding the endpoints,
// registering the journey with the backend, and feeding throttled location
// reports to the alert chain until the journey stops.
package journey

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/geo/s2"
	"github.com/shieldx/companion/agent/backend"
	"github.com/shieldx/companion/agent/contacts"
	"github.com/shieldx/companion/agent/location"
	"github.com/shieldx/companion/agent/logger"
	"github.com/shieldx/companion/agent/routing"
	"github.com/shieldx/companion/agent/session"
	"github.com/shieldx/companion/agent/store"
)

const (
	reportType = "route_monitor"

	earthRadiusMeters = 6371000.0

	// Within this distance of the destination the tracker considers the
	// user arrived and says so in the log.
	arrivalRadiusMeters = 100.0
)

var logg = logger.NewLogger()

type State int

const (
	Idle State = iota
	Starting
	Active
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Session is the persisted record of the one journey that may be active on
// this device.
type Session struct {
	JourneyID  string                `json:"journey_id"`
	StartCoord location.Coordinate   `json:"start_coord"`
	EndCoord   location.Coordinate   `json:"end_coord"`
	Contacts   []string              `json:"contacts"`
	IsActive   bool                  `json:"is_active"`
	Route      []location.Coordinate `json:"route,omitempty"`
}

type Tracker struct {
	store          *store.Store
	contacts       *contacts.Manager
	session        *session.Session
	backend        *backend.Client
	routing        *routing.Client
	sampler        *location.Sampler
	reportInterval time.Duration

	mu      sync.Mutex
	state   State
	current Session
}

func NewTracker(
	s *store.Store,
	contactsManager *contacts.Manager,
	sess *session.Session,
	backendClient *backend.Client,
	routingClient *routing.Client,
	sampler *location.Sampler,
	reportInterval time.Duration,
) *Tracker {
	return &Tracker{
		store:          s,
		contacts:       contactsManager,
		session:        sess,
		backend:        backendClient,
		routing:        routingClient,
		sampler:        sampler,
		reportInterval: reportInterval,
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

func (t *Tracker) setState(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = state
}

// Start runs the journey-start pipeline. Any failure before the backend has
// assigned a journey id leaves the tracker Idle and surfaces the specific
// error. Starting while a journey is active stops the previous journey
// first, the device carries at most one active session.
func (t *Tracker) Start(ctx context.Context, fromAddress, toAddress string) (Session, error) {
	t.mu.Lock()
	if t.state == Starting || t.state == Stopping {
		t.mu.Unlock()
		return Session{}, fmt.Errorf("journey transition already in progress")
	}
	wasActive := t.state == Active
	t.state = Starting
	t.mu.Unlock()

	if wasActive {
		if err := t.stop(); err != nil {
			t.setState(Idle)
			return Session{}, err
		}
		t.setState(Starting)
	}

	sessionRecord, err := t.begin(ctx, fromAddress, toAddress)
	if err != nil {
		t.setState(Idle)
		return Session{}, err
	}

	t.mu.Lock()
	t.current = sessionRecord
	t.state = Active
	t.mu.Unlock()

	return sessionRecord, nil
}

func (t *Tracker) begin(ctx context.Context, fromAddress, toAddress string) (Session, error) {
	fromCoord, err := t.routing.Geocode(ctx, fromAddress)
	if err != nil {
		return Session{}, err
	}

	toCoord, err := t.routing.Geocode(ctx, toAddress)
	if err != nil {
		return Session{}, err
	}

	// Route preview is display sugar, a journey still starts without one.
	route, err := t.routing.WalkingRoute(ctx, fromCoord, toCoord)
	if err != nil {
		logg.Warnf("no route preview: %v", err)
		route = nil
	}

	phoneList, err := t.contacts.RequirePhoneList()
	if err != nil {
		return Session{}, err
	}

	userID, err := t.session.EnsureDeviceID()
	if err != nil {
		return Session{}, err
	}

	journeyID, err := t.backend.StartJourney(ctx, backend.ShareRouteRequest{
		UserID:            userID,
		StartLat:          fromCoord.Lat,
		StartLng:          fromCoord.Lng,
		EndLat:            toCoord.Lat,
		EndLng:            toCoord.Lng,
		EmergencyContacts: phoneList,
	})
	if err != nil {
		return Session{}, err
	}

	sessionRecord := Session{
		JourneyID:  journeyID,
		StartCoord: fromCoord,
		EndCoord:   toCoord,
		Contacts:   phoneList,
		IsActive:   true,
		Route:      route,
	}

	if err := t.persist(sessionRecord); err != nil {
		return Session{}, err
	}

	if err := t.startReporting(userID, sessionRecord); err != nil {
		return Session{}, err
	}

	logg.Infof("journey %v started (%v -> %v)", journeyID, fromAddress, toAddress)
	return sessionRecord, nil
}

// Stop ends the active journey: sampling is unregistered, persisted session
// fields are cleared and the tracker returns to Idle. Calling it with no
// journey active is a no-op.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	if t.state == Idle {
		t.mu.Unlock()
		return nil
	}
	t.state = Stopping
	t.mu.Unlock()

	err := t.stop()

	t.mu.Lock()
	t.current = Session{}
	t.state = Idle
	t.mu.Unlock()

	return err
}

func (t *Tracker) stop() error {
	t.sampler.Stop()

	return t.store.RemoveMany(
		store.KeyJourneySession,
		store.KeyJourneyID,
		store.KeyTracking,
	)
}

// Resume restores tracking after an agent restart: a persisted active
// session re-registers sampling, while a tracking flag that is no longer
// set tears down any leftover registration.
func (t *Tracker) Resume() error {
	tracking := false
	if _, err := t.store.Get(store.KeyTracking, &tracking); err != nil {
		return err
	}

	if !tracking {
		t.sampler.Stop()
		return nil
	}

	sessionRecord := Session{}
	found, err := t.store.Get(store.KeyJourneySession, &sessionRecord)
	if err != nil {
		return err
	}
	if !found || !sessionRecord.IsActive {
		t.sampler.Stop()
		return t.store.Remove(store.KeyTracking)
	}

	userID, err := t.session.DeviceID()
	if err != nil {
		return err
	}

	if err := t.startReporting(userID, sessionRecord); err != nil {
		return err
	}

	t.mu.Lock()
	t.current = sessionRecord
	t.state = Active
	t.mu.Unlock()

	logg.Infof("journey %v resumed", sessionRecord.JourneyID)
	return nil
}

func (t *Tracker) persist(sessionRecord Session) error {
	if err := t.store.Set(store.KeyJourneySession, sessionRecord); err != nil {
		return err
	}
	if err := t.store.Set(store.KeyJourneyID, sessionRecord.JourneyID); err != nil {
		return err
	}

	return t.store.Set(store.KeyTracking, true)
}

func (t *Tracker) startReporting(userID string, sessionRecord Session) error {
	return t.sampler.Start(t.reportInterval, func(coord location.Coordinate) {
		t.report(userID, sessionRecord, coord)
	})
}

// report sends one throttled location update. Failures are logged and never
// retried here, the next sample carries fresher coordinates anyway.
func (t *Tracker) report(userID string, sessionRecord Session, coord location.Coordinate) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := t.backend.UpdateLocation(ctx, backend.LocationUpdate{
		UserID:            userID,
		Lat:               coord.Lat,
		Lng:               coord.Lng,
		Type:              reportType,
		EmergencyContacts: sessionRecord.Contacts,
		JourneyID:         sessionRecord.JourneyID,
	})
	if err != nil {
		logg.Errorf("location report for journey %v failed: %v", sessionRecord.JourneyID, err)
		return
	}

	if remaining := DistanceMeters(coord, sessionRecord.EndCoord); remaining <= arrivalRadiusMeters {
		logg.Infof("journey %v within %vm of destination", sessionRecord.JourneyID, int(remaining))
	}
}

// DistanceMeters is the great-circle distance between two coordinates.
func DistanceMeters(a, b location.Coordinate) float64 {
	from := s2.LatLngFromDegrees(a.Lat, a.Lng)
	to := s2.LatLngFromDegrees(b.Lat, b.Lng)

	return from.Distance(to).Radians() * earthRadiusMeters
}
