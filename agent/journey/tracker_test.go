package journey

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/shieldx/companion/agent/backend"
	"github.com/shieldx/companion/agent/contacts"
	"github.com/shieldx/companion/agent/location"
	"github.com/shieldx/companion/agent/routing"
	"github.com/shieldx/companion/agent/session"
	"github.com/shieldx/companion/agent/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendRecorder plays the backend and maps collaborators for a tracker and
// remembers every request it saw.
type backendRecorder struct {
	mu              sync.Mutex
	journeyStarts   int
	locationUpdates []backend.LocationUpdate
	nextJourneyID   string
}

func (b *backendRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/api/share_route":
			b.journeyStarts++
			fmt.Fprintf(w, `{"journey_id":%q}`, b.nextJourneyID)
		case r.URL.Path == "/api/location/update_location":
			update := backend.LocationUpdate{}
			json.NewDecoder(r.Body).Decode(&update)
			b.locationUpdates = append(b.locationUpdates, update)
			fmt.Fprint(w, `{}`)
		case strings.HasPrefix(r.URL.Path, "/maps/api/geocode"):
			address := r.URL.Query().Get("address")
			fmt.Fprintf(w, `{"status":"OK","results":[{"geometry":{"location":{"lat":%v,"lng":-79.38}}}]}`, geocodeLat(address))
		case strings.HasPrefix(r.URL.Path, "/maps/api/directions"):
			fmt.Fprint(w, `{"status":"OK","routes":[{"overview_polyline":{"points":"_p~iF~ps|U_ulLnnqC"}}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// geocodeLat gives each address a distinct latitude so tests can tell start
// and end coordinates apart.
func geocodeLat(address string) float64 {
	if strings.Contains(address, "home") {
		return 43.64
	}

	return 43.70
}

func (b *backendRecorder) requestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.journeyStarts + len(b.locationUpdates)
}

func (b *backendRecorder) updates() []backend.LocationUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]backend.LocationUpdate{}, b.locationUpdates...)
}

type fixedProvider struct{ coord location.Coordinate }

func (p *fixedProvider) CurrentPosition(ctx context.Context) (location.Coordinate, error) {
	return p.coord, nil
}

type trackerFixture struct {
	tracker  *Tracker
	store    *store.Store
	sampler  *location.Sampler
	recorder *backendRecorder
}

func newTrackerFixture(t *testing.T, phoneNumbers []string) *trackerFixture {
	t.Helper()

	recorder := &backendRecorder{nextJourneyID: "journey-1"}
	server := httptest.NewServer(recorder.handler())
	t.Cleanup(server.Close)

	s, err := store.OpenInMemory()
	require.Nil(t, err)
	t.Cleanup(func() { s.Close() })

	if len(phoneNumbers) > 0 {
		require.Nil(t, s.Set(store.KeyPhoneList, phoneNumbers))
	}

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.TagsUnique()
	sampler := location.NewSampler(&fixedProvider{coord: location.Coordinate{Lat: 43.65, Lng: -79.38}}, scheduler)

	tracker := NewTracker(
		s,
		contacts.NewManager(s),
		session.New(s),
		backend.NewClient(server.URL),
		routing.NewClientWithBaseURL("test-key", server.URL),
		sampler,
		5*time.Minute,
	)

	return &trackerFixture{tracker: tracker, store: s, sampler: sampler, recorder: recorder}
}

func TestStartPersistsSessionAndActivates(t *testing.T) {
	fixture := newTrackerFixture(t, []string{"9876543210"})

	sessionRecord, err := fixture.tracker.Start(context.Background(), "home base", "work tower")
	require.Nil(t, err)

	assert.Equal(t, Active, fixture.tracker.State())
	assert.Equal(t, "journey-1", sessionRecord.JourneyID)
	assert.Equal(t, []string{"9876543210"}, sessionRecord.Contacts)
	assert.True(t, sessionRecord.IsActive)
	assert.NotEmpty(t, sessionRecord.Route, "route preview decoded from the directions polyline")

	journeyID := ""
	found, err := fixture.store.Get(store.KeyJourneyID, &journeyID)
	require.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, "journey-1", journeyID)

	tracking := false
	found, err = fixture.store.Get(store.KeyTracking, &tracking)
	require.Nil(t, err)
	assert.True(t, found)
	assert.True(t, tracking)

	assert.True(t, fixture.sampler.Running())
}

func TestStartWithoutContactsMakesNoBackendCalls(t *testing.T) {
	fixture := newTrackerFixture(t, nil)

	_, err := fixture.tracker.Start(context.Background(), "home base", "work tower")

	assert.ErrorIs(t, err, contacts.ErrNoEmergencyContacts)
	assert.Equal(t, Idle, fixture.tracker.State())
	assert.Equal(t, 0, fixture.recorder.requestCount(), "geocoding may run but nothing reaches the backend")
	assert.False(t, fixture.sampler.Running())
}

func TestStopClearsSessionAndIsIdempotent(t *testing.T) {
	fixture := newTrackerFixture(t, []string{"9876543210"})

	_, err := fixture.tracker.Start(context.Background(), "home base", "work tower")
	require.Nil(t, err)

	require.Nil(t, fixture.tracker.Stop())
	assert.Equal(t, Idle, fixture.tracker.State())
	assert.False(t, fixture.sampler.Running())

	for _, key := range []string{store.KeyJourneySession, store.KeyJourneyID, store.KeyTracking} {
		value := json.RawMessage{}
		found, err := fixture.store.Get(key, &value)
		require.Nil(t, err)
		assert.False(t, found, "%v should be cleared", key)
	}

	// A second stop with nothing active is a no-op.
	require.Nil(t, fixture.tracker.Stop())
	assert.Equal(t, Idle, fixture.tracker.State())
}

func TestStartWhileActiveReplacesJourney(t *testing.T) {
	fixture := newTrackerFixture(t, []string{"9876543210"})

	first, err := fixture.tracker.Start(context.Background(), "home base", "work tower")
	require.Nil(t, err)

	fixture.recorder.mu.Lock()
	fixture.recorder.nextJourneyID = "journey-2"
	fixture.recorder.mu.Unlock()

	second, err := fixture.tracker.Start(context.Background(), "work tower", "home base")
	require.Nil(t, err)

	assert.NotEqual(t, first.JourneyID, second.JourneyID)
	assert.Equal(t, Active, fixture.tracker.State())

	journeyID := ""
	_, err = fixture.store.Get(store.KeyJourneyID, &journeyID)
	require.Nil(t, err)
	assert.Equal(t, "journey-2", journeyID, "only the new journey survives")
}

func TestFailedReplacementLeavesTrackerIdle(t *testing.T) {
	fixture := newTrackerFixture(t, []string{"9876543210"})

	_, err := fixture.tracker.Start(context.Background(), "home base", "work tower")
	require.Nil(t, err)

	// The contact list disappears before the second start, so the previous
	// journey is stopped but the replacement cannot begin.
	require.Nil(t, fixture.store.Remove(store.KeyPhoneList))

	_, err = fixture.tracker.Start(context.Background(), "work tower", "home base")
	assert.ErrorIs(t, err, contacts.ErrNoEmergencyContacts)
	assert.Equal(t, Idle, fixture.tracker.State())
	assert.False(t, fixture.sampler.Running())
}

func TestForwardedFixBecomesLocationUpdate(t *testing.T) {
	fixture := newTrackerFixture(t, []string{"9876543210"})

	_, err := fixture.tracker.Start(context.Background(), "home base", "work tower")
	require.Nil(t, err)

	forwarded := fixture.sampler.Observe(location.Coordinate{Lat: 43.6500, Lng: -79.3800})
	require.True(t, forwarded)

	updates := fixture.recorder.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, 43.65, updates[0].Lat)
	assert.Equal(t, -79.38, updates[0].Lng)
	assert.Equal(t, "route_monitor", updates[0].Type)
	assert.Equal(t, "journey-1", updates[0].JourneyID)
	assert.Equal(t, []string{"9876543210"}, updates[0].EmergencyContacts)
}

func TestResumeRestoresPersistedJourney(t *testing.T) {
	fixture := newTrackerFixture(t, []string{"9876543210"})

	_, err := fixture.tracker.Start(context.Background(), "home base", "work tower")
	require.Nil(t, err)
	fixture.sampler.Stop()

	// Simulate a restart: a fresh tracker over the same store.
	restarted := NewTracker(
		fixture.tracker.store,
		fixture.tracker.contacts,
		fixture.tracker.session,
		fixture.tracker.backend,
		fixture.tracker.routing,
		fixture.sampler,
		5*time.Minute,
	)

	require.Nil(t, restarted.Resume())
	assert.Equal(t, Active, restarted.State())
	assert.True(t, fixture.sampler.Running())
}

func TestResumeWithoutTrackingFlagStaysIdle(t *testing.T) {
	fixture := newTrackerFixture(t, []string{"9876543210"})

	require.Nil(t, fixture.tracker.Resume())
	assert.Equal(t, Idle, fixture.tracker.State())
	assert.False(t, fixture.sampler.Running())
}

func TestDistanceMeters(t *testing.T) {
	union := location.Coordinate{Lat: 43.6453, Lng: -79.3806}
	cnTower := location.Coordinate{Lat: 43.6426, Lng: -79.3871}

	distance := DistanceMeters(union, cnTower)
	assert.InDelta(t, 600, distance, 100, "Union Station to the CN Tower is roughly 600m")

	assert.InDelta(t, 0, DistanceMeters(union, union), 0.001)
}
