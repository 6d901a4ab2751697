package push

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shieldx/companion/agent/backend"
	"github.com/shieldx/companion/agent/contacts"
	"github.com/shieldx/companion/agent/security"
	"github.com/shieldx/companion/agent/session"
	"github.com/shieldx/companion/agent/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listenerFixture struct {
	listener  *Listener
	responder *security.Responder
	store     *store.Store
	relayed   *[]backend.RegisterTokenRequest
}

func newListenerFixture(t *testing.T) *listenerFixture {
	t.Helper()

	relayed := []backend.RegisterTokenRequest{}
	backendServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/register-token" {
			req := backend.RegisterTokenRequest{}
			json.NewDecoder(r.Body).Decode(&req)
			relayed = append(relayed, req)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	t.Cleanup(backendServer.Close)

	s, err := store.OpenInMemory()
	require.Nil(t, err)
	t.Cleanup(func() { s.Close() })

	backendClient := backend.NewClient(backendServer.URL)
	responder := security.NewResponder(contacts.NewManager(s), backendClient, session.New(s))

	return &listenerFixture{
		listener:  NewListener(0, responder, backendClient, s),
		responder: responder,
		store:     s,
		relayed:   &relayed,
	}
}

func (f *listenerFixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	f.listener.Handler().ServeHTTP(recorder, request)

	return recorder
}

func TestSecurityCheckNotificationPresentsChallenge(t *testing.T) {
	fixture := newListenerFixture(t)

	recorder := fixture.post(t, "/notification",
		`{"type":"security_check","user_email":"rider@example.com"}`)

	assert.Equal(t, http.StatusOK, recorder.Code)

	challenge, ok := fixture.responder.Pending()
	require.True(t, ok)
	assert.Equal(t, "rider@example.com", challenge.UserEmail)
}

func TestNestedDataPayloadIsUnwrapped(t *testing.T) {
	fixture := newListenerFixture(t)

	recorder := fixture.post(t, "/notification",
		`{"data":{"type":"security_check","user_email":"rider@example.com"}}`)

	assert.Equal(t, http.StatusOK, recorder.Code)

	challenge, ok := fixture.responder.Pending()
	require.True(t, ok)
	assert.Equal(t, "rider@example.com", challenge.UserEmail)
}

func TestUnrelatedNotificationIsAckedQuietly(t *testing.T) {
	fixture := newListenerFixture(t)

	recorder := fixture.post(t, "/notification",
		`{"type":"marketing","user_email":"rider@example.com"}`)

	assert.Equal(t, http.StatusOK, recorder.Code, "acknowledged so the sender stops retrying")

	_, ok := fixture.responder.Pending()
	assert.False(t, ok, "only safety challenges create pending state")
}

func TestMalformedNotificationIsRejected(t *testing.T) {
	fixture := newListenerFixture(t)

	recorder := fixture.post(t, "/notification", `{not json`)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRegisterTokenStoresAndRelays(t *testing.T) {
	fixture := newListenerFixture(t)

	recorder := fixture.post(t, "/register-token",
		`{"email":"rider@example.com","token":"ExponentPushToken[xyz]"}`)

	require.Equal(t, http.StatusOK, recorder.Code)

	stored, found := fixture.store.GetString(store.KeyPushToken)
	assert.True(t, found)
	assert.Equal(t, "ExponentPushToken[xyz]", stored)

	require.Len(t, *fixture.relayed, 1)
	relayed := (*fixture.relayed)[0]
	assert.Equal(t, "rider@example.com", relayed.Email)
	assert.Equal(t, "ExponentPushToken[xyz]", relayed.Token)
	assert.Equal(t, "expo", relayed.Type, "token type defaults to expo")
}

func TestRegisterTokenRequiresToken(t *testing.T) {
	fixture := newListenerFixture(t)

	recorder := fixture.post(t, "/register-token", `{"email":"rider@example.com"}`)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, *fixture.relayed)
}

func TestRegisterTokenBackendFailureIsBadGateway(t *testing.T) {
	downServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	downServer.Close()

	s, err := store.OpenInMemory()
	require.Nil(t, err)
	t.Cleanup(func() { s.Close() })

	backendClient := backend.NewClient(downServer.URL)
	listener := NewListener(0, security.NewResponder(contacts.NewManager(s), backendClient, session.New(s)), backendClient, s)

	request := httptest.NewRequest(http.MethodPost, "/register-token",
		strings.NewReader(`{"email":"rider@example.com","token":"ExponentPushToken[xyz]"}`))
	recorder := httptest.NewRecorder()
	listener.Handler().ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadGateway, recorder.Code)

	// The token still lands locally so a later retry can re-relay it.
	stored, found := s.GetString(store.KeyPushToken)
	assert.True(t, found)
	assert.Equal(t, "ExponentPushToken[xyz]", stored)
}
