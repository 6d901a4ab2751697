package security

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
	"github.com/shieldx/companion/agent/backend"
	"github.com/shieldx/companion/agent/contacts"
	"github.com/shieldx/companion/agent/session"
	"github.com/shieldx/companion/agent/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResponder(t *testing.T, serverHandler http.HandlerFunc) (*Responder, *store.Store) {
	t.Helper()

	server := httptest.NewServer(serverHandler)
	t.Cleanup(server.Close)

	s, err := store.OpenInMemory()
	require.Nil(t, err)
	t.Cleanup(func() { s.Close() })

	return NewResponder(contacts.NewManager(s), backend.NewClient(server.URL), session.New(s)), s
}

func TestSubmitCodeSuccessClearsPending(t *testing.T) {
	received := backend.SecurityCheckRequest{}
	responder, s := newTestResponder(t, func(w http.ResponseWriter, r *http.Request) {
		require.Nil(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","message":"alerts stopped"}`)
	})
	require.Nil(t, s.Set(store.KeyPhoneList, []string{"9876543210"}))

	responder.Present(Challenge{UserEmail: "rider@example.com"})

	response, err := responder.SubmitCode(context.Background(), "4321", "rider@example.com")
	require.Nil(t, err)
	assert.Equal(t, "success", response.Status)

	assert.Equal(t, "4321", received.Code)
	assert.Equal(t, "rider@example.com", received.UserEmail)
	assert.Equal(t, []string{"9876543210"}, received.EmergencyContacts)

	_, pending := responder.Pending()
	assert.False(t, pending, "an accepted code retires the challenge")
}

func TestSubmitCodeEmptyCode(t *testing.T) {
	responder, _ := newTestResponder(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the backend")
	})

	_, err := responder.SubmitCode(context.Background(), "  ", "rider@example.com")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitCodeFallsBackToPendingContext(t *testing.T) {
	received := backend.SecurityCheckRequest{}
	responder, _ := newTestResponder(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success"}`)
	})

	responder.Present(Challenge{UserEmail: "rider@example.com"})

	_, err := responder.SubmitCode(context.Background(), "4321", "")
	require.Nil(t, err)
	assert.Equal(t, "rider@example.com", received.UserEmail)
}

func TestSubmitCodeFallsBackToTokenEmail(t *testing.T) {
	// No pending challenge and no explicit email; the claim on the stored
	// access token is the last resort.
	received := backend.SecurityCheckRequest{}
	responder, s := newTestResponder(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success"}`)
	})

	token, err := jwt.NewBuilder().Claim("email", "rider@example.com").Build()
	require.Nil(t, err)
	signed, err := jwt.Sign(token, jwa.HS256, []byte("test-secret"))
	require.Nil(t, err)
	require.Nil(t, session.New(s).SetTokens(string(signed), "refresh-xyz"))

	_, err = responder.SubmitCode(context.Background(), "4321", "")
	require.Nil(t, err)
	assert.Equal(t, "rider@example.com", received.UserEmail)
}

func TestSubmitCodeWithoutAnyContext(t *testing.T) {
	responder, _ := newTestResponder(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the backend")
	})

	_, err := responder.SubmitCode(context.Background(), "4321", "")
	assert.ErrorIs(t, err, ErrMissingContext)
}

func TestSubmitCodeRejectedKeepsChallenge(t *testing.T) {
	responder, _ := newTestResponder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"error","message":"wrong code, two attempts left"}`)
	})

	responder.Present(Challenge{UserEmail: "rider@example.com"})

	response, err := responder.SubmitCode(context.Background(), "0000", "rider@example.com")
	require.NotNil(t, err)
	assert.Equal(t, "wrong code, two attempts left", err.Error(), "server message surfaces verbatim")
	assert.Equal(t, "error", response.Status)

	_, pending := responder.Pending()
	assert.True(t, pending, "a rejected code keeps the challenge open")
}

func TestPresentAndDismiss(t *testing.T) {
	responder, _ := newTestResponder(t, func(w http.ResponseWriter, r *http.Request) {})

	responder.Present(Challenge{UserEmail: "rider@example.com"})

	challenge, ok := responder.Pending()
	require.True(t, ok)
	assert.Equal(t, "rider@example.com", challenge.UserEmail)
	assert.False(t, challenge.ReceivedAt.IsZero(), "receipt time is stamped on arrival")

	responder.Dismiss()
	_, ok = responder.Pending()
	assert.False(t, ok)
}

func TestSubmitCodeWithNoStoredContacts(t *testing.T) {
	// An empty contact list is not a guard here, the server decides what to
	// do with it.
	received := backend.SecurityCheckRequest{}
	responder, _ := newTestResponder(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success"}`)
	})

	_, err := responder.SubmitCode(context.Background(), "4321", "rider@example.com")
	require.Nil(t, err)
	assert.Empty(t, received.EmergencyContacts)
}
