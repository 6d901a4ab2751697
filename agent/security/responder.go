// Package security answers the backend's safety challenges: a push
// notification asks the user to prove they are okay by entering a code,
// which is relayed back together with the emergency-contact list.
package security

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shieldx/companion/agent/backend"
	"github.com/shieldx/companion/agent/contacts"
	"github.com/shieldx/companion/agent/logger"
	"github.com/shieldx/companion/agent/session"
)

var (
	ErrValidation     = errors.New("security code is required")
	ErrMissingContext = errors.New("user context missing for security check")

	logg = logger.NewLogger()
)

// Challenge is the ephemeral state carried by a qualifying push payload. It
// lives until the code is accepted or the prompt is dismissed.
type Challenge struct {
	UserEmail  string    `json:"user_email"`
	ReceivedAt time.Time `json:"received_at"`
}

type Responder struct {
	contacts *contacts.Manager
	backend  *backend.Client
	session  *session.Session

	mu      sync.Mutex
	pending *Challenge
}

func NewResponder(contactsManager *contacts.Manager, backendClient *backend.Client, sess *session.Session) *Responder {
	return &Responder{contacts: contactsManager, backend: backendClient, session: sess}
}

// Present records an inbound challenge. Both the foreground notification
// path and the cold-start notification-response path land here.
func (r *Responder) Present(challenge Challenge) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if challenge.ReceivedAt.IsZero() {
		challenge.ReceivedAt = time.Now()
	}
	r.pending = &challenge

	logg.Infof("security check pending for %v", challenge.UserEmail)
}

func (r *Responder) Pending() (Challenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil {
		return Challenge{}, false
	}

	return *r.pending, true
}

// Dismiss drops the pending challenge without answering it.
func (r *Responder) Dismiss() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = nil
}

// SubmitCode relays the user-entered code to the backend along with the
// stored contact list. An empty userEmail falls back to the pending
// challenge's context, then to the email claim on the stored access token.
// A non-success server response surfaces the server's message verbatim;
// success clears the challenge.
func (r *Responder) SubmitCode(ctx context.Context, code, userEmail string) (backend.SecurityCheckResponse, error) {
	if strings.TrimSpace(code) == "" {
		return backend.SecurityCheckResponse{}, ErrValidation
	}

	if userEmail == "" {
		if pending, ok := r.Pending(); ok {
			userEmail = pending.UserEmail
		}
	}
	if userEmail == "" && r.session != nil {
		if email, ok := r.session.UserEmail(); ok {
			userEmail = email
		}
	}
	if userEmail == "" {
		return backend.SecurityCheckResponse{}, ErrMissingContext
	}

	phoneList, err := r.contacts.PhoneList()
	if err != nil {
		return backend.SecurityCheckResponse{}, err
	}

	response, err := r.backend.SubmitSecurityCheck(ctx, backend.SecurityCheckRequest{
		Code:              code,
		UserEmail:         userEmail,
		EmergencyContacts: phoneList,
	})
	if err != nil {
		return backend.SecurityCheckResponse{}, err
	}

	if response.Status != "success" {
		return response, &backend.Error{Message: response.Message}
	}

	r.Dismiss()
	return response, nil
}
