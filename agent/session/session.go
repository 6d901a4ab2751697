// Package session holds the device identity and the auth tokens handed out
// by the backend at login.
package session

import (
	"errors"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/jwt"
	"github.com/shieldx/companion/agent/store"
)

var ErrMissingIdentity = errors.New("no device identity registered")

type Session struct {
	store *store.Store
}

func New(s *store.Store) *Session {
	return &Session{store: s}
}

// EnsureDeviceID returns the persisted device id, minting and persisting a
// fresh one on first use.
func (s *Session) EnsureDeviceID() (string, error) {
	if id, found := s.store.GetString(store.KeyDeviceID); found && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	if err := s.store.Set(store.KeyDeviceID, id); err != nil {
		return "", err
	}

	return id, nil
}

// DeviceID returns the stored device id, or ErrMissingIdentity when the
// device has never been registered. Alert flows abort on this before any
// network call.
func (s *Session) DeviceID() (string, error) {
	id, found := s.store.GetString(store.KeyDeviceID)
	if !found || id == "" {
		return "", ErrMissingIdentity
	}

	return id, nil
}

func (s *Session) SetTokens(accessToken, refreshToken string) error {
	if err := s.store.Set(store.KeyAccessToken, accessToken); err != nil {
		return err
	}

	return s.store.Set(store.KeyRefreshToken, refreshToken)
}

func (s *Session) AccessToken() (string, bool) {
	return s.store.GetString(store.KeyAccessToken)
}

func (s *Session) ClearTokens() error {
	return s.store.RemoveMany(store.KeyAccessToken, store.KeyRefreshToken)
}

// UserEmail reads the email claim off the stored access token. The token is
// only decoded here, signature verification is the backend's concern.
func (s *Session) UserEmail() (string, bool) {
	raw, found := s.AccessToken()
	if !found || raw == "" {
		return "", false
	}

	token, err := jwt.ParseString(raw)
	if err != nil {
		return "", false
	}

	if email, ok := token.PrivateClaims()["email"].(string); ok && email != "" {
		return email, true
	}

	return "", false
}
