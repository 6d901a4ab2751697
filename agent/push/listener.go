// Package push is the agent's inbound door for push notifications. The
// platform notification service is an external collaborator; it delivers
// payloads to this local webhook whether the app was foregrounded or the
// agent just came up cold, and both paths reach the same handlers.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shieldx/companion/agent/backend"
	"github.com/shieldx/companion/agent/logger"
	"github.com/shieldx/companion/agent/security"
	"github.com/shieldx/companion/agent/store"
	"github.com/shieldx/companion/colors"
)

const securityCheckType = "security_check"

var logg = logger.NewLogger()

type ResponsePayload struct {
	Errors  []string    `json:"errors,omitempty"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// Payload mirrors the data block of a delivered notification.
type Payload struct {
	Type      string `json:"type"`
	UserEmail string `json:"user_email"`
}

type notificationBody struct {
	Payload
	// Some deliveries nest the payload under "data".
	Data *Payload `json:"data"`
}

type Listener struct {
	responder *security.Responder
	backend   *backend.Client
	store     *store.Store
	server    *http.Server
}

func NewListener(port int, responder *security.Responder, backendClient *backend.Client, s *store.Store) *Listener {
	listener := &Listener{responder: responder, backend: backendClient, store: s}

	router := mux.NewRouter()
	router.Use(loggingMiddleware)
	router.HandleFunc("/notification", listener.handleNotification).Methods("POST")
	router.HandleFunc("/register-token", listener.handleRegisterToken).Methods("POST")

	listener.server = &http.Server{
		Addr:         fmt.Sprintf(":%v", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return listener
}

// Start blocks serving the webhook until Shutdown.
func (l *Listener) Start() error {
	logg.Infof("push listener on %v", l.server.Addr)

	err := l.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (l *Listener) Shutdown(ctx context.Context) error {
	return l.server.Shutdown(ctx)
}

// Handler exposes the router, used by tests.
func (l *Listener) Handler() http.Handler {
	return l.server.Handler
}

func (l *Listener) handleNotification(rw http.ResponseWriter, r *http.Request) {
	body := notificationBody{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	payload := body.Payload
	if body.Data != nil {
		payload = *body.Data
	}

	if payload.Type != securityCheckType {
		// Not ours to act on; acknowledge so the collaborator stops retrying.
		writeResponse(rw, ResponsePayload{Success: true}, http.StatusOK)
		return
	}

	l.responder.Present(security.Challenge{UserEmail: payload.UserEmail})
	writeResponse(rw, ResponsePayload{Success: true}, http.StatusOK)
}

func (l *Listener) handleRegisterToken(rw http.ResponseWriter, r *http.Request) {
	body := backend.RegisterTokenRequest{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	if body.Token == "" {
		writeResponse(rw, ResponsePayload{Errors: []string{"token is required"}}, http.StatusBadRequest)
		return
	}
	if body.Type == "" {
		body.Type = "expo"
	}

	if err := l.store.Set(store.KeyPushToken, body.Token); err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	if err := l.backend.RegisterPushToken(r.Context(), body); err != nil {
		writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, http.StatusBadGateway)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true}, http.StatusOK)
}

func writeResponse(rw http.ResponseWriter, payLoad ResponsePayload, statusCode int) {
	if statusCode >= http.StatusInternalServerError {
		logg.Error(payLoad.Errors)
	} else if statusCode >= http.StatusBadRequest {
		logg.Info(payLoad.Errors)
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(payLoad)
}

type responseWriterWithStatus struct {
	http.ResponseWriter
	Status int
}

func (r *responseWriterWithStatus) WriteHeader(status int) {
	r.Status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		responseWriter := &responseWriterWithStatus{ResponseWriter: w, Status: 200}

		defer func() {
			responseStatus := colors.Green(responseWriter.Status)
			if responseWriter.Status >= 400 {
				responseStatus = colors.Red(responseWriter.Status)
			}

			logg.Infof("%v %v %v %v",
				r.Method,
				r.RequestURI,
				responseStatus,
				colors.Yellow(fmt.Sprintf("[%v]", time.Since(start))))
		}()

		next.ServeHTTP(responseWriter, r)
	})
}
