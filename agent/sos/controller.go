// Package sos runs the countdown-gated emergency dispatch. Whether the
// countdown expires on its own or a manual trigger beats it there, the alert
// fires exactly once; dismissing the screen before zero cancels it entirely.
package sos

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shieldx/companion/agent/backend"
	"github.com/shieldx/companion/agent/contacts"
	"github.com/shieldx/companion/agent/location"
	"github.com/shieldx/companion/agent/logger"
	"github.com/shieldx/companion/agent/session"
)

const DefaultCountdown = 5

var logg = logger.NewLogger()

// Player is the local siren. Playback is best effort, an alert that reached
// the backend is a success whether or not the siren sounds.
type Player interface {
	Play() error
	Stop()
}

type State int32

const (
	Armed State = iota
	Counting
	Fired
	Cancelled
)

func (s State) String() string {
	switch s {
	case Counting:
		return "counting"
	case Fired:
		return "fired"
	case Cancelled:
		return "cancelled"
	default:
		return "armed"
	}
}

type Controller struct {
	session  *session.Session
	contacts *contacts.Manager
	provider location.Provider
	backend  *backend.Client
	player   Player

	tickEvery time.Duration
	state     int32
	remaining int32

	stopTimer   chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
	dispatchErr error
}

func NewController(
	sess *session.Session,
	contactsManager *contacts.Manager,
	provider location.Provider,
	backendClient *backend.Client,
	player Player,
) *Controller {
	return &Controller{
		session:   sess,
		contacts:  contactsManager,
		provider:  provider,
		backend:   backendClient,
		player:    player,
		tickEvery: time.Second,
		remaining: DefaultCountdown,
		stopTimer: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (c *Controller) State() State {
	return State(atomic.LoadInt32(&c.state))
}

func (c *Controller) Remaining() int {
	return int(atomic.LoadInt32(&c.remaining))
}

// Activate starts the one-second countdown. Only the first activation of an
// armed controller does anything.
func (c *Controller) Activate() {
	if !atomic.CompareAndSwapInt32(&c.state, int32(Armed), int32(Counting)) {
		return
	}

	go c.countdown()
}

func (c *Controller) countdown() {
	ticker := time.NewTicker(c.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopTimer:
			return
		case <-ticker.C:
			if atomic.AddInt32(&c.remaining, -1) > 0 {
				continue
			}

			c.FireNow()
			return
		}
	}
}

// FireNow skips whatever is left of the countdown. The transition to Fired
// is a compare-and-set, so a manual trigger racing the final tick still
// dispatches exactly once; the loser is a no-op.
func (c *Controller) FireNow() {
	if !atomic.CompareAndSwapInt32(&c.state, int32(Counting), int32(Fired)) {
		return
	}

	c.stopTicking()
	c.dispatchErr = c.dispatch()
	close(c.done)
}

// Cancel tears the countdown down before it fires: the timer stops, any
// audio resource is released and no dispatch happens. Safe to call more
// than once, and a no-op once Fired.
func (c *Controller) Cancel() {
	if !atomic.CompareAndSwapInt32(&c.state, int32(Counting), int32(Cancelled)) &&
		!atomic.CompareAndSwapInt32(&c.state, int32(Armed), int32(Cancelled)) {
		return
	}

	c.stopTicking()
	if c.player != nil {
		c.player.Stop()
	}
	close(c.done)
}

// Done is closed once the controller is finished, either way.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// DispatchError reports how the dispatch went. Only meaningful after Done.
func (c *Controller) DispatchError() error {
	return c.dispatchErr
}

// dispatch runs the guarded alert chain. Identity, contact and location
// guards abort before any network call - no partial or placeholder dispatch.
// The backend call is a single attempt.
func (c *Controller) dispatch() error {
	userID, err := c.session.DeviceID()
	if err != nil {
		return err
	}

	phoneList, err := c.contacts.RequirePhoneList()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	coord, err := location.Current(ctx, c.provider)
	if err != nil {
		return err
	}

	err = c.backend.SendSOS(ctx, backend.SOSRequest{
		UserID:   userID,
		Lat:      coord.Lat,
		Lon:      coord.Lng,
		Contacts: phoneList,
	})
	if err != nil {
		return err
	}

	logg.Infof("SOS dispatched for %v contact(s)", len(phoneList))

	if c.player != nil {
		if err := c.player.Play(); err != nil {
			logg.Warnf("siren failed to play: %v", err)
		}
	}

	return nil
}

func (c *Controller) stopTicking() {
	c.stopOnce.Do(func() { close(c.stopTimer) })
}
