package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/shieldx/companion/agent/logger"
)

var logg = logger.NewLogger()

// Sampler registers a long-lived periodic sampling job and rate-limits what
// it forwards. The provider may deliver fixes far more often than the
// reporting cadence, so each fix is checked against the sampler's own
// last-sent timestamp - which only advances on an actual forward. The
// timestamp lives on the sampler, not at package level, so concurrent
// sessions and tests never share hidden state.
type Sampler struct {
	provider  Provider
	scheduler *gocron.Scheduler
	tag       string
	now       func() time.Time

	mu       sync.Mutex
	interval time.Duration
	onSample func(Coordinate)
	lastSent time.Time
	running  bool
}

func NewSampler(provider Provider, scheduler *gocron.Scheduler) *Sampler {
	return &Sampler{
		provider:  provider,
		scheduler: scheduler,
		tag:       fmt.Sprintf("location_sampler_%v", uuid.NewString()),
		now:       time.Now,
	}
}

// Start registers the periodic sampling job. The job polls the provider a
// few times per reporting interval and lets the throttle decide which fixes
// actually reach onSample.
func (s *Sampler) Start(interval time.Duration, onSample func(Coordinate)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sampler already running")
	}

	s.interval = interval
	s.onSample = onSample
	s.lastSent = time.Time{}
	s.running = true

	_, err := s.scheduler.Every(pollInterval(interval)).Tag(s.tag).Do(s.poll)
	if err != nil {
		s.running = false
		return err
	}

	return nil
}

// Stop unregisters the sampling job. Safe to call when not running.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.scheduler.RemoveByTag(s.tag)
	s.running = false
	s.onSample = nil
}

func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Observe offers a fix to the throttle. It forwards the fix - the triggering
// one, not a cached copy - when at least one interval has passed since the
// last forward, and reports whether it did.
func (s *Sampler) Observe(coord Coordinate) bool {
	s.mu.Lock()

	if !s.running || s.now().Sub(s.lastSent) < s.interval {
		s.mu.Unlock()
		return false
	}

	s.lastSent = s.now()
	onSample := s.onSample
	s.mu.Unlock()

	if onSample != nil {
		onSample(coord)
	}

	return true
}

func (s *Sampler) poll() {
	coord, err := Current(context.Background(), s.provider)
	if err != nil {
		logg.Warnf("sampling skipped: %v", err)
		return
	}

	s.Observe(coord)
}

func pollInterval(interval time.Duration) time.Duration {
	poll := interval / 5
	if poll < time.Second {
		poll = time.Second
	}
	if poll > time.Minute {
		poll = time.Minute
	}

	return poll
}
