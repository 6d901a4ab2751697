// Package agent wires the companion's pieces together and runs the
// long-lived device daemon: push webhook, tracking scheduler and the
// scheduled state backup.
package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/shieldx/companion/agent/backend"
	"github.com/shieldx/companion/agent/contacts"
	"github.com/shieldx/companion/agent/gstorage"
	"github.com/shieldx/companion/agent/journey"
	"github.com/shieldx/companion/agent/location"
	"github.com/shieldx/companion/agent/logger"
	"github.com/shieldx/companion/agent/notifier"
	"github.com/shieldx/companion/agent/push"
	"github.com/shieldx/companion/agent/routing"
	"github.com/shieldx/companion/agent/security"
	"github.com/shieldx/companion/agent/session"
	"github.com/shieldx/companion/agent/sos"
	"github.com/shieldx/companion/agent/store"
	"github.com/shieldx/companion/shared"
)

const defaultReportIntervalMinutes = 5

var logg = logger.NewLogger()

type App struct {
	Config    shared.AgentConfig
	Store     *store.Store
	Contacts  *contacts.Manager
	Session   *session.Session
	Backend   *backend.Client
	Tracker   *journey.Tracker
	Responder *security.Responder
	Listener  *push.Listener
	Notifier  *notifier.SMSNotifier

	provider  location.Provider
	player    sos.Player
	scheduler *gocron.Scheduler
	backup    *gstorage.GStorage
}

// New builds the full application graph. provider and player are the
// platform location and audio facilities; tests pass fakes.
func New(config shared.AgentConfig, rootDir string, provider location.Provider, player sos.Player, testMode bool) (*App, error) {
	passPhrase := config.Sqlite.PassPhrase
	if passPhrase == "" {
		derived, err := store.DerivePassPhrase(config.Device.Secret)
		if err != nil {
			return nil, err
		}
		passPhrase = derived
	}

	stateStore, err := store.Open(passPhrase, rootDir)
	if err != nil {
		return nil, err
	}

	scheduler := gocron.NewScheduler(timeZone(config.Tracking.TimeZone))
	scheduler.TagsUnique()

	sess := session.New(stateStore)
	contactsManager := contacts.NewManager(stateStore)

	backendClient := backend.NewClient(config.Backend.URL)
	if token, found := sess.AccessToken(); found {
		backendClient.SetBearerToken(token)
	}

	routingClient := newRoutingClient(config)
	sampler := location.NewSampler(provider, scheduler)

	tracker := journey.NewTracker(
		stateStore,
		contactsManager,
		sess,
		backendClient,
		routingClient,
		sampler,
		reportInterval(config),
	)

	responder := security.NewResponder(contactsManager, backendClient, sess)
	listener := push.NewListener(config.Listener.Port, responder, backendClient, stateStore)
	smsNotifier := notifier.NewSMSNotifier(config.Twilio, testMode)

	app := &App{
		Config:    config,
		Store:     stateStore,
		Contacts:  contactsManager,
		Session:   sess,
		Backend:   backendClient,
		Tracker:   tracker,
		Responder: responder,
		Listener:  listener,
		Notifier:  smsNotifier,
		provider:  provider,
		player:    player,
		scheduler: scheduler,
	}

	if err := app.setupStateBackup(); err != nil {
		return nil, err
	}

	return app, nil
}

// Run starts the scheduler and the push listener, resumes any persisted
// journey, and blocks until an interrupt triggers a graceful shutdown.
func (a *App) Run() error {
	if _, err := a.Session.EnsureDeviceID(); err != nil {
		return err
	}

	a.StartScheduler()

	if err := a.Tracker.Resume(); err != nil {
		logg.Errorf("could not resume tracking: %v", err)
	}

	errChan := make(chan error, 1)
	go func() { errChan <- a.Listener.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logg.Infof("received %v, shutting down", sig)
	}

	return a.cleanup()
}

// BackupNow uploads a state snapshot immediately, outside the schedule.
func (a *App) BackupNow() error {
	if a.backup == nil {
		return fmt.Errorf("state backup is not configured")
	}

	return a.backup.UploadStateSnapshot(a.Store.FilePath())
}

// RestoreBackup downloads the latest state snapshot to destPath. The live db
// is never overwritten here; swapping the file in is left to the operator
// with the agent stopped.
func (a *App) RestoreBackup(destPath string) error {
	if a.backup == nil {
		return fmt.Errorf("state backup is not configured")
	}

	return a.backup.DownloadStateSnapshot(store.DB_NAME, destPath)
}

// StartScheduler kicks off the background job runner. Already-running is a
// no-op, so commands that track in the foreground can call it freely.
func (a *App) StartScheduler() {
	if a.scheduler.IsRunning() {
		return
	}

	a.scheduler.StartAsync()
}

// NewSOSController arms a fresh countdown controller over the app's wiring.
func (a *App) NewSOSController() *sos.Controller {
	return sos.NewController(a.Session, a.Contacts, a.provider, a.Backend, a.player)
}

// ShareLocation sends a one-off manual location share, optionally flagged as
// an emergency.
func (a *App) ShareLocation(ctx context.Context, isEmergency bool) error {
	userID, err := a.Session.DeviceID()
	if err != nil {
		return err
	}

	phoneList, err := a.Contacts.RequirePhoneList()
	if err != nil {
		return err
	}

	coord, err := location.Current(ctx, a.provider)
	if err != nil {
		return err
	}

	return a.Backend.ShareLocation(ctx, backend.ShareLocationRequest{
		UserID:            userID,
		Lat:               coord.Lat,
		Lng:               coord.Lng,
		EmergencyContacts: phoneList,
		IsEmergency:       isEmergency,
	})
}

func (a *App) cleanup() error {
	// Stop feeding samples before the listener goes away; persisted journey
	// state stays put so tracking resumes on the next start.
	a.scheduler.Stop()

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Listener.Shutdown(ctxShutDown); err != nil {
		return fmt.Errorf("push listener shutdown failed: %v", err)
	}

	logg.Infof("companion agent stopped properly")
	return nil
}

func (a *App) setupStateBackup() error {
	cfg := a.Config.Google.Storage
	if !boolValue(cfg.EnableStateBackup) {
		return nil
	}

	if cfg.Bucket == "" || cfg.StateBackupSchedule == "" {
		return fmt.Errorf("state backup is enabled but google.storage.bucket and google.storage.stateBackupSchedule are not both set")
	}

	backup, err := gstorage.NewGStorage(a.Config.Google.ApplicationCredentials, cfg.Bucket, cfg.Prefix)
	if err != nil {
		return err
	}
	a.backup = backup

	_, err = a.scheduler.Cron(cfg.StateBackupSchedule).Tag("state_backup").Do(func() {
		if err := a.backup.UploadStateSnapshot(a.Store.FilePath()); err != nil {
			logg.Errorf("state backup failed: %v", err)
			return
		}
		logg.Infof("state snapshot uploaded")
	})

	return err
}

func newRoutingClient(config shared.AgentConfig) *routing.Client {
	return routing.NewClient(config.Maps.APIKey)
}

func reportInterval(config shared.AgentConfig) time.Duration {
	minutes := config.Tracking.ReportIntervalMinutes
	if minutes <= 0 {
		minutes = defaultReportIntervalMinutes
	}

	return time.Duration(minutes) * time.Minute
}

func timeZone(name string) *time.Location {
	if name == "" {
		return time.UTC
	}

	tz, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}

	return tz
}

func boolValue(v interface{}) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		return value == "true"
	default:
		return false
	}
}
