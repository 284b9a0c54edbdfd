// Package beacon is a client-side telemetry pipeline for news and media
// apps: it turns typed tracking calls into canonical events, spools them
// durably against network and process failure, and delivers them to a
// collection endpoint in batches with bounded retry.
//
// A Pipeline is an explicit handle created once per process and threaded to
// call sites; there is no package-level singleton. Tracking calls never
// block and never return errors: delivery problems are absorbed by the
// offline spool and surface only in logs.
package beacon

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/newsroomkit/beacon-go/internal/composer"
	"github.com/newsroomkit/beacon-go/internal/dispatch"
	"github.com/newsroomkit/beacon-go/internal/heartbeat"
	"github.com/newsroomkit/beacon-go/internal/identity"
	"github.com/newsroomkit/beacon-go/internal/offline"
	"github.com/newsroomkit/beacon-go/internal/sched"
	"github.com/newsroomkit/beacon-go/pkg/event"
	"github.com/newsroomkit/beacon-go/pkg/logger"
	"github.com/newsroomkit/beacon-go/pkg/storage"
	"github.com/newsroomkit/beacon-go/pkg/transport"
)

// Version is reported in the transport User-Agent.
const Version = "1.2.0"

// secureService namespaces keychain entries.
const secureService = "beacon"

// cleanupInterval is the cadence of the retention sweep; retention windows
// are whole days, so an hourly pass is more than enough.
const cleanupInterval = time.Hour

// Types callers need from the tracking surface.
type (
	// VideoInfo identifies the media a video event refers to.
	VideoInfo = composer.VideoInfo
	// Conversion describes a completed goal.
	Conversion = composer.Conversion
	// Article is editorial metadata stamped on a screen view.
	Article = composer.Article
	// DeviceInfo is the host-supplied device context.
	DeviceInfo = event.DeviceInfo
)

// Option overrides a default collaborator, mostly for tests and unusual
// host environments.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	transport transport.Transport
	store     storage.Store
	secure    storage.SecureStore
	clk       clock.Clock
}

// WithLogger supplies the logger instead of the DebugLogging-driven default.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithTransport replaces the HTTP transport.
func WithTransport(tr transport.Transport) Option {
	return func(o *options) { o.transport = tr }
}

// WithStorage replaces the file-backed spool storage.
func WithStorage(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// WithSecureStore replaces the keychain-or-encrypted-file identity store.
func WithSecureStore(secure storage.SecureStore) Option {
	return func(o *options) { o.secure = secure }
}

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clk = clk }
}

// Pipeline is the telemetry handle. Create with New, arm with Start, and
// Close on shutdown so buffered events get a final delivery attempt.
type Pipeline struct {
	cfg    Config
	log    *zap.Logger
	clk    clock.Clock
	runner *sched.Runner

	ids        *identity.Manager
	spool      *offline.Spool
	dispatcher *dispatch.Dispatcher
	beats      *heartbeat.Generator
	comp       *composer.Composer

	ownsLogger bool
}

// New wires the pipeline. Collaborators not overridden by options are
// built from the config: file spool storage under SpoolDir, the system
// keychain (or an encrypted file store) for identity, and the HTTP
// transport against Endpoint.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("beacon: invalid config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	ownsLogger := false
	if log == nil {
		built, err := logger.New(cfg.DebugLogging)
		if err != nil {
			return nil, fmt.Errorf("beacon: build logger: %w", err)
		}
		log = built
		ownsLogger = true
	}

	clk := o.clk
	if clk == nil {
		clk = clock.New()
	}

	store := o.store
	if store == nil {
		fileStore, err := storage.NewFile(cfg.SpoolDir)
		if err != nil {
			return nil, fmt.Errorf("beacon: open spool storage: %w", err)
		}
		store = fileStore
	}

	secure := o.secure
	if secure == nil {
		var err error
		secure, err = defaultSecureStore(cfg.SpoolDir)
		if err != nil {
			return nil, fmt.Errorf("beacon: open secure store: %w", err)
		}
	}

	tr := o.transport
	if tr == nil {
		httpTr, err := transport.NewHTTP(transport.HTTPConfig{
			Endpoint:  cfg.Endpoint,
			SiteKey:   cfg.SiteKey,
			UserAgent: fmt.Sprintf("beacon-go/%s", Version),
		})
		if err != nil {
			return nil, fmt.Errorf("beacon: build transport: %w", err)
		}
		tr = httpTr
	}

	runner := sched.NewRunner(clk)
	ids := identity.NewManager(secure, clk, cfg.SessionTimeout, logger.WithComponent(log, "identity"))
	spool := offline.NewSpool(store, clk, cfg.MaxOfflineEvents, logger.WithComponent(log, "spool"))
	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		MaxRetries:    cfg.MaxRetryCount,
	}, tr, spool, runner, logger.WithComponent(log, "dispatch"))
	comp := composer.New(cfg.SiteID, cfg.Device, ids, dispatcher, clk, logger.WithComponent(log, "composer"))
	beats := heartbeat.NewGenerator(heartbeat.Config{
		BaseInterval:        cfg.HeartbeatInterval,
		MaxInterval:         cfg.MaxHeartbeatInterval,
		InactivityThreshold: cfg.InactivityThreshold,
	}, clk, runner, comp.TrackHeartbeat, logger.WithComponent(log, "heartbeat"))

	return &Pipeline{
		cfg:        cfg,
		log:        log,
		clk:        clk,
		runner:     runner,
		ids:        ids,
		spool:      spool,
		dispatcher: dispatcher,
		beats:      beats,
		comp:       comp,
		ownsLogger: ownsLogger,
	}, nil
}

func defaultSecureStore(dir string) (storage.SecureStore, error) {
	if storage.KeyringAvailable() {
		return storage.NewKeyring(secureService), nil
	}
	return storage.NewSecureFile(filepath.Join(dir, "secure"))
}

// Start runs the startup retention sweep and arms the background tasks:
// flush timer, heartbeat schedule, and the hourly cleanup.
func (p *Pipeline) Start() {
	p.spool.Cleanup(p.cfg.retention())
	p.dispatcher.Start()
	p.beats.Start()
	p.runner.Every(cleanupInterval, func() {
		p.spool.Cleanup(p.cfg.retention())
	})
	p.log.Info("beacon pipeline started",
		zap.String("site_id", p.cfg.SiteID),
		zap.Int("spooled", p.spool.Len()))
}

// Close stops all background work, waits for an in-flight send to finish,
// and makes a final delivery attempt for everything still buffered.
func (p *Pipeline) Close() error {
	p.beats.Pause()
	p.dispatcher.Stop()
	p.runner.Shutdown()
	if p.ownsLogger {
		// Sync can legitimately fail on console outputs; nothing to do.
		_ = p.log.Sync()
	}
	return nil
}

// Pause freezes the heartbeat when the app leaves the foreground and kicks
// off a flush so the backend sees the session up to this point.
func (p *Pipeline) Pause() {
	p.beats.Pause()
	go p.dispatcher.Flush()
}

// Resume continues the heartbeat after Pause; counters are preserved.
func (p *Pipeline) Resume() {
	p.beats.Resume()
}

// Flush sends everything buffered and spooled right now. Safe to call from
// any goroutine; concurrent flushes serialize.
func (p *Pipeline) Flush() {
	p.dispatcher.Flush()
}

// OnNetworkAvailable nudges delivery of spooled events after a
// connectivity gap, without waiting for the next timer tick.
func (p *Pipeline) OnNetworkAvailable() {
	go p.dispatcher.RetryOfflineEvents()
}

// ForceNewSession rotates the session id immediately, e.g. on app relaunch,
// and restarts the heartbeat counters for the new session.
func (p *Pipeline) ForceNewSession() {
	p.ids.ForceNewSession()
	p.beats.ResetSession()
}

// RecordInteraction marks the reader active: the session stays alive and
// the heartbeat interval snaps back to base.
func (p *Pipeline) RecordInteraction() {
	p.ids.RecordActivity()
	p.beats.RecordInteraction()
}

// PendingEvents reports how many events wait in the offline spool.
func (p *Pipeline) PendingEvents() int {
	return p.spool.Len()
}

// Tracking surface. Every call composes the event with identity and state
// snapshotted at this instant and hands it to the dispatcher.

func (p *Pipeline) TrackScreenView(pageURL, pageTitle string) {
	p.comp.TrackScreenView(pageURL, pageTitle)
}

func (p *Pipeline) TrackArticleView(pageURL, pageTitle string, article Article) {
	p.comp.TrackArticleView(pageURL, pageTitle, article)
}

func (p *Pipeline) TrackVideoImpression(v VideoInfo) { p.comp.TrackVideoImpression(v) }
func (p *Pipeline) TrackVideoPlay(v VideoInfo)       { p.comp.TrackVideoPlay(v) }
func (p *Pipeline) TrackVideoProgress(v VideoInfo)   { p.comp.TrackVideoProgress(v) }
func (p *Pipeline) TrackVideoPause(v VideoInfo)      { p.comp.TrackVideoPause(v) }
func (p *Pipeline) TrackVideoComplete(v VideoInfo)   { p.comp.TrackVideoComplete(v) }

func (p *Pipeline) TrackPushReceived(data map[string]any) { p.comp.TrackPushReceived(data) }
func (p *Pipeline) TrackPushOpened(data map[string]any)   { p.comp.TrackPushOpened(data) }

func (p *Pipeline) TrackConversion(conv Conversion) { p.comp.TrackConversion(conv) }

func (p *Pipeline) TrackCustom(name string, data map[string]any) {
	p.comp.TrackCustom(name, data)
}

// RecordScrollDepth feeds the deepest scroll position observed on the
// current screen; the value rides on the next screen_exit.
func (p *Pipeline) RecordScrollDepth(depth int) {
	p.comp.RecordScrollDepth(depth)
}

// SetAttributionFromURL extracts utm_* parameters from a deep link.
func (p *Pipeline) SetAttributionFromURL(raw string) {
	p.comp.SetAttributionFromURL(raw)
}

func (p *Pipeline) SetReferrer(referrer string) { p.comp.SetReferrer(referrer) }
func (p *Pipeline) SetLoggedIn(loggedIn bool)   { p.comp.SetLoggedIn(loggedIn) }
func (p *Pipeline) SetUserType(userType string) { p.comp.SetUserType(userType) }

func (p *Pipeline) SetUserSegments(segments []string) {
	p.comp.SetUserSegments(segments)
}
