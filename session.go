package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/devfolio-sync/internal/cache"
	"github.com/tonimelisma/devfolio-sync/internal/config"
	"github.com/tonimelisma/devfolio-sync/internal/connectivity"
	"github.com/tonimelisma/devfolio-sync/internal/metrics"
	"github.com/tonimelisma/devfolio-sync/internal/remote"
	"github.com/tonimelisma/devfolio-sync/internal/store"
	"github.com/tonimelisma/devfolio-sync/internal/syncer"
)

// errRemoteNotConfigured is returned by commands that need the remote when
// no base URL is set.
var errRemoteNotConfigured = errors.New("no remote configured: set [remote] base_url, DEVFOLIO_SYNC_REMOTE_URL or --remote")

// sessionOptions controls how openSession wires the stack.
type sessionOptions struct {
	// Probe checks the health endpoint once so the monitor starts with the
	// real connectivity state. Without it the monitor starts offline.
	Probe bool

	// OnStatus receives every synchronizer status change.
	OnStatus func(syncer.Status)
}

// Session holds the engine components for one command: the local store and
// queue, the connectivity monitor, the synchronizer with its engine facade,
// and the cache layer. Remote is nil when no base URL is configured.
type Session struct {
	Store   *store.Store
	Queue   *store.Queue
	Monitor *connectivity.Monitor
	Remote  *remote.Client
	Sync    *syncer.Synchronizer
	Engine  *syncer.Engine
	Cache   *cache.Cache

	token  oauth2.TokenSource
	cfg    *config.Resolved
	logger *slog.Logger
}

// openSession opens the offline store and assembles the stack from cfg.
func openSession(ctx context.Context, cfg *config.Resolved, opts sessionOptions, logger *slog.Logger) (*Session, error) {
	st := store.New(cfg.DBPath, logger)
	if err := st.Init(ctx); err != nil {
		return nil, fmt.Errorf("opening offline store %s: %w", cfg.DBPath, err)
	}

	sess := &Session{
		Store:  st,
		Queue:  store.NewQueue(st, logger),
		cfg:    cfg,
		logger: logger,
	}

	online := false

	if cfg.RemoteConfigured() {
		client, ts, err := newRemoteClient(ctx, cfg, logger)
		if err != nil {
			st.Close()
			return nil, err
		}

		sess.Remote = client
		sess.token = ts

		if opts.Probe {
			online = probeOnce(ctx, cfg, logger)
		}
	}

	sess.Monitor = connectivity.NewMonitor(online, logger)
	metrics.SetOnline(online)

	var rs syncer.RemoteStore = unconfiguredRemote{}
	if sess.Remote != nil {
		rs = sess.Remote
	}

	sess.Sync = syncer.New(syncer.Config{
		Queue:            sess.Queue,
		Remote:           rs,
		Connectivity:     sess.Monitor,
		Logger:           logger,
		OperationTimeout: cfg.Sync.OperationTimeout,
		AutoSync:         cfg.Sync.AutoSync,
		OnStatus:         opts.OnStatus,
	})

	sess.Engine = syncer.NewEngine(st, sess.Queue, sess.Sync, logger)
	sess.Cache = cache.New(st, sess.Monitor, cache.Config{
		Namespace:  cfg.Cache.Namespace,
		DefaultTTL: cfg.Cache.TTL,
	}, logger)

	return sess, nil
}

// Close stops automatic syncing and closes the store.
func (s *Session) Close() error {
	s.Sync.Stop()

	return s.Store.Close()
}

// requireRemote returns the remote client or errRemoteNotConfigured.
func (s *Session) requireRemote() (*remote.Client, error) {
	if s.Remote == nil {
		return nil, errRemoteNotConfigured
	}

	return s.Remote, nil
}

// authHeader returns the Authorization header for connections made outside
// the remote client, or nil when there is no token.
func (s *Session) authHeader() http.Header {
	if s.token == nil {
		return nil
	}

	tok, err := s.token.Token()
	if err != nil {
		s.logger.Warn("no token for socket connection", slog.String("error", err.Error()))
		return nil
	}

	h := http.Header{}
	h.Set("Authorization", tok.Type()+" "+tok.AccessToken)

	return h
}

// newRemoteClient loads the token file, if any, and creates the remote
// client. A missing token file means unauthenticated requests; the token
// source is nil then.
func newRemoteClient(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (*remote.Client, oauth2.TokenSource, error) {
	ts, err := remote.TokenSourceFromFile(ctx, cfg.Remote.TokenFile, logger)

	switch {
	case errors.Is(err, remote.ErrNotLoggedIn):
		logger.Debug("no token file, sending unauthenticated requests",
			slog.String("path", cfg.Remote.TokenFile),
		)

		ts = nil
	case err != nil:
		return nil, nil, fmt.Errorf("loading remote token: %w", err)
	}

	// Zero retries in the config file means none; the client reads zero as
	// "use the default".
	retries := cfg.Remote.MaxRetries
	if retries == 0 {
		retries = -1
	}

	ua := cfg.Remote.UserAgent
	if ua == "" {
		ua = "devfolio-sync/" + version
	}

	client := remote.NewClient(remote.Config{
		BaseURL:         cfg.Remote.BaseURL,
		HTTPClient:      &http.Client{Timeout: cfg.Remote.RequestTimeout},
		TokenSource:     ts,
		MaxRetries:      retries,
		RetryDelay:      cfg.Remote.RetryDelay,
		RateLimit:       cfg.Remote.RateLimit,
		BreakerFailures: uint32(cfg.Remote.BreakerFailures), //nolint:gosec // validated to 1..1000
		BreakerTimeout:  cfg.Remote.BreakerTimeout,
		UserAgent:       ua,
	}, logger)

	return client, ts, nil
}

// probeOnce reports the connectivity state at startup. Static mode trusts
// the configuration; the other modes ask the health endpoint.
func probeOnce(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) bool {
	if cfg.Connectivity.Mode == config.ModeStatic || cfg.Connectivity.HealthURL == "" {
		return true
	}

	p := connectivity.NewProber(nil, connectivity.ProberConfig{
		URL:     cfg.Connectivity.HealthURL,
		Timeout: cfg.Connectivity.ProbeTimeout,
	}, logger)

	online := p.Probe(ctx)
	logger.Debug("startup connectivity probe",
		slog.String("url", cfg.Connectivity.HealthURL),
		slog.Bool("online", online),
	)

	return online
}

// unconfiguredRemote stands in for the remote when no base URL is set. The
// monitor is offline in that case, so the synchronizer never calls it.
type unconfiguredRemote struct{}

func (unconfiguredRemote) CreateDocument(context.Context, string, store.Document) (store.Document, error) {
	return nil, errRemoteNotConfigured
}

func (unconfiguredRemote) UpdateDocument(context.Context, string, string, store.Document) (store.Document, error) {
	return nil, errRemoteNotConfigured
}

func (unconfiguredRemote) SetDocument(context.Context, string, string, store.Document) (store.Document, error) {
	return nil, errRemoteNotConfigured
}

func (unconfiguredRemote) DeleteDocument(context.Context, string, string) error {
	return errRemoteNotConfigured
}
