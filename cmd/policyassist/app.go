package main

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tracing "github.com/policyassist/policyassist/internal/observability"
	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/batch"
	"github.com/policyassist/policyassist/pkg/config"
	"github.com/policyassist/policyassist/pkg/gateway"
	"github.com/policyassist/policyassist/pkg/observability"
	"github.com/policyassist/policyassist/pkg/portal"
	"github.com/policyassist/policyassist/pkg/session"
	"github.com/policyassist/policyassist/pkg/store"
	"go.uber.org/zap"
)

// app is the wiring shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	backend store.Backend
	session *session.Manager
	client  *api.Client
	portal  *portal.Portal

	unsubscribe func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := observability.NewLogger(cfg.Log)
	observability.InitMetrics()

	if err := tracing.Init(cfg.Tracing, logger); err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}

	backend, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	mgr := session.NewManager(ctx, backend, session.WithLogger(logger))

	client := newClient(cfg, logger, mgr)

	logger.Debug("client ready",
		zap.String("api", cfg.API.BaseURL),
		zap.String("store", cfg.Store.Backend),
		zap.String("namespace", cfg.Store.Namespace))

	return &app{
		cfg:         cfg,
		logger:      logger,
		backend:     backend,
		session:     mgr,
		client:      client,
		portal:      portal.New(client, mgr, logger),
		unsubscribe: logSessionChanges(mgr, logger),
	}, nil
}

// logSessionChanges records every sign-in and sign-out. The returned
// function stops it.
func logSessionChanges(mgr *session.Manager, logger *zap.Logger) func() {
	return mgr.Subscribe(func(snap session.Snapshot) {
		s := snap.Session
		if !s.IsAuthenticated() {
			logger.Info("signed out", zap.Uint64("version", snap.Version))
			return
		}
		logger.Info("signed in",
			zap.String("role", string(s.Role)),
			zap.String("tenant", s.TenantID),
			zap.String("token", s.MaskedToken()),
			zap.Uint64("version", snap.Version))
	})
}

// unauthorizedHint is printed after a command fails with HTTP 401.
const unauthorizedHint = "The server rejected the session. Run 'policyassist login' or 'policyassist verify' to sign in again."

// errorHint returns advice for err, or "".
func errorHint(err error) string {
	if gateway.StatusCode(err) == http.StatusUnauthorized {
		return unauthorizedHint
	}
	return ""
}

func newClient(cfg *config.Config, logger *zap.Logger, tokens gateway.TokenSource) *api.Client {
	opts := []gateway.Option{
		gateway.WithBaseURL(cfg.API.BaseURL),
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		gateway.WithTokenSource(tokens),
		gateway.WithLogger(logger),
	}
	if rl := rateLimiter(cfg.API); rl != nil {
		opts = append(opts, gateway.WithRateLimiter(rl))
	}
	return api.New(gateway.New(opts...))
}

// rateLimiter returns nil when no pacing is configured.
func rateLimiter(cfg config.APIConfig) *gateway.RateLimiter {
	if cfg.RateLimit <= 0 && len(cfg.RouteLimits) == 0 {
		return nil
	}
	rl := gateway.NewRateLimiter(cfg.RateLimit, cfg.Burst)
	for route, limit := range cfg.RouteLimits {
		rl.SetRouteLimit(route, limit.RateLimit, limit.Burst)
	}
	return rl
}

// storeClient reads the bearer token from the store on every request, so a
// long-running command follows logins made by other processes.
func (a *app) storeClient() *api.Client {
	return newClient(a.cfg, a.logger, store.TokenSource{Backend: a.backend})
}

func (a *app) batchOptions() []batch.Option {
	return []batch.Option{batch.WithMaxSize(a.cfg.Batch.MaxSize)}
}

func (a *app) close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.Shutdown(ctx); err != nil {
		a.logger.Warn("tracing shutdown failed", zap.Error(err))
	}
	if err := a.backend.Close(); err != nil {
		a.logger.Warn("store close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// readDocument loads path as an upload. The content type comes from the
// extension, else from the file's leading bytes.
func readDocument(path string) (api.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return api.Document{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}

func readDocuments(paths []string) ([]api.Document, error) {
	docs := make([]api.Document, 0, len(paths))
	for _, p := range paths {
		d, err := readDocument(p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}
