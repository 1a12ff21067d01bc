// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/radarworks/upwork-radar/internal/analysis"
	"github.com/radarworks/upwork-radar/internal/api"
	"github.com/radarworks/upwork-radar/internal/browser"
	"github.com/radarworks/upwork-radar/internal/config"
	"github.com/radarworks/upwork-radar/internal/extract"
	"github.com/radarworks/upwork-radar/internal/fetcher"
	"github.com/radarworks/upwork-radar/internal/logging"
	"github.com/radarworks/upwork-radar/internal/metrics"
	"github.com/radarworks/upwork-radar/internal/orchestrator"
	"github.com/radarworks/upwork-radar/internal/scraper"
	"github.com/radarworks/upwork-radar/internal/session"
	"github.com/radarworks/upwork-radar/internal/store"
)

// App holds the shared, long-lived services for the radar service. It is
// built once at startup and torn down by Close.
type App struct {
	Logger       *zap.Logger
	Config       config.Config
	Store        store.Repository
	Session      *session.Controller
	Orchestrator *orchestrator.Orchestrator
	Server       *api.Server
}

// New builds the full service graph from configuration, failing fast when
// a critical dependency cannot be reached.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Info("initializing services")
	metrics.Init()

	repo, err := store.New(ctx, cfg.DB.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	factory := browser.NewFactory(browser.Config{
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.NavTimeout(),
	}, logger)

	sess := session.NewController(factory, logger, session.Options{
		NavTimeout:       cfg.NavTimeout(),
		ChallengeTimeout: cfg.ChallengeTimeout(),
		ScrollSettle:     cfg.ScrollSettle(),
	})

	extractor := extract.New(logger)
	httpFetcher := fetcher.New(fetcher.Config{
		UserAgent: cfg.Browser.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	engine := scraper.New(scraper.Config{
		MaxConcurrent: cfg.Scraper.MaxConcurrent,
		Delay:         cfg.FetchDelay(),
		MaxAttempts:   cfg.Scraper.MaxAttempts,
	}, httpFetcher, sess, logger)

	orch := orchestrator.New(sess, engine, extractor, repo, logger)
	analyzer := analysis.New(repo, logger)
	server := api.NewServer(orch, repo, analyzer, logger)

	logger.Info("services initialized")
	return &App{
		Logger:       logger,
		Config:       cfg,
		Store:        repo,
		Session:      sess,
		Orchestrator: orch,
		Server:       server,
	}, nil
}

// Run serves HTTP until the context is canceled, then shuts down
// gracefully within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

// Close tears the services down in dependency order.
func (a *App) Close() {
	a.Logger.Info("shutting down services")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Session.Stop(stopCtx)

	a.Store.Close()

	_ = a.Logger.Sync() //nolint:errcheck // best-effort flush
}
