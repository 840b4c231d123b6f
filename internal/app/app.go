// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/task-garden/internal/config"
	"github.com/bissquit/task-garden/internal/identity"
	"github.com/bissquit/task-garden/internal/notifications"
	"github.com/bissquit/task-garden/internal/notifications/telegram"
	"github.com/bissquit/task-garden/internal/pkg/ctxlog"
	"github.com/bissquit/task-garden/internal/pkg/httputil"
	"github.com/bissquit/task-garden/internal/pkg/metrics"
	"github.com/bissquit/task-garden/internal/pkg/postgres"
	"github.com/bissquit/task-garden/internal/tasks"
	taskspostgres "github.com/bissquit/task-garden/internal/tasks/postgres"
	"github.com/bissquit/task-garden/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	dbMetricsInterval   = 15 * time.Second
	startupProbeTimeout = 15 * time.Second
	requestTimeout      = 60 * time.Second
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	lifecycleCtx  context.Context
	cancel        context.CancelFunc
	dispatcher    *notifications.Dispatcher
	poller        *notifications.ReminderPoller
	authenticator *identity.Authenticator
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate("file://"+cfg.Database.MigrationsPath, cfg.Database.URL); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	lifecycleCtx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))

	app := &App{
		config:       cfg,
		logger:       logger,
		db:           db,
		lifecycleCtx: lifecycleCtx,
		cancel:       cancel,
		authenticator: identity.NewAuthenticator(identity.Config{
			SecretKey:     cfg.JWT.SecretKey,
			Issuer:        cfg.JWT.Issuer,
			TokenDuration: cfg.JWT.TokenDuration,
		}),
	}

	go metrics.CollectDBPoolMetrics(lifecycleCtx, db, dbMetricsInterval)

	router, err := app.setupRouter()
	if err != nil {
		cancel()
		db.Close()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	app.startReminders()

	return app, nil
}

// Run starts the HTTP servers and blocks until the main server stops.
func (a *App) Run() error {
	if a.config.Server.MetricsPort != "" {
		go func() {
			a.logger.Info("starting metrics server",
				"host", a.config.Server.Host,
				"port", a.config.Server.MetricsPort,
			)
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server error", "error", err)
			}
		}()
	}

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops the reminder poller, drains both servers and closes the pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.poller.Stop()
	a.cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for name, srv := range map[string]*http.Server{"server": a.server, "metrics server": a.metricsServer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Authenticator returns the bearer token authenticator.
func (a *App) Authenticator() *identity.Authenticator {
	return a.authenticator
}

// Poller returns the reminder poller.
func (a *App) Poller() *notifications.ReminderPoller {
	return a.poller
}

func (a *App) setupRouter() (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.Server.CORSAllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	telegramCfg := a.config.Telegram
	transportConfig := notifications.NewTransportConfig(telegramCfg.BotToken, telegramCfg.ChatID)
	if !transportConfig.Configured {
		a.logger.Warn("telegram notifications disabled", "reason", transportConfig.Error)
	}

	client := telegram.NewClient(telegram.Config{
		BotToken:  transportConfig.BotToken,
		APIURL:    telegramCfg.APIURL,
		Timeout:   telegramCfg.Timeout,
		RateLimit: telegramCfg.RateLimit,
	})

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create notification renderer: %w", err)
	}

	a.dispatcher = notifications.NewDispatcher(transportConfig, client, renderer,
		notifications.WithDispatcherLogger(a.logger),
	)

	tasksRepo := taskspostgres.NewRepository(a.db)

	a.poller = notifications.NewReminderPoller(notifications.PollerConfig{
		Interval:    a.config.Reminders.Interval,
		Checkpoints: a.config.Reminders.Checkpoints,
	}, tasksRepo, a.dispatcher, notifications.WithPollerLogger(a.logger))

	tasksService := tasks.NewService(tasksRepo, a.dispatcher, tasks.Config{
		DeleteMessageOnTaskDelete: a.config.Tasks.DeleteMessageOnTaskDelete,
	}, a.logger)
	tasksHandler := tasks.NewHandler(tasksService)
	notificationsHandler := notifications.NewHandler(a.lifecycleCtx, a.dispatcher, a.poller)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(a.authenticator))

		tasksHandler.RegisterRoutes(r)
		notificationsHandler.RegisterRoutes(r)
	})

	return r, nil
}

// startReminders starts the poller when auto start is enabled and the
// bot credential is accepted by Telegram.
func (a *App) startReminders() {
	if !a.config.Reminders.AutoStart {
		return
	}
	if !a.dispatcher.IsConfigured() {
		a.logger.Info("reminder poller not started", "reason", a.dispatcher.ConfigError())
		return
	}

	ctx, cancel := context.WithTimeout(a.lifecycleCtx, startupProbeTimeout)
	defer cancel()

	result := a.dispatcher.TestConnection(ctx)
	if !result.OK {
		a.logger.Warn("reminder poller not started, telegram connection test failed",
			"error", result.Error,
			"category", result.Category,
		)
		return
	}

	a.logger.Info("telegram connection verified", "bot", result.Username)
	a.poller.Start(a.lifecycleCtx)
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
