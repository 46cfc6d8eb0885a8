package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hairbuy/intake/internal/bot"
	"github.com/hairbuy/intake/internal/config"
	"github.com/hairbuy/intake/internal/db"
	"github.com/hairbuy/intake/internal/intake"
	"github.com/hairbuy/intake/internal/migrations"
	"github.com/hairbuy/intake/internal/notify"
	"github.com/hairbuy/intake/internal/observability"
	"github.com/hairbuy/intake/internal/photos"
	"github.com/hairbuy/intake/internal/pricing"
	"github.com/hairbuy/intake/internal/seed"
	"github.com/hairbuy/intake/internal/store"
	"github.com/hairbuy/intake/internal/telegram"
)

type eventQueue interface {
	Enqueue(ev notify.Event) bool
}

type server struct {
	auth          *authService
	store         *store.Store
	prices        *pricing.Provider
	pricesMu      sync.Mutex
	baseTable     *pricing.Table
	validator     *intake.Validator
	photos        *photos.Store
	events        eventQueue
	logger        *zap.Logger
	now           func() time.Time
	maxPhotoBytes int64
}

func main() {
	cfg := config.Load()

	logger, err := observability.NewLogger(observability.LoggerOptions{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Dev:        cfg.IsDev(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, w := range cfg.Warnings() {
		logger.Warn("configuration", zap.String("warning", w))
	}

	database, err := db.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	applied, err := migrations.Up(ctx, database)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Int64s("versions", applied))
	}

	stats, err := seed.Run(ctx, database, seed.Config{
		AdminEmail:      cfg.Admin.Email,
		AdminPassword:   cfg.Admin.Password,
		TelegramChatIDs: cfg.Telegram.AdminChatIDs,
	})
	if err != nil {
		return fmt.Errorf("seed database: %w", err)
	}
	logger.Info("seed finished", zap.Int("inserts", stats.Inserts), zap.Int("updates", stats.Updates))

	st := store.New(database)

	base, err := pricing.BaseTable(cfg.Pricing.TablePath, cfg.Pricing.Currency)
	if err != nil {
		return err
	}
	prices := livePrices(ctx, st, base, logger)

	photoStore, err := photos.New(cfg.Intake.PhotoDir, cfg.Intake.MaxPhotoBytes)
	if err != nil {
		return fmt.Errorf("prepare photo directory: %w", err)
	}

	dispatcher := notify.NewDispatcher(logger, notify.Options{
		Workers:    cfg.Notify.Workers,
		QueueSize:  cfg.Notify.QueueSize,
		MaxRetries: cfg.Notify.MaxRetries,
		Backoff:    cfg.Notify.Backoff,
	}, notifiers(cfg, st, photoStore, logger)...)
	// Workers outlive the signal so accepted applications are still announced;
	// the drain is bounded by the shutdown timeout.
	dispatcher.Start(ctx)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := dispatcher.Shutdown(drainCtx); err != nil {
			logger.Warn("notification queue not drained", zap.Error(err))
		}
	}()

	secret := cfg.Admin.SessionSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("using a random session secret; admin sessions end on restart")
	}

	srv := &server{
		auth:          newAuthService(st, secret, !cfg.IsDev()),
		store:         st,
		prices:        prices,
		baseTable:     base,
		validator:     intake.NewValidator(cfg.Intake.MaxPhotoBytes),
		photos:        photoStore,
		events:        dispatcher,
		logger:        logger,
		now:           time.Now,
		maxPhotoBytes: cfg.Intake.MaxPhotoBytes,
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", httpServer.Addr), zap.String("env", cfg.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(s.logger))
	r.Use(observability.Metrics)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/prices", s.handlePrices)
		r.Post("/calculator", s.handleCalculator)
		r.Post("/applications", s.handleCreateApplication)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Route("/api", func(r chi.Router) {
			r.Use(s.auth.requireAdmin)

			r.Get("/applications", s.handleListApplications)
			r.Get("/applications/{id}", s.handleGetApplication)
			r.Patch("/applications/{id}", s.handleUpdateApplication)

			r.Get("/stats", s.handleStats)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/trend", s.handleTrend)

			r.Get("/export/applications.csv", s.handleExportCSV)
			r.Get("/export/applications.xlsx", s.handleExportXLSX)
			r.Get("/export/prices.xlsx", s.handleExportPrices)

			r.Get("/prices", s.handleAdminPrices)
			r.Put("/prices/overrides", s.handlePutOverride)
			r.Delete("/prices/overrides/{length}/{color}", s.handleDeleteOverride)

			r.Get("/photos/*", s.handlePhoto)
		})
	})

	return r
}

// livePrices applies the saved overrides to base. A saved set that no longer
// yields a valid table is logged and ignored so the service still starts.
func livePrices(ctx context.Context, st *store.Store, base *pricing.Table, logger *zap.Logger) *pricing.Provider {
	overrides, err := st.ListOverrides(ctx)
	if err != nil {
		logger.Warn("price overrides not loaded; using base table", zap.Error(err))
		return pricing.NewProvider(base)
	}
	table, err := base.WithOverrides(overrides)
	if err != nil {
		logger.Warn("saved price overrides rejected; using base table",
			zap.Int("overrides", len(overrides)),
			zap.Error(err),
		)
		return pricing.NewProvider(base)
	}
	return pricing.NewProvider(table)
}

func notifiers(cfg config.Config, st *store.Store, photoStore *photos.Store, logger *zap.Logger) []notify.Notifier {
	var out []notify.Notifier
	if cfg.SMTP.Enabled() {
		out = append(out, notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			To:       cfg.SMTP.To,
		}))
	}
	if cfg.Telegram.Enabled() {
		api := telegram.New(cfg.Telegram.Token, cfg.Telegram.APIBase, nil)
		out = append(out, bot.NewNotifier(api, st, photoStore, cfg.Telegram.AdminChatIDs, logger.Named("telegram")))
	}
	if len(out) == 0 {
		logger.Warn("no notification channel configured; new applications are only stored")
	}
	return out
}
