package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hairbuy/intake/internal/bot"
	"github.com/hairbuy/intake/internal/config"
	"github.com/hairbuy/intake/internal/db"
	"github.com/hairbuy/intake/internal/migrations"
	"github.com/hairbuy/intake/internal/observability"
	"github.com/hairbuy/intake/internal/pricing"
	"github.com/hairbuy/intake/internal/store"
	"github.com/hairbuy/intake/internal/telegram"
)

// priceRefresh is how often overrides saved through the admin API are picked up.
const priceRefresh = time.Minute

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

	if err := run(cfg, logger.Named("bot")); err != nil {
		logger.Fatal("bot stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if !cfg.Telegram.Enabled() {
		return errors.New("TELEGRAM_BOT_TOKEN is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if _, err := migrations.Up(ctx, database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	st := store.New(database)
	base, err := pricing.BaseTable(cfg.Pricing.TablePath, cfg.Pricing.Currency)
	if err != nil {
		return err
	}
	prices := pricing.NewProvider(base)
	if err := refreshPrices(ctx, st, base, prices); err != nil {
		logger.Warn("saved price overrides rejected; using base table", zap.Error(err))
	}
	go watchPrices(ctx, st, base, prices, logger)

	api := telegram.New(cfg.Telegram.Token, cfg.Telegram.APIBase, nil)
	b := bot.New(api, st, prices, logger, bot.Options{
		AdminChatIDs: cfg.Telegram.AdminChatIDs,
		PollTimeout:  cfg.Telegram.PollTimeout,
	})

	logger.Info("polling for updates", zap.Int("config_admins", len(cfg.Telegram.AdminChatIDs)))
	return b.Run(ctx)
}

func refreshPrices(ctx context.Context, st *store.Store, base *pricing.Table, prices *pricing.Provider) error {
	overrides, err := st.ListOverrides(ctx)
	if err != nil {
		return fmt.Errorf("load price overrides: %w", err)
	}
	table, err := base.WithOverrides(overrides)
	if err != nil {
		return fmt.Errorf("apply price overrides: %w", err)
	}
	prices.Swap(table)
	return nil
}

func watchPrices(ctx context.Context, st *store.Store, base *pricing.Table, prices *pricing.Provider, logger *zap.Logger) {
	ticker := time.NewTicker(priceRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := refreshPrices(ctx, st, base, prices); err != nil && ctx.Err() == nil {
				logger.Warn("price refresh failed", zap.Error(err))
			}
		}
	}
}
