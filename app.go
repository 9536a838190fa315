package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"visitor-kiosk/config"
	"visitor-kiosk/realtime"
	"visitor-kiosk/services"
	"visitor-kiosk/storage"
	"visitor-kiosk/store"
)

// app holds what every command needs: config, logger, database.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	loc    *time.Location

	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Kiosk.Location()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, loc: loc}

	db, err := config.ConnectDatabase(cfg.DB, logger, cfg.Tracing.Enabled)
	if err != nil {
		return nil, fmt.Errorf("database connect failed: %w", err)
	}
	a.db = db
	a.onClose(func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return a, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close runs the registered closers in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// feed builds the change feed transport. Relay loops run until ctx ends.
func (a *app) feed(ctx context.Context) (realtime.FeedPublisher, error) {
	hub := realtime.NewHub(a.cfg.Feed.Buffer, a.logger.Named("hub"))
	a.onClose(hub.Close)

	switch a.cfg.Feed.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Feed.RedisAddr,
			Password: a.cfg.Feed.RedisPassword,
			DB:       a.cfg.Feed.RedisDB,
		})
		a.onClose(rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		bus := realtime.NewRedisBus(rdb, a.cfg.Feed.Channel, hub, a.logger.Named("redis-feed"))
		go func() {
			if err := bus.Run(ctx); err != nil {
				a.logger.Error("redis change feed stopped", zap.Error(err))
			}
		}()
		return bus, nil
	case "postgres":
		l := realtime.NewPGListener(a.cfg.DB.PostgresDSN(), hub, a.logger.Named("pg-feed"))
		go func() { _ = l.Run(ctx) }()
		return l, nil
	}
	return hub, nil
}

func (a *app) blobs(ctx context.Context) (storage.BlobStore, error) {
	if a.cfg.Blob.Backend == "gcs" {
		s, err := storage.NewGCSBlobStore(ctx, a.cfg.Blob.Bucket, a.cfg.Blob.CredentialsFile, a.cfg.Blob.BaseURL)
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		return s, nil
	}
	return storage.NewLocalBlobStore(a.cfg.Blob.Dir, a.cfg.Blob.BaseURL)
}

// recentCache opens the badger-backed cache. An empty path keeps it in
// memory only.
func (a *app) recentCache() (*services.RecentCache, error) {
	var persister services.RecentPersister
	if a.cfg.Kiosk.RecentPath != "" {
		bs, err := services.OpenBadgerRecentStore(a.cfg.Kiosk.RecentPath)
		if err != nil {
			return nil, fmt.Errorf("open recent store: %w", err)
		}
		a.onClose(bs.Close)
		persister = bs
	}
	return services.NewRecentCache(a.cfg.Kiosk.RecentCap, persister, a.logger.Named("recent")), nil
}

// registry is nil when metrics are disabled.
func (a *app) registry() *prometheus.Registry {
	if !a.cfg.Metrics.Enabled {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// store opens the record store without a change feed, for one-shot
// commands.
func (a *app) visitorStore() store.VisitorStore {
	return store.NewGormVisitorStore(a.db, realtime.NopPublisher{}, a.logger)
}

// bootstrap seeds the settings row and the default operator.
func (a *app) bootstrap(ctx context.Context, settings *services.SettingsService, ops *services.OperatorService) error {
	if err := settings.Seed(ctx, a.cfg.Kiosk.OrgName, a.cfg.Kiosk.SiteName); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	if err := ops.EnsureOperator(ctx, a.cfg.Auth.FullName, a.cfg.Auth.Username, a.cfg.Auth.Password); err != nil {
		return fmt.Errorf("seed operator: %w", err)
	}
	list, err := ops.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.logger.Warn("⚠️ no dashboard operator exists, set auth.password")
	}
	return nil
}
