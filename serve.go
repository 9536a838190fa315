package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"visitor-kiosk/config"
	"visitor-kiosk/controllers"
	"visitor-kiosk/routes"
	"visitor-kiosk/services"
	"visitor-kiosk/store"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the kiosk and dashboard HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context())
		},
	}
}

func serveRun(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, logger := a.cfg, a.logger

	shutdownTracing, err := config.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	a.onClose(func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(sctx)
	})

	if err := config.Migrate(ctx, a.db, cfg.DB.Driver); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("✅ database ready", zap.String("driver", cfg.DB.Driver))

	settings := services.NewSettingsService(a.db, logger.Named("settings"))
	operators := services.NewOperatorService(a.db, logger.Named("operators"))
	if err := a.bootstrap(ctx, settings, operators); err != nil {
		return err
	}

	feed, err := a.feed(ctx)
	if err != nil {
		return err
	}
	blobs, err := a.blobs(ctx)
	if err != nil {
		return err
	}
	recent, err := a.recentCache()
	if err != nil {
		return err
	}
	reg := a.registry()

	st := store.NewGormVisitorStore(a.db, feed, logger.Named("store"))
	kiosk := controllers.NewKioskChannel(logger.Named("kiosk"))

	opts := []services.VisitorOption{
		services.WithRecentCache(recent),
		services.WithPrintNotifier(kiosk),
		services.WithLogger(logger.Named("visitors")),
	}
	deps := routes.Deps{
		Logger:      logger,
		CORSOrigins: cfg.Server.CORSOrigins,
		ServiceName: cfg.Tracing.ServiceName,
		Tracing:     cfg.Tracing.Enabled,
	}
	if reg != nil {
		opts = append(opts, services.WithMetrics(reg))
		deps.Gatherer = reg
		deps.Registerer = reg
	}
	if cfg.Blob.Backend == "local" {
		deps.PhotosURL, deps.PhotosDir = cfg.Blob.BaseURL, cfg.Blob.Dir
	}

	visitors := services.NewVisitorService(st, blobs, settings, opts...)
	exports := services.NewExportService(st, a.loc, logger.Named("export")).WithLang(cfg.Kiosk.Lang)

	deps.Visitors = controllers.NewVisitorController(visitors, exports, st, a.loc, cfg.Kiosk.PageSize, logger)
	deps.Settings = controllers.NewSettingsController(settings)
	deps.Auth = controllers.NewAuthController(operators, logger)
	deps.Operators = controllers.NewOperatorController(operators)
	deps.Print = controllers.NewPrintController(visitors, settings, a.loc, cfg.Kiosk.Lang, logger)
	deps.Kiosk = kiosk
	deps.Authenticator = operators
	deps.Dashboard = controllers.NewDashboardController(st, feed, a.loc, cfg.Kiosk.PageSize, deps.Registerer, logger.Named("dashboard"))

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.SetupRouter(deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("⚠️ shutdown signal received, shutting down server")
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("✅ server stopped gracefully")
	return nil
}
