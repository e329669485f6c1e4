package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/osmfj/MapComplete/internal/adapters/http"
	natsadapter "github.com/osmfj/MapComplete/internal/adapters/nats"
	"github.com/osmfj/MapComplete/internal/adapters/overpass"
	"github.com/osmfj/MapComplete/internal/adapters/postgres"
	"github.com/osmfj/MapComplete/internal/adapters/valkey"
	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/usecases"
	"github.com/osmfj/MapComplete/internal/pkg/config"
	"github.com/osmfj/MapComplete/internal/pkg/logging"
	"github.com/osmfj/MapComplete/internal/pkg/telemetry"
)

func main() {
	// Layout hot reload; the service exists once the config is loaded.
	var layouts atomic.Pointer[usecases.LayoutService]
	cfg, err := config.LoadWatched("mapsync-api", func(l domain.Layout, err error) {
		if err != nil {
			slog.Warn("layout reload ignored", "error", err)
			return
		}
		svc := layouts.Load()
		if svc == nil {
			return
		}
		if err := svc.Replace(l); err != nil {
			slog.Warn("layout reload rejected", "error", err)
			return
		}
		slog.Info("layout reloaded", "layout", l.ID, "layers", len(l.Layers))
	})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	layout, err := cfg.Layout.Domain()
	if err != nil {
		log.Fatalf("layout: %v", err)
	}
	layoutSvc := usecases.NewLayoutService(layout)
	layouts.Store(layoutSvc)
	viewports := usecases.NewViewportService()

	loaderDeps := usecases.DispatcherDeps{
		Query:    overpass.NewClient(cfg.Overpass.URL, time.Duration(cfg.Overpass.Timeout)*time.Second),
		Viewport: viewports,
		Layout:   layoutSvc,
	}
	deps := &http.Dependencies{Viewports: viewports, Layouts: layoutSvc}

	// Database (fetch log)
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Warn("database unavailable, fetch log disabled", "error", err)
	} else {
		defer db.Close()
		go db.ReportPoolMetrics(ctx, 15*time.Second)
		repo := postgres.NewFetchLogRepo(db)
		loaderDeps.FetchLog = repo
		deps.FetchLog = repo
		deps.DB = db
	}

	// Cache (shared feature snapshot)
	var snapshots *valkey.SnapshotStore
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, snapshots disabled", "error", err)
	} else {
		defer cache.Close()
		snapshots = valkey.NewSnapshotStore(cache, cfg.Valkey.SnapshotTTL)
		loaderDeps.Snapshots = snapshots
		deps.Cache = cache
	}

	// NATS
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		loaderDeps.Events = pub
		deps.NATS = pub.Conn()
	}

	opts := usecases.DispatcherOptions{
		RetryBase:             time.Duration(cfg.Retry.BaseSeconds) * time.Second,
		DisableImmediateRetry: !cfg.Retry.Immediate,
	}
	// Serve what another replica committed until our first query lands.
	if snapshots != nil {
		fc, err := snapshots.LoadFeatures(ctx)
		if err != nil {
			slog.Warn("load feature snapshot", "error", err)
		} else if fc != nil {
			opts.InitialFeatures = fc
			slog.Info("seeding features from snapshot", "features", len(fc.Features))
		}
	}
	loader := usecases.NewQueryDispatcher(loaderDeps, opts)
	deps.Loader = loader
	loader.Start(ctx)

	// Viewport reports over NATS
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats viewport subscriber unavailable", "error", err)
	} else {
		defer sub.Close()
		err := sub.SubscribeViewports(ctx, func(ctx context.Context, vp *domain.Viewport) error {
			return viewports.Report(*vp)
		})
		if err != nil {
			slog.Warn("subscribe viewports", "error", err)
		}
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "MapSync Loader",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, If-None-Match",
		ExposeHeaders:    "ETag, X-Data-Timestamp, Link",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "overpass", cfg.Overpass.URL, "layout", layout.ID)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	// An Overpass query may run for the full server-side timeout.
	loader.Stop()
	slog.Info("server stopped")
}
