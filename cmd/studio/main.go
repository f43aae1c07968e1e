// Command studio launches the strategy authoring and compilation service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/vibetrade/studio/internal/app/tools"
	"github.com/vibetrade/studio/internal/catalog"
	"github.com/vibetrade/studio/internal/infra/config"
	"github.com/vibetrade/studio/internal/infra/persistence/migrations"
	"github.com/vibetrade/studio/internal/infra/persistence/postgres"
	httpserver "github.com/vibetrade/studio/internal/infra/server/http"
	"github.com/vibetrade/studio/internal/telemetry"
)

const (
	defaultConfigPath     = "config/studio.yaml"
	defaultMigrationsPath = "db/migrations"
	studioLoggerPrefix    = "studio "

	shutdownTimeout          = 30 * time.Second
	serverShutdownTimeout    = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	readHeaderTimeout        = 5 * time.Second

	toolRateLimit = rate.Limit(50)
	toolRateBurst = 100
)

func main() {
	cfgPath, migrationsDir, skipMigrations := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newStudioLogger()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Printf("configuration initialised: port=%d, database=%s, catalog=%s",
		cfg.Server.Port, cfg.Database.Name, cfg.Catalog.Dir)

	telemetryProvider, err := initTelemetry(ctx, logger)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}

	dsn := cfg.Database.DSN()
	if !skipMigrations {
		err := migrations.Apply(ctx, dsn, migrationsDir, logger)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Printf("migrations directory %s missing, using embedded migrations", migrationsDir)
			err = migrations.ApplyEmbedded(ctx, dsn, logger)
		}
		if err != nil {
			logger.Fatalf("apply migrations: %v", err)
		}
	}

	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		logger.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	postgres.ObservePoolMetrics(pool, "primary")
	logger.Printf("database connected: %s", cfg.Database.Name)

	cat := catalog.New(cfg.Catalog.Dir)
	if _, err := cat.Archetypes("", true); err != nil {
		logger.Fatalf("load catalog: %v", err)
	}

	service := tools.NewService(cat, postgres.NewCardStore(pool), postgres.NewStrategyStore(pool))

	server := buildServer(cfg, service, pool)

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("http server: %v", err)
		}
	})
	logger.Printf("studio listening on %s", server.Addr)
	if cfg.Server.AuthToken != "" {
		logger.Print("bearer authentication enabled")
	}

	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, server, &lifecycle, telemetryProvider)
	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() (string, string, bool) {
	cfgPath := flag.String("config", defaultConfigPath, "Path to application configuration file")
	migrationsDir := flag.String("migrations", defaultMigrationsPath, "Directory containing SQL migrations")
	skipMigrations := flag.Bool("skip-migrations", false, "Skip applying migrations on startup")
	flag.Parse()
	return *cfgPath, *migrationsDir, *skipMigrations
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newStudioLogger() *log.Logger {
	return log.New(os.Stdout, studioLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

func initTelemetry(ctx context.Context, logger *log.Logger) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if telemetryCfg.Enabled {
		logger.Printf("telemetry initialized: endpoint=%s, service=%s", telemetryCfg.OTLPEndpoint, telemetryCfg.ServiceName)
	} else {
		logger.Print("telemetry disabled")
	}
	return provider, nil
}

func buildServer(cfg config.Config, service *tools.Service, pool interface{ Ping(context.Context) error }) *http.Server {
	handler := httpserver.NewHandler(service, httpserver.Options{
		AuthToken: cfg.Server.AuthToken,
		ToolRate:  toolRateLimit,
		ToolBurst: toolRateBurst,
		Ready: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		},
		Logger: newStudioLogger(),
	})
	return &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, server *http.Server, lifecycle *conc.WaitGroup, telemetryProvider *telemetry.Provider) {
	serverCtx, serverCancel := context.WithTimeout(ctx, serverShutdownTimeout)
	defer serverCancel()
	if err := server.Shutdown(serverCtx); err != nil {
		logger.Printf("http server shutdown: %v", err)
	}

	lifecycle.Wait()

	if telemetryProvider != nil {
		telemetryCtx, telemetryCancel := context.WithTimeout(ctx, telemetryShutdownTimeout)
		defer telemetryCancel()
		if err := telemetryProvider.Shutdown(telemetryCtx); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}
}
