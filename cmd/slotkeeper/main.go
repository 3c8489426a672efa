package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotkeeper/internal/api"
	"slotkeeper/internal/availability"
	"slotkeeper/internal/cache"
	"slotkeeper/internal/config"
	"slotkeeper/internal/db"
	"slotkeeper/internal/events"
	"slotkeeper/internal/metrics"
	"slotkeeper/internal/session"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SLOTKEEPER_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if !cfg.Logging.Pretty {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	logger = logger.Level(level)

	database, err := db.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()
	bus.SubscribeAll(auditLog(&logger))
	bus.SubscribeAll(func(e events.Event) error {
		return database.RecordEvent(context.WithoutCancel(ctx), e)
	})

	engineCfg := availability.DefaultConfig()
	engineCfg.AutoRollback = cfg.Engine.AutoRollback
	engineCfg.PersistGenerated = cfg.Engine.PersistGenerated

	manager := session.NewManager(storeFactory(cfg, database, rdb, &logger), session.Options{
		Engine:      engineCfg,
		IdleTimeout: cfg.SessionIdle(),
		Bus:         bus,
	}, &logger)
	go manager.Run(ctx, time.Minute)

	err = config.WatchTemplate(ctx, cfg.TemplatePath, 30*time.Second, &logger, func(change config.TemplateChange) {
		if err := database.SyncTemplateConfig(ctx, change.Config); err != nil {
			logger.Error().Err(err).Str("checksum", change.Checksum).Msg("failed to apply template config")
			return
		}
		if change.All {
			manager.EvictAll()
		} else {
			for _, id := range change.Providers {
				manager.Evict(int64(id))
			}
		}
		logger.Info().
			Str("checksum", change.Checksum).
			Bool("all_providers", change.All).
			Ints("providers", change.Providers).
			Msg("template config applied")
	})
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.TemplatePath).Msg("template config not loaded, providers use built-in defaults")
	}

	backup := db.NewBackupService(database, db.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		Interval:      cfg.BackupInterval(),
		StoragePath:   cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, &logger)
	go backup.Start(ctx)

	ready := readiness(database, rdb)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, ready, &logger)

	metrics.Register()
	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.GRPC.Enabled {
		if err := startGRPCHealth(ctx, cfg.GRPC.Port, ready, &logger); err != nil {
			logger.Fatal().Err(err).Msg("grpc health server error")
		}
	}

	server := api.NewHTTPServer(api.Config{
		Address:         cfg.HTTP.Address,
		APIKey:          cfg.HTTP.APIKey,
		RateLimitPerSec: cfg.HTTP.RateLimitPerSec,
		RateLimitBurst:  cfg.HTTP.RateLimitBurst,
		TrustedProxies:  cfg.HTTP.TrustedProxies,
		RequestTimeout:  cfg.RequestTimeout(),
	}, manager, &logger)
	server.UseReadiness(ready)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxShutdown)
	}()

	logger.Info().Msg("slotkeeper started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("http server error")
	}
	manager.EvictAll()
	logger.Info().Msg("slotkeeper stopped")
}

func storeFactory(cfg *config.Config, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) session.StoreFactory {
	return func(providerID int64) (availability.Store, error) {
		store := database.ProviderStore(providerID)
		if !cfg.Cache.Enabled {
			return store, nil
		}
		return cache.New(store, providerID, cache.Options{
			Redis: rdb,
			TTL:   cfg.CacheTTL(),
			Size:  cfg.Cache.Size,
		}, logger)
	}
}

func auditLog(logger *zerolog.Logger) events.EventHandler {
	return func(event events.Event) error {
		var m events.Mutation
		if err := event.Decode(&m); err != nil {
			return fmt.Errorf("decode %s: %w", event.Type, err)
		}
		entry := logger.Info()
		if event.Type == events.TypeMutationFailed {
			entry = logger.Warn()
		}
		entry.
			Str("event", event.Type).
			Int64("provider_id", event.ProviderID).
			Str("date", event.Date).
			Str("op", m.Op).
			Str("slot_id", m.SlotID).
			Bool("rolled_back", m.RolledBack).
			Str("error", m.Error).
			Msg("availability event")
		return nil
	}
}

func readiness(database *db.DB, rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			return errors.New("db not ready")
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				return errors.New("redis not ready")
			}
		}
		return nil
	}
}

func startHealthServer(ctx context.Context, port int, ready func(context.Context) error, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
