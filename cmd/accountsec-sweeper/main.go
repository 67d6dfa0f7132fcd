package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MrEthical07/accountsec"
	"github.com/MrEthical07/accountsec/audit/kafkasink"
	"github.com/MrEthical07/accountsec/configfile"
	promexport "github.com/MrEthical07/accountsec/metrics/export/prometheus"
	"github.com/MrEthical07/accountsec/migrations"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML config file; ACCOUNTSEC_* env vars override it")
		migrateOnly = flag.Bool("migrate", false, "apply Postgres migrations and exit")
		once        = flag.Bool("once", false, "run a single sweep and exit")
		demo        = flag.Bool("demo", false, "seed an in-process miniredis with expiring records and sweep them")
	)
	flag.Parse()

	_ = godotenv.Load()

	file, err := configfile.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	logger, err := newLogger(file.App.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, file, logger, *migrateOnly, *once, *demo); err != nil {
		logger.Error("sweeper stopped", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if env != "production" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg.Build()
}

func run(ctx context.Context, file *configfile.File, logger *zap.Logger, migrateOnly, once, demo bool) error {
	if file.Postgres.URL != "" && (migrateOnly || file.Postgres.AutoMigrate) {
		if err := migrations.Up(file.Postgres.URL); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}
	if migrateOnly {
		if file.Postgres.URL == "" {
			return errors.New("postgres.url is required for -migrate")
		}
		return nil
	}

	cfg, err := file.EngineConfig()
	if err != nil {
		return err
	}
	builder := accountsec.New().
		WithConfig(cfg).
		WithIdentityProvider(sweeperIdentity{}).
		WithLogger(logger)

	var clock *demoClock
	switch {
	case demo:
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		defer client.Close()
		clock = newDemoClock(time.Now())
		builder = builder.WithRedis(client).WithClock(clock.Now)
		logger.Info("demo mode", zap.String("miniredis", mr.Addr()))
	case file.Redis.Addr != "":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{file.Redis.Addr},
			Password: file.Redis.Password,
			DB:       file.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		builder = builder.WithRedis(client)
	}

	if file.Postgres.URL != "" && !demo {
		pool, err := pgxpool.New(ctx, file.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		builder = builder.WithPostgres(pool)
	}

	if len(file.Kafka.Brokers) > 0 {
		sink, err := kafkasink.New(kafkasink.Config{
			Brokers:  file.Kafka.Brokers,
			Topic:    file.Kafka.Topic,
			ClientID: file.Kafka.ClientID,
		}, logger.Named("kafka"))
		if err != nil {
			return err
		}
		defer func() { _ = sink.Close() }()
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if addr := file.Telemetry.MetricsAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: promexport.NewCollector(engine).Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if demo {
		_, err := runDemo(ctx, engine, clock, cfg, logger)
		return err
	}
	if once {
		_, err := engine.Sweep(ctx)
		return err
	}
	return loop(ctx, engine, file.App.SweepInterval, logger)
}

func loop(ctx context.Context, engine *accountsec.Engine, interval time.Duration, logger *zap.Logger) error {
	if interval <= 0 {
		return fmt.Errorf("app.sweep_interval must be > 0, got %v", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := engine.Sweep(ctx); err != nil {
			logger.Warn("sweep finished with errors", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
