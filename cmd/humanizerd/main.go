// Command humanizerd exposes the humanizer engine over an HTTP JSON API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	humanizer "github.com/veritext/humanizer"
	"github.com/veritext/humanizer/pipeline"
	"github.com/veritext/humanizer/store"
	"github.com/veritext/humanizer/store/memory"
	"github.com/veritext/humanizer/store/mongo"
	"github.com/veritext/humanizer/store/redis"
	"github.com/veritext/humanizer/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("humanizerd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	opts := []humanizer.Option{
		humanizer.WithLogger(logger),
		humanizer.WithUsageConfig(cfg.UsageBatchSize, cfg.UsageFlushEvery),
		humanizer.WithReservationTTL(cfg.ReservationTTL, cfg.SweepInterval),
	}
	if cfg.ProcessingDelay > 0 {
		opts = append(opts, humanizer.WithProcessingDelay(cfg.ProcessingDelay))
	}
	if cfg.RulesPath != "" {
		rules, err := loadRules(cfg.RulesPath)
		if err != nil {
			return fmt.Errorf("load rules %s: %w", cfg.RulesPath, err)
		}
		opts = append(opts, humanizer.WithRuleSet(rules))
	}

	engine := humanizer.New(st, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: newHandler(engine, logger, cfg.RateLimit, cfg.RateBurst),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("humanizerd listening", "addr", cfg.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		_ = engine.Stop() //nolint:errcheck // serve failed, stop error is secondary
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	return engine.Stop()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openStore(cfg Config) (store.Store, error) {
	switch strings.ToLower(cfg.Store) {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath)
	case "redis":
		return redis.New(redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), nil
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func loadRules(path string) (*pipeline.RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only file

	return pipeline.LoadRuleSet(f)
}
