package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"etl-notifier/internal/config"
	"etl-notifier/internal/metrics"
	"etl-notifier/internal/notify"
	"etl-notifier/internal/runner"
	"etl-notifier/internal/store"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "settings: %v\n", err)
		os.Exit(1)
	}

	var (
		cfgPath = flag.String("config", settings.QueriesFile, "path to the queries YAML")
		once    = flag.Bool("once", settings.RunOnce, "run a single cycle then exit")
	)
	flag.Parse()

	logger, err := newLogger(settings.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger, settings, *cfgPath, *once); err != nil {
		logger.Error("etl-notifier exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(logger *zap.Logger, settings config.Settings, cfgPath string, once bool) error {
	logger.Info("etl-notifier starting", zap.String("version", Version), zap.String("config", cfgPath))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(cfg.Notification.WebhookURL) == "" {
		cfg.Notification.WebhookURL = settings.WebhookURL
	}
	n, err := notify.NewFromConfig(logger, cfg.Notification, settings.HTTPTimeout)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}
	logger.Info("notifier configured",
		zap.String("type", n.Name()),
		zap.String("url", notify.RedactURL(cfg.Notification.WebhookURL)),
	)

	m := metrics.New()
	r := runner.New(logger, cfg, store.NewJSONFile(settings.CacheFile), n, runner.WithMetrics(m))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if once {
		return r.RunCycle(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	if settings.MetricsAddr != "" {
		srv := metrics.NewServer(settings.MetricsAddr, m)
		g.Go(func() error {
			logger.Info("serving /metrics", zap.String("addr", settings.MetricsAddr))
			return srv.Serve(ctx)
		})
	}
	g.Go(func() error {
		return r.Run(ctx, settings.Interval())
	})
	return g.Wait()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: ETL_LOG_LEVEL: %v", config.ErrInvalidConfig, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
