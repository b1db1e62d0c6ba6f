package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/httpapi"
	"github.com/hamed0406/sitewatch/internal/logging"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/bolt"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
	"github.com/hamed0406/sitewatch/internal/repo/postgres"
	"github.com/hamed0406/sitewatch/internal/scheduler"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatal(err)
	}
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration:\n%v", err)
	}

	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Stderr: cfg.LogStderr})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	defaults := domain.Defaults{
		Timeout:          cfg.DefaultTimeout,
		CheckInterval:    cfg.DefaultCheckInterval,
		FailureThreshold: cfg.DefaultFailureThreshold,
	}
	if cfg.TargetsFile != "" {
		targets, err := config.LoadTargets(cfg.TargetsFile, defaults)
		if err != nil {
			return err
		}
		if err := seedTargets(ctx, store, targets, logger); err != nil {
			return err
		}
	}

	notifier := &notify.Router{Slack: notify.NewSlack(cfg.NotifySendTimeout)}
	if cfg.TelegramBotToken != "" {
		notifier.Telegram = notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAPIURL, cfg.NotifySendTimeout, cfg.NotifyValidateTimeout)
	} else {
		logger.Warn("telegram_disabled", zap.String("reason", "TELEGRAM_BOT_TOKEN not set"))
	}

	clock := scheduler.SystemClock{}
	exec := &scheduler.Executor{
		Store:   store,
		Checker: probe.NewDNSAnnotator(probe.NewHTTPChecker(), logger),
		Alerter: scheduler.NewAlerter(notifier, store, clock, logger, scheduler.AlerterConfig{
			Cooldown:    cfg.NotifyCooldown,
			SendTimeout: cfg.NotifySendTimeout,
		}),
		Clock: clock,
		Log:   logger,
	}
	runner := scheduler.NewRunner(exec, scheduler.RunnerConfig{
		Workers:      cfg.Workers,
		QueueSize:    cfg.QueueSize,
		MaxRetries:   cfg.TaskMaxRetries,
		RetryBackoff: cfg.TaskRetryBackoff,
		SoftLimit:    cfg.TaskSoftLimit,
		HardLimit:    cfg.TaskHardLimit,
	}, logger)
	sched := &scheduler.Scheduler{
		Selector: &scheduler.Selector{Store: store, Clock: clock},
		Runner:   runner,
		Interval: cfg.TickInterval,
		Log:      logger,
	}
	hour, minute, _ := config.ParseClock(cfg.SweepAt)
	sweeper := &scheduler.Sweeper{
		Checks:    store,
		Clock:     clock,
		Retention: cfg.RetentionWindow,
		Hour:      hour,
		Minute:    minute,
		Log:       logger,
	}

	api := httpapi.NewServer(logger, store, notifier, sweeper, defaults)
	api.ValidateTimeout = cfg.NotifyValidateTimeout
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Router(httpapi.RouterOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			RequestsPerMin: cfg.APIRPM,
			Burst:          cfg.APIBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runner.Start(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); sched.Run(ctx) }()
	go func() { defer wg.Done(); sweeper.Run(ctx) }()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			runner.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutdown_started")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	wg.Wait()
	runner.Wait()
	logger.Info("shutdown_complete")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, error) {
	switch cfg.Store {
	case "postgres":
		s, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "bolt":
		s, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}
