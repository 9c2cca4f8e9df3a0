package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hearthwatch/hearthwatch/internal/alerts"
	"github.com/hearthwatch/hearthwatch/internal/config"
	"github.com/hearthwatch/hearthwatch/internal/controls"
	"github.com/hearthwatch/hearthwatch/internal/database"
	"github.com/hearthwatch/hearthwatch/internal/events"
	"github.com/hearthwatch/hearthwatch/internal/jobs"
	"github.com/hearthwatch/hearthwatch/internal/logger"
	"github.com/hearthwatch/hearthwatch/internal/metrics"
	"github.com/hearthwatch/hearthwatch/internal/notify"
	"github.com/hearthwatch/hearthwatch/internal/security"
	"github.com/hearthwatch/hearthwatch/internal/statestore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the aggregation engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	log.Infow("starting hearthwatch", "version", Version)
	metrics.Init()

	db, err := database.Connect(cfg.DatabaseURL, gormlogger.Warn)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if cfg.RulesFile != "" {
		n, err := database.LoadRulesFile(db, cfg.RulesFile)
		if err != nil {
			return fmt.Errorf("load rules file %s: %w", cfg.RulesFile, err)
		}
		log.Infow("event rules seeded", "file", cfg.RulesFile, "definitions", n)
	}

	// Redis keeps the security state across restarts. Falling back to an
	// in-memory store keeps the engine running; sticky states just will
	// not survive the next restart.
	var store statestore.Store
	redisStore, err := statestore.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Warnw("redis unavailable, security state will not survive restarts", "error", err)
		store = statestore.NewMemoryStore()
	} else {
		store = redisStore
		defer redisStore.Close()
	}

	securityManager := security.NewManager(store, database.NewSettingsStore(db), log)
	if err := securityManager.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize security manager: %w", err)
	}
	log.Infow("security state initialized", "state", securityManager.CurrentState())

	collection := alerts.NewCollection()

	var notifiers []notify.Notifier
	if cfg.SlackToken != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.SlackToken, cfg.SlackChannel))
		log.Infow("slack notifications enabled", "channel", cfg.SlackChannel)
	}
	fanout := notify.NewFanout(log, notifiers...)
	collection.SetNewAlertCallback(func(alert alerts.Alert) {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		fanout.Dispatch(notifyCtx, alert)
	})

	eventManager := events.NewManager(
		database.NewDefinitionStore(db),
		collection,
		controls.NewLoggingDispatcher(log),
		securityManager,
		database.NewHistoryStore(db),
		log,
	)
	if err := eventManager.Initialize(); err != nil {
		return fmt.Errorf("initialize event manager: %w", err)
	}
	defer eventManager.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup

	securityMonitor := jobs.NewSecurityMonitor(securityManager, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		securityMonitor.Start(ctx, cfg.SecurityCheckInterval, stop)
	}()

	sweeper := jobs.NewAlertSweeper(collection, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Start(cfg.AlertSweepInterval, stop)
	}()

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		log.Infow("metrics listener started", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("metrics listener failed", "error", err)
		}
	}()

	waitForShutdown(log)

	close(stop)
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("metrics listener shutdown failed", "error", err)
	}

	log.Info("hearthwatch stopped")
	return nil
}

func waitForShutdown(log *zap.SugaredLogger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Infow("shutdown signal received", "signal", received)
}
