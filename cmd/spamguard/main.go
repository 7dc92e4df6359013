package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spamguard/internal/analytics"
	"spamguard/internal/bot"
	"spamguard/internal/config"
	"spamguard/internal/modules/antispam"
	"spamguard/internal/modules/audit"
	"spamguard/internal/retention"
	"spamguard/internal/storage"
	"spamguard/internal/strikes"
	"spamguard/internal/utils"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	logger.Info("storage ready", zap.String("dialect", store.Dialect()))

	history, err := utils.NewHistoryStore(cfg.History.MaxMembers)
	if err != nil {
		logger.Fatal("history init failed", zap.Error(err))
	}
	tracker, err := strikes.NewTracker(strikes.Config{
		DecayPeriod: time.Duration(cfg.Strikes.DecayHours) * time.Hour,
		MaxMembers:  cfg.Strikes.MaxMembers,
	})
	if err != nil {
		logger.Fatal("strike tracker init failed", zap.Error(err))
	}
	detector := antispam.New(history, tracker, logger.Named("antispam"))
	auditLogger := audit.NewLogger(store, logger)
	analyticsEngine := analytics.New(store)

	botSvc, err := bot.New(cfg, logger, store, detector, auditLogger, analyticsEngine)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}
	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started", zap.String("mode", cfg.Mode))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	janitor := retention.New(retention.Config{
		RetentionDays: cfg.RetentionDays,
		Interval:      time.Duration(cfg.Retention.IntervalMinutes) * time.Minute,
	}, store, logger)
	janitor.Start(ctx)

	var server *http.Server
	if cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := store.Ping(r.Context()); err != nil {
				http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("ready"))
		})
		mux.Handle("/metrics", promhttp.Handler())
		server = &http.Server{Addr: cfg.Health.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	janitor.Stop()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	botSvc.Close(shutdownCtx)
}
