package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/bloodlink-dev/bloodlink/db"
	"github.com/bloodlink-dev/bloodlink/internal/alerts"
	"github.com/bloodlink-dev/bloodlink/internal/auth"
	"github.com/bloodlink-dev/bloodlink/internal/config"
	"github.com/bloodlink-dev/bloodlink/internal/dispatch"
	"github.com/bloodlink-dev/bloodlink/internal/handlers"
	"github.com/bloodlink-dev/bloodlink/internal/logger"
	"github.com/bloodlink-dev/bloodlink/internal/models"
	"github.com/bloodlink-dev/bloodlink/internal/responses"
	"github.com/bloodlink-dev/bloodlink/internal/router"
	"github.com/bloodlink-dev/bloodlink/internal/scheduler"
	"github.com/bloodlink-dev/bloodlink/internal/services"
	"github.com/bloodlink-dev/bloodlink/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.LogLevel, cfg.Environment)
	appLog := logger.Get()

	if err := auth.InitJWTSecret(cfg.JWTSecret); err != nil {
		appLog.WithError(err).Fatal("Failed to initialize JWT secret")
	}

	if err := db.ConnectDatabase(cfg.DatabaseDSN); err != nil {
		appLog.WithError(err).Fatal("Failed to connect to database")
	}
	if err := db.MigrateDatabase(); err != nil {
		appLog.WithError(err).Fatal("Failed to migrate database")
	}
	if err := ensureDefaultAdmin(cfg); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure default admin account")
	}

	s := store.New(db.DB)

	var notifier services.Notifier
	if cfg.WebhookURL != "" {
		notifier = services.NewWebhookNotifier(cfg.WebhookURL, cfg.NotifyTimeout)
	} else {
		appLog.Warn("WEBHOOK_URL not set, notifications go to the log only")
		notifier = &services.LogNotifier{Log: appLog}
	}

	manager := alerts.NewManager(s, s, nil, alerts.Config{
		TTL:       cfg.AlertTTL,
		Retention: cfg.RetentionWindow,
	}, appLog)

	dispatcher := dispatch.NewDispatcher(s, s, s, s, s, manager, notifier, dispatch.Config{
		BatchSize:        cfg.DispatchBatchSize,
		MaxRetries:       cfg.RedispatchMaxRetries,
		OverNotifyFactor: cfg.OverNotifyFactor,
		RadiusKm:         cfg.SearchRadiusKm,
		Cooldown:         cfg.DonorCooldown,
		ExpandCompatible: cfg.ExpandCompatible,
	}, appLog)

	// New alerts dispatch in the background once the row is committed.
	manager.SetEventSink(alerts.EventSinkFunc(func(alert models.Alert) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.DispatchTimeout)
			defer cancel()

			report, err := dispatcher.Dispatch(ctx, alert.ID)
			if err != nil {
				appLog.WithError(err).WithField("alert_id", alert.ID).Error("Initial dispatch failed")
				return
			}
			appLog.WithFields(map[string]interface{}{
				"alert_id":  alert.ID,
				"batch_id":  report.BatchID,
				"created":   report.Created,
				"delivered": report.Delivered,
				"failed":    report.Failed,
			}).Info("Initial dispatch finished")

			if updated, err := s.GetAlert(context.Background(), alert.ID); err == nil {
				handlers.BroadcastAlertUpdate(updated)
			}
		}()
	}))

	tracker := responses.NewTracker(s, s, s, manager, responses.Config{
		UnitWeight: cfg.FulfillmentUnits,
	}, appLog)

	handlers.Init(manager, dispatcher, tracker, s, cfg)

	sched := scheduler.New(manager, dispatcher, scheduler.Config{
		CronSpecExpire:    cfg.CronSpecExpire,
		CronSpecRetry:     cfg.CronSpecRetry,
		CronSpecRetention: cfg.CronSpecRetention,
	}, appLog)
	if err := sched.Start(); err != nil {
		appLog.WithError(err).Fatal("Failed to start scheduler")
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		appLog.Info("Shutting down")
		sched.Stop()
		os.Exit(0)
	}()

	r := router.NewRouter(cfg.AllowedOrigins)
	appLog.WithField("port", cfg.Port).Info("Starting server")
	if err := r.Run(":" + cfg.Port); err != nil {
		appLog.WithError(err).Fatal("Failed to start server")
	}
}

// ensureDefaultAdmin seeds the admin account on first boot so the service is
// operable before anyone registers.
func ensureDefaultAdmin(cfg *config.AppConfig) error {
	if cfg.DefaultAdminEmail == "" || cfg.DefaultAdminPassword == "" {
		return nil
	}

	var admin models.Admin
	err := db.DB.Where("email = ?", cfg.DefaultAdminEmail).First(&admin).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DefaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return db.DB.Create(&models.Admin{
		Name:         "Administrator",
		Email:        cfg.DefaultAdminEmail,
		PasswordHash: string(hash),
	}).Error
}
