package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/bloodlink-dev/bloodlink/internal/alerts"
	"github.com/bloodlink-dev/bloodlink/internal/dispatch"
)

type Config struct {
	CronSpecExpire    string
	CronSpecRetry     string
	CronSpecRetention string
}

// Scheduler runs the periodic sweeps: expiring stale alerts, re-dispatching
// alerts with failed deliveries, and archiving terminal alerts past
// retention. Every sweep is idempotent, so overlapping runs are harmless.
type Scheduler struct {
	cronEngine *cron.Cron
	manager    *alerts.Manager
	dispatcher *dispatch.Dispatcher
	cfg        Config
	log        *logrus.Logger
}

func New(manager *alerts.Manager, dispatcher *dispatch.Dispatcher, cfg Config, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cronEngine: cron.New(),
		manager:    manager,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cronEngine.AddFunc(s.cfg.CronSpecExpire, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.manager.ExpireStale(ctx, time.Now()); err != nil {
			s.log.WithError(err).Error("Expire sweep failed")
		}
	})
	if err != nil {
		return err
	}

	_, err = s.cronEngine.AddFunc(s.cfg.CronSpecRetry, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.dispatcher.RetrySweep(ctx)
	})
	if err != nil {
		return err
	}

	_, err = s.cronEngine.AddFunc(s.cfg.CronSpecRetention, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		archived, err := s.manager.SweepRetention(ctx, time.Now())
		if err != nil {
			s.log.WithError(err).Error("Retention sweep failed")
			return
		}
		if archived > 0 {
			s.log.WithField("archived", archived).Info("Retention sweep archived alerts")
		}
	})
	if err != nil {
		return err
	}

	s.cronEngine.Start()
	s.log.Info("Scheduler started")
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
}
