package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// JobConfig sets the intervals of the background jobs.  A zero interval
// disables the job.
type JobConfig struct {
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
}

// StartJobs registers the sweeper and reconciler on a gocron scheduler
// and starts it.  Jobs run in singleton mode, so a slow pass is never
// overlapped by the next tick.  Callers stop the jobs with Shutdown.
func StartJobs(cfg JobConfig, sw *Sweeper, rc *Reconciler, log logrus.FieldLogger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	if sw != nil && cfg.SweepInterval > 0 {
		if _, err := s.NewJob(
			gocron.DurationJob(cfg.SweepInterval),
			gocron.NewTask(func(ctx context.Context) { sw.Sweep(ctx) }),
			gocron.WithName("expiry-sweeper"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("schedule sweeper: %w", err)
		}
	}
	if rc != nil && cfg.ReconcileInterval > 0 {
		if _, err := s.NewJob(
			gocron.DurationJob(cfg.ReconcileInterval),
			gocron.NewTask(func(ctx context.Context) { rc.Run(ctx) }),
			gocron.WithName("booking-reconciler"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("schedule reconciler: %w", err)
		}
	}
	s.Start()
	log.WithFields(logrus.Fields{
		"sweep_interval":     cfg.SweepInterval.String(),
		"reconcile_interval": cfg.ReconcileInterval.String(),
	}).Info("background jobs started")
	return s, nil
}
