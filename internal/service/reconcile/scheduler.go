package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs ValidateAll on a fixed interval. A sweep that is still
// running when the next one is due makes the next one wait.
type Scheduler struct {
	svc      *Service
	sched    gocron.Scheduler
	interval time.Duration
	log      *slog.Logger
}

func NewScheduler(svc *Service, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	const op = "reconcile.NewScheduler"

	if interval <= 0 {
		return nil, fmt.Errorf("%s: interval must be positive, got %s", op, interval)
	}

	if logger == nil {
		logger = slog.Default()
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Scheduler{
		svc:      svc,
		sched:    sched,
		interval: interval,
		log:      logger.With(slog.String("component", "reconcile-scheduler")),
	}, nil
}

// Run registers the sweep job and blocks until ctx is done, then waits for a
// running sweep to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	const op = "reconcile.Scheduler.Run"

	_, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.svc.ValidateAll(ctx); err != nil {
				s.log.Error("scheduled sweep failed", slog.String("error", err.Error()))
			}
		}),
		gocron.WithName("reconcile-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeWait),
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("reconciliation scheduled", slog.Duration("interval", s.interval))
	s.sched.Start()

	<-ctx.Done()

	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
