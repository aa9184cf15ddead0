package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/yash21saraf/revival.ai/shared/monitoring"
)

// Job is a unit of background maintenance run on the schedule.
type Job interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Scheduler runs jobs on a cron schedule (seconds field first).
type Scheduler struct {
	schedule string
	monitor  *monitoring.Monitor
	jobs     []Job
	cron     *cron.Cron
}

func New(schedule string, monitor *monitoring.Monitor, jobs ...Job) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		monitor:  monitor,
		jobs:     jobs,
		// Prevent overlapping runs
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Start registers every job and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, job := range s.jobs {
		_, err := s.cron.AddFunc(s.schedule, func() {
			if err := s.RunOnce(ctx, job); err != nil {
				log.Printf("Error running scheduled job %s: %v", job.Name(), err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to add cron job %s: %w", job.Name(), err)
		}
		log.Printf("Scheduled %s with schedule: %s", job.Name(), s.schedule)
	}

	s.cron.Start()

	<-ctx.Done()
	log.Printf("Scheduler stopped")
	<-s.cron.Stop().Done()
	return ctx.Err()
}

// RunOnce runs job immediately and records the outcome.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) error {
	start := time.Now()
	name := job.Name()

	log.Printf("Starting %s run...", name)

	if err := job.RunOnce(ctx); err != nil {
		s.monitor.RecordCriticalFailure(monitoring.OpJob, fmt.Errorf("%s failed: %w", name, err), time.Since(start))
		return fmt.Errorf("%s run failed: %w", name, err)
	}

	s.monitor.RecordSuccess(monitoring.OpJob, name, time.Since(start))
	return nil
}
