package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"reseller-ledger/internal/jobs"
	"reseller-ledger/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a scheduler and registers every job. It fails when
// a configured schedule does not parse.
func NewScheduler(jobRunner *jobs.JobRunner) (*Scheduler, error) {
	// UTC with seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}
	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	cfg := s.jobs.Config().Scheduler

	schedule := []struct {
		name string
		spec string
		run  func()
	}{
		{"ReprocessCommissions", cfg.ReprocessCommissions, s.jobs.ReprocessCommissions},
		{"SweepStaleTransactions", cfg.SweepStaleTransactions, s.jobs.SweepStaleTransactions},
		{"ReconcileWallets", cfg.ReconcileWallets, s.jobs.ReconcileWallets},
	}
	for _, job := range schedule {
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			logger.Error("Failed to register job", "job", job.name, "spec", job.spec, "error", err)
			return err
		}
		logger.Debug("Job registered", "job", job.name, "spec", job.spec)
	}

	logger.Info("All cron jobs registered successfully", "count", len(schedule))
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
