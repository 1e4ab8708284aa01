package jobs

import (
	"time"

	"reseller-ledger/internal/config"
	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/notify"
	"reseller-ledger/internal/repository"
	"reseller-ledger/internal/service"
)

// JobRunner coordinates the maintenance jobs
type JobRunner struct {
	store    repository.Store
	services *Services
	config   *config.Config
	now      func() time.Time
}

// Services holds the service dependencies needed by jobs
type Services struct {
	Ledger       service.LedgerService
	Distributor  service.CommissionDistributor
	Orchestrator service.Orchestrator
	Alerter      notify.Alerter
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(store repository.Store, services *Services, cfg *config.Config) *JobRunner {
	if services.Alerter == nil {
		services.Alerter = notify.LogAlerter{}
	}
	return &JobRunner{
		store:    store,
		services: services,
		config:   cfg,
		now:      time.Now,
	}
}

// Config returns the configuration the jobs were built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	start := jr.now()
	jobFunc()
	logger.Info("Job completed", "job", jobName, "duration", jr.now().Sub(start))
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.SweepStaleTransactions()
	jr.ReprocessCommissions()
	jr.ReconcileWallets()
}
