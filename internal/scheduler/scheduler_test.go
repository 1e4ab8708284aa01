package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reseller-ledger/internal/config"
	"reseller-ledger/internal/jobs"
	"reseller-ledger/internal/repository/memory"
)

func TestNewScheduler(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		ReprocessCommissions:   "0 */10 * * * *",
		SweepStaleTransactions: "0 */5 * * * *",
		ReconcileWallets:       "0 30 1 * * *",
	}}
	runner := jobs.NewJobRunner(memory.NewStore(), &jobs.Services{}, cfg)

	s, err := NewScheduler(runner)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Entries())

	s.Start()
	s.Stop()
}

func TestNewScheduler_BadSpec(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		ReprocessCommissions:   "every ten minutes",
		SweepStaleTransactions: "0 */5 * * * *",
		ReconcileWallets:       "0 30 1 * * *",
	}}
	_, err := NewScheduler(jobs.NewJobRunner(memory.NewStore(), &jobs.Services{}, cfg))
	assert.Error(t, err)
}
