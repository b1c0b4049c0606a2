// Package scheduler runs ledger reconciliation on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"coin-ledger/internal/core/ports"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronParser accepts five-field specs, six-field specs with seconds, and
// descriptors such as "@every 5m".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ReconciliationJob periodically compares stored balances with ledger history.
type ReconciliationJob struct {
	svc     ports.ReconciliationService
	timeout time.Duration
	log     zerolog.Logger
	cron    *cron.Cron
}

// NewReconciliationJob registers svc under schedule. Each run gets its own
// deadline of timeout; zero means no deadline. Overlapping runs are skipped.
func NewReconciliationJob(svc ports.ReconciliationService, schedule string, timeout time.Duration, log zerolog.Logger) (*ReconciliationJob, error) {
	j := &ReconciliationJob{
		svc:     svc,
		timeout: timeout,
		log:     log.With().Str("component", "reconciliation_job").Logger(),
	}

	cl := cronLogger{log: j.log}
	j.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := j.cron.AddFunc(schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid reconciliation schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins scheduling in the background.
func (j *ReconciliationJob) Start() {
	j.cron.Start()
	j.log.Info().Msg("reconciliation job scheduled")
}

// Stop halts scheduling and waits for an in-flight run, or for ctx.
func (j *ReconciliationJob) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single reconciliation pass. Failures are logged, not
// returned: the next tick retries.
func (j *ReconciliationJob) RunOnce(ctx context.Context) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	report, err := j.svc.Reconcile(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("scheduled reconciliation failed")
		return
	}
	if !report.Clean() {
		j.log.Warn().
			Int("accounts_checked", report.AccountsChecked).
			Int("mismatches", len(report.Mismatches)).
			Msg("scheduled reconciliation found drift")
		return
	}
	j.log.Debug().Int("accounts_checked", report.AccountsChecked).Msg("scheduled reconciliation clean")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
