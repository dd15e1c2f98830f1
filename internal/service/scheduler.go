package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/subtrack/billing-engine/internal/repository"
)

const (
	defaultDispatchSpec = "*/10 * * * *"
	defaultRecoverySpec = "*/15 * * * *"
	defaultPurgeSpec    = "30 3 * * *"
)

// Scheduler drives the periodic jobs: the dispatcher run, the recovery
// pass, and the delivery state purge. Triggers that fire while the previous
// invocation of the same job is still running are skipped.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *ReminderDispatcher
	recovery   *RecoveryService
	deliveries repository.DeliveryStateRepository
	retention  time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

type SchedulerOptions struct {
	DispatchSpec string
	RecoverySpec string
	PurgeSpec    string
	Retention    time.Duration
}

func NewScheduler(
	dispatcher *ReminderDispatcher,
	recovery *RecoveryService,
	deliveries repository.DeliveryStateRepository,
	opts SchedulerOptions,
	logger *zap.Logger,
) (*Scheduler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.DispatchSpec == "" {
		opts.DispatchSpec = defaultDispatchSpec
	}
	if opts.RecoverySpec == "" {
		opts.RecoverySpec = defaultRecoverySpec
	}
	if opts.PurgeSpec == "" {
		opts.PurgeSpec = defaultPurgeSpec
	}
	if opts.Retention <= 0 {
		opts.Retention = 90 * 24 * time.Hour
	}

	cronLogger := &zapCronLogger{logger: logger.Named("cron")}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		),
	)

	s := &Scheduler{
		cron:       c,
		dispatcher: dispatcher,
		recovery:   recovery,
		deliveries: deliveries,
		retention:  opts.Retention,
		logger:     logger,
		now:        time.Now,
	}

	if _, err := c.AddFunc(opts.DispatchSpec, s.runDispatch); err != nil {
		return nil, fmt.Errorf("invalid dispatch cron spec %q: %w", opts.DispatchSpec, err)
	}
	if recovery != nil {
		if _, err := c.AddFunc(opts.RecoverySpec, s.runRecovery); err != nil {
			return nil, fmt.Errorf("invalid recovery cron spec %q: %w", opts.RecoverySpec, err)
		}
	}
	if deliveries != nil {
		if _, err := c.AddFunc(opts.PurgeSpec, s.runPurge); err != nil {
			return nil, fmt.Errorf("invalid purge cron spec %q: %w", opts.PurgeSpec, err)
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts new triggers and waits for running jobs to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runDispatch() {
	ctx := context.Background()
	if _, err := s.dispatcher.Run(ctx); err != nil {
		s.logger.Error("scheduled dispatch run failed", zap.Error(err))
	}
}

func (s *Scheduler) runRecovery() {
	ctx := context.Background()
	recovered, err := s.recovery.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled recovery run failed", zap.Error(err))
		return
	}
	if recovered > 0 {
		s.logger.Info("recovery run re-sent deliveries", zap.Int("recovered", recovered))
	}
}

func (s *Scheduler) runPurge() {
	ctx := context.Background()
	cutoff := s.now().UTC().Add(-s.retention)
	purged, err := s.deliveries.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("delivery state purge failed", zap.Error(err))
		return
	}
	if purged > 0 {
		s.logger.Info("purged delivery states", zap.Int64("purged", purged), zap.Time("cutoff", cutoff))
	}
}

// zapCronLogger adapts zap to the cron logger contract.
type zapCronLogger struct {
	logger *zap.Logger
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
