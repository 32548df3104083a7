package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/wicaksono/loan-engine/internal/config"
	"github.com/wicaksono/loan-engine/internal/service"
)

// Scheduler runs the periodic delinquency sweep. Payment processing is
// untouched by the sweep; the two are safe to run concurrently because the
// sweep derives state purely from the ledger fields it reads.
type Scheduler struct {
	cron   *cron.Cron
	cfg    *config.Config
	loans  *service.LoanService
	logger *zap.Logger
}

func New(cfg *config.Config, loans *service.LoanService, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(cfg.SchedulerLocation())),
		cfg:    cfg,
		loans:  loans,
		logger: logger,
	}
}

// Start registers the sweep job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Scheduler.SweepSpec, s.runSweep); err != nil {
		return fmt.Errorf("failed to schedule delinquency sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("sweep_spec", s.cfg.Scheduler.SweepSpec),
		zap.String("timezone", s.cfg.Scheduler.Timezone))
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	asOf := time.Now().In(s.cfg.SchedulerLocation())
	if _, err := s.loans.SweepDelinquency(ctx, asOf); err != nil {
		s.logger.Error("delinquency sweep failed", zap.Error(err))
	}
}
