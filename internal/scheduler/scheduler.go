package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/monitoring"
	"ledger-api/internal/service"
)

// Scheduler runs periodic background jobs, currently the nightly
// ledger reconciliation sweep.
type Scheduler struct {
	cron         *cron.Cron
	adminService service.AdminService
	logger       *logrus.Logger
	batchSize    int
}

func New(adminService service.AdminService, logger *logrus.Logger, batchSize int) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		adminService: adminService,
		logger:       logger,
		batchSize:    batchSize,
	}
}

// RegisterReconciliation schedules the full-ledger reconciliation run.
// The schedule uses standard five-field cron syntax.
func (s *Scheduler) RegisterReconciliation(schedule string) error {
	_, err := s.cron.AddFunc(schedule, s.runReconciliation)
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Scheduler stopping")
	return s.cron.Stop()
}

func (s *Scheduler) runReconciliation() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	s.logger.Info("Starting scheduled reconciliation run")

	result, err := s.adminService.ReconcileAllWallets(ctx, s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled reconciliation run failed")
		monitoring.RecordReconciliationRun("error", 0)
		return
	}

	status := "success"
	if result.DiscrepanciesFound > 0 {
		status = "discrepancy_found"
	}
	monitoring.RecordReconciliationRun(status, result.DiscrepanciesFound)

	s.logger.WithFields(logrus.Fields{
		"total_wallets": result.TotalWallets,
		"reconciled":    result.ReconciledWallets,
		"discrepancies": result.DiscrepanciesFound,
		"errors":        result.ErrorsEncountered,
		"duration_ms":   result.TotalProcessingTime.Milliseconds(),
	}).Info("Scheduled reconciliation run completed")
}
