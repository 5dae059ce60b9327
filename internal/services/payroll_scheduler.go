package services

import (
	"context"
	"time"

	"github.com/fibreville/tigris/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// PayrollRunner is the part of the ledger the scheduler drives.
type PayrollRunner interface {
	PayAllSalaries(ctx context.Context, payerID string) (models.PayrollRun, error)
}

// PayrollScheduler pays all salaries from the payer account on a cron
// schedule.
type PayrollScheduler struct {
	cron     *cron.Cron
	ledger   PayrollRunner
	payerID  string
	schedule string
	timeout  time.Duration
	log      *logrus.Logger
}

func NewPayrollScheduler(ledger PayrollRunner, payerID, schedule string, log *logrus.Logger) *PayrollScheduler {
	cronLogger := cron.PrintfLogger(log)
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &PayrollScheduler{
		cron:     c,
		ledger:   ledger,
		payerID:  payerID,
		schedule: schedule,
		timeout:  5 * time.Minute,
		log:      log,
	}
}

// Start registers the payroll job and starts the scheduler.
func (s *PayrollScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		s.log.WithError(err).WithField("schedule", s.schedule).Error("failed to schedule payroll job")
		return err
	}
	s.log.WithField("schedule", s.schedule).Info("scheduled payroll job")
	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once a running
// payroll has finished.
func (s *PayrollScheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce pays all salaries now.
func (s *PayrollScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	run, err := s.ledger.PayAllSalaries(ctx, s.payerID)
	if err != nil {
		s.log.WithError(err).WithField("run_id", run.ID).Error("payroll run failed")
		return
	}

	failed := 0
	for _, p := range run.Payments {
		if p.Status != string(StatusSuccess) {
			failed++
		}
	}
	s.log.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"payments": len(run.Payments),
		"failed":   failed,
	}).Info("payroll run complete")
}
