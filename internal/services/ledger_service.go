package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fibreville/tigris/internal/audit"
	"github.com/fibreville/tigris/internal/events"
	"github.com/fibreville/tigris/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LedgerPolicy holds the taxation and payroll constants of the ledger.
type LedgerPolicy struct {
	TaxAccountID   string
	TaxRatePercent int64
	TaxFreeIDs     []string
	BasicIncome    int64
}

// LedgerService is the only component allowed to move money. Every mutating
// call runs in a single serializable transaction: either all of its balance
// deltas and log rows are committed or none are.
type LedgerService struct {
	db        *sql.DB
	accounts  *AccountStore
	jobs      *JobStore
	txlog     *TransactionLog
	names     *NameService
	publisher events.Publisher
	audit     *audit.AuditLogger
	log       *logrus.Logger
	policy    LedgerPolicy
	taxFree   map[string]struct{}
}

func NewLedgerService(
	db *sql.DB,
	accounts *AccountStore,
	jobs *JobStore,
	txlog *TransactionLog,
	names *NameService,
	publisher events.Publisher,
	log *logrus.Logger,
	policy LedgerPolicy,
) *LedgerService {
	taxFree := make(map[string]struct{}, len(policy.TaxFreeIDs))
	for _, id := range policy.TaxFreeIDs {
		taxFree[id] = struct{}{}
	}
	if publisher == nil {
		publisher = &events.FallbackPublisher{Log: log}
	}
	return &LedgerService{
		db:        db,
		accounts:  accounts,
		jobs:      jobs,
		txlog:     txlog,
		names:     names,
		publisher: publisher,
		audit:     audit.NewAuditLogger(log),
		log:       log,
		policy:    policy,
		taxFree:   taxFree,
	}
}

// OpenAccount creates an empty account for id and records its display name.
// The name lookup is best effort and never fails the call.
func (s *LedgerService) OpenAccount(ctx context.Context, id string) error {
	if err := s.accounts.Open(ctx, nil, id, 0); err != nil {
		s.audit.LogOperation(id, "OPEN_ACCOUNT", string(StatusOf(err)))
		return err
	}
	s.audit.LogOperation(id, "OPEN_ACCOUNT", string(StatusSuccess))
	s.refreshName(ctx, id)
	return nil
}

// Transfer moves amount from fromID to toID. Unless taxFree is set or one of
// the parties is tax exempt, TaxRatePercent of amount goes to the tax account
// and only the remainder reaches toID; the sender is debited amount in both
// cases. The tax comment is reserved for tax legs and is refused here.
func (s *LedgerService) Transfer(ctx context.Context, fromID, toID string, amount int64, comment string, taxFree bool) error {
	if fromID == toID {
		s.audit.LogTransfer(fromID, toID, amount, 0, string(StatusSelfTransfer))
		return ErrSelfTransfer
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if IsReservedComment(comment) {
		s.audit.LogTransfer(fromID, toID, amount, 0, string(StatusReservedComment))
		return ErrReservedComment
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return storageErr("begin transfer", err)
	}
	defer tx.Rollback()

	tax, err := s.transferTx(ctx, tx, fromID, toID, amount, comment, taxFree)
	if err != nil {
		s.audit.LogTransfer(fromID, toID, amount, 0, string(StatusOf(err)))
		return err
	}

	if err := tx.Commit(); err != nil {
		err = storageErr("commit transfer", err)
		s.audit.LogTransfer(fromID, toID, amount, 0, string(StatusOf(err)))
		return err
	}

	s.audit.LogTransfer(fromID, toID, amount, tax, string(StatusSuccess))
	s.publishTransfer(ctx, fromID, toID, amount, tax, comment)
	return nil
}

// transferTx performs the tax leg and the principal leg of a transfer inside
// tx and returns the tax taken.
func (s *LedgerService) transferTx(ctx context.Context, tx *sql.Tx, fromID, toID string, amount int64, comment string, taxFree bool) (int64, error) {
	if fromID == toID {
		return 0, ErrSelfTransfer
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var tax int64
	if !taxFree && !s.isTaxExempt(fromID) && !s.isTaxExempt(toID) {
		tax = amount * s.policy.TaxRatePercent / 100
	}

	ids := []string{fromID, toID}
	if tax > 0 {
		ids = append(ids, s.policy.TaxAccountID)
	}
	balances, err := s.lockAccounts(ctx, tx, ids)
	if err != nil {
		return 0, err
	}

	fromBalance, ok := balances[fromID]
	if !ok {
		return 0, ErrSenderNotFound
	}
	if _, ok := balances[toID]; !ok {
		return 0, ErrRecipientNotFound
	}
	if tax > 0 {
		if _, ok := balances[s.policy.TaxAccountID]; !ok {
			return 0, fmt.Errorf("%w: tax account %s does not exist", ErrTaxTransferFailed, s.policy.TaxAccountID)
		}
	}
	if fromBalance < amount {
		return 0, ErrInsufficientFunds
	}

	if tax > 0 {
		if err := s.move(ctx, tx, fromID, s.policy.TaxAccountID, tax, models.TaxComment); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrTaxTransferFailed, err)
		}
	}
	if principal := amount - tax; principal > 0 {
		if err := s.move(ctx, tx, fromID, toID, principal, comment); err != nil {
			return 0, err
		}
	}
	return tax, nil
}

// lockAccounts locks the given accounts in id order so that concurrent units
// of work cannot deadlock. Missing accounts are absent from the result.
func (s *LedgerService) lockAccounts(ctx context.Context, tx *sql.Tx, ids []string) (map[string]int64, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	balances := make(map[string]int64, len(sorted))
	for _, id := range sorted {
		balance, found, err := s.accounts.lockBalance(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if found {
			balances[id] = balance
		}
	}
	return balances, nil
}

func (s *LedgerService) move(ctx context.Context, tx *sql.Tx, fromID, toID string, amount int64, comment string) error {
	if err := s.accounts.adjustBalance(ctx, tx, fromID, -amount); err != nil {
		return err
	}
	if err := s.accounts.adjustBalance(ctx, tx, toID, amount); err != nil {
		return err
	}
	return s.txlog.append(ctx, tx, fromID, toID, amount, comment)
}

func (s *LedgerService) isTaxExempt(id string) bool {
	if id == s.policy.TaxAccountID {
		return true
	}
	_, ok := s.taxFree[id]
	return ok
}

// PaySalary pays payeeID its salary plus the basic income from payerID.
// When salary is nil the payee's total job salary is used. The payee account
// is created if needed. ErrNoSalary is informational: nothing was owed.
func (s *LedgerService) PaySalary(ctx context.Context, payerID, payeeID string, salary *int64) (models.SalaryPayment, error) {
	payment := models.SalaryPayment{
		PayerID:     payerID,
		PayeeID:     payeeID,
		BasicIncome: s.policy.BasicIncome,
	}
	if salary != nil {
		payment.Salary = *salary
	}

	created, err := s.paySalary(ctx, &payment, salary)
	payment.Status = string(StatusOf(err))
	if err != nil {
		payment.Error = err.Error()
	}
	s.audit.LogSalary(payerID, payeeID, payment.Salary, payment.Status)

	if err != nil {
		return payment, err
	}
	if created {
		s.refreshName(ctx, payeeID)
	}
	return payment, nil
}

func (s *LedgerService) paySalary(ctx context.Context, payment *models.SalaryPayment, salary *int64) (created bool, err error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return false, storageErr("begin salary", err)
	}
	defer tx.Rollback()

	if salary == nil {
		total, err := s.jobs.totalSalary(ctx, tx, payment.PayeeID)
		if err != nil && !errors.Is(err, ErrNoJobs) {
			return false, err
		}
		payment.Salary = total
	}
	if payment.Salary <= 0 {
		s.log.WithField("payee_id", payment.PayeeID).Info("no salary to pay")
		return false, ErrNoSalary
	}

	err = s.accounts.Open(ctx, tx, payment.PayeeID, 0)
	switch {
	case err == nil:
		created = true
	case !errors.Is(err, ErrAlreadyExists):
		return false, err
	}

	payerBalance, found, err := s.accounts.lockBalance(ctx, tx, payment.PayerID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, ErrPayerNotFound
	}
	if payerBalance < payment.Salary+payment.BasicIncome {
		return false, ErrInsufficientFunds
	}

	if _, err := s.transferTx(ctx, tx, payment.PayerID, payment.PayeeID, payment.Salary, models.SalaryComment, false); err != nil {
		return false, err
	}
	if payment.BasicIncome > 0 {
		if _, err := s.transferTx(ctx, tx, payment.PayerID, payment.PayeeID, payment.BasicIncome, models.BasicIncomeComment, false); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, storageErr("commit salary", err)
	}
	return created, nil
}

// PayAllSalaries pays every job holder, biggest total salary first. A failed
// payment is recorded in the run and does not stop the others.
func (s *LedgerService) PayAllSalaries(ctx context.Context, payerID string) (models.PayrollRun, error) {
	run := models.PayrollRun{
		ID:        uuid.NewString(),
		PayerID:   payerID,
		StartedAt: time.Now(),
		Payments:  []models.SalaryPayment{},
	}

	totals, err := s.jobs.ListAllTotalSalaries(ctx)
	if err != nil {
		return run, err
	}

	for _, total := range totals {
		salary := total.Total
		payment, err := s.PaySalary(ctx, payerID, total.UserID, &salary)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"run_id":   run.ID,
				"payee_id": total.UserID,
				"salary":   salary,
			}).Warn("salary payment failed")
		}
		run.Payments = append(run.Payments, payment)
	}

	if err := s.publisher.PublishPayroll(ctx, run); err != nil {
		s.log.WithError(err).WithField("run_id", run.ID).Warn("failed to publish payroll event")
	}
	return run, nil
}

func (s *LedgerService) GetBalance(ctx context.Context, id string) (int64, error) {
	return s.accounts.GetBalance(ctx, id)
}

// History returns the transactions of an existing account, oldest first.
func (s *LedgerService) History(ctx context.Context, id string) ([]models.Transaction, error) {
	if _, err := s.accounts.GetBalance(ctx, id); err != nil {
		return nil, err
	}
	return s.txlog.History(ctx, id)
}

func (s *LedgerService) ListAllBalances(ctx context.Context) ([]models.AccountBalance, error) {
	return s.accounts.ListAllBalances(ctx)
}

func (s *LedgerService) ListAccountIDs(ctx context.Context) ([]string, error) {
	return s.accounts.ListAccountIDs(ctx)
}

func (s *LedgerService) MonthlyTaxTotal(ctx context.Context, month string) (int64, error) {
	return s.txlog.MonthlyTaxTotal(ctx, month)
}

func (s *LedgerService) AddJob(ctx context.Context, ownerID, title string, salary int64) (models.Job, error) {
	job, err := s.jobs.AddJob(ctx, ownerID, title, salary)
	if err != nil {
		return job, err
	}
	s.log.WithFields(logrus.Fields{"user_id": ownerID, "job_id": job.JobID, "salary": salary}).Info("job added")
	return job, nil
}

func (s *LedgerService) RemoveJob(ctx context.Context, ownerID string, jobID int64) (models.Job, error) {
	job, err := s.jobs.RemoveJob(ctx, ownerID, jobID)
	if err != nil {
		return job, err
	}
	s.log.WithFields(logrus.Fields{"user_id": ownerID, "job_id": jobID}).Info("job removed")
	return job, nil
}

func (s *LedgerService) GetJob(ctx context.Context, ownerID string, jobID int64) (models.Job, error) {
	return s.jobs.GetJob(ctx, ownerID, jobID)
}

func (s *LedgerService) ListJobs(ctx context.Context, ownerID string) ([]models.Job, error) {
	return s.jobs.ListJobs(ctx, ownerID)
}

func (s *LedgerService) ListAllJobs(ctx context.Context) ([]models.Job, error) {
	return s.jobs.ListAllJobs(ctx)
}

func (s *LedgerService) TotalSalary(ctx context.Context, ownerID string) (int64, error) {
	return s.jobs.TotalSalary(ctx, ownerID)
}

func (s *LedgerService) ListAllTotalSalaries(ctx context.Context) ([]models.SalaryTotal, error) {
	return s.jobs.ListAllTotalSalaries(ctx)
}

func (s *LedgerService) begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

func (s *LedgerService) refreshName(ctx context.Context, id string) {
	if s.names == nil {
		return
	}
	if _, err := s.names.RefreshName(ctx, id); err != nil {
		s.log.WithError(err).WithField("user_id", id).Warn("could not resolve display name")
	}
}

func (s *LedgerService) publishTransfer(ctx context.Context, fromID, toID string, amount, tax int64, comment string) {
	event := models.TransferEvent{
		EventID:   uuid.NewString(),
		FromID:    fromID,
		ToID:      toID,
		Amount:    amount,
		Tax:       tax,
		Comment:   comment,
		Timestamp: time.Now(),
	}
	if err := s.publisher.PublishTransfer(ctx, event); err != nil {
		s.log.WithError(err).WithField("event_id", event.EventID).Warn("failed to publish transfer event")
	}
}

// IsReservedComment reports whether comment would be read back as a tax leg.
func IsReservedComment(comment string) bool {
	return strings.EqualFold(strings.TrimSpace(comment), models.TaxComment)
}
