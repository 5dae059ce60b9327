package audit

import (
	"time"

	"github.com/sirupsen/logrus"
)

type AuditEvent struct {
	Timestamp time.Time
	EventType string
	AccountID string
	Amount    int64
	Status    string
	Details   logrus.Fields
}

// AuditLogger writes one structured entry per ledger mutation.
type AuditLogger struct {
	log *logrus.Logger
}

func NewAuditLogger(log *logrus.Logger) *AuditLogger {
	return &AuditLogger{log: log}
}

func (a *AuditLogger) LogTransfer(fromAccount, toAccount string, amount, tax int64, status string) {
	a.write(AuditEvent{
		Timestamp: time.Now(),
		EventType: "TRANSFER",
		AccountID: fromAccount,
		Amount:    amount,
		Status:    status,
		Details: logrus.Fields{
			"to_account": toAccount,
			"tax":        tax,
		},
	})
}

func (a *AuditLogger) LogSalary(payerAccount, payeeAccount string, salary int64, status string) {
	a.write(AuditEvent{
		Timestamp: time.Now(),
		EventType: "SALARY",
		AccountID: payerAccount,
		Amount:    salary,
		Status:    status,
		Details:   logrus.Fields{"payee_account": payeeAccount},
	})
}

func (a *AuditLogger) LogOperation(accountID, operation, status string) {
	a.write(AuditEvent{
		Timestamp: time.Now(),
		EventType: operation,
		AccountID: accountID,
		Status:    status,
	})
}

func (a *AuditLogger) write(event AuditEvent) {
	fields := logrus.Fields{
		"audit":      true,
		"event_type": event.EventType,
		"account_id": event.AccountID,
		"status":     event.Status,
		"event_time": event.Timestamp,
	}
	if event.Amount != 0 {
		fields["amount"] = event.Amount
	}
	for k, v := range event.Details {
		fields[k] = v
	}

	entry := a.log.WithFields(fields)
	if event.Status == "success" {
		entry.Info("AUDIT")
		return
	}
	entry.Warn("AUDIT")
}
