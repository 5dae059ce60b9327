package services

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyExists     = errors.New("account already exists")
	ErrSelfTransfer      = errors.New("sender and recipient are the same account")
	ErrInvalidAmount     = errors.New("amount must be strictly positive")
	ErrSenderNotFound    = errors.New("sender has no account")
	ErrRecipientNotFound = errors.New("recipient has no account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTaxTransferFailed = errors.New("tax transfer failed")
	ErrNoSalary          = errors.New("no salary to pay")
	ErrPayerNotFound     = errors.New("payer has no account")
	ErrJobNotFound       = errors.New("job not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrNameNotFound      = errors.New("name not found")
	ErrNoJobs            = errors.New("user has no job")
	ErrNoTax             = errors.New("no tax collected for month")
	ErrInvalidMonth      = errors.New("month must be formatted YYYY-MM")
	ErrReservedComment   = errors.New("comment is reserved for tax entries")
	ErrStorageFailure    = errors.New("storage failure")

	ErrDirectoryUnavailable = errors.New("name directory unavailable")
)

// Status is the machine-readable outcome recorded in payroll reports and API
// responses.
type Status string

const (
	StatusSuccess           Status = "success"
	StatusAlreadyExists     Status = "already_exists"
	StatusSelfTransfer      Status = "self_transfer"
	StatusInvalidAmount     Status = "invalid_amount"
	StatusSenderNotFound    Status = "sender_not_found"
	StatusRecipientNotFound Status = "recipient_not_found"
	StatusInsufficientFunds Status = "insufficient_funds"
	StatusTaxTransferFailed Status = "tax_transfer_failed"
	StatusNoSalary          Status = "no_salary"
	StatusPayerNotFound     Status = "payer_not_found"
	StatusNotFound          Status = "not_found"
	StatusInvalidMonth      Status = "invalid_month"
	StatusReservedComment   Status = "reserved_comment"
	StatusStorageFailure    Status = "storage_failure"

	StatusDirectoryUnavailable Status = "directory_unavailable"
)

var statusByErr = []struct {
	err    error
	status Status
}{
	{ErrStorageFailure, StatusStorageFailure},
	{ErrAlreadyExists, StatusAlreadyExists},
	{ErrSelfTransfer, StatusSelfTransfer},
	{ErrInvalidAmount, StatusInvalidAmount},
	{ErrSenderNotFound, StatusSenderNotFound},
	{ErrRecipientNotFound, StatusRecipientNotFound},
	{ErrInsufficientFunds, StatusInsufficientFunds},
	{ErrTaxTransferFailed, StatusTaxTransferFailed},
	{ErrNoSalary, StatusNoSalary},
	{ErrPayerNotFound, StatusPayerNotFound},
	{ErrJobNotFound, StatusNotFound},
	{ErrAccountNotFound, StatusNotFound},
	{ErrNameNotFound, StatusNotFound},
	{ErrNoJobs, StatusNotFound},
	{ErrNoTax, StatusNotFound},
	{ErrInvalidMonth, StatusInvalidMonth},
	{ErrReservedComment, StatusReservedComment},
	{ErrDirectoryUnavailable, StatusDirectoryUnavailable},
}

// StatusOf maps an engine error to its status code. Storage failures take
// precedence over any other error they wrap or are wrapped by; unknown errors
// are storage failures.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	for _, s := range statusByErr {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return StatusStorageFailure
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}
