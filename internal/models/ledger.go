package models

import (
	"time"
)

type Account struct {
	UserID  string `json:"userId" db:"user_id"`
	Balance int64  `json:"balance" db:"balance"` // minor units
	Name    string `json:"name,omitempty" db:"name"`
}

// AccountBalance is one row of the all-balances listing.
type AccountBalance struct {
	UserID  string `json:"userId" db:"user_id"`
	Balance int64  `json:"balance" db:"balance"`
}

type Job struct {
	UserID string `json:"userId" db:"user_id"`
	JobID  int64  `json:"jobId" db:"job_id"`
	Title  string `json:"title" db:"title"`
	Salary int64  `json:"salary" db:"salary"` // minor units
}

type SalaryTotal struct {
	UserID string `json:"userId" db:"user_id"`
	Total  int64  `json:"total" db:"total"`
}

type SalaryPayment struct {
	PayerID     string `json:"payerId"`
	PayeeID     string `json:"payeeId"`
	Salary      int64  `json:"salary"`
	BasicIncome int64  `json:"basicIncome"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

type PayrollRun struct {
	ID        string          `json:"id"`
	PayerID   string          `json:"payerId"`
	StartedAt time.Time       `json:"startedAt"`
	Payments  []SalaryPayment `json:"payments"`
}
