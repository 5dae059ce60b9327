package models

import (
	"time"
)

// Comment attached to the tax leg of a taxed transfer.
const TaxComment = "Tax"

const (
	SalaryComment      = "Salary"
	BasicIncomeComment = "Basic income"
)

// Transaction is one append-only row of the transaction log.
type Transaction struct {
	ID        int64     `json:"id" db:"id"`
	FromID    string    `json:"fromId" db:"from_id"`
	ToID      string    `json:"toId" db:"to_id"`
	Amount    int64     `json:"amount" db:"amount"` // minor units, always > 0
	Comment   string    `json:"comment" db:"comment"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// TransferEvent is published after a unit of work commits.
type TransferEvent struct {
	EventID   string    `json:"eventId"`
	FromID    string    `json:"fromId"`
	ToID      string    `json:"toId"`
	Amount    int64     `json:"amount"`
	Tax       int64     `json:"tax"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}
