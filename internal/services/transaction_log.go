package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fibreville/tigris/internal/models"
)

type TransactionLog struct {
	db  *sql.DB
	now func() time.Time
}

func NewTransactionLog(db *sql.DB) *TransactionLog {
	return &TransactionLog{db: db, now: time.Now}
}

func (l *TransactionLog) append(ctx context.Context, tx *sql.Tx, fromID, toID string, amount int64, comment string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (from_id, to_id, amount, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		fromID, toID, amount, comment, l.now().In(time.Local))
	if err != nil {
		return storageErr("append transaction", err)
	}
	return nil
}

// History returns every transaction sent or received by id, oldest first.
func (l *TransactionLog) History(ctx context.Context, id string) ([]models.Transaction, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, from_id, to_id, amount, comment, created_at FROM transactions
		WHERE from_id = $1 OR to_id = $1
		ORDER BY id ASC`, id)
	if err != nil {
		return nil, storageErr("history", err)
	}
	defer rows.Close()

	history := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.FromID, &t.ToID, &t.Amount, &t.Comment, &t.CreatedAt); err != nil {
			return nil, storageErr("history", err)
		}
		history = append(history, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("history", err)
	}
	return history, nil
}

// MonthlyTaxTotal sums the tax collected during month ("YYYY-MM"; empty or
// "current" for the current month). ErrNoTax is returned when no tax
// transaction falls in that month.
func (l *TransactionLog) MonthlyTaxTotal(ctx context.Context, month string) (int64, error) {
	start, err := l.monthStart(month)
	if err != nil {
		return 0, err
	}
	end := start.AddDate(0, 1, 0)

	var total sql.NullInt64
	err = l.db.QueryRowContext(ctx, `
		SELECT SUM(amount) FROM transactions
		WHERE comment = $1 AND created_at >= $2 AND created_at < $3`,
		models.TaxComment, start, end).Scan(&total)
	if err != nil {
		return 0, storageErr("monthly tax", err)
	}
	if !total.Valid {
		return 0, fmt.Errorf("%w: %s", ErrNoTax, start.Format("2006-01"))
	}
	return total.Int64, nil
}

func (l *TransactionLog) monthStart(month string) (time.Time, error) {
	month = strings.TrimSpace(month)
	if month == "" || strings.EqualFold(month, "current") {
		now := l.now().In(time.Local)
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.Local), nil
	}
	start, err := time.ParseInLocation("2006-01", month, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return start, nil
}
