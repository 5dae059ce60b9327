package services

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fibreville/tigris/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instant matches a time argument equal to want.
type instant struct {
	want time.Time
}

func (a instant) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	return ok && t.Equal(a.want)
}

const monthlyTaxSQL = `SELECT SUM\(amount\) FROM transactions WHERE comment = \$1`

func newTestTransactionLog(t *testing.T, now time.Time) (*TransactionLog, sqlmock.Sqlmock) {
	t.Helper()
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := NewTransactionLog(db)
	log.now = func() time.Time { return now }
	return log, dbMock
}

func TestTransactionLog_Append(t *testing.T) {
	now := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.Local)
	txlog, dbMock := newTestTransactionLog(t, now)

	dbMock.ExpectBegin()
	dbMock.ExpectExec(appendSQL).
		WithArgs("100", "200", int64(42), "rent", instant{now}).
		WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectCommit()

	tx, err := txlog.db.Begin()
	require.NoError(t, err)
	require.NoError(t, txlog.append(context.Background(), tx, "100", "200", 42, "rent"))
	require.NoError(t, tx.Commit())
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestTransactionLog_MonthlyTaxTotal(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.Local)
	march := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.Local)
	april := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.Local)

	t.Run("current month", func(t *testing.T) {
		txlog, dbMock := newTestTransactionLog(t, now)
		dbMock.ExpectQuery(monthlyTaxSQL).
			WithArgs(models.TaxComment, instant{march}, instant{april}).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1610))

		total, err := txlog.MonthlyTaxTotal(ctx, "")
		assert.NoError(t, err)
		assert.Equal(t, int64(1610), total)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("explicit month without tax", func(t *testing.T) {
		txlog, dbMock := newTestTransactionLog(t, now)
		dec := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.Local)
		jan := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.Local)
		dbMock.ExpectQuery(monthlyTaxSQL).
			WithArgs(models.TaxComment, instant{dec}, instant{jan}).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))

		_, err := txlog.MonthlyTaxTotal(ctx, "2025-12")
		assert.ErrorIs(t, err, ErrNoTax)
		assert.Equal(t, StatusNotFound, StatusOf(err))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("malformed month", func(t *testing.T) {
		txlog, dbMock := newTestTransactionLog(t, now)

		_, err := txlog.MonthlyTaxTotal(ctx, "March")
		assert.ErrorIs(t, err, ErrInvalidMonth)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}
