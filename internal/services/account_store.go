package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fibreville/tigris/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Open creates the account with the given balance. It fails with
// ErrAlreadyExists when id already has an account.
func (s *AccountStore) Open(ctx context.Context, q querier, id string, initialBalance int64) error {
	if q == nil {
		q = s.db
	}
	result, err := q.ExecContext(ctx, `
		INSERT INTO accounts (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		id, initialBalance)
	if err != nil {
		return storageErr("open account", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("open account", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *AccountStore) GetBalance(ctx context.Context, id string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = $1`, id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, storageErr("get balance", err)
	}
	return balance, nil
}

// SetName stores the display name for id, replacing any previous one.
func (s *AccountStore) SetName(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO names (user_id, name, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at`,
		id, name, time.Now())
	if err != nil {
		return storageErr("set name", err)
	}
	return nil
}

func (s *AccountStore) GetName(ctx context.Context, id string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM names WHERE user_id = $1`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNameNotFound
	}
	if err != nil {
		return "", storageErr("get name", err)
	}
	return name, nil
}

func (s *AccountStore) ListAllBalances(ctx context.Context) ([]models.AccountBalance, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, balance FROM accounts ORDER BY balance DESC, user_id ASC`)
	if err != nil {
		return nil, storageErr("list balances", err)
	}
	defer rows.Close()

	balances := []models.AccountBalance{}
	for rows.Next() {
		var b models.AccountBalance
		if err := rows.Scan(&b.UserID, &b.Balance); err != nil {
			return nil, storageErr("list balances", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list balances", err)
	}
	return balances, nil
}

func (s *AccountStore) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM accounts ORDER BY user_id ASC`)
	if err != nil {
		return nil, storageErr("list accounts", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("list accounts", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list accounts", err)
	}
	return ids, nil
}

// lockBalance reads the balance of id and holds its row lock until tx ends.
// found is false when id has no account.
func (s *AccountStore) lockBalance(ctx context.Context, tx *sql.Tx, id string) (balance int64, found bool, err error) {
	err = tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = $1 FOR UPDATE`, id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageErr("lock account", err)
	}
	return balance, true, nil
}

func (s *AccountStore) adjustBalance(ctx context.Context, tx *sql.Tx, id string, delta int64) error {
	result, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = balance + $1 WHERE user_id = $2`, delta, id)
	if err != nil {
		return storageErr("adjust balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("adjust balance", err)
	}
	if rowsAffected == 0 {
		return storageErr("adjust balance", sql.ErrNoRows)
	}
	return nil
}
