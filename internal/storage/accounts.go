package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/ledgersync/internal/model"
)

const accountColumns = `id, user_id, name, balance, currency, created_at, updated_at`

// GetAccount returns the mirrored account, or nil when unknown.
func (s *SQLiteStorage) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccounts returns every mirrored account ordered by id.
func (s *SQLiteStorage) GetAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// UpsertAccount inserts or overwrites a mirrored account.
func (s *SQLiteStorage) UpsertAccount(ctx context.Context, account model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccount(account); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			balance = excluded.balance,
			currency = excluded.currency,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, account.ID, account.UserID, account.Name, account.Balance.String(), account.Currency,
		toUnix(account.CreatedAt), toUnix(account.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert account %d: %w", account.ID, err)
	}
	return nil
}

func scanAccount(row rowScanner) (model.Account, error) {
	var (
		a         model.Account
		balance   string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &balance, &a.Currency, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("failed to scan account: %w", err)
	}

	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return a, fmt.Errorf("account %d has invalid balance %q: %w", a.ID, balance, err)
	}
	a.Balance = parsed
	a.CreatedAt = fromUnix(createdAt)
	a.UpdatedAt = fromUnix(updatedAt)
	return a, nil
}
