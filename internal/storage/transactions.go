package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/ledgersync/internal/model"
)

const transactionColumns = `id, account_id, category_id, amount, transaction_date, comment, created_at, updated_at`

// TransactionsInRange returns the account's mirrored transactions dated in
// [from, to], oldest first.
func (s *SQLiteStorage) TransactionsInRange(ctx context.Context, accountID int64, from, to time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, ErrInvalidDateRange
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = ? AND transaction_date >= ? AND transaction_date <= ?
		ORDER BY transaction_date, id
	`, accountID, toUnix(from), toUnix(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

// GetTransaction returns the mirrored transaction, or nil when unknown.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// UpsertTransaction inserts or overwrites a mirrored transaction.
func (s *SQLiteStorage) UpsertTransaction(ctx context.Context, t model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(t); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertTransactionTx(ctx, tx, t)
	})
}

// DeleteTransaction removes a mirrored transaction. Unknown ids are ignored.
func (s *SQLiteStorage) DeleteTransaction(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete transaction %d: %w", id, err)
	}
	return nil
}

// ReplaceTransactionsInRange removes every mirrored transaction of the
// account dated in [from, to] and stores transactions in their place, in one
// database transaction.
func (s *SQLiteStorage) ReplaceTransactionsInRange(ctx context.Context, accountID int64, from, to time.Time, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if to.Before(from) {
		return ErrInvalidDateRange
	}
	for _, t := range transactions {
		if err := validateTransaction(t); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM transactions
			WHERE account_id = ? AND transaction_date >= ? AND transaction_date <= ?
		`, accountID, toUnix(from), toUnix(to)); err != nil {
			return fmt.Errorf("failed to clear transactions in range: %w", err)
		}

		for _, t := range transactions {
			if err := upsertTransactionTx(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertTransactionTx(ctx context.Context, tx *sql.Tx, t model.Transaction) error {
	var comment sql.NullString
	if t.Comment != nil {
		comment = sql.NullString{String: *t.Comment, Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			category_id = excluded.category_id,
			amount = excluded.amount,
			transaction_date = excluded.transaction_date,
			comment = excluded.comment,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, t.ID, t.AccountID, t.CategoryID, t.Amount.String(), toUnix(t.TransactionDate),
		comment, toUnix(t.CreatedAt), toUnix(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %d: %w", t.ID, err)
	}
	return nil
}

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var (
		t         model.Transaction
		amount    string
		date      int64
		comment   sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&t.ID, &t.AccountID, &t.CategoryID, &amount, &date, &comment, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("failed to scan transaction: %w", err)
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return t, fmt.Errorf("transaction %d has invalid amount %q: %w", t.ID, amount, err)
	}
	t.Amount = parsed
	t.TransactionDate = fromUnix(date)
	t.CreatedAt = fromUnix(createdAt)
	t.UpdatedAt = fromUnix(updatedAt)
	if comment.Valid {
		c := comment.String
		t.Comment = &c
	}
	return t, nil
}
