package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Veraticus/ledgersync/internal/model"
)

// ListOutbox returns every pending entry ordered by date, then by the order
// entries were last written.
func (s *SQLiteStorage) ListOutbox(ctx context.Context) ([]model.OutboxEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, action, payload, date, idempotency_key
		FROM outbox
		ORDER BY date, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox: %w", err)
	}
	return entries, nil
}

// GetOutbox returns the pending entry for (id, entity), or nil.
func (s *SQLiteStorage) GetOutbox(ctx context.Context, id int64, entity model.EntityType) (*model.OutboxEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, action, payload, date, idempotency_key
		FROM outbox
		WHERE id = ? AND entity_type = ?
	`, id, string(entity))

	entry, err := scanOutboxEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpsertOutbox writes entry, replacing any pending entry with the same id
// and entity type. A replaced entry moves to the back of its date bucket and
// receives a fresh idempotency key unless the caller supplied one.
func (s *SQLiteStorage) UpsertOutbox(ctx context.Context, entry model.OutboxEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateOutboxEntry(entry); err != nil {
		return err
	}

	key := entry.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox (id, entity_type, action, payload, date, seq, idempotency_key)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM outbox), ?)
		ON CONFLICT(id, entity_type) DO UPDATE SET
			action = excluded.action,
			payload = excluded.payload,
			date = excluded.date,
			seq = excluded.seq,
			idempotency_key = excluded.idempotency_key
	`, entry.ID, string(entry.EntityType), string(entry.Action), entry.Payload, toUnix(entry.Date), key)
	if err != nil {
		return fmt.Errorf("failed to upsert outbox entry %d/%s: %w", entry.ID, entry.EntityType, err)
	}
	return nil
}

// RemoveOutbox deletes the entry for (id, entity). Missing entries are ignored.
func (s *SQLiteStorage) RemoveOutbox(ctx context.Context, id int64, entity model.EntityType) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM outbox WHERE id = ? AND entity_type = ?", id, string(entity)); err != nil {
		return fmt.Errorf("failed to remove outbox entry %d/%s: %w", id, entity, err)
	}
	return nil
}

// RemoveOutboxMany deletes the entries for ids of one entity type in a
// single transaction.
func (s *SQLiteStorage) RemoveOutboxMany(ctx context.Context, ids []int64, entity model.EntityType) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(entity))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf("DELETE FROM outbox WHERE entity_type = ? AND id IN (%s)", strings.Join(placeholders, ","))
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to remove %d outbox entries: %w", len(ids), err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxEntry(row rowScanner) (model.OutboxEntry, error) {
	var (
		entry          model.OutboxEntry
		entityType     string
		action         string
		date           int64
		idempotencyKey string
	)
	if err := row.Scan(&entry.ID, &entityType, &action, &entry.Payload, &date, &idempotencyKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entry, err
		}
		return entry, fmt.Errorf("failed to scan outbox entry: %w", err)
	}

	parsed, err := model.ParseAction(action)
	if err != nil {
		return entry, fmt.Errorf("outbox entry %d: %w", entry.ID, err)
	}
	entry.EntityType = model.EntityType(entityType)
	entry.Action = parsed
	entry.Date = fromUnix(date)
	entry.IdempotencyKey = idempotencyKey
	return entry, nil
}
