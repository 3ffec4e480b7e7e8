package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/ledgersync/internal/model"
)

// GetCategories returns every mirrored category ordered by id.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, emoji, direction FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	return collectCategories(rows)
}

// GetCategoriesByDirection returns the mirrored categories with direction.
func (s *SQLiteStorage) GetCategoriesByDirection(ctx context.Context, direction model.Direction) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidCategory, direction)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, emoji, direction FROM categories WHERE direction = ? ORDER BY id`, string(direction))
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	return collectCategories(rows)
}

// GetCategoryByID returns the mirrored category, or nil when unknown.
func (s *SQLiteStorage) GetCategoryByID(ctx context.Context, id int64) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT id, name, emoji, direction FROM categories WHERE id = ?`, id)
	category, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// ReplaceCategories swaps the entire category mirror for categories.
func (s *SQLiteStorage) ReplaceCategories(ctx context.Context, categories []model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.replaceCategories(ctx, "DELETE FROM categories", nil, categories)
}

// ReplaceCategoriesByDirection swaps only the categories of one direction,
// leaving the other direction untouched.
func (s *SQLiteStorage) ReplaceCategoriesByDirection(ctx context.Context, direction model.Direction, categories []model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if !direction.Valid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidCategory, direction)
	}
	for _, c := range categories {
		if c.Direction != direction {
			return fmt.Errorf("%w: category %d has direction %q, want %q", ErrInvalidCategory, c.ID, c.Direction, direction)
		}
	}
	return s.replaceCategories(ctx, "DELETE FROM categories WHERE direction = ?", []any{string(direction)}, categories)
}

func (s *SQLiteStorage) replaceCategories(ctx context.Context, clear string, clearArgs []any, categories []model.Category) error {
	for _, c := range categories {
		if err := validateCategory(c); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, clear, clearArgs...); err != nil {
			return fmt.Errorf("failed to clear categories: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO categories (id, name, emoji, direction) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				emoji = excluded.emoji,
				direction = excluded.direction
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, c := range categories {
			if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.Emoji, string(c.Direction)); err != nil {
				return fmt.Errorf("failed to save category %d: %w", c.ID, err)
			}
		}
		return nil
	})
}

func collectCategories(rows *sql.Rows) ([]model.Category, error) {
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

func scanCategory(row rowScanner) (model.Category, error) {
	var (
		c         model.Category
		direction string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Emoji, &direction); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan category: %w", err)
	}

	d, err := model.ParseDirection(direction)
	if err != nil {
		return c, fmt.Errorf("category %d: %w", c.ID, err)
	}
	c.Direction = d
	return c, nil
}
