// Package testutil provides test fixtures for ledgersync packages: a migrated
// in-memory store with seed helpers, and an in-memory backend.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/ledgersync/internal/model"
	"github.com/Veraticus/ledgersync/internal/storage"
)

// Fixture IDs used across package tests.
const (
	AccountID        int64 = 1
	SalaryCategoryID int64 = 10
	FoodCategoryID   int64 = 20
	RentCategoryID   int64 = 21
)

// TestDB wraps a migrated in-memory store.
type TestDB struct {
	*storage.SQLiteStorage
	t *testing.T
}

// TestDBOptions configures SetupTestDBWithOptions.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Account        *model.Account
	Categories     []model.Category
	SkipMigrations bool
}

// SetupTestDB creates a new in-memory database seeded with the default
// account and categories. It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.SeedTransactions(testutil.Transaction(5, testutil.FoodCategoryID, "12.50", day))
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	account := DefaultAccount()
	return SetupTestDBWithOptions(t, TestDBOptions{
		Account:    &account,
		Categories: DefaultCategories(),
	})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if len(opts.Categories) > 0 {
		if err := store.ReplaceCategories(ctx, opts.Categories); err != nil {
			t.Fatalf("failed to seed categories: %v", err)
		}
	}
	if opts.Account != nil {
		if err := store.UpsertAccount(ctx, *opts.Account); err != nil {
			t.Fatalf("failed to seed account: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{SQLiteStorage: store, t: t}
}

// SeedTransactions mirrors transactions or fails the test.
func (db *TestDB) SeedTransactions(txns ...model.Transaction) {
	db.t.Helper()
	for _, txn := range txns {
		if err := db.UpsertTransaction(context.Background(), txn); err != nil {
			db.t.Fatalf("failed to seed transaction %d: %v", txn.ID, err)
		}
	}
}

// MustOutbox returns the current outbox or fails the test.
func (db *TestDB) MustOutbox() []model.OutboxEntry {
	db.t.Helper()
	entries, err := db.ListOutbox(context.Background())
	if err != nil {
		db.t.Fatalf("failed to list outbox: %v", err)
	}
	return entries
}

// DefaultAccount is a RUB account holding 1000.00.
func DefaultAccount() model.Account {
	created := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	return model.Account{
		ID:        AccountID,
		UserID:    1,
		Name:      "Main",
		Balance:   decimal.RequireFromString("1000.00"),
		Currency:  "RUB",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// DefaultCategories returns one income and two outcome categories.
func DefaultCategories() []model.Category {
	return []model.Category{
		{ID: SalaryCategoryID, Name: "Salary", Emoji: "💰", Direction: model.DirectionIncome},
		{ID: FoodCategoryID, Name: "Food", Emoji: "🍔", Direction: model.DirectionOutcome},
		{ID: RentCategoryID, Name: "Rent", Emoji: "🏠", Direction: model.DirectionOutcome},
	}
}

// Transaction builds a transaction on the default account.
func Transaction(id, categoryID int64, amount string, date time.Time) model.Transaction {
	return model.Transaction{
		ID:              id,
		AccountID:       AccountID,
		CategoryID:      categoryID,
		Amount:          decimal.RequireFromString(amount),
		TransactionDate: date,
		CreatedAt:       date,
		UpdatedAt:       date,
	}
}

// Draft builds a create request on the default account.
func Draft(categoryID int64, amount string, date time.Time) model.TransactionDraft {
	return model.TransactionDraft{
		AccountID:       AccountID,
		CategoryID:      categoryID,
		Amount:          decimal.RequireFromString(amount),
		TransactionDate: date,
	}
}
