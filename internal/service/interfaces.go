// Package service defines the contracts between the sync engines, the local
// stores and the remote API.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/ledgersync/internal/model"
)

// OutboxStore is the durable log of mutations waiting for the server.
// Implementations must return errors rather than drop entries.
type OutboxStore interface {
	// ListOutbox returns every pending entry in queue order.
	ListOutbox(ctx context.Context) ([]model.OutboxEntry, error)
	// GetOutbox returns the entry for (id, entity) or nil when there is none.
	GetOutbox(ctx context.Context, id int64, entity model.EntityType) (*model.OutboxEntry, error)
	// UpsertOutbox inserts entry or overwrites the existing row for its key.
	UpsertOutbox(ctx context.Context, entry model.OutboxEntry) error
	RemoveOutbox(ctx context.Context, id int64, entity model.EntityType) error
	RemoveOutboxMany(ctx context.Context, ids []int64, entity model.EntityType) error
}

// TransactionMirror stores the last known server state of transactions.
type TransactionMirror interface {
	// TransactionsInRange returns the account's transactions dated in [from, to].
	TransactionsInRange(ctx context.Context, accountID int64, from, to time.Time) ([]model.Transaction, error)
	// GetTransaction returns nil when the id is unknown.
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	UpsertTransaction(ctx context.Context, t model.Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error
	// ReplaceTransactionsInRange swaps the rows in [from, to] for transactions atomically.
	ReplaceTransactionsInRange(ctx context.Context, accountID int64, from, to time.Time, transactions []model.Transaction) error
}

// CategoryMirror stores the last fetched categories.
type CategoryMirror interface {
	GetCategories(ctx context.Context) ([]model.Category, error)
	GetCategoriesByDirection(ctx context.Context, direction model.Direction) ([]model.Category, error)
	// GetCategoryByID returns nil when the id is unknown.
	GetCategoryByID(ctx context.Context, id int64) (*model.Category, error)
	ReplaceCategories(ctx context.Context, categories []model.Category) error
	ReplaceCategoriesByDirection(ctx context.Context, direction model.Direction, categories []model.Category) error
}

// AccountMirror stores the last known account state.
type AccountMirror interface {
	// GetAccount returns nil when the id is unknown.
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	GetAccounts(ctx context.Context) ([]model.Account, error)
	UpsertAccount(ctx context.Context, account model.Account) error
}

// Storage is everything the local store provides.
type Storage interface {
	OutboxStore
	TransactionMirror
	CategoryMirror
	AccountMirror

	Migrate(ctx context.Context) error
	Close() error
}

// AccountAPI is the server side of the account.
type AccountAPI interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	UpdateAccount(ctx context.Context, account model.Account) (model.Account, error)
}

// CategoryAPI is the server side of the categories.
type CategoryAPI interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	CategoriesByDirection(ctx context.Context, direction model.Direction) ([]model.Category, error)
}

// TransactionAPI is the server side of the transactions.
type TransactionAPI interface {
	CreateTransaction(ctx context.Context, draft model.TransactionDraft) (model.Transaction, error)
	UpdateTransaction(ctx context.Context, t model.Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error
	TransactionsForPeriod(ctx context.Context, accountID int64, from, to time.Time) ([]model.Transaction, error)
}

// RemoteAPI is the full backend surface consumed by the engines.
type RemoteAPI interface {
	AccountAPI
	CategoryAPI
	TransactionAPI
}

// DateRange represents a time period with start and end dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// CategorySummary contains aggregated statistics for a category.
type CategorySummary struct {
	Category model.Category
	Amount   decimal.Decimal
	Count    int
}

// CashFlowSummary contains income, expense, and net flow for a period.
type CashFlowSummary struct {
	DateRange          DateRange
	IncomeByCategory   map[int64]CategorySummary
	ExpensesByCategory map[int64]CategorySummary
	TotalIncome        decimal.Decimal
	TotalExpenses      decimal.Decimal
	NetCashFlow        decimal.Decimal
}
