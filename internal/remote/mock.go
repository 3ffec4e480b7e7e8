package remote

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/ledgersync/internal/model"
	"github.com/Veraticus/ledgersync/internal/service"
)

// MockAPI is a mock implementation of service.RemoteAPI for testing.
type MockAPI struct {
	// Functions that can be set by tests to control behavior
	ListAccountsFn          func(ctx context.Context) ([]model.Account, error)
	UpdateAccountFn         func(ctx context.Context, account model.Account) (model.Account, error)
	ListCategoriesFn        func(ctx context.Context) ([]model.Category, error)
	CategoriesByDirectionFn func(ctx context.Context, direction model.Direction) ([]model.Category, error)
	CreateTransactionFn     func(ctx context.Context, draft model.TransactionDraft) (model.Transaction, error)
	UpdateTransactionFn     func(ctx context.Context, t model.Transaction) error
	DeleteTransactionFn     func(ctx context.Context, id int64) error
	TransactionsForPeriodFn func(ctx context.Context, accountID int64, from, to time.Time) ([]model.Transaction, error)

	// Call tracking
	UpdateAccountCalls     []model.Account
	CreateTransactionCalls []model.TransactionDraft
	UpdateTransactionCalls []model.Transaction
	DeleteTransactionCalls []int64
	PeriodCalls            []PeriodCall
	ListAccountsCalls      int
	ListCategoriesCalls    int

	mu sync.Mutex
}

// PeriodCall records the parameters of a TransactionsForPeriod call.
type PeriodCall struct {
	From      time.Time
	To        time.Time
	AccountID int64
}

// NewMockAPI creates a new mock backend.
func NewMockAPI() *MockAPI {
	return &MockAPI{}
}

var _ service.RemoteAPI = (*MockAPI)(nil)

// ListAccounts implements service.AccountAPI.
func (m *MockAPI) ListAccounts(ctx context.Context) ([]model.Account, error) {
	m.mu.Lock()
	m.ListAccountsCalls++
	fn := m.ListAccountsFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return []model.Account{}, nil
}

// UpdateAccount implements service.AccountAPI. By default it echoes the account.
func (m *MockAPI) UpdateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	m.mu.Lock()
	m.UpdateAccountCalls = append(m.UpdateAccountCalls, account)
	fn := m.UpdateAccountFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, account)
	}
	return account, nil
}

// ListCategories implements service.CategoryAPI.
func (m *MockAPI) ListCategories(ctx context.Context) ([]model.Category, error) {
	m.mu.Lock()
	m.ListCategoriesCalls++
	fn := m.ListCategoriesFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return []model.Category{}, nil
}

// CategoriesByDirection implements service.CategoryAPI.
func (m *MockAPI) CategoriesByDirection(ctx context.Context, direction model.Direction) ([]model.Category, error) {
	m.mu.Lock()
	fn := m.CategoriesByDirectionFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, direction)
	}
	return []model.Category{}, nil
}

// CreateTransaction implements service.TransactionAPI.
func (m *MockAPI) CreateTransaction(ctx context.Context, draft model.TransactionDraft) (model.Transaction, error) {
	m.mu.Lock()
	m.CreateTransactionCalls = append(m.CreateTransactionCalls, draft)
	fn := m.CreateTransactionFn
	n := len(m.CreateTransactionCalls)
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, draft)
	}
	return draft.WithID(int64(1000+n), time.Now().UTC()), nil
}

// UpdateTransaction implements service.TransactionAPI.
func (m *MockAPI) UpdateTransaction(ctx context.Context, t model.Transaction) error {
	m.mu.Lock()
	m.UpdateTransactionCalls = append(m.UpdateTransactionCalls, t)
	fn := m.UpdateTransactionFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, t)
	}
	return nil
}

// DeleteTransaction implements service.TransactionAPI.
func (m *MockAPI) DeleteTransaction(ctx context.Context, id int64) error {
	m.mu.Lock()
	m.DeleteTransactionCalls = append(m.DeleteTransactionCalls, id)
	fn := m.DeleteTransactionFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	return nil
}

// TransactionsForPeriod implements service.TransactionAPI.
func (m *MockAPI) TransactionsForPeriod(ctx context.Context, accountID int64, from, to time.Time) ([]model.Transaction, error) {
	m.mu.Lock()
	m.PeriodCalls = append(m.PeriodCalls, PeriodCall{AccountID: accountID, From: from, To: to})
	fn := m.TransactionsForPeriodFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, accountID, from, to)
	}
	return []model.Transaction{}, nil
}

// CallCount returns the number of mutating calls made so far.
func (m *MockAPI) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.UpdateAccountCalls) + len(m.CreateTransactionCalls) +
		len(m.UpdateTransactionCalls) + len(m.DeleteTransactionCalls)
}

// Reset clears all call tracking.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateAccountCalls = nil
	m.CreateTransactionCalls = nil
	m.UpdateTransactionCalls = nil
	m.DeleteTransactionCalls = nil
	m.PeriodCalls = nil
	m.ListAccountsCalls = 0
	m.ListCategoriesCalls = 0
}
