package testutil

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/ledgersync/internal/model"
	"github.com/Veraticus/ledgersync/internal/remote"
	"github.com/Veraticus/ledgersync/internal/service"
)

var errBackendDown = errors.New("connection refused")

// Backend is an in-memory stand-in for the finance server. While Down is
// set every call fails with a transport error.
type Backend struct {
	transactions map[int64]model.Transaction
	accounts     []model.Account
	categories   []model.Category
	nextID       int64
	mu           sync.Mutex
	down         bool
	calls        int
}

var _ service.RemoteAPI = (*Backend)(nil)

// NewBackend creates a backend holding the default account and categories.
func NewBackend() *Backend {
	return &Backend{
		transactions: make(map[int64]model.Transaction),
		accounts:     []model.Account{DefaultAccount()},
		categories:   DefaultCategories(),
		nextID:       100,
	}
}

// SetDown makes the backend unreachable or reachable again.
func (b *Backend) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

// Calls returns how many requests reached the backend while it was up.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Transactions returns the stored transactions ordered by ID.
func (b *Backend) Transactions() []model.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Transaction, 0, len(b.transactions))
	for _, t := range b.transactions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetAccount replaces the server's account.
func (b *Backend) SetAccount(a model.Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts = []model.Account{a}
}

// Account returns the server's account.
func (b *Backend) Account() model.Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[0]
}

// Seed stores transactions as if created earlier.
func (b *Backend) Seed(txns ...model.Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range txns {
		b.transactions[t.ID] = t
	}
}

// Ping implements connectivity.Prober.
func (b *Backend) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enter("GET", "accounts")
}

// enter must be called with mu held.
func (b *Backend) enter(method, path string) error {
	if b.down {
		return &remote.TransportError{Method: method, Path: path, Err: errBackendDown}
	}
	b.calls++
	return nil
}

// ListAccounts implements service.AccountAPI.
func (b *Backend) ListAccounts(context.Context) ([]model.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(http.MethodGet, "accounts"); err != nil {
		return nil, err
	}
	return append([]model.Account(nil), b.accounts...), nil
}

// UpdateAccount implements service.AccountAPI.
func (b *Backend) UpdateAccount(_ context.Context, account model.Account) (model.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(http.MethodPut, "accounts"); err != nil {
		return model.Account{}, err
	}
	for i := range b.accounts {
		if b.accounts[i].ID == account.ID {
			account.UpdatedAt = time.Now().UTC()
			b.accounts[i] = account
			return account, nil
		}
	}
	return model.Account{}, &remote.HTTPError{Method: http.MethodPut, Path: "accounts", Status: http.StatusNotFound}
}

// ListCategories implements service.CategoryAPI.
func (b *Backend) ListCategories(context.Context) ([]model.Category, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(http.MethodGet, "categories"); err != nil {
		return nil, err
	}
	return append([]model.Category(nil), b.categories...), nil
}

// CategoriesByDirection implements service.CategoryAPI.
func (b *Backend) CategoriesByDirection(_ context.Context, direction model.Direction) ([]model.Category, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(http.MethodGet, "categories/type"); err != nil {
		return nil, err
	}
	var out []model.Category
	for _, c := range b.categories {
		if c.Direction == direction {
			out = append(out, c)
		}
	}
	return out, nil
}

// CreateTransaction implements service.TransactionAPI.
func (b *Backend) CreateTransaction(_ context.Context, draft model.TransactionDraft) (model.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(http.MethodPost, "transactions"); err != nil {
		return model.Transaction{}, err
	}
	b.nextID++
	t := draft.WithID(b.nextID, time.Now().UTC())
	b.transactions[t.ID] = t
	return t, nil
}

// UpdateTransaction implements service.TransactionAPI.
func (b *Backend) UpdateTransaction(_ context.Context, t model.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(http.MethodPut, "transactions"); err != nil {
		return err
	}
	if _, ok := b.transactions[t.ID]; !ok {
		return &remote.HTTPError{Method: http.MethodPut, Path: "transactions", Status: http.StatusNotFound}
	}
	b.transactions[t.ID] = t
	return nil
}

// DeleteTransaction implements service.TransactionAPI.
func (b *Backend) DeleteTransaction(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(http.MethodDelete, "transactions"); err != nil {
		return err
	}
	if _, ok := b.transactions[id]; !ok {
		return &remote.HTTPError{Method: http.MethodDelete, Path: "transactions", Status: http.StatusNotFound}
	}
	delete(b.transactions, id)
	return nil
}

// TransactionsForPeriod implements service.TransactionAPI.
func (b *Backend) TransactionsForPeriod(_ context.Context, accountID int64, from, to time.Time) ([]model.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(http.MethodGet, "transactions/account"); err != nil {
		return nil, err
	}
	var out []model.Transaction
	for _, t := range b.transactions {
		if t.InRange(accountID, from, to) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
