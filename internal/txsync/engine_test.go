package txsync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/ledgersync/internal/account"
	"github.com/Veraticus/ledgersync/internal/common"
	"github.com/Veraticus/ledgersync/internal/model"
	"github.com/Veraticus/ledgersync/internal/remote"
	"github.com/Veraticus/ledgersync/internal/service"
	"github.com/Veraticus/ledgersync/internal/testutil"
)

var fixedNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 9, 30, 0, 0, time.UTC)
}

type harness struct {
	db      *testutil.TestDB
	balance *account.Reconciler
	engine  *Engine
}

type harnessConfig struct {
	engineOpts []Option
	balance    string
	offline    bool
}

func newHarness(t *testing.T, api service.RemoteAPI, cfg harnessConfig) *harness {
	t.Helper()

	acct := testutil.DefaultAccount()
	if cfg.balance != "" {
		acct.Balance = decimal.RequireFromString(cfg.balance)
	}
	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{
		Account:    &acct,
		Categories: testutil.DefaultCategories(),
	})

	clock := func() time.Time { return fixedNow }
	balance := account.NewReconciler(db, api, account.WithClock(clock), account.WithOffline(cfg.offline))
	_, err := balance.FirstAccount(context.Background())
	require.NoError(t, err)

	opts := append([]Option{WithClock(clock)}, cfg.engineOpts...)
	return &harness{
		db:      db,
		balance: balance,
		engine:  NewEngine(db, api, balance, opts...),
	}
}

func (h *harness) currentBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := h.balance.CurrentBalance(context.Background())
	require.NoError(t, err)
	return b
}

func (h *harness) queue(t *testing.T, txn model.Transaction, action model.Action) {
	t.Helper()
	require.NoError(t, h.engine.enqueue(context.Background(), txn, action))
}

func (h *harness) transactionEntries() []model.OutboxEntry {
	var out []model.OutboxEntry
	for _, e := range h.db.MustOutbox() {
		if e.EntityType == model.EntityTransaction {
			out = append(out, e)
		}
	}
	return out
}

func mockAPI() *remote.MockAPI {
	api := remote.NewMockAPI()
	api.ListAccountsFn = func(context.Context) ([]model.Account, error) {
		return []model.Account{testutil.DefaultAccount()}, nil
	}
	return api
}

// unreachable makes every transaction call on api fail as if the server
// were down.
func unreachable(api *remote.MockAPI) {
	down := &remote.TransportError{Method: http.MethodGet, Path: "transactions", Err: errors.New("connection refused")}
	api.CreateTransactionFn = func(context.Context, model.TransactionDraft) (model.Transaction, error) {
		return model.Transaction{}, down
	}
	api.UpdateTransactionFn = func(context.Context, model.Transaction) error { return down }
	api.DeleteTransactionFn = func(context.Context, int64) error { return down }
	api.TransactionsForPeriodFn = func(context.Context, int64, time.Time, time.Time) ([]model.Transaction, error) {
		return nil, down
	}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func ids(txns []model.Transaction) []int64 {
	out := make([]int64, 0, len(txns))
	for _, t := range txns {
		out = append(out, t.ID)
	}
	return out
}

func TestEngine_OfflineCreateEditDelete(t *testing.T) {
	api := mockAPI()
	h := newHarness(t, api, harnessConfig{offline: true})
	ctx := context.Background()
	api.Reset()

	created, err := h.engine.Create(ctx, testutil.Draft(testutil.FoodCategoryID, "150.00", day(3)))
	require.ErrorIs(t, err, common.ErrPendingSync)
	assert.Less(t, created.ID, int64(0))
	assertAmount(t, "850.00", h.currentBalance(t))

	created.Amount = decimal.RequireFromString("50.00")
	edited, err := h.engine.Edit(ctx, created)
	require.ErrorIs(t, err, common.ErrPendingSync)
	assert.Equal(t, created.ID, edited.ID)
	assertAmount(t, "950.00", h.currentBalance(t))

	require.NoError(t, h.engine.Delete(ctx, created.ID))
	assertAmount(t, "1000.00", h.currentBalance(t))

	assert.Empty(t, h.transactionEntries())
	assert.Zero(t, api.CallCount())
}

func TestEngine_OfflineCreatesDrainAfterReconnect(t *testing.T) {
	backend := testutil.NewBackend()
	start := testutil.DefaultAccount()
	start.Balance = decimal.Zero
	backend.SetAccount(start)

	h := newHarness(t, backend, harnessConfig{offline: true, balance: "0"})
	ctx := context.Background()

	first, err := h.engine.Create(ctx, testutil.Draft(testutil.SalaryCategoryID, "200.00", day(2)))
	require.ErrorIs(t, err, common.ErrPendingSync)
	second, err := h.engine.Create(ctx, testutil.Draft(testutil.SalaryCategoryID, "300.00", day(4)))
	require.ErrorIs(t, err, common.ErrPendingSync)
	assert.Less(t, second.ID, first.ID)
	assertAmount(t, "500.00", h.currentBalance(t))

	backend.SetDown(true)
	local, err := h.engine.Transactions(ctx, testutil.AccountID, day(1), day(28))
	require.NoError(t, err)
	assert.Equal(t, []int64{second.ID, first.ID}, ids(local))
	assert.Len(t, h.transactionEntries(), 2)

	backend.SetDown(false)
	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Total: 2, Synced: 2}, report)
	require.NoError(t, h.balance.GoOnline(ctx))

	assert.Empty(t, h.db.MustOutbox())
	assertAmount(t, "500.00", backend.Account().Balance)
	assertAmount(t, "500.00", h.currentBalance(t))

	mirrored, err := h.db.TransactionsInRange(ctx, testutil.AccountID, day(1), day(28))
	require.NoError(t, err)
	require.Len(t, mirrored, 2)
	for _, txn := range mirrored {
		assert.Positive(t, txn.ID)
	}

	fetched, err := h.engine.Transactions(ctx, testutil.AccountID, day(1), day(28))
	require.NoError(t, err)
	require.Len(t, fetched, 2)
	for _, txn := range fetched {
		assert.Positive(t, txn.ID)
	}
	assert.Len(t, backend.Transactions(), 2)
}

func TestEngine_TransactionsFallbackMergesOutbox(t *testing.T) {
	backend := testutil.NewBackend()
	h := newHarness(t, backend, harnessConfig{})
	ctx := context.Background()

	kept := testutil.Transaction(4, testutil.FoodCategoryID, "10.00", day(2))
	gone := testutil.Transaction(5, testutil.FoodCategoryID, "20.00", day(3))
	h.db.SeedTransactions(kept, gone)
	h.queue(t, gone, model.ActionDelete)

	backend.SetDown(true)
	got, err := h.engine.Transactions(ctx, testutil.AccountID, day(1), day(10))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(4), got[0].ID)
	assert.True(t, h.balance.IsOffline())

	// The failed replay leaves the delete queued.
	assert.Len(t, h.transactionEntries(), 1)
}

func TestEngine_MergedOverlay(t *testing.T) {
	api := mockAPI()
	h := newHarness(t, api, harnessConfig{offline: true})
	ctx := context.Background()

	h.db.SeedTransactions(
		testutil.Transaction(1, testutil.FoodCategoryID, "10.00", day(1)),
		testutil.Transaction(2, testutil.FoodCategoryID, "20.00", day(3)),
		testutil.Transaction(3, testutil.FoodCategoryID, "30.00", day(6)),
	)

	moved := testutil.Transaction(1, testutil.FoodCategoryID, "11.00", day(5))
	h.queue(t, moved, model.ActionUpdate)
	h.queue(t, testutil.Transaction(-9, testutil.SalaryCategoryID, "1.00", day(4)), model.ActionCreate)
	h.queue(t, testutil.Transaction(-8, testutil.SalaryCategoryID, "1.00", day(20)), model.ActionCreate)
	h.queue(t, testutil.Transaction(3, testutil.FoodCategoryID, "30.00", day(25)), model.ActionUpdate)

	unreachable(api)
	got, err := h.engine.Transactions(ctx, testutil.AccountID, day(1), day(10))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, -9, 2}, ids(got))
	assertAmount(t, "11.00", got[0].Amount)
}

func TestEngine_BalanceMatchesQueuedCreates(t *testing.T) {
	h := newHarness(t, mockAPI(), harnessConfig{offline: true})
	ctx := context.Background()

	create := func(categoryID int64, amount string) model.Transaction {
		txn, err := h.engine.Create(ctx, testutil.Draft(categoryID, amount, day(2)))
		require.ErrorIs(t, err, common.ErrPendingSync)
		return txn
	}
	edit := func(txn model.Transaction) {
		_, err := h.engine.Edit(ctx, txn)
		require.ErrorIs(t, err, common.ErrPendingSync)
	}

	a := create(testutil.FoodCategoryID, "150.00")
	b := create(testutil.SalaryCategoryID, "400.00")
	c := create(testutil.RentCategoryID, "80.00")

	a.CategoryID = testutil.SalaryCategoryID
	a.Amount = decimal.RequireFromString("20.00")
	edit(a)
	require.NoError(t, h.engine.Delete(ctx, c.ID))
	b.Amount = decimal.RequireFromString("100.00")
	edit(b)
	create(testutil.FoodCategoryID, "5.00")

	expected := decimal.RequireFromString("1000.00")
	for _, entry := range h.transactionEntries() {
		require.Equal(t, model.ActionCreate, entry.Action)
		txn, err := model.DecodeTransaction(entry.Payload)
		require.NoError(t, err)
		require.True(t, txn.IsLocal())
		category, err := h.db.GetCategoryByID(ctx, txn.CategoryID)
		require.NoError(t, err)
		require.NotNil(t, category)
		expected = expected.Add(category.Signed(txn))
	}

	assert.Len(t, h.transactionEntries(), 3)
	assertAmount(t, "1115.00", expected)
	assertAmount(t, expected.String(), h.currentBalance(t))
}

func TestEngine_OfflineEditsOfServerTransaction(t *testing.T) {
	api := mockAPI()
	h := newHarness(t, api, harnessConfig{offline: true})
	ctx := context.Background()

	original := testutil.Transaction(7, testutil.FoodCategoryID, "100.00", day(2))
	h.db.SeedTransactions(original)

	first := original
	first.Amount = decimal.RequireFromString("60.00")
	_, err := h.engine.Edit(ctx, first)
	require.ErrorIs(t, err, common.ErrPendingSync)
	assertAmount(t, "1040.00", h.currentBalance(t))

	second := original
	second.Amount = decimal.RequireFromString("10.00")
	_, err = h.engine.Edit(ctx, second)
	require.ErrorIs(t, err, common.ErrPendingSync)
	assertAmount(t, "1090.00", h.currentBalance(t))

	err = h.engine.Delete(ctx, 7)
	require.ErrorIs(t, err, common.ErrPendingSync)
	assertAmount(t, "1100.00", h.currentBalance(t))

	entries := h.transactionEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionDelete, entries[0].Action)

	mirrored, err := h.db.GetTransaction(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, mirrored)

	unreachable(api)
	got, err := h.engine.Transactions(ctx, testutil.AccountID, day(1), day(10))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEngine_DeleteTwiceOffline(t *testing.T) {
	h := newHarness(t, mockAPI(), harnessConfig{offline: true})
	ctx := context.Background()

	h.db.SeedTransactions(testutil.Transaction(7, testutil.FoodCategoryID, "100.00", day(2)))

	err := h.engine.Delete(ctx, 7)
	require.ErrorIs(t, err, common.ErrPendingSync)
	assertAmount(t, "1100.00", h.currentBalance(t))

	err = h.engine.Delete(ctx, 7)
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.NotErrorIs(t, err, common.ErrPendingSync)
	assertAmount(t, "1100.00", h.currentBalance(t))

	entries := h.transactionEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionDelete, entries[0].Action)
	snapshot, err := model.DecodeTransaction(entries[0].Payload)
	require.NoError(t, err)
	assertAmount(t, "100.00", snapshot.Amount)
	assert.Equal(t, testutil.FoodCategoryID, snapshot.CategoryID)
}

func TestEngine_CreateQueuedWithUnknownCategory(t *testing.T) {
	h := newHarness(t, mockAPI(), harnessConfig{offline: true})
	ctx := context.Background()

	created, err := h.engine.Create(ctx, testutil.Draft(999, "15.00", day(2)))
	require.ErrorIs(t, err, common.ErrPendingSync)
	assert.ErrorIs(t, err, common.ErrCategoryNotFound)
	assert.Less(t, created.ID, int64(0))

	entries := h.transactionEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, created.ID, entries[0].ID)
	assertAmount(t, "1000.00", h.currentBalance(t))
}

func TestEngine_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("online mirrors server transaction", func(t *testing.T) {
		api := mockAPI()
		var key string
		api.CreateTransactionFn = func(ctx context.Context, d model.TransactionDraft) (model.Transaction, error) {
			key = remote.IdempotencyKeyFrom(ctx)
			return d.WithID(321, fixedNow), nil
		}
		h := newHarness(t, api, harnessConfig{})

		got, err := h.engine.Create(ctx, testutil.Draft(testutil.FoodCategoryID, "9.99", day(2)))
		require.NoError(t, err)
		assert.Equal(t, int64(321), got.ID)
		assert.NotEmpty(t, key)
		assert.Empty(t, h.db.MustOutbox())

		mirrored, err := h.db.GetTransaction(ctx, 321)
		require.NoError(t, err)
		require.NotNil(t, mirrored)
		assertAmount(t, "9.99", mirrored.Amount)
	})

	t.Run("unreachable queues placeholder", func(t *testing.T) {
		backend := testutil.NewBackend()
		h := newHarness(t, backend, harnessConfig{})
		backend.SetDown(true)

		got, err := h.engine.Create(ctx, testutil.Draft(testutil.FoodCategoryID, "150.00", day(2)))
		assert.ErrorIs(t, err, common.ErrPendingSync)
		assert.ErrorIs(t, err, common.ErrTransportUnavailable)
		assert.True(t, got.IsLocal())
		assert.True(t, h.balance.IsOffline())
		assertAmount(t, "850.00", h.currentBalance(t))

		entries := h.transactionEntries()
		require.Len(t, entries, 1)
		assert.Equal(t, got.ID, entries[0].ID)
		assert.Equal(t, model.ActionCreate, entries[0].Action)
	})

	t.Run("rejection is not queued", func(t *testing.T) {
		api := mockAPI()
		api.CreateTransactionFn = func(context.Context, model.TransactionDraft) (model.Transaction, error) {
			return model.Transaction{}, &remote.HTTPError{Method: http.MethodPost, Path: "transactions", Status: http.StatusUnprocessableEntity}
		}
		h := newHarness(t, api, harnessConfig{})

		_, err := h.engine.Create(ctx, testutil.Draft(testutil.FoodCategoryID, "1.00", day(2)))
		assert.ErrorIs(t, err, common.ErrServerRejected)
		assert.NotErrorIs(t, err, common.ErrPendingSync)
		assert.False(t, h.balance.IsOffline())
		assert.Empty(t, h.db.MustOutbox())
	})
}

func TestEngine_EditPlaceholderNeverCallsServer(t *testing.T) {
	api := mockAPI()
	h := newHarness(t, api, harnessConfig{offline: true})
	ctx := context.Background()

	created, err := h.engine.Create(ctx, testutil.Draft(testutil.FoodCategoryID, "150.00", day(2)))
	require.ErrorIs(t, err, common.ErrPendingSync)
	h.balance.SetOffline(false)
	api.Reset()

	created.Amount = decimal.RequireFromString("70.00")
	_, err = h.engine.Edit(ctx, created)
	require.ErrorIs(t, err, common.ErrPendingSync)
	assert.Empty(t, api.UpdateTransactionCalls)

	entries := h.transactionEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionCreate, entries[0].Action)
	queued, err := model.DecodeTransaction(entries[0].Payload)
	require.NoError(t, err)
	assertAmount(t, "70.00", queued.Amount)

	// Online edits leave the locally calculated balance alone.
	assertAmount(t, "850.00", h.balance.Current().Balance)

	_, err = h.engine.Edit(ctx, testutil.Transaction(-42, testutil.FoodCategoryID, "1.00", day(2)))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestEngine_EditOnline(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed", func(t *testing.T) {
		backend := testutil.NewBackend()
		original := testutil.Transaction(7, testutil.FoodCategoryID, "100.00", day(2))
		backend.Seed(original)
		h := newHarness(t, backend, harnessConfig{})
		h.db.SeedTransactions(original)

		updated := original
		updated.Amount = decimal.RequireFromString("25.00")
		_, err := h.engine.Edit(ctx, updated)
		require.NoError(t, err)

		mirrored, err := h.db.GetTransaction(ctx, 7)
		require.NoError(t, err)
		assertAmount(t, "25.00", mirrored.Amount)
		assertAmount(t, "25.00", backend.Transactions()[0].Amount)
		assert.Empty(t, h.db.MustOutbox())
	})

	t.Run("unreachable queues update", func(t *testing.T) {
		backend := testutil.NewBackend()
		original := testutil.Transaction(7, testutil.FoodCategoryID, "100.00", day(2))
		h := newHarness(t, backend, harnessConfig{})
		h.db.SeedTransactions(original)
		backend.SetDown(true)

		updated := original
		updated.Amount = decimal.RequireFromString("25.00")
		_, err := h.engine.Edit(ctx, updated)
		assert.ErrorIs(t, err, common.ErrPendingSync)
		assert.ErrorIs(t, err, common.ErrTransportUnavailable)
		assertAmount(t, "1075.00", h.currentBalance(t))

		entries := h.transactionEntries()
		require.Len(t, entries, 1)
		assert.Equal(t, model.ActionUpdate, entries[0].Action)
	})
}

func TestEngine_DeleteOnline(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed", func(t *testing.T) {
		backend := testutil.NewBackend()
		original := testutil.Transaction(7, testutil.FoodCategoryID, "100.00", day(2))
		backend.Seed(original)
		h := newHarness(t, backend, harnessConfig{})
		h.db.SeedTransactions(original)

		require.NoError(t, h.engine.Delete(ctx, 7))
		mirrored, err := h.db.GetTransaction(ctx, 7)
		require.NoError(t, err)
		assert.Nil(t, mirrored)
		assert.Empty(t, backend.Transactions())
	})

	t.Run("already gone on server", func(t *testing.T) {
		backend := testutil.NewBackend()
		h := newHarness(t, backend, harnessConfig{})
		h.db.SeedTransactions(testutil.Transaction(7, testutil.FoodCategoryID, "100.00", day(2)))

		require.NoError(t, h.engine.Delete(ctx, 7))
		mirrored, err := h.db.GetTransaction(ctx, 7)
		require.NoError(t, err)
		assert.Nil(t, mirrored)
	})

	t.Run("rejected", func(t *testing.T) {
		api := mockAPI()
		api.DeleteTransactionFn = func(context.Context, int64) error {
			return &remote.HTTPError{Method: http.MethodDelete, Path: "transactions/7", Status: http.StatusForbidden}
		}
		h := newHarness(t, api, harnessConfig{})
		h.db.SeedTransactions(testutil.Transaction(7, testutil.FoodCategoryID, "100.00", day(2)))

		err := h.engine.Delete(ctx, 7)
		assert.ErrorIs(t, err, common.ErrServerRejected)
		mirrored, err := h.db.GetTransaction(ctx, 7)
		require.NoError(t, err)
		assert.NotNil(t, mirrored)
		assert.Empty(t, h.db.MustOutbox())
	})

	t.Run("unknown placeholder", func(t *testing.T) {
		h := newHarness(t, mockAPI(), harnessConfig{})
		assert.ErrorIs(t, h.engine.Delete(ctx, -3), common.ErrNotFound)
	})
}

func TestEngine_Drain(t *testing.T) {
	ctx := context.Background()

	t.Run("partial", func(t *testing.T) {
		backend := testutil.NewBackend()
		backend.Seed(testutil.Transaction(7, testutil.FoodCategoryID, "5.00", day(1)))

		var progress [][2]int
		h := newHarness(t, backend, harnessConfig{engineOpts: []Option{
			WithProgress(func(done, total int) { progress = append(progress, [2]int{done, total}) }),
		}})

		h.queue(t, testutil.Transaction(-1, testutil.FoodCategoryID, "10.00", day(2)), model.ActionCreate)
		h.queue(t, testutil.Transaction(7, testutil.FoodCategoryID, "6.00", day(1)), model.ActionUpdate)
		h.queue(t, testutil.Transaction(99, testutil.FoodCategoryID, "1.00", day(1)), model.ActionUpdate)

		report, err := h.engine.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, report.Total)
		assert.Equal(t, 2, report.Synced)
		assert.Equal(t, 1, report.Rejected)
		assert.Zero(t, report.Failed)
		assert.Equal(t, 1, report.Remaining())
		require.Len(t, report.Errors, 1)
		assert.True(t, common.IsRejected(report.Errors[0], http.StatusNotFound))
		assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)

		entries := h.transactionEntries()
		require.Len(t, entries, 1)
		assert.Equal(t, int64(99), entries[0].ID)

		placeholder, err := h.db.GetTransaction(ctx, -1)
		require.NoError(t, err)
		assert.Nil(t, placeholder)

		updated, err := h.db.GetTransaction(ctx, 7)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assertAmount(t, "6.00", updated.Amount)
	})

	t.Run("delete of missing transaction counts as synced", func(t *testing.T) {
		backend := testutil.NewBackend()
		h := newHarness(t, backend, harnessConfig{})
		h.queue(t, model.Transaction{ID: 55}, model.ActionDelete)

		report, err := h.engine.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Synced)
		assert.Empty(t, h.db.MustOutbox())
	})

	t.Run("unreachable keeps entries", func(t *testing.T) {
		backend := testutil.NewBackend()
		h := newHarness(t, backend, harnessConfig{})
		h.queue(t, testutil.Transaction(-1, testutil.FoodCategoryID, "10.00", day(2)), model.ActionCreate)
		h.queue(t, testutil.Transaction(-2, testutil.FoodCategoryID, "20.00", day(2)), model.ActionCreate)
		backend.SetDown(true)

		report, err := h.engine.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Failed)
		assert.Zero(t, report.Synced)
		assert.Len(t, h.transactionEntries(), 2)
	})

	t.Run("sends stored idempotency key", func(t *testing.T) {
		api := mockAPI()
		var keys []string
		api.CreateTransactionFn = func(ctx context.Context, d model.TransactionDraft) (model.Transaction, error) {
			keys = append(keys, remote.IdempotencyKeyFrom(ctx))
			return d.WithID(500, fixedNow), nil
		}
		h := newHarness(t, api, harnessConfig{})

		payload, err := model.EncodeTransaction(testutil.Transaction(-1, testutil.FoodCategoryID, "10.00", day(2)))
		require.NoError(t, err)
		require.NoError(t, h.db.UpsertOutbox(ctx, model.OutboxEntry{
			ID:             -1,
			EntityType:     model.EntityTransaction,
			Action:         model.ActionCreate,
			Payload:        payload,
			Date:           fixedNow,
			IdempotencyKey: "replay-key",
		}))

		_, err = h.engine.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"replay-key"}, keys)
	})

	t.Run("leaves account entries alone", func(t *testing.T) {
		api := mockAPI()
		h := newHarness(t, api, harnessConfig{offline: true})
		_, err := h.engine.Create(ctx, testutil.Draft(testutil.FoodCategoryID, "1.00", day(2)))
		require.ErrorIs(t, err, common.ErrPendingSync)

		report, err := h.engine.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Total)
		assert.Len(t, h.db.MustOutbox(), 1)
		assert.Equal(t, model.EntityAccount, h.db.MustOutbox()[0].EntityType)
	})

	t.Run("local failure aborts", func(t *testing.T) {
		backend := testutil.NewBackend()
		h := newHarness(t, backend, harnessConfig{})
		h.queue(t, testutil.Transaction(-1, testutil.FoodCategoryID, "10.00", day(2)), model.ActionCreate)
		h.queue(t, testutil.Transaction(-2, testutil.FoodCategoryID, "20.00", day(2)), model.ActionCreate)

		engine := NewEngine(failingMirror{TestDB: h.db}, backend, h.balance)
		_, err := engine.Drain(ctx)
		assert.ErrorIs(t, err, errMirrorBroken)
		assert.Len(t, h.transactionEntries(), 2)
		assert.Len(t, backend.Transactions(), 1)
	})
}

var errMirrorBroken = errors.New("mirror broken")

type failingMirror struct {
	*testutil.TestDB
}

func (failingMirror) UpsertTransaction(context.Context, model.Transaction) error {
	return errMirrorBroken
}

func TestEngine_TransactionsOnline(t *testing.T) {
	backend := testutil.NewBackend()
	backend.Seed(
		testutil.Transaction(1, testutil.FoodCategoryID, "10.00", day(2)),
		testutil.Transaction(2, testutil.SalaryCategoryID, "20.00", day(3)),
	)
	h := newHarness(t, backend, harnessConfig{})
	ctx := context.Background()

	h.db.SeedTransactions(testutil.Transaction(50, testutil.FoodCategoryID, "1.00", day(4)))
	h.queue(t, testutil.Transaction(-1, testutil.FoodCategoryID, "3.00", day(5)), model.ActionCreate)

	got, err := h.engine.Transactions(ctx, testutil.AccountID, day(1), day(10))
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Empty(t, h.db.MustOutbox())

	stale, err := h.db.GetTransaction(ctx, 50)
	require.NoError(t, err)
	assert.Nil(t, stale)

	mirrored, err := h.db.TransactionsInRange(ctx, testutil.AccountID, day(1), day(10))
	require.NoError(t, err)
	assert.Len(t, mirrored, 3)
}

func TestEngine_TransactionsReplaysQueuedAccount(t *testing.T) {
	ctx := context.Background()

	queueAccount := func(t *testing.T, h *harness, a model.Account) {
		t.Helper()
		payload, err := model.EncodeAccount(a)
		require.NoError(t, err)
		require.NoError(t, h.db.UpsertOutbox(ctx, model.OutboxEntry{
			ID:         a.ID,
			EntityType: model.EntityAccount,
			Action:     model.ActionUpdate,
			Payload:    payload,
			Date:       fixedNow,
		}))
	}

	t.Run("sends the account before fetching", func(t *testing.T) {
		backend := testutil.NewBackend()
		h := newHarness(t, backend, harnessConfig{})

		changed := testutil.DefaultAccount()
		changed.Currency = "USD"
		queueAccount(t, h, changed)

		_, err := h.engine.Transactions(ctx, testutil.AccountID, day(1), day(10))
		require.NoError(t, err)
		assert.Equal(t, "USD", backend.Account().Currency)
		assert.Empty(t, h.db.MustOutbox())
	})

	t.Run("refused account change does not fail the read", func(t *testing.T) {
		api := mockAPI()
		api.UpdateAccountFn = func(context.Context, model.Account) (model.Account, error) {
			return model.Account{}, &remote.HTTPError{Method: http.MethodPut, Path: "accounts/1", Status: http.StatusUnprocessableEntity}
		}
		api.TransactionsForPeriodFn = func(context.Context, int64, time.Time, time.Time) ([]model.Transaction, error) {
			return []model.Transaction{testutil.Transaction(3, testutil.FoodCategoryID, "12.00", day(4))}, nil
		}
		h := newHarness(t, api, harnessConfig{})

		changed := testutil.DefaultAccount()
		changed.Currency = "USD"
		queueAccount(t, h, changed)

		got, err := h.engine.Transactions(ctx, testutil.AccountID, day(1), day(10))
		require.NoError(t, err)
		assert.Equal(t, []int64{3}, ids(got))
		assert.Len(t, api.UpdateAccountCalls, 1)
		assert.False(t, h.balance.IsOffline())

		entries := h.db.MustOutbox()
		require.Len(t, entries, 1)
		assert.Equal(t, model.EntityAccount, entries[0].EntityType)
	})
}

func TestEngine_ReadAfterOutageSendsQueuedChanges(t *testing.T) {
	backend := testutil.NewBackend()
	h := newHarness(t, backend, harnessConfig{})
	ctx := context.Background()

	backend.SetDown(true)
	created, err := h.engine.Create(ctx, testutil.Draft(testutil.FoodCategoryID, "150.00", day(3)))
	require.ErrorIs(t, err, common.ErrPendingSync)
	require.Less(t, created.ID, int64(0))
	require.True(t, h.balance.IsOffline())
	assertAmount(t, "850.00", h.currentBalance(t))

	backend.SetDown(false)
	got, err := h.engine.Transactions(ctx, testutil.AccountID, day(1), day(10))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Positive(t, got[0].ID)

	assert.Len(t, backend.Transactions(), 1)
	assert.Empty(t, h.db.MustOutbox())
	assert.False(t, h.balance.IsOffline())
	assertAmount(t, "850.00", backend.Account().Balance)
	assertAmount(t, "850.00", h.currentBalance(t))
}

func TestEngine_PlaceholderIDsDecrease(t *testing.T) {
	e := NewEngine(nil, nil, nil, WithClock(func() time.Time { return fixedNow }))

	first := e.nextPlaceholderID()
	assert.Equal(t, -fixedNow.UnixMilli(), first)

	prev := first
	for range 5 {
		next := e.nextPlaceholderID()
		assert.Less(t, next, prev)
		prev = next
	}
}

func TestEngine_Lookup(t *testing.T) {
	h := newHarness(t, mockAPI(), harnessConfig{offline: true})
	ctx := context.Background()

	mirrored := testutil.Transaction(7, testutil.FoodCategoryID, "40.00", day(3))
	h.db.SeedTransactions(mirrored)

	got, err := h.engine.Lookup(ctx, 7)
	require.NoError(t, err)
	assertAmount(t, "40.00", got.Amount)

	edited := mirrored
	edited.Amount = decimal.RequireFromString("55.00")
	h.queue(t, edited, model.ActionUpdate)

	got, err = h.engine.Lookup(ctx, 7)
	require.NoError(t, err)
	assertAmount(t, "55.00", got.Amount)

	h.queue(t, edited, model.ActionDelete)
	_, err = h.engine.Lookup(ctx, 7)
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = h.engine.Lookup(ctx, 999)
	require.ErrorIs(t, err, common.ErrNotFound)
}
