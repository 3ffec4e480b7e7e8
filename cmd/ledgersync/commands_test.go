package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/ledgersync/internal/app"
	"github.com/Veraticus/ledgersync/internal/common"
	"github.com/Veraticus/ledgersync/internal/model"
	"github.com/Veraticus/ledgersync/internal/testutil"
)

type cliEnv struct {
	backend *testutil.Backend
	dbPath  string
}

// setupCLI points the commands at a fresh database file and an in-memory
// backend.
func setupCLI(t *testing.T) *cliEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	viper.Reset()
	viper.Set("database.path", dbPath)
	viper.Set("api.base_url", "http://backend.invalid/api/v1/")
	viper.Set("connectivity.probe_interval", "10ms")

	backend := testutil.NewBackend()
	appOptions = []app.Option{app.WithBackend(backend)}

	t.Cleanup(func() {
		viper.Reset()
		appOptions = nil
	})
	return &cliEnv{backend: backend, dbPath: dbPath}
}

func run(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	if args == nil {
		// A nil slice makes cobra fall back to os.Args.
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	out, err := run(t, cmd, "", args...)
	require.NoError(t, err, out)
	return out
}

// queued returns the outbox entries of entity.
func (env *cliEnv) queued(t *testing.T, entity model.EntityType) []model.OutboxEntry {
	t.Helper()
	store, err := openStore(context.Background())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	entries, err := store.ListOutbox(context.Background())
	require.NoError(t, err)

	var out []model.OutboxEntry
	for _, e := range entries {
		if e.EntityType == entity {
			out = append(out, e)
		}
	}
	return out
}

// primeMirror runs online commands so the account and categories are
// mirrored locally.
func (env *cliEnv) primeMirror(t *testing.T) {
	t.Helper()
	mustRun(t, accountCmd(), "show")
	mustRun(t, categoriesCmd(), "list")
}

func TestAccountShow(t *testing.T) {
	setupCLI(t)

	out := mustRun(t, accountCmd(), "show")
	assert.Contains(t, out, "Main")
	assert.Contains(t, out, "1000.00 RUB")
	assert.Contains(t, out, "online")
}

func TestAccountSetCurrency(t *testing.T) {
	env := setupCLI(t)

	out := mustRun(t, accountCmd(), "set-currency", "usd")
	assert.Contains(t, out, "Currency is now USD")
	assert.Equal(t, "USD", env.backend.Account().Currency)

	_, err := run(t, accountCmd(), "", "set-currency", "dollars")
	require.Error(t, err)
}

func TestAccountSetCurrency_Offline(t *testing.T) {
	env := setupCLI(t)
	env.primeMirror(t)
	env.backend.SetDown(true)

	out := mustRun(t, accountCmd(), "set-currency", "EUR")
	assert.Contains(t, out, "saved locally")
	assert.Len(t, env.queued(t, model.EntityAccount), 1)
	assert.Equal(t, "RUB", env.backend.Account().Currency)
}

func TestAccountSetBalance(t *testing.T) {
	env := setupCLI(t)

	out := mustRun(t, accountCmd(), "set-balance", "1500")
	assert.Contains(t, out, "1500.00 RUB")
	assert.Equal(t, "1500", env.backend.Account().Balance.String())

	env.backend.SetDown(true)
	_, err := run(t, accountCmd(), "", "set-balance", "10")
	require.ErrorIs(t, err, common.ErrOfflineNotAllowed)

	_, err = run(t, accountCmd(), "", "set-balance", "-5")
	require.Error(t, err)
}

func TestCategoriesList(t *testing.T) {
	env := setupCLI(t)

	out := mustRun(t, categoriesCmd(), "list")
	assert.Contains(t, out, "Salary")
	assert.Contains(t, out, "Food")
	assert.Contains(t, out, "Rent")

	out = mustRun(t, categoriesCmd(), "list", "--direction", "income")
	assert.Contains(t, out, "Salary")
	assert.NotContains(t, out, "Rent")

	env.backend.SetDown(true)
	out = mustRun(t, categoriesCmd(), "list")
	assert.Contains(t, out, "Food")
	assert.Contains(t, out, "Offline")

	_, err := run(t, categoriesCmd(), "", "list", "--direction", "sideways")
	require.Error(t, err)
}

func TestTransactionsCreateOfflineThenSync(t *testing.T) {
	env := setupCLI(t)
	env.primeMirror(t)
	env.backend.SetDown(true)

	out := mustRun(t, transactionsCmd(), "create", "--category", "20", "--amount", "150", "--date", "2025-03-01")
	assert.Contains(t, out, "saved locally")

	queued := env.queued(t, model.EntityTransaction)
	require.Len(t, queued, 1)
	assert.Negative(t, queued[0].ID)
	assert.Equal(t, model.ActionCreate, queued[0].Action)

	out = mustRun(t, accountCmd(), "show")
	assert.Contains(t, out, "850.00 RUB")
	assert.Contains(t, out, "offline")

	out = mustRun(t, outboxCmd(), "list")
	assert.Contains(t, out, "create")
	assert.Contains(t, out, "150.00 on 2025-03-01")

	env.backend.SetDown(false)
	out = mustRun(t, syncCmd(), "--retries", "1", "--no-checkpoint")
	assert.Contains(t, out, "Sent 1 of 1")
	assert.Contains(t, out, "up to date")

	remote := env.backend.Transactions()
	require.Len(t, remote, 1)
	assert.Equal(t, "150", remote[0].Amount.String())
	assert.Empty(t, env.queued(t, model.EntityTransaction))
	assert.Empty(t, env.queued(t, model.EntityAccount))

	out = mustRun(t, outboxCmd(), "list")
	assert.Contains(t, out, "Nothing queued")
}

func TestTransactionsCreateOnline(t *testing.T) {
	env := setupCLI(t)

	out := mustRun(t, transactionsCmd(), "create", "-c", "10", "-a", "42.50", "-m", "bonus")
	assert.Contains(t, out, "Recorded transaction 101")

	remote := env.backend.Transactions()
	require.Len(t, remote, 1)
	require.NotNil(t, remote[0].Comment)
	assert.Equal(t, "bonus", *remote[0].Comment)

	_, err := run(t, transactionsCmd(), "", "create", "-c", "999", "-a", "1")
	require.ErrorIs(t, err, common.ErrCategoryNotFound)

	_, err = run(t, transactionsCmd(), "", "create", "-c", "20")
	require.Error(t, err)
}

func TestTransactionsEditAndDeletePlaceholder(t *testing.T) {
	env := setupCLI(t)
	env.primeMirror(t)
	env.backend.SetDown(true)

	mustRun(t, transactionsCmd(), "create", "--category", "20", "--amount", "100", "--date", "2025-03-02")
	queued := env.queued(t, model.EntityTransaction)
	require.Len(t, queued, 1)
	id := strconv.FormatInt(queued[0].ID, 10)

	out := mustRun(t, transactionsCmd(), "edit", "--amount", "200", "--comment", "groceries", "--", id)
	assert.Contains(t, out, "saved locally")

	queued = env.queued(t, model.EntityTransaction)
	require.Len(t, queued, 1)
	assert.Equal(t, model.ActionCreate, queued[0].Action)
	edited, err := model.DecodeTransaction(queued[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "200", edited.Amount.String())
	require.NotNil(t, edited.Comment)
	assert.Equal(t, "groceries", *edited.Comment)

	out = mustRun(t, transactionsCmd(), "delete", "--", id)
	assert.Contains(t, out, "Deleted transaction")
	assert.Empty(t, env.queued(t, model.EntityTransaction))

	_, err = run(t, transactionsCmd(), "", "edit", "--amount", "1", "--", id)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestTransactionsEditOnline(t *testing.T) {
	env := setupCLI(t)
	date := time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)
	env.backend.Seed(testutil.Transaction(7, testutil.FoodCategoryID, "30.00", date))

	mustRun(t, transactionsCmd(), "list", "--from", "2025-03-01", "--to", "2025-03-31")
	out := mustRun(t, transactionsCmd(), "edit", "7", "--category", "21")
	assert.Contains(t, out, "Updated transaction 7")

	remote := env.backend.Transactions()
	require.Len(t, remote, 1)
	assert.Equal(t, testutil.RentCategoryID, remote[0].CategoryID)
	assert.Equal(t, "30", remote[0].Amount.String())

	out = mustRun(t, transactionsCmd(), "delete", "7")
	assert.Contains(t, out, "Deleted transaction 7")
	assert.Empty(t, env.backend.Transactions())
}

func TestTransactionsListAndSummary(t *testing.T) {
	env := setupCLI(t)
	date := time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)
	env.backend.Seed(
		testutil.Transaction(1, testutil.SalaryCategoryID, "500.00", date),
		testutil.Transaction(2, testutil.FoodCategoryID, "120.00", date.Add(time.Hour)),
		testutil.Transaction(3, testutil.RentCategoryID, "80.00", date.Add(2*time.Hour)),
		testutil.Transaction(4, testutil.FoodCategoryID, "999.00", date.AddDate(0, 1, 0)),
	)

	out := mustRun(t, transactionsCmd(), "list", "--from", "2025-03-01", "--to", "2025-03-31")
	assert.Contains(t, out, "Salary")
	assert.Contains(t, out, "500.00 RUB")
	assert.Contains(t, out, "-120.00 RUB")
	assert.NotContains(t, out, "999.00")

	out = mustRun(t, transactionsCmd(), "summary", "--from", "2025-03-01", "--to", "2025-03-31")
	assert.Contains(t, out, "INCOME")
	assert.Contains(t, out, "EXPENSES")
	assert.Contains(t, out, "60.0%")
	assert.Contains(t, out, "300.00 RUB")

	out = mustRun(t, transactionsCmd(), "list", "--from", "2024-01-01", "--to", "2024-01-31")
	assert.Contains(t, out, "No transactions")

	_, err := run(t, transactionsCmd(), "", "list", "--from", "2025-03-31", "--to", "2025-03-01")
	require.Error(t, err)
}

func TestTransactionsExportImport(t *testing.T) {
	env := setupCLI(t)
	env.primeMirror(t)
	date := time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)
	env.backend.Seed(
		testutil.Transaction(1, testutil.SalaryCategoryID, "500.00", date),
		testutil.Transaction(2, testutil.FoodCategoryID, "120.00", date),
	)

	file := filepath.Join(t.TempDir(), "export.csv")
	out := mustRun(t, transactionsCmd(), "export", "--from", "2025-03-01", "--to", "2025-03-31", "-o", file)
	assert.Contains(t, out, "Exported 2 transactions")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), ",120,")

	out = mustRun(t, transactionsCmd(), "import", file)
	assert.Contains(t, out, "Imported 2 transactions")
	assert.Contains(t, out, "Skipped 1 unreadable rows")
	assert.Len(t, env.backend.Transactions(), 4)

	env.backend.SetDown(true)
	out = mustRun(t, transactionsCmd(), "import", file)
	assert.Contains(t, out, "2 saved locally")
	assert.Len(t, env.queued(t, model.EntityTransaction), 2)
}

func TestSync_ServerStillUnreachable(t *testing.T) {
	env := setupCLI(t)
	env.primeMirror(t)
	env.backend.SetDown(true)
	mustRun(t, transactionsCmd(), "create", "--category", "20", "--amount", "10", "--date", "2025-03-01")

	out := mustRun(t, syncCmd(), "--retries", "1")
	assert.Contains(t, out, "could not reach the server")
	assert.Contains(t, out, "changes stay queued")
	assert.Len(t, env.queued(t, model.EntityTransaction), 1)

	out = mustRun(t, checkpointCmd(), "list")
	assert.Contains(t, out, "auto")
}

func TestSync_NothingQueued(t *testing.T) {
	setupCLI(t)

	out := mustRun(t, syncCmd(), "--retries", "1", "--no-checkpoint")
	assert.Contains(t, out, "No queued transaction changes")
	assert.Contains(t, out, "up to date")
}

func TestOutboxDrop(t *testing.T) {
	env := setupCLI(t)
	env.primeMirror(t)
	env.backend.SetDown(true)
	mustRun(t, transactionsCmd(), "create", "--category", "20", "--amount", "10", "--date", "2025-03-01")

	queued := env.queued(t, model.EntityTransaction)
	require.Len(t, queued, 1)
	id := strconv.FormatInt(queued[0].ID, 10)

	out, err := run(t, outboxCmd(), "n\n", "drop", "--", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing dropped")
	assert.Len(t, env.queued(t, model.EntityTransaction), 1)

	out = mustRun(t, outboxCmd(), "drop", "--force", "--", id)
	assert.Contains(t, out, "Dropped queued transaction")
	assert.Empty(t, env.queued(t, model.EntityTransaction))

	_, err = run(t, outboxCmd(), "", "drop", "--force", "--", id)
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = run(t, outboxCmd(), "", "drop", "--entity", "category", "1")
	require.Error(t, err)
}

func TestMigrate(t *testing.T) {
	setupCLI(t)

	out := mustRun(t, migrateCmd(), "--status")
	assert.Contains(t, out, "Current version: 0")
	assert.Contains(t, out, "Migrations pending")

	out = mustRun(t, migrateCmd())
	assert.Contains(t, out, "migrated from version 0 to 3")

	out = mustRun(t, migrateCmd(), "--status")
	assert.Contains(t, out, "up to date")
}

func TestCheckpointLifecycle(t *testing.T) {
	env := setupCLI(t)
	env.primeMirror(t)

	out := mustRun(t, checkpointCmd(), "create", "--tag", "clean", "-d", "before outage")
	assert.Contains(t, out, "Created checkpoint clean")
	assert.Contains(t, out, "before outage")

	env.backend.SetDown(true)
	mustRun(t, transactionsCmd(), "create", "--category", "20", "--amount", "10", "--date", "2025-03-01")
	require.Len(t, env.queued(t, model.EntityTransaction), 1)

	out = mustRun(t, checkpointCmd(), "list")
	assert.Contains(t, out, "clean")
	assert.Contains(t, out, "manual")

	out, err := run(t, checkpointCmd(), "n\n", "restore", "clean")
	require.NoError(t, err)
	assert.Contains(t, out, "Restore cancelled")
	require.Len(t, env.queued(t, model.EntityTransaction), 1)

	out = mustRun(t, checkpointCmd(), "restore", "--force", "clean")
	assert.Contains(t, out, "Restored from checkpoint clean")
	assert.Empty(t, env.queued(t, model.EntityTransaction))

	out, err = run(t, checkpointCmd(), "y\n", "delete", "clean")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted checkpoint clean")

	_, err = run(t, checkpointCmd(), "", "delete", "--force", "clean")
	require.Error(t, err)
}
