// Package txsync reads and mutates transactions against the server, queueing
// mutations in the outbox whenever the server cannot be reached.
package txsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/ledgersync/internal/common"
	"github.com/Veraticus/ledgersync/internal/model"
	"github.com/Veraticus/ledgersync/internal/remote"
	"github.com/Veraticus/ledgersync/internal/service"
)

// Store is the local state the engine reads and writes.
type Store interface {
	service.OutboxStore
	service.TransactionMirror
}

// Balancer keeps the account balance in step with transaction changes.
// *account.Reconciler implements it.
type Balancer interface {
	IsOffline() bool
	SetOffline(offline bool)
	ApplyTransactionChange(ctx context.Context, old, updated *model.Transaction, action model.Action) error
	Refresh(ctx context.Context) error
	SyncBackup(ctx context.Context) error
	GoOnline(ctx context.Context) error
}

// DrainReport summarizes one pass over the transaction outbox.
type DrainReport struct {
	Errors   []error
	Total    int
	Synced   int
	Failed   int
	Rejected int
}

// Remaining is the number of entries still queued after the pass.
func (r DrainReport) Remaining() int {
	return r.Total - r.Synced
}

// Option configures an Engine.
type Option func(*Engine)

// WithProgress reports drain progress after every replayed entry.
func WithProgress(fn func(done, total int)) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithClock overrides time.Now, which also seeds placeholder IDs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine coordinates transaction reads and writes. Callers are expected to
// invoke it from one goroutine at a time.
type Engine struct {
	store           Store
	api             service.TransactionAPI
	balance         Balancer
	now             func() time.Time
	progress        func(done, total int)
	lastPlaceholder int64
	mu              sync.Mutex
}

// NewEngine creates a sync engine.
func NewEngine(store Store, api service.TransactionAPI, balance Balancer, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		api:     api,
		balance: balance,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// nextPlaceholderID returns a negative ID derived from the clock, strictly
// below every ID handed out before by this engine.
func (e *Engine) nextPlaceholderID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := -e.now().UnixMilli()
	if id >= 0 {
		id = -1
	}
	if e.lastPlaceholder != 0 && id >= e.lastPlaceholder {
		id = e.lastPlaceholder - 1
	}
	e.lastPlaceholder = id
	return id
}

// degrade switches to offline after an unreachable failure and reports
// whether err was one.
func (e *Engine) degrade(err error) bool {
	if !common.IsUnreachable(err) {
		return false
	}
	slog.Warn("backend unreachable, using local transaction state", "error", err)
	e.balance.SetOffline(true)
	return true
}

// Transactions returns the account's transactions dated in [from, to].
// Every read replays the outbox and asks the server first, so a read after
// an outage is what brings the engine back online. If the server cannot be
// reached it returns the mirror overlaid with queued changes, newest first.
func (e *Engine) Transactions(ctx context.Context, accountID int64, from, to time.Time) ([]model.Transaction, error) {
	if _, err := e.Drain(ctx); err != nil {
		return nil, err
	}

	offline := e.balance.IsOffline()
	if !offline {
		if err := e.balance.SyncBackup(ctx); err != nil {
			slog.Warn("account backup sync failed", "error", err)
		}
	}

	fetched, err := e.api.TransactionsForPeriod(ctx, accountID, from, to)
	if err != nil {
		if !e.degrade(err) {
			return nil, err
		}
		return e.merged(ctx, accountID, from, to)
	}

	if err := e.store.ReplaceTransactionsInRange(ctx, accountID, from, to, fetched); err != nil {
		return nil, fmt.Errorf("failed to mirror transactions: %w", err)
	}
	if offline {
		// GoOnline replays the queued account changes the offline read skipped.
		if err := e.balance.GoOnline(ctx); err != nil {
			slog.Warn("account resync after reconnect failed", "error", err)
		}
	}
	return fetched, nil
}

func (e *Engine) merged(ctx context.Context, accountID int64, from, to time.Time) ([]model.Transaction, error) {
	mirrored, err := e.store.TransactionsInRange(ctx, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read mirrored transactions: %w", err)
	}
	entries, err := e.store.ListOutbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}

	byID := make(map[int64]model.Transaction, len(mirrored))
	order := make([]int64, 0, len(mirrored))
	put := func(t model.Transaction) {
		if _, ok := byID[t.ID]; !ok {
			order = append(order, t.ID)
		}
		byID[t.ID] = t
	}

	for _, t := range mirrored {
		put(t)
	}
	for _, entry := range entries {
		if entry.EntityType != model.EntityTransaction {
			continue
		}
		if entry.Action == model.ActionDelete {
			delete(byID, entry.ID)
			continue
		}
		t, err := model.DecodeTransaction(entry.Payload)
		if err != nil {
			return nil, err
		}
		if t.InRange(accountID, from, to) {
			put(t)
		} else {
			delete(byID, t.ID)
		}
	}

	result := make([]model.Transaction, 0, len(byID))
	for _, id := range order {
		if t, ok := byID[id]; ok {
			result = append(result, t)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TransactionDate.After(result[j].TransactionDate)
	})
	return result, nil
}

// Create records a new transaction. When the server cannot be reached the
// transaction gets a placeholder ID, is queued, and the returned error wraps
// common.ErrPendingSync. Rejections by the server are returned unqueued.
func (e *Engine) Create(ctx context.Context, draft model.TransactionDraft) (model.Transaction, error) {
	offline := e.balance.IsOffline()

	var cause error
	if !offline {
		created, err := e.api.CreateTransaction(remote.WithIdempotencyKey(ctx, uuid.NewString()), draft)
		if err == nil {
			if err := e.confirm(ctx, created); err != nil {
				return model.Transaction{}, err
			}
			return created, nil
		}
		if !e.degrade(err) {
			return model.Transaction{}, err
		}
		cause = err
	}

	queued := draft.WithID(e.nextPlaceholderID(), e.now().UTC())
	if err := e.enqueue(ctx, queued, model.ActionCreate); err != nil {
		return model.Transaction{}, err
	}
	if err := e.balance.ApplyTransactionChange(ctx, nil, &queued, model.ActionCreate); err != nil {
		return queued, errors.Join(pending(cause), err)
	}
	return queued, pending(cause)
}

// Edit replaces a transaction. Transactions still carrying a placeholder ID
// only exist locally, so their queued create is rewritten instead.
func (e *Engine) Edit(ctx context.Context, t model.Transaction) (model.Transaction, error) {
	offline := e.balance.IsOffline()

	old, err := e.prior(ctx, t.ID)
	if err != nil {
		return model.Transaction{}, err
	}
	t.UpdatedAt = e.now().UTC()

	if t.IsLocal() {
		if old == nil {
			return model.Transaction{}, fmt.Errorf("%w: transaction %d", common.ErrNotFound, t.ID)
		}
		if err := e.enqueue(ctx, t, model.ActionCreate); err != nil {
			return model.Transaction{}, err
		}
		if err := e.applyIfOffline(ctx, offline, old, &t, model.ActionUpdate); err != nil {
			return t, errors.Join(common.ErrPendingSync, err)
		}
		return t, common.ErrPendingSync
	}

	var cause error
	if !offline {
		err := e.api.UpdateTransaction(ctx, t)
		if err == nil {
			if err := e.confirm(ctx, t); err != nil {
				return model.Transaction{}, err
			}
			return t, nil
		}
		if !e.degrade(err) {
			return model.Transaction{}, err
		}
		cause = err
	}

	if err := e.enqueue(ctx, t, model.ActionUpdate); err != nil {
		return model.Transaction{}, err
	}
	if old == nil {
		slog.Warn("no prior value for edited transaction, balance left unchanged", "id", t.ID)
	} else if err := e.balance.ApplyTransactionChange(ctx, old, &t, model.ActionUpdate); err != nil {
		return t, errors.Join(pending(cause), err)
	}
	return t, pending(cause)
}

// Delete removes a transaction. Deleting a transaction that never reached
// the server only drops its queued create.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	offline := e.balance.IsOffline()

	queued, err := e.store.GetOutbox(ctx, id, model.EntityTransaction)
	if err != nil {
		return fmt.Errorf("failed to read outbox: %w", err)
	}
	if queued != nil && queued.Action == model.ActionDelete {
		return fmt.Errorf("%w: transaction %d is already queued for deletion", common.ErrNotFound, id)
	}

	old, err := e.prior(ctx, id)
	if err != nil {
		return err
	}

	if id < 0 {
		if old == nil {
			return fmt.Errorf("%w: transaction %d", common.ErrNotFound, id)
		}
		if err := e.store.RemoveOutbox(ctx, id, model.EntityTransaction); err != nil {
			return fmt.Errorf("failed to drop queued transaction %d: %w", id, err)
		}
		if err := e.store.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("failed to delete transaction %d: %w", id, err)
		}
		return e.applyIfOffline(ctx, offline, old, nil, model.ActionDelete)
	}

	var cause error
	if !offline {
		err := e.api.DeleteTransaction(ctx, id)
		if err == nil || common.IsRejected(err, http.StatusNotFound) {
			if err := e.store.DeleteTransaction(ctx, id); err != nil {
				return fmt.Errorf("failed to delete transaction %d: %w", id, err)
			}
			if err := e.store.RemoveOutbox(ctx, id, model.EntityTransaction); err != nil {
				return fmt.Errorf("failed to clear queued transaction %d: %w", id, err)
			}
			e.refresh(ctx)
			return nil
		}
		if !e.degrade(err) {
			return err
		}
		cause = err
	}

	if err := e.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("failed to delete transaction %d: %w", id, err)
	}
	snapshot := model.Transaction{ID: id}
	if old != nil {
		snapshot = *old
	}
	if err := e.enqueue(ctx, snapshot, model.ActionDelete); err != nil {
		return err
	}
	if old != nil {
		if err := e.balance.ApplyTransactionChange(ctx, old, nil, model.ActionDelete); err != nil {
			return errors.Join(pending(cause), err)
		}
	}
	return pending(cause)
}

// Lookup returns the latest local value of transaction id, or
// common.ErrNotFound when it is unknown or queued for deletion.
func (e *Engine) Lookup(ctx context.Context, id int64) (model.Transaction, error) {
	t, err := e.prior(ctx, id)
	if err != nil {
		return model.Transaction{}, err
	}
	if t == nil {
		return model.Transaction{}, fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
	}
	return *t, nil
}

// prior returns the latest local value of a transaction: a queued snapshot
// first, then the mirror. It returns nil when the transaction is unknown or
// already queued for deletion.
func (e *Engine) prior(ctx context.Context, id int64) (*model.Transaction, error) {
	entry, err := e.store.GetOutbox(ctx, id, model.EntityTransaction)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	if entry != nil {
		if entry.Action == model.ActionDelete {
			return nil, nil
		}
		t, err := model.DecodeTransaction(entry.Payload)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}

	t, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction %d: %w", id, err)
	}
	return t, nil
}

func (e *Engine) applyIfOffline(ctx context.Context, offline bool, old, updated *model.Transaction, action model.Action) error {
	if !offline {
		return nil
	}
	return e.balance.ApplyTransactionChange(ctx, old, updated, action)
}

func (e *Engine) enqueue(ctx context.Context, t model.Transaction, action model.Action) error {
	payload, err := model.EncodeTransaction(t)
	if err != nil {
		return err
	}
	if err := e.store.UpsertOutbox(ctx, model.OutboxEntry{
		ID:         t.ID,
		EntityType: model.EntityTransaction,
		Action:     action,
		Payload:    payload,
		Date:       e.now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to queue transaction %d: %w", t.ID, err)
	}
	return nil
}

// confirm mirrors a server-confirmed transaction and refreshes the balance.
func (e *Engine) confirm(ctx context.Context, t model.Transaction) error {
	if err := e.store.UpsertTransaction(ctx, t); err != nil {
		return fmt.Errorf("failed to mirror transaction %d: %w", t.ID, err)
	}
	if err := e.store.RemoveOutbox(ctx, t.ID, model.EntityTransaction); err != nil {
		return fmt.Errorf("failed to clear queued transaction %d: %w", t.ID, err)
	}
	e.refresh(ctx)
	return nil
}

func (e *Engine) refresh(ctx context.Context) {
	if err := e.balance.Refresh(ctx); err != nil {
		slog.Warn("balance refresh failed", "error", err)
	}
}

// Drain replays queued transaction changes in queue order. Entries that
// fail stay queued and the pass continues; local store errors abort it.
func (e *Engine) Drain(ctx context.Context) (DrainReport, error) {
	entries, err := e.store.ListOutbox(ctx)
	if err != nil {
		return DrainReport{}, fmt.Errorf("failed to read outbox: %w", err)
	}

	pendingEntries := make([]model.OutboxEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.EntityType == model.EntityTransaction {
			pendingEntries = append(pendingEntries, entry)
		}
	}

	report := DrainReport{Total: len(pendingEntries)}
	synced := make([]int64, 0, len(pendingEntries))

	for i, entry := range pendingEntries {
		err := e.replay(ctx, entry)
		var localErr *localError
		switch {
		case err == nil:
			synced = append(synced, entry.ID)
			report.Synced++
		case errors.As(err, &localErr):
			if rmErr := e.removeSynced(ctx, synced); rmErr != nil {
				return report, errors.Join(localErr.err, rmErr)
			}
			return report, localErr.err
		case common.IsUnreachable(err):
			report.Failed++
			report.Errors = append(report.Errors, err)
		default:
			slog.Warn("server rejected queued transaction change",
				"id", entry.ID, "action", entry.Action, "error", err)
			report.Rejected++
			report.Errors = append(report.Errors, err)
		}

		if e.progress != nil {
			e.progress(i+1, report.Total)
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err := e.removeSynced(ctx, synced); err != nil {
		return report, err
	}
	if report.Total > 0 {
		slog.Info("outbox drained",
			"total", report.Total,
			"synced", report.Synced,
			"failed", report.Failed,
			"rejected", report.Rejected)
	}
	return report, nil
}

func (e *Engine) removeSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := e.store.RemoveOutboxMany(ctx, ids, model.EntityTransaction); err != nil {
		return fmt.Errorf("failed to clear synced transactions: %w", err)
	}
	return nil
}

// localError marks a replay failure in the local store, which must stop
// the drain.
type localError struct {
	err error
}

func (e *localError) Error() string { return e.err.Error() }

func (e *localError) Unwrap() error { return e.err }

func localf(format string, args ...any) error {
	return &localError{err: fmt.Errorf(format, args...)}
}

// replay sends one queued entry and mirrors the server's answer.
func (e *Engine) replay(ctx context.Context, entry model.OutboxEntry) error {
	t, err := model.DecodeTransaction(entry.Payload)
	if err != nil {
		return &localError{err: err}
	}
	rctx := remote.WithIdempotencyKey(ctx, entry.IdempotencyKey)

	switch entry.Action {
	case model.ActionCreate:
		created, err := e.api.CreateTransaction(rctx, model.DraftOf(t))
		if err != nil {
			return err
		}
		if err := e.store.DeleteTransaction(ctx, entry.ID); err != nil {
			return localf("failed to drop placeholder %d: %w", entry.ID, err)
		}
		if err := e.store.UpsertTransaction(ctx, created); err != nil {
			return localf("failed to mirror transaction %d: %w", created.ID, err)
		}
		slog.Debug("queued transaction created", "placeholder", entry.ID, "id", created.ID)

	case model.ActionUpdate:
		if err := e.api.UpdateTransaction(rctx, t); err != nil {
			return err
		}
		if err := e.store.UpsertTransaction(ctx, t); err != nil {
			return localf("failed to mirror transaction %d: %w", t.ID, err)
		}

	case model.ActionDelete:
		if err := e.api.DeleteTransaction(rctx, entry.ID); err != nil && !common.IsRejected(err, http.StatusNotFound) {
			return err
		}
		if err := e.store.DeleteTransaction(ctx, entry.ID); err != nil {
			return localf("failed to delete transaction %d: %w", entry.ID, err)
		}

	default:
		return localf("unknown outbox action %q", entry.Action)
	}
	return nil
}

func pending(cause error) error {
	if cause == nil {
		return common.ErrPendingSync
	}
	return fmt.Errorf("%w: %w", common.ErrPendingSync, cause)
}
