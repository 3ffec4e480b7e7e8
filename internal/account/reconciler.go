// Package account keeps the in-memory view of the single bank account and
// reconciles its balance with the server and with unsynced local changes.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/ledgersync/internal/common"
	"github.com/Veraticus/ledgersync/internal/model"
	"github.com/Veraticus/ledgersync/internal/service"
)

// Store is the local state the reconciler reads and writes.
type Store interface {
	service.AccountMirror
	service.OutboxStore
	service.TransactionMirror
	service.CategoryMirror
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithOffline sets the initial offline state.
func WithOffline(offline bool) Option {
	return func(r *Reconciler) { r.offline = offline }
}

// WithOfflineHook registers fn to be called whenever the reconciler changes
// its own offline state, so a connectivity monitor can follow along.
func WithOfflineHook(fn func(offline bool)) Option {
	return func(r *Reconciler) { r.offlineHook = fn }
}

// Reconciler owns the current account. The balance it reports is the
// server's value while online; offline it is the last locally calculated
// balance adjusted for every unsynced transaction change.
type Reconciler struct {
	store          Store
	api            service.AccountAPI
	now            func() time.Time
	offlineHook    func(bool)
	current        *model.Account
	listeners      map[int]func(model.Account)
	lastCalculated decimal.Decimal
	nextListener   int
	mu             sync.Mutex
	manual         bool
	offline        bool
}

// NewReconciler creates a reconciler over store and api.
func NewReconciler(store Store, api service.AccountAPI, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:     store,
		api:       api,
		now:       time.Now,
		listeners: make(map[int]func(model.Account)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsOffline reports whether the reconciler is using the local path.
func (r *Reconciler) IsOffline() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offline
}

// SetOffline switches between the server and local balance paths.
func (r *Reconciler) SetOffline(offline bool) {
	r.mu.Lock()
	changed := r.offline != offline
	r.offline = offline
	hook := r.offlineHook
	r.mu.Unlock()

	if changed && hook != nil {
		hook(offline)
	}
}

// Current returns a copy of the current account, or nil before FirstAccount.
func (r *Reconciler) Current() *model.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	a := *r.current
	return &a
}

// HasManualBalance reports whether the balance is locally calculated.
func (r *Reconciler) HasManualBalance() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manual
}

// OnBalanceChanged registers fn to receive the account after every balance
// or currency change. The returned function removes the registration.
func (r *Reconciler) OnBalanceChanged(fn func(model.Account)) func() {
	r.mu.Lock()
	id := r.nextListener
	r.nextListener++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Reconciler) notify(a model.Account) {
	r.mu.Lock()
	fns := make([]func(model.Account), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(a)
	}
}

// adopt makes a the current account.
func (r *Reconciler) adopt(a model.Account, manual bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = &a
	r.manual = manual
	r.lastCalculated = a.Balance
}

// degrade switches to offline after an unreachable failure and reports
// whether err was one.
func (r *Reconciler) degrade(err error) bool {
	if !common.IsUnreachable(err) {
		return false
	}
	slog.Warn("backend unreachable, using local account state", "error", err)
	r.SetOffline(true)
	return true
}

// FirstAccount loads the account. Online it comes from the server and is
// mirrored locally. When the server is unreachable the most recent queued
// account change wins, then the mirrored account.
func (r *Reconciler) FirstAccount(ctx context.Context) (model.Account, error) {
	if !r.IsOffline() {
		accounts, err := r.api.ListAccounts(ctx)
		switch {
		case err == nil && len(accounts) > 0:
			a := accounts[0]
			if err := r.store.UpsertAccount(ctx, a); err != nil {
				return model.Account{}, fmt.Errorf("failed to mirror account: %w", err)
			}
			r.adopt(a, false)
			return a, nil
		case err == nil:
			return model.Account{}, common.ErrNoAccountAvailable
		case !r.degrade(err):
			return model.Account{}, err
		}
	}

	queued, err := r.latestQueuedAccount(ctx)
	if err != nil {
		return model.Account{}, err
	}
	if queued != nil {
		r.adopt(*queued, true)
		return *queued, nil
	}

	accounts, err := r.store.GetAccounts(ctx)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to load mirrored accounts: %w", err)
	}
	if len(accounts) == 0 {
		return model.Account{}, common.ErrNoAccountAvailable
	}
	r.adopt(accounts[0], false)
	return accounts[0], nil
}

func (r *Reconciler) latestQueuedAccount(ctx context.Context) (*model.Account, error) {
	entries, err := r.store.ListOutbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}

	var latest *model.OutboxEntry
	for i := range entries {
		if entries[i].EntityType == model.EntityAccount {
			latest = &entries[i]
		}
	}
	if latest == nil {
		return nil, nil
	}

	a, err := model.DecodeAccount(latest.Payload)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CurrentBalance returns the balance to display. Offline it is the base
// balance plus the signed amounts of mirrored transactions that still carry
// placeholder IDs.
func (r *Reconciler) CurrentBalance(ctx context.Context) (decimal.Decimal, error) {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return decimal.Zero, common.ErrNoAccountAvailable
	}
	current := *r.current
	offline, manual, last := r.offline, r.manual, r.lastCalculated
	r.mu.Unlock()

	if !offline {
		return current.Balance, nil
	}

	base := current.Balance
	if manual {
		base = last
	}

	txns, err := r.store.TransactionsInRange(ctx, current.ID, time.Time{}, time.Unix(0, math.MaxInt64))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load local transactions: %w", err)
	}
	for _, t := range txns {
		if !t.IsLocal() {
			continue
		}
		signed, err := r.signed(ctx, t)
		if err != nil {
			return decimal.Zero, err
		}
		base = base.Add(signed)
	}
	return base, nil
}

func (r *Reconciler) signed(ctx context.Context, t model.Transaction) (decimal.Decimal, error) {
	c, err := r.store.GetCategoryByID(ctx, t.CategoryID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load category %d: %w", t.CategoryID, err)
	}
	if c == nil {
		return decimal.Zero, fmt.Errorf("%w: %d", common.ErrCategoryNotFound, t.CategoryID)
	}
	return c.Signed(t), nil
}

// ApplyTransactionChange adjusts the local balance for a transaction
// created, edited or deleted while offline. Online it does nothing.
func (r *Reconciler) ApplyTransactionChange(ctx context.Context, old, updated *model.Transaction, action model.Action) error {
	if !r.IsOffline() {
		return nil
	}

	delta := decimal.Zero
	if old != nil && (action == model.ActionUpdate || action == model.ActionDelete) {
		signed, err := r.signed(ctx, *old)
		if err != nil {
			return err
		}
		delta = delta.Sub(signed)
	}
	if updated != nil && (action == model.ActionUpdate || action == model.ActionCreate) {
		signed, err := r.signed(ctx, *updated)
		if err != nil {
			return err
		}
		delta = delta.Add(signed)
	}

	balance, err := r.CurrentBalance(ctx)
	if err != nil {
		return err
	}
	return r.updateBalanceLocally(ctx, balance.Add(delta))
}

// updateBalanceLocally stores a locally calculated balance and queues it
// for the server.
func (r *Reconciler) updateBalanceLocally(ctx context.Context, balance decimal.Decimal) error {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return common.ErrNoAccountAvailable
	}
	updated := r.current.WithBalance(balance, r.now().UTC())
	r.mu.Unlock()

	if err := r.store.UpsertAccount(ctx, updated); err != nil {
		return fmt.Errorf("failed to store local balance: %w", err)
	}
	if err := r.queue(ctx, updated); err != nil {
		return err
	}

	r.adopt(updated, true)
	slog.Debug("balance updated locally", "account", updated.ID, "balance", balance.String())
	r.notify(updated)
	return nil
}

func (r *Reconciler) queue(ctx context.Context, a model.Account) error {
	payload, err := model.EncodeAccount(a)
	if err != nil {
		return err
	}
	if err := r.store.UpsertOutbox(ctx, model.OutboxEntry{
		ID:         a.ID,
		EntityType: model.EntityAccount,
		Action:     model.ActionUpdate,
		Payload:    payload,
		Date:       r.now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to queue account %d: %w", a.ID, err)
	}
	return nil
}

// ChangeBalance sets the balance on the server. It is never allowed offline.
func (r *Reconciler) ChangeBalance(ctx context.Context, balance decimal.Decimal) (model.Account, error) {
	if r.IsOffline() {
		return model.Account{}, common.ErrOfflineNotAllowed
	}
	current := r.Current()
	if current == nil {
		return model.Account{}, common.ErrNoAccountAvailable
	}

	updated, err := r.api.UpdateAccount(ctx, current.WithBalance(balance, r.now().UTC()))
	if err != nil {
		r.degrade(err)
		return model.Account{}, err
	}

	if err := r.confirm(ctx, updated); err != nil {
		return model.Account{}, err
	}
	return updated, nil
}

// ChangeCurrency sets the currency. When the server cannot be reached the
// change is kept locally and queued, and the error is still returned.
func (r *Reconciler) ChangeCurrency(ctx context.Context, currency string) (model.Account, error) {
	current := r.Current()
	if current == nil {
		return model.Account{}, common.ErrNoAccountAvailable
	}
	local := current.WithCurrency(currency)
	local.UpdatedAt = r.now().UTC()

	cause := error(nil)
	if !r.IsOffline() {
		updated, err := r.api.UpdateAccount(ctx, local)
		if err == nil {
			if err := r.confirm(ctx, updated); err != nil {
				return model.Account{}, err
			}
			return updated, nil
		}
		if !r.degrade(err) {
			return model.Account{}, err
		}
		cause = err
	}

	if err := r.store.UpsertAccount(ctx, local); err != nil {
		return model.Account{}, fmt.Errorf("failed to store currency locally: %w", err)
	}
	if err := r.queue(ctx, local); err != nil {
		return model.Account{}, err
	}

	r.mu.Lock()
	r.current = &local
	r.mu.Unlock()
	r.notify(local)
	return local, pending(cause)
}

// confirm adopts a server-confirmed account and drops its queued change.
func (r *Reconciler) confirm(ctx context.Context, a model.Account) error {
	if err := r.store.UpsertAccount(ctx, a); err != nil {
		return fmt.Errorf("failed to mirror account: %w", err)
	}
	if err := r.store.RemoveOutbox(ctx, a.ID, model.EntityAccount); err != nil {
		return fmt.Errorf("failed to clear queued account change: %w", err)
	}
	r.adopt(a, false)
	r.notify(a)
	return nil
}

// SyncBackup replays queued account changes while online. Entries that
// fail stay queued.
func (r *Reconciler) SyncBackup(ctx context.Context) error {
	if r.IsOffline() {
		return nil
	}

	entries, err := r.store.ListOutbox(ctx)
	if err != nil {
		return fmt.Errorf("failed to read outbox: %w", err)
	}

	var (
		synced  []int64
		last    *model.Account
		lastErr error
	)
	for _, entry := range entries {
		if entry.EntityType != model.EntityAccount {
			continue
		}
		queued, err := model.DecodeAccount(entry.Payload)
		if err != nil {
			return err
		}

		updated, err := r.api.UpdateAccount(ctx, queued)
		if err != nil {
			slog.Warn("queued account change not synced", "account", entry.ID, "error", err)
			lastErr = err
			if r.degrade(err) {
				break
			}
			continue
		}

		if err := r.store.UpsertAccount(ctx, updated); err != nil {
			return fmt.Errorf("failed to mirror account: %w", err)
		}
		synced = append(synced, entry.ID)
		last = &updated
	}

	if len(synced) > 0 {
		if err := r.store.RemoveOutboxMany(ctx, synced, model.EntityAccount); err != nil {
			return fmt.Errorf("failed to clear synced account changes: %w", err)
		}
	}
	if last != nil {
		r.adopt(*last, false)
		r.notify(*last)
	}
	return lastErr
}

// Refresh reloads the account from the server while online. Offline it
// recomputes the local balance and stores it if it moved.
func (r *Reconciler) Refresh(ctx context.Context) error {
	if !r.IsOffline() {
		_, err := r.FirstAccount(ctx)
		if err == nil {
			if a := r.Current(); a != nil {
				r.notify(*a)
			}
			return nil
		}
		if !common.IsUnreachable(err) && !r.IsOffline() {
			return err
		}
	}

	current := r.Current()
	if current == nil {
		return common.ErrNoAccountAvailable
	}
	balance, err := r.CurrentBalance(ctx)
	if err != nil {
		return err
	}
	if balance.Equal(current.Balance) {
		return nil
	}
	return r.updateBalanceLocally(ctx, balance)
}

// GoOnline replays queued account changes and reloads the account. If the
// server still cannot be reached the reconciler returns to offline.
func (r *Reconciler) GoOnline(ctx context.Context) error {
	r.SetOffline(false)

	if err := r.SyncBackup(ctx); err != nil {
		slog.Warn("account backup sync failed", "error", err)
	}
	if r.IsOffline() {
		return fmt.Errorf("%w: account sync did not reach the server", common.ErrTransportUnavailable)
	}

	if _, err := r.FirstAccount(ctx); err != nil {
		r.degrade(err)
		return err
	}
	if a := r.Current(); a != nil {
		r.notify(*a)
	}
	return nil
}

// pending marks a change as saved locally only.
func pending(cause error) error {
	if cause == nil {
		return common.ErrPendingSync
	}
	return fmt.Errorf("%w: %w", common.ErrPendingSync, cause)
}
