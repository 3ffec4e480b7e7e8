// Package app wires the stores, the backend client and the sync engines
// into one explicitly constructed application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/ledgersync/internal/account"
	"github.com/Veraticus/ledgersync/internal/category"
	"github.com/Veraticus/ledgersync/internal/common"
	"github.com/Veraticus/ledgersync/internal/config"
	"github.com/Veraticus/ledgersync/internal/connectivity"
	"github.com/Veraticus/ledgersync/internal/remote"
	"github.com/Veraticus/ledgersync/internal/service"
	"github.com/Veraticus/ledgersync/internal/storage"
	"github.com/Veraticus/ledgersync/internal/txsync"
)

// Backend is the server surface the application needs.
type Backend interface {
	service.RemoteAPI
	connectivity.Prober
}

// Option configures New.
type Option func(*options)

type options struct {
	backend  Backend
	progress func(done, total int)
}

// WithBackend replaces the HTTP client, typically with an in-memory fake.
func WithBackend(b Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithDrainProgress reports outbox drain progress.
func WithDrainProgress(fn func(done, total int)) Option {
	return func(o *options) { o.progress = fn }
}

// App holds one instance of every component.
type App struct {
	Store        *storage.SQLiteStorage
	Backend      Backend
	Monitor      *connectivity.Monitor
	Balance      *account.Reconciler
	Transactions *txsync.Engine
	Categories   *category.Cache
}

// New opens and migrates the local store and builds the engines.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	backend := o.backend
	if backend == nil {
		gw, err := remote.NewGateway(cfg.BaseURL, cfg.Token, cfg.Timeout)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		backend = remote.NewClient(gw)
	}

	monitor := connectivity.NewMonitor(backend, cfg.ProbeInterval, cfg.StartOffline)
	balance := account.NewReconciler(store, backend,
		account.WithOffline(cfg.StartOffline),
		account.WithOfflineHook(func(offline bool) { monitor.Set(offline) }),
	)

	var engineOpts []txsync.Option
	if o.progress != nil {
		engineOpts = append(engineOpts, txsync.WithProgress(o.progress))
	}

	return &App{
		Store:        store,
		Backend:      backend,
		Monitor:      monitor,
		Balance:      balance,
		Transactions: txsync.NewEngine(store, backend, balance, engineOpts...),
		Categories:   category.NewCache(store, backend, balance),
	}, nil
}

// Close releases the local store.
func (a *App) Close() error {
	return a.Store.Close()
}

// Resync drains the transaction outbox and brings the account back online.
func (a *App) Resync(ctx context.Context) (txsync.DrainReport, error) {
	report, err := a.Transactions.Drain(ctx)
	if err != nil {
		return report, err
	}
	if err := a.Balance.GoOnline(ctx); err != nil {
		return report, err
	}
	return report, nil
}

// Watch follows connectivity transitions until ctx is done. Going offline
// switches the engines to the local path; coming back online resyncs.
func (a *App) Watch(ctx context.Context) error {
	transitions, unsubscribe := a.Monitor.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case offline, ok := <-transitions:
			if !ok {
				return nil
			}
			if offline {
				a.Balance.SetOffline(true)
				continue
			}
			report, err := a.Resync(ctx)
			if err != nil {
				slog.Warn("resync after reconnect failed", "error", err)
				continue
			}
			common.LogInfo("resynced after reconnect", common.Fields{
				"synced":    report.Synced,
				"remaining": report.Remaining(),
			})
		}
	}
}

// Run probes connectivity and reacts to transitions until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Monitor.Run(ctx) })
	g.Go(func() error { return a.Watch(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
