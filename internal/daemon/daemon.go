// Package daemon assembles the store, runner, status feed, and IPC server
// into a single-instance background process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"casework/internal/api"
	"casework/internal/config"
	"casework/internal/evidence"
	"casework/internal/feed"
	"casework/internal/ipc"
	"casework/internal/jobs"
	"casework/internal/logging"
	"casework/internal/logs"
	"casework/internal/messages"
	"casework/internal/runner"
)

// Daemon coordinates background processing and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *jobs.Store
	hub     *feed.Hub
	runner  *runner.Runner
	service *api.Service

	lockPath string
	lock     *flock.Flock

	ipcServer *ipc.Server
	running   atomic.Bool
	cancel    context.CancelFunc
}

// New opens the store and wires the built-in handlers, runner, feed, and
// service. Start must be called before jobs execute.
func New(cfg *config.Config, version string, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	vault := evidence.NewVault(cfg.Paths.VaultDir)
	registry := runner.NewRegistry()
	handlers := []runner.Handler{
		evidence.NewImportHandler(vault, logger),
		evidence.NewVerifyHandler(vault, logger),
		messages.NewIngestHandler(messages.NewStore(store), logger),
	}
	for _, handler := range handlers {
		if err := registry.Register(handler); err != nil {
			store.Close()
			return nil, fmt.Errorf("register handler: %w", err)
		}
	}

	hub := feed.NewHub(logger, cfg.Queue.FeedBuffer)
	jobRunner := runner.New(cfg, store, hub, registry, logger)
	service := api.NewService(store, jobRunner, cfg.Case.Operator, version, logger)

	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		hub:      hub,
		runner:   jobRunner,
		service:  service,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}, nil
}

// Service exposes the api facade backing this daemon.
func (d *Daemon) Service() *api.Service {
	return d.service
}

// Feed exposes the status feed hub.
func (d *Daemon) Feed() *feed.Hub {
	return d.hub
}

// Store exposes the job store.
func (d *Daemon) Store() *jobs.Store {
	return d.store
}

// Start acquires the instance lock, reconciles leftover jobs, and begins
// serving IPC requests on the control socket.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another casework daemon instance is already running")
	}

	if retention := d.cfg.Logging.RetentionDays; retention > 0 {
		removed, err := logs.Prune(d.cfg.Paths.LogDir, time.Duration(retention)*24*time.Hour)
		if err != nil {
			d.logger.Warn("log pruning failed", logging.Error(err))
		} else if removed > 0 {
			d.logger.Info("pruned stale log files", logging.Int("removed", removed))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.runner.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start runner: %w", err)
	}

	server, err := ipc.NewServer(runCtx, d.cfg.SocketPath(), d.service, ipc.ServerInfo{
		PID:      os.Getpid(),
		DBPath:   d.store.Path(),
		LockPath: d.lockPath,
	}, d.logger)
	if err != nil {
		d.runner.Stop()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start ipc server: %w", err)
	}
	server.Serve()

	d.ipcServer = server
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("casework daemon started",
		logging.String("lock", d.lockPath),
		logging.String("socket", d.cfg.SocketPath()),
		logging.String("db", d.store.Path()))
	return nil
}

// Stop shuts down IPC, drains the runner, and releases the instance lock.
// The in-flight job receives its terminal write before Stop returns.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.ipcServer != nil {
		d.ipcServer.Close()
		d.ipcServer = nil
	}
	d.runner.Stop()
	d.hub.Close()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("casework daemon stopped")
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
