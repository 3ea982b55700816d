// Package bootstrap builds the shared runtime pieces both binaries need:
// logger, queue over the configured slot, remote gateway, and the
// single-driver lock.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ricirt/plinko-sync/internal/config"
	"github.com/ricirt/plinko-sync/internal/db"
	"github.com/ricirt/plinko-sync/internal/gateway"
	"github.com/ricirt/plinko-sync/internal/metrics"
	"github.com/ricirt/plinko-sync/internal/queue"
	"github.com/ricirt/plinko-sync/internal/ratelimiter"
	"github.com/ricirt/plinko-sync/internal/slot"
)

// LockFile is created in SLOT_DIR and held by whoever drains the queue.
const LockFile = "sync.lock"

// ErrLocked means another process is already draining this queue.
var ErrLocked = errors.New("another sync driver holds the queue lock")

// NewLogger returns a production zap logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// AcquireLock takes the exclusive driver lock in dir without blocking.
func AcquireLock(dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return lock, nil
}

// OpenQueue opens the configured slot and builds the queue over it. m is
// optional.
func OpenQueue(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*queue.Queue, slot.Slot, error) {
	s, err := slot.Open(slot.Backend(cfg.SlotBackend), cfg.SlotDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s slot: %w", cfg.SlotBackend, err)
	}

	var (
		onCorrupt func()
		hooks     queue.Hooks
	)
	if m != nil {
		onCorrupt = m.OnCorruptRead
		hooks = m.QueueHooks()
	}

	store := queue.NewStore(s, cfg.QueueKey, logger.Named("store"), onCorrupt)
	return queue.New(store, logger.Named("queue"), hooks), s, nil
}

// Remote is the configured remote store.
type Remote struct {
	Gateway gateway.Gateway
	Pinger  gateway.Pinger
	Lister  gateway.PeriodLister

	pool *pgxpool.Pool
}

// Close releases the database pool, if any.
func (r *Remote) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// OpenRemote builds the gateway selected by GATEWAY. An unreachable database
// is not an error: the pool is kept, migrations are skipped, and the sync
// worker retries once the network returns.
func OpenRemote(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Remote, error) {
	switch cfg.Gateway {
	case config.GatewayPostgres:
		pool, err := db.Connect(ctx, cfg)
		switch {
		case errors.Is(err, db.ErrUnreachable):
			logger.Warn("database unreachable at start-up, running offline", zap.Error(err))
		case err != nil:
			return nil, err
		case cfg.RunMigrations:
			if err := db.Migrate(cfg.DatabaseURL); err != nil {
				pool.Close()
				return nil, err
			}
			logger.Info("database migrations applied")
		}
		gw := gateway.NewPostgresGateway(pool)
		return &Remote{Gateway: gw, Pinger: gw, Lister: gw, pool: pool}, nil

	case config.GatewayREST:
		gw := gateway.NewRestGateway(cfg.RestURL, cfg.RestAPIKey, cfg.RestTimeout,
			ratelimiter.New(cfg.RestRateLimit))
		return &Remote{Gateway: gw, Pinger: gw, Lister: gw}, nil

	default:
		return nil, fmt.Errorf("unknown gateway %q", cfg.Gateway)
	}
}
