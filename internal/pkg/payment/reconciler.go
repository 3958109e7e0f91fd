package payment

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/framelabid/framelab/app/repository"
	"github.com/framelabid/framelab/internal/pkg/cache"
	"github.com/framelabid/framelab/internal/pkg/env"
)

const reconcileLockKey = "payment:reconcile:lock"

// ReconcilerConfig is the background sweep configuration surface.
type ReconcilerConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	// MinAge keeps the sweep off orders the gateway may not know about yet;
	// MaxAge leaves ancient rows for manual review.
	MinAge time.Duration
	MaxAge time.Duration
	// LockTTL is the sweep lease lifetime. It must outlive a full sweep or
	// a second instance starts a concurrent one mid-run.
	LockTTL time.Duration
}

// ReconcilerConfigFromEnv reads the reconciler configuration surface.
func ReconcilerConfigFromEnv() ReconcilerConfig {
	return ReconcilerConfig{
		Enabled:   env.GetEnvBool("PAYMENT_RECONCILE_ENABLED", true),
		Interval:  time.Duration(env.GetEnvInt("PAYMENT_RECONCILE_INTERVAL_MINUTES", 5)) * time.Minute,
		BatchSize: env.GetEnvInt("PAYMENT_RECONCILE_BATCH_SIZE", 20),
		MinAge:    time.Duration(env.GetEnvInt("PAYMENT_RECONCILE_MIN_AGE_MINUTES", 5)) * time.Minute,
		MaxAge:    time.Duration(env.GetEnvInt("PAYMENT_RECONCILE_MAX_AGE_HOURS", 24)) * time.Hour,
		LockTTL:   time.Duration(env.GetEnvInt("PAYMENT_RECONCILE_LOCK_TTL_MINUTES", 0)) * time.Minute,
	}
}

// releaseFunc releases a held sweep lock.
type releaseFunc func()

// Reconciler periodically sweeps stale pending transactions through the same
// resolve-and-grant path the webhook and polling endpoints use, so a payment
// whose webhook and polls were both lost still converges. Multiple app
// instances coordinate through a named non-blocking lock: whoever loses the
// acquire simply skips the sweep.
type Reconciler struct {
	svc          *Service
	transactions repository.TransactionRepository
	cfg          ReconcilerConfig

	// tryLock is swappable for tests; the default is the Redis lease.
	tryLock func(ctx context.Context) (releaseFunc, bool, error)
}

// NewReconciler creates a reconciler over the shared payment service.
func NewReconciler(svc *Service, transactions repository.TransactionRepository, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAge <= cfg.MinAge {
		cfg.MaxAge = cfg.MinAge + 24*time.Hour
	}
	if cfg.LockTTL <= cfg.Interval {
		cfg.LockTTL = 2 * cfg.Interval
	}

	r := &Reconciler{
		svc:          svc,
		transactions: transactions,
		cfg:          cfg,
	}
	r.tryLock = func(ctx context.Context) (releaseFunc, bool, error) {
		lock, err := cache.TryAcquireLock(ctx, reconcileLockKey, r.cfg.LockTTL)
		if err != nil {
			return nil, false, err
		}
		if lock == nil {
			return nil, false, nil
		}
		return func() {
			if err := lock.Release(context.Background()); err != nil {
				log.Errorf("[Reconciler] Release lock: %v", err)
			}
		}, true, nil
	}
	return r
}

// Start runs the sweep loop until the context is cancelled. A no-op when the
// reconciler is disabled.
func (r *Reconciler) Start(ctx context.Context) {
	if !r.cfg.Enabled {
		log.Info("[Reconciler] Disabled by configuration")
		return
	}

	go func() {
		log.Infof("[Reconciler] Sweeping every %s (batch %d, window %s..%s)",
			r.cfg.Interval, r.cfg.BatchSize, r.cfg.MinAge, r.cfg.MaxAge)
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info("[Reconciler] Stopping")
				return
			case <-ticker.C:
				if err := r.RunOnce(ctx); err != nil {
					log.Errorf("[Reconciler] Sweep failed: %v", err)
				}
			}
		}
	}()
}

// RunOnce performs a single sweep. It exits immediately when another process
// instance holds the sweep lock. Per-transaction errors are logged and the
// sweep moves on; they never abort the loop.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	release, ok, err := r.tryLock(ctx)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug("[Reconciler] Another instance is sweeping, skipping")
		return nil
	}
	defer release()

	stale, err := r.transactions.GetStaleForReconcile(r.cfg.MinAge, r.cfg.MaxAge, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	log.Infof("[Reconciler] Resolving %d stale pending transactions", len(stale))
	for i := range stale {
		tx := &stale[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resolved, err := r.svc.ResolveStatus(ctx, tx.OrderID)
		if err != nil {
			log.Errorf("[Reconciler] Resolve %s: %v", tx.OrderID, err)
			continue
		}
		if resolved.Status != tx.Status {
			log.Infof("[Reconciler] Transaction %s moved %s -> %s", tx.OrderID, tx.Status, resolved.Status)
		}
	}
	return nil
}
