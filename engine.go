package goRotate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/goRotate/cache"
	"github.com/MrEthical07/goRotate/hasher"
	internalaudit "github.com/MrEthical07/goRotate/internal/audit"
	"github.com/MrEthical07/goRotate/internal/flows"
	"github.com/MrEthical07/goRotate/internal/rate"
	"github.com/MrEthical07/goRotate/jwt"
	"github.com/MrEthical07/goRotate/store"
)

// Engine issues, rotates and revokes token pairs.
//
// Engine instances are built once through [Builder.Build] and are safe for
// concurrent use. Every request runs on the caller's goroutine; there is no
// engine-wide lock.
type Engine struct {
	config   Config
	store    store.Store
	tokens   *jwt.Manager
	hasher   hasher.Hasher
	locks    *cache.LockCache
	idem     *cache.IdempotencyCache
	marks    *cache.RevocationMarks
	active   *cache.ActiveTokenCache
	limiter  *rate.Limiter
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
	sweepers []sweeper
	inflight singleflight.Group
	flows    flows.Deps
}

// sweeper is implemented by in-process caches that expire lazily.
type sweeper interface {
	Sweep() int
}

// Close stops the audit dispatcher after flushing buffered events. The
// store and any Redis client stay open; they belong to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters. Disabled metrics
// snapshot empty.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	snap := e.metrics.Snapshot()
	if e.metrics.Enabled() {
		st := e.audit.Stats()
		snap.Counters[MetricAuditDelivered] = st.Delivered
		snap.Counters[MetricAuditFailed] = st.Failed
	}
	return snap
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, n)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// cacheError records a degraded cache operation. Caches never fail a
// request; the store stays authoritative.
func (e *Engine) cacheError(ctx context.Context, op string, err error) {
	e.metricInc(MetricCacheError)
	e.logger.LogAttrs(ctx, slog.LevelWarn, "cache degraded",
		slog.String("op", op),
		slog.Any("err", err),
	)
}

// Issue mints the first pair for owner, typically after login. The owner's
// earlier records are revoked in the same store operation.
func (e *Engine) Issue(ctx context.Context, owner string) (*TokenPair, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if owner == "" {
		return nil, ErrMalformedRequest
	}

	res := flows.RunIssue(ctx, owner, e.flows.Issue)
	if res.Failure != flows.IssueFailureNone {
		var err error
		switch res.Failure {
		case flows.IssueFailureStore:
			err = fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
		case flows.IssueFailureHash:
			err = fmt.Errorf("hashing refresh token: %w", res.Err)
		default:
			err = fmt.Errorf("minting token pair: %w", res.Err)
		}
		e.metricInc(MetricIssueFailure)
		e.logger.LogAttrs(ctx, slog.LevelError, "issue failed",
			slog.String("owner", owner),
			slog.Any("err", res.Err),
		)
		e.emitAudit(ctx, auditEventIssueFailure, false, owner, "", err, nil)
		return nil, err
	}

	if err := e.limiter.Reset(ctx, owner); err != nil {
		e.cacheError(ctx, "rate_reset", err)
	}

	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditEventIssueSuccess, true, owner, res.Record.ID, nil, nil)
	return res.Pair, nil
}

// ValidateAccess verifies an access token strictly, expiry included.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*Claims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		e.metricInc(MetricValidateFailure)
		return nil, ErrInvalidAccessToken
	}

	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, ErrInvalidAccessToken
	}

	e.metricInc(MetricValidateSuccess)
	return claims, nil
}

// SweepExpired deletes store records whose expiry has passed and drops
// expired entries from in-process caches. It is a maintenance operation
// meant for a periodic job, not a request path.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}

	for _, s := range e.sweepers {
		s.Sweep()
	}

	n, err := e.store.DeleteExpired(ctx, e.now())
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n > 0 {
		e.metricAdd(MetricSweepDeleted, uint64(n))
	}
	e.emitAudit(ctx, auditEventSweep, true, "", "", nil, func() map[string]string {
		return map[string]string{"deleted": fmt.Sprint(n)}
	})
	return n, nil
}

// Ping checks the durable store.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// refreshThrottle fails open when Redis is down so a throttle outage never
// blocks rotation.
type refreshThrottle struct {
	limiter *rate.Limiter
	onError func(error)
}

func (t refreshThrottle) CheckRefresh(ctx context.Context, owner string) error {
	err := t.limiter.CheckRefresh(ctx, owner)
	if err != nil && errors.Is(err, rate.ErrRedisUnavailable) {
		t.onError(err)
		return nil
	}
	return err
}
