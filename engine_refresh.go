package goRotate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sethvargo/go-retry"

	"github.com/MrEthical07/goRotate/cache"
	"github.com/MrEthical07/goRotate/internal"
	"github.com/MrEthical07/goRotate/internal/flows"
)

var errLockHeld = errors.New("rotation lock held")

// Refresh rotates a token pair. The access token may be expired but must be
// authentic; the refresh token must be authentic, unexpired and still the
// owner's active credential.
//
// Identical concurrent calls are collapsed: within the idempotency window
// every caller presenting the same pair receives the same new pair, and the
// store records exactly one rotation. A caller that cannot get the
// per-pair lock within Lock.WaitTimeout gets ErrLockContention and may retry
// with the same tokens.
//
// The rotation itself runs detached from ctx cancellation, bounded by
// Lock.TTL, so a disconnecting client never leaves a half-applied rotation
// without a replayable result. ctx still bounds how long this call waits.
func (e *Engine) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if accessToken == "" || refreshToken == "" {
		e.emitRefreshOutcome(ctx, e.now(), "", "", ErrMalformedRequest, nil)
		return nil, ErrMalformedRequest
	}

	fp := internal.Fingerprint(accessToken, refreshToken)
	ch := e.inflight.DoChan(fp, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Lock.TTL)
		defer cancel()
		return e.refresh(rctx, fp, accessToken, refreshToken)
	})

	select {
	case res := <-ch:
		if res.Shared {
			e.metricInc(MetricRefreshCoalesced)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		pair := *res.Val.(*TokenPair)
		return &pair, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) refresh(ctx context.Context, fp, accessToken, refreshToken string) (*TokenPair, error) {
	start := e.now()
	short := internal.ShortFingerprint(fp)
	meta := func() map[string]string {
		return map[string]string{"fingerprint": short}
	}

	if pair, ok := e.replay(ctx, fp); ok {
		e.emitAudit(ctx, auditEventRefreshSuccess, true, "", "", nil, replayMeta(short))
		return pair, nil
	}

	lock, pair, err := e.acquireRotationLock(ctx, fp)
	if err != nil {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "refresh lock contention",
			slog.String("fingerprint", short),
			slog.Any("err", err),
		)
		e.emitRefreshOutcome(ctx, start, "", "", err, meta)
		return nil, err
	}
	if pair != nil {
		e.emitAudit(ctx, auditEventRefreshSuccess, true, "", "", nil, replayMeta(short))
		return pair, nil
	}
	defer e.releaseRotationLock(ctx, lock)

	// The previous holder may have finished between the first check and
	// the acquire.
	if pair, ok := e.replay(ctx, fp); ok {
		e.emitAudit(ctx, auditEventRefreshSuccess, true, "", "", nil, replayMeta(short))
		return pair, nil
	}

	res := flows.RunRotate(ctx, accessToken, refreshToken, e.flows.Rotate)
	if res.Failure != flows.RotateFailureNone {
		err := rotateError(res)
		if res.Failure == flows.RotateFailureConflict {
			e.metricInc(MetricRefreshConflict)
		}
		level := slog.LevelInfo
		if Classify(err) == ClassInternal {
			level = slog.LevelError
		}
		e.logger.LogAttrs(ctx, level, "refresh rejected",
			slog.String("fingerprint", short),
			slog.String("owner", res.Owner),
			slog.Any("err", err),
		)
		e.emitRefreshOutcome(ctx, start, res.Owner, res.RecordID, err, meta)
		return nil, err
	}

	if res.FastPath {
		e.metricInc(MetricRefreshFastPath)
	}
	if res.Replayable {
		entry := &cache.IdempotencyEntry{Pair: *res.Pair, Owner: res.Owner, Mark: res.Mark}
		if err := e.idem.Set(ctx, fp, entry, e.config.Idempotency.TTL); err != nil {
			e.cacheError(ctx, "idempotency_set", err)
		}
	}

	e.emitRefreshOutcome(ctx, start, res.Owner, res.RecordID, nil, func() map[string]string {
		m := meta()
		if res.FastPath {
			m["fast_path"] = "true"
		}
		return m
	})
	return res.Pair, nil
}

// replay returns the pair a completed rotation of the same fingerprint
// produced, if it is still cached and the owner has not logged out since.
// An unreadable mark refuses the replay; the store then decides.
func (e *Engine) replay(ctx context.Context, fp string) (*TokenPair, bool) {
	entry, ok, err := e.idem.Get(ctx, fp)
	if err != nil {
		e.cacheError(ctx, "idempotency_get", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	mark, err := e.marks.Current(ctx, entry.Owner)
	if err != nil {
		e.cacheError(ctx, "revocation_get", err)
		return nil, false
	}
	if mark != entry.Mark {
		e.logger.LogAttrs(ctx, slog.LevelDebug, "replay revoked by logout",
			slog.String("owner", entry.Owner),
			slog.String("fingerprint", internal.ShortFingerprint(fp)),
		)
		return nil, false
	}

	e.metricInc(MetricRefreshIdempotentHit)
	pair := entry.Pair
	return &pair, true
}

// acquireRotationLock returns the held lock, or the replayed pair of a
// holder that finished while this call waited. A nil lock with nil pair and
// error means the lock backend failed and the caller proceeds unlocked.
func (e *Engine) acquireRotationLock(ctx context.Context, fp string) (*cache.Lock, *TokenPair, error) {
	lock, ok, err := e.locks.TryAcquire(ctx, fp, e.config.Lock.TTL)
	if err != nil {
		e.cacheError(ctx, "lock_acquire", err)
		return nil, nil, nil
	}
	if ok {
		return lock, nil, nil
	}
	if e.config.Lock.WaitTimeout <= 0 {
		return nil, nil, ErrLockContention
	}

	e.metricInc(MetricLockWait)

	var replayed *TokenPair
	backoff := retry.WithMaxDuration(e.config.Lock.WaitTimeout, retry.NewConstant(e.config.Lock.RetryInterval))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pair, ok := e.replay(ctx, fp); ok {
			replayed = pair
			return nil
		}
		l, ok, err := e.locks.TryAcquire(ctx, fp, e.config.Lock.TTL)
		if err != nil {
			e.cacheError(ctx, "lock_acquire", err)
			return nil
		}
		if !ok {
			return retry.RetryableError(errLockHeld)
		}
		lock = l
		return nil
	})

	switch {
	case err == nil:
		return lock, replayed, nil
	case errors.Is(err, errLockHeld):
		return nil, nil, ErrLockContention
	default:
		return nil, nil, fmt.Errorf("%w: %v", ErrLockContention, err)
	}
}

func (e *Engine) releaseRotationLock(ctx context.Context, lock *cache.Lock) {
	if lock == nil {
		return
	}
	if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
		e.cacheError(ctx, "lock_release", err)
	}
}

func rotateError(res flows.RotateResult) error {
	switch res.Failure {
	case flows.RotateFailureRefreshExpired:
		return ErrRefreshExpired
	case flows.RotateFailureRefreshInvalid:
		return ErrInvalidSignature
	case flows.RotateFailureAccessInvalid:
		return ErrInvalidAccessToken
	case flows.RotateFailureOwnerMismatch,
		flows.RotateFailureRecordMissing,
		flows.RotateFailureHashMismatch,
		flows.RotateFailureConflict:
		return ErrInvalidRefreshToken
	case flows.RotateFailureRateLimited:
		return ErrRefreshRateLimited
	case flows.RotateFailureStore:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	case flows.RotateFailureHash:
		return fmt.Errorf("hashing refresh token: %w", res.Err)
	default:
		return fmt.Errorf("minting token pair: %w", res.Err)
	}
}

func replayMeta(fingerprint string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"fingerprint": fingerprint, "replay": "true"}
	}
}
