package goRotate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goRotate/internal/flows"
)

// Revoke logs out the record behind refreshToken for owner. An empty owner
// means the owner named in the token.
//
// Revoke is idempotent: invalid, foreign, unknown and already revoked tokens
// return nil. Only store failures are reported, wrapped in
// ErrStoreUnavailable. Expired tokens are accepted so a client can always
// log out.
func (e *Engine) Revoke(ctx context.Context, refreshToken, owner string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return ErrMalformedRequest
	}

	res := flows.RunRevoke(ctx, refreshToken, owner, e.flows.Revoke)
	meta := func() map[string]string {
		return map[string]string{"outcome": res.Outcome.String()}
	}

	// Any authentic token of the owner ends the owner's replay window, even
	// one already superseded by a rotation that is still replayable.
	switch res.Outcome {
	case flows.RevokeOutcomeInvalidToken, flows.RevokeOutcomeOwnerMismatch:
	default:
		e.markRevoked(ctx, res.Owner)
	}

	if res.Outcome == flows.RevokeOutcomeFailed {
		err := fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
		e.logger.LogAttrs(ctx, slog.LevelError, "revoke failed",
			slog.String("owner", res.Owner),
			slog.Any("err", res.Err),
		)
		e.emitAudit(ctx, auditEventLogout, false, res.Owner, res.RecordID, err, meta)
		return err
	}

	if res.Outcome == flows.RevokeOutcomeRevoked {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, auditEventLogout, true, res.Owner, res.RecordID, nil, meta)
	return nil
}

// Logout revokes refreshToken on behalf of whoever it names.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	return e.Revoke(ctx, refreshToken, "")
}

// RevokeAll revokes every active record of owner and reports how many
// changed.
func (e *Engine) RevokeAll(ctx context.Context, owner string) (int64, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	if owner == "" {
		return 0, ErrMalformedRequest
	}

	n, err := e.store.RevokeAllForOwner(ctx, owner)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		e.emitAudit(ctx, auditEventLogoutAll, false, owner, "", err, nil)
		return 0, err
	}

	if e.active != nil {
		if err := e.active.Delete(ctx, owner); err != nil {
			e.cacheError(ctx, "active_delete", err)
		}
	}
	e.markRevoked(ctx, owner)

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, owner, "", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return n, nil
}

// markRevoked moves the owner's revocation mark. The mark outlives any
// idempotency entry minted under the previous one: entries are written at
// most Lock.TTL after their mark was read.
func (e *Engine) markRevoked(ctx context.Context, owner string) {
	if owner == "" {
		return
	}
	ttl := e.config.Idempotency.TTL + e.config.Lock.TTL
	if _, err := e.marks.Mark(context.WithoutCancel(ctx), owner, ttl); err != nil {
		e.cacheError(ctx, "revocation_set", err)
	}
}
