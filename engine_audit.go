package goRotate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventIssueSuccess       = "issue_success"
	auditEventIssueFailure       = "issue_failure"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventRefreshRateLimited = "refresh_rate_limited"
	auditEventRefreshContention  = "refresh_contention"
	auditEventRefreshFailure     = "refresh_failure"
	auditEventLogout             = "logout"
	auditEventLogoutAll          = "logout_all"
	auditEventSweep              = "sweep_expired"
)

// AuditErrorCode is the stable error string written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidSignature    AuditErrorCode = "invalid_signature"
	auditErrRefreshExpired      AuditErrorCode = "refresh_expired"
	auditErrInvalidAccessToken  AuditErrorCode = "invalid_access_token"
	auditErrAccessTokenExpired  AuditErrorCode = "access_token_expired"
	auditErrInvalidRefreshToken AuditErrorCode = "invalid_refresh_token"
	auditErrLockContention      AuditErrorCode = "lock_contention"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrMalformed           AuditErrorCode = "malformed_request"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	owner string,
	recordID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Owner:     owner,
		RecordID:  recordID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// emitRefreshOutcome records the metric, audit event and latency sample for
// one Refresh call.
func (e *Engine) emitRefreshOutcome(ctx context.Context, start time.Time, owner, recordID string, err error, metadataBuilder func() map[string]string) {
	e.metricObserve(MetricRefreshLatency, e.now().Sub(start))

	switch {
	case err == nil:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, owner, recordID, nil, metadataBuilder)
	case errors.Is(err, ErrRefreshRateLimited):
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, owner, recordID, err, metadataBuilder)
	case errors.Is(err, ErrLockContention):
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricLockContention)
		e.emitAudit(ctx, auditEventRefreshContention, false, owner, recordID, err, metadataBuilder)
	case Classify(err) == ClassFatal:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, owner, recordID, err, metadataBuilder)
	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, owner, recordID, err, metadataBuilder)
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidSignature):
		return auditErrInvalidSignature
	case errors.Is(err, ErrRefreshExpired):
		return auditErrRefreshExpired
	case errors.Is(err, ErrInvalidAccessToken):
		return auditErrInvalidAccessToken
	case errors.Is(err, ErrAccessTokenExpired):
		return auditErrAccessTokenExpired
	case errors.Is(err, ErrInvalidRefreshToken):
		return auditErrInvalidRefreshToken
	case errors.Is(err, ErrLockContention):
		return auditErrLockContention
	case errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrMalformedRequest):
		return auditErrMalformed
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
