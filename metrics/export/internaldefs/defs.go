package internaldefs

import (
	goRotate "github.com/MrEthical07/goRotate"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goRotate.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   goRotate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goRotate.MetricIssueSuccess, Name: "gorotate_issue_success_total", Help: "Token pairs issued."},
	{ID: goRotate.MetricIssueFailure, Name: "gorotate_issue_failure_total", Help: "Failed issue operations."},
	{ID: goRotate.MetricRefreshSuccess, Name: "gorotate_refresh_success_total", Help: "Rotations that produced a new pair."},
	{ID: goRotate.MetricRefreshFailure, Name: "gorotate_refresh_failure_total", Help: "Rejected or failed refresh operations."},
	{ID: goRotate.MetricRefreshFastPath, Name: "gorotate_refresh_fast_path_total", Help: "Rotations validated from the active-token cache."},
	{ID: goRotate.MetricRefreshIdempotentHit, Name: "gorotate_refresh_idempotent_hit_total", Help: "Refresh calls answered from the idempotency cache."},
	{ID: goRotate.MetricRefreshCoalesced, Name: "gorotate_refresh_coalesced_total", Help: "Refresh calls that shared an in-process rotation."},
	{ID: goRotate.MetricRefreshConflict, Name: "gorotate_refresh_conflict_total", Help: "Rotations that lost the store compare-and-swap."},
	{ID: goRotate.MetricRefreshRateLimited, Name: "gorotate_refresh_rate_limited_total", Help: "Throttled refresh attempts."},
	{ID: goRotate.MetricLockContention, Name: "gorotate_lock_contention_total", Help: "Refresh calls that timed out waiting for the rotation lock."},
	{ID: goRotate.MetricLockWait, Name: "gorotate_lock_wait_total", Help: "Refresh calls that waited on a held rotation lock."},
	{ID: goRotate.MetricCacheError, Name: "gorotate_cache_error_total", Help: "Cache backend failures degraded to a miss."},
	{ID: goRotate.MetricLogout, Name: "gorotate_logout_total", Help: "Single-token revocations."},
	{ID: goRotate.MetricLogoutAll, Name: "gorotate_logout_all_total", Help: "Revoke-all operations."},
	{ID: goRotate.MetricValidateSuccess, Name: "gorotate_validate_success_total", Help: "Accepted access tokens."},
	{ID: goRotate.MetricValidateFailure, Name: "gorotate_validate_failure_total", Help: "Rejected access tokens."},
	{ID: goRotate.MetricSweepDeleted, Name: "gorotate_sweep_deleted_total", Help: "Expired records removed by the sweeper."},
	{ID: goRotate.MetricAuditDelivered, Name: "gorotate_audit_delivered_total", Help: "Audit events accepted by the sink."},
	{ID: goRotate.MetricAuditFailed, Name: "gorotate_audit_failed_total", Help: "Audit events that made the sink panic."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goRotate.MetricRefreshLatency, Name: "gorotate_refresh_latency_seconds", Help: "Refresh latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's fixed
// latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bucket in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
