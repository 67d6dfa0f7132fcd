package internaldefs

import (
	"github.com/MrEthical07/accountsec"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   accountsec.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   accountsec.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: accountsec.MetricLoginSuccess, Name: "accountsec_login_success_total", Help: "Successful logins."},
	{ID: accountsec.MetricLoginFailure, Name: "accountsec_login_failure_total", Help: "Failed logins."},
	{ID: accountsec.MetricLoginLocked, Name: "accountsec_login_locked_total", Help: "Logins refused because the account was locked."},
	{ID: accountsec.MetricLockoutTemporary, Name: "accountsec_lockout_temporary_total", Help: "Temporary lockouts created."},
	{ID: accountsec.MetricLockoutPermanent, Name: "accountsec_lockout_permanent_total", Help: "Permanent lockouts created or escalated."},
	{ID: accountsec.MetricLockoutExtended, Name: "accountsec_lockout_extended_total", Help: "Active lockouts extended by further failures."},
	{ID: accountsec.MetricLockoutCleared, Name: "accountsec_lockout_cleared_total", Help: "Temporary lockouts cleared early."},
	{ID: accountsec.MetricAccountUnlocked, Name: "accountsec_account_unlocked_total", Help: "Administrative unlocks."},
	{ID: accountsec.MetricSessionIssued, Name: "accountsec_session_issued_total", Help: "Sessions issued."},
	{ID: accountsec.MetricSessionRevoked, Name: "accountsec_session_revoked_total", Help: "Sessions revoked."},
	{ID: accountsec.MetricSessionRejected, Name: "accountsec_session_rejected_total", Help: "Session validations rejected."},
	{ID: accountsec.MetricPasswordResetIssued, Name: "accountsec_password_reset_issued_total", Help: "Password reset tokens issued."},
	{ID: accountsec.MetricPasswordResetRedeemed, Name: "accountsec_password_reset_redeemed_total", Help: "Password reset tokens redeemed."},
	{ID: accountsec.MetricPasswordResetRejected, Name: "accountsec_password_reset_rejected_total", Help: "Password reset redemptions rejected."},
	{ID: accountsec.MetricInvitationCreated, Name: "accountsec_invitation_created_total", Help: "Invitations created."},
	{ID: accountsec.MetricInvitationAccepted, Name: "accountsec_invitation_accepted_total", Help: "Invitations accepted."},
	{ID: accountsec.MetricInvitationExpired, Name: "accountsec_invitation_expired_total", Help: "Invitations moved to expired."},
	{ID: accountsec.MetricPasswordChanged, Name: "accountsec_password_changed_total", Help: "Password changes and resets."},
	{ID: accountsec.MetricPasswordReuseRejected, Name: "accountsec_password_reuse_rejected_total", Help: "New passwords rejected as reused."},
	{ID: accountsec.MetricSweepRuns, Name: "accountsec_sweep_runs_total", Help: "Maintenance sweeps completed."},
}

var HistogramDefs = []HistogramDef{
	{ID: accountsec.MetricLoginLatency, Name: "accountsec_login_latency_seconds", Help: "Login latency."},
}

// AuditDroppedName is exported alongside the engine counters.
const (
	AuditDroppedName = "accountsec_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped under dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

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

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
