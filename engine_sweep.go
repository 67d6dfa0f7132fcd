package accountsec

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"
)

// Sweep deletes records that can no longer influence any decision and moves
// overdue invitations to expired:
//
//   - attempts older than Retention.AttemptHorizon
//   - lockouts that ended more than Retention.LockoutGrace ago
//   - expired sessions
//   - reset tokens that expired more than Retention.TokenGrace ago
//
// Every step runs even if an earlier one fails; the failures are joined.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	if err := e.ready(ctx); err != nil {
		return SweepReport{}, err
	}
	start := e.now()
	now := start.UTC()
	ret := e.config.Retention

	var (
		report SweepReport
		errs   []error
		err    error
	)
	if report.AttemptsPurged, err = e.stores.Attempts.PurgeBefore(ctx, now.Add(-ret.AttemptHorizon)); err != nil {
		errs = append(errs, storageErr(err))
	}
	if report.LockoutsPurged, err = e.stores.Lockouts.PurgeEndedBefore(ctx, now.Add(-ret.LockoutGrace)); err != nil {
		errs = append(errs, storageErr(err))
	}
	if report.SessionsPurged, err = e.stores.Sessions.PurgeExpired(ctx, now); err != nil {
		errs = append(errs, storageErr(err))
	}
	if report.ResetTokensPurged, err = e.stores.ResetTokens.PurgeExpiredBefore(ctx, now.Add(-ret.TokenGrace)); err != nil {
		errs = append(errs, storageErr(err))
	}

	expired, err := e.FindExpiredInvitations(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, inv := range expired {
		if _, err := e.ExpireInvitation(ctx, inv.ID); err != nil {
			// accepted concurrently
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		report.InvitationsExpired++
	}

	report.Duration = e.now().Sub(start)
	e.metricInc(MetricSweepRuns)
	e.emitAudit(ctx, auditEventSweep, "", "", len(errs) == 0, errors.Join(errs...), map[string]string{
		"attempts":    strconv.FormatInt(report.AttemptsPurged, 10),
		"lockouts":    strconv.FormatInt(report.LockoutsPurged, 10),
		"sessions":    strconv.FormatInt(report.SessionsPurged, 10),
		"invitations": strconv.Itoa(report.InvitationsExpired),
	})
	e.log.Info("maintenance sweep finished",
		zap.Int64("attempts_purged", report.AttemptsPurged),
		zap.Int64("lockouts_purged", report.LockoutsPurged),
		zap.Int64("sessions_purged", report.SessionsPurged),
		zap.Int64("reset_tokens_purged", report.ResetTokensPurged),
		zap.Int("invitations_expired", report.InvitationsExpired),
		zap.Duration("duration", report.Duration),
	)
	return report, errors.Join(errs...)
}
