package pgstore

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/MrEthical07/accountsec/store"
)

var attemptColumns = []string{
	"id",
	"account_id",
	"identifier",
	"source_address",
	"user_agent",
	"occurred_at",
	"outcome",
	"failure_reason",
}

// AttemptStore appends login attempts to login_attempts. Absent account IDs
// and addresses are stored as empty strings.
type AttemptStore struct {
	db      DB
	builder squirrel.StatementBuilderType
}

var _ store.AttemptStore = (*AttemptStore)(nil)

func NewAttemptStore(db DB) *AttemptStore {
	return &AttemptStore{db: db, builder: newBuilder()}
}

func (s *AttemptStore) Append(ctx context.Context, a store.LoginAttempt) error {
	stmt, args, err := s.builder.
		Insert(attemptsTable).
		Columns(attemptColumns...).
		Values(
			a.ID,
			a.AccountID,
			a.Identifier,
			a.SourceAddress,
			a.UserAgent,
			a.OccurredAt,
			a.Outcome.String(),
			a.FailureReason.String(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert attempt sql: %w", err)
	}
	if _, err := s.db.Exec(ctx, stmt, args...); err != nil {
		return unavailable("insert attempt", err)
	}
	return nil
}

func (s *AttemptStore) countFailures(ctx context.Context, column, value string, since time.Time) (int, error) {
	stmt, args, err := s.builder.
		Select("COUNT(*)").
		From(attemptsTable).
		Where(squirrel.Eq{column: value, "outcome": store.OutcomeFailure.String()}).
		Where(squirrel.GtOrEq{"occurred_at": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count attempts sql: %w", err)
	}
	var n int
	if err := s.db.QueryRow(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, unavailable("count attempts", err)
	}
	return n, nil
}

func (s *AttemptStore) CountAccountFailures(ctx context.Context, accountID string, since time.Time) (int, error) {
	return s.countFailures(ctx, "account_id", accountID, since)
}

func (s *AttemptStore) CountAddressFailures(ctx context.Context, addr string, since time.Time) (int, error) {
	return s.countFailures(ctx, "source_address", addr, since)
}

func (s *AttemptStore) RecentAccountFailures(ctx context.Context, accountID string, since time.Time) ([]store.LoginAttempt, error) {
	stmt, args, err := s.builder.
		Select(attemptColumns...).
		From(attemptsTable).
		Where(squirrel.Eq{"account_id": accountID, "outcome": store.OutcomeFailure.String()}).
		Where(squirrel.GtOrEq{"occurred_at": since}).
		OrderBy("occurred_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select attempts sql: %w", err)
	}

	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, unavailable("select attempts", err)
	}
	defer rows.Close()

	var out []store.LoginAttempt
	for rows.Next() {
		var (
			a               store.LoginAttempt
			outcome, reason string
		)
		if err := rows.Scan(
			&a.ID,
			&a.AccountID,
			&a.Identifier,
			&a.SourceAddress,
			&a.UserAgent,
			&a.OccurredAt,
			&outcome,
			&reason,
		); err != nil {
			return nil, unavailable("scan attempt", err)
		}
		a.Outcome = parseOutcome(outcome)
		a.FailureReason, _ = store.ParseFailureReason(reason)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate attempts", err)
	}
	return out, nil
}

func (s *AttemptStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, args, err := s.builder.
		Delete(attemptsTable).
		Where(squirrel.Lt{"occurred_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge attempts sql: %w", err)
	}
	tag, err := s.db.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, unavailable("purge attempts", err)
	}
	return tag.RowsAffected(), nil
}

func parseOutcome(s string) store.AttemptOutcome {
	if s == store.OutcomeSuccess.String() {
		return store.OutcomeSuccess
	}
	return store.OutcomeFailure
}
