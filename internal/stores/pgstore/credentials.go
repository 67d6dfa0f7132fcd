package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/accountsec/store"
)

// CredentialStore keeps the live hash in account_credentials and every hash
// an account has held in password_history.
type CredentialStore struct {
	db      DB
	builder squirrel.StatementBuilderType
}

var _ store.CredentialStore = (*CredentialStore)(nil)

func NewCredentialStore(db DB) *CredentialStore {
	return &CredentialStore{db: db, builder: newBuilder()}
}

func (s *CredentialStore) CurrentHash(ctx context.Context, accountID string) (string, bool, error) {
	stmt, args, err := s.builder.
		Select("password_hash").
		From(credentialsTable).
		Where(squirrel.Eq{"account_id": accountID}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build select credential sql: %w", err)
	}

	var hash string
	switch err := s.db.QueryRow(ctx, stmt, args...).Scan(&hash); {
	case err == nil:
		return hash, hash != "", nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	default:
		return "", false, unavailable("select credential", err)
	}
}

// SetPassword upserts the live hash and appends the history row in one
// transaction. The upsert's row lock serializes concurrent changes.
func (s *CredentialStore) SetPassword(ctx context.Context, accountID, hash string, at time.Time) (err error) {
	upsert, upsertArgs, err := s.builder.
		Insert(credentialsTable).
		Columns("account_id", "password_hash", "updated_at").
		Values(accountID, hash, at).
		Suffix("ON CONFLICT (account_id) DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert credential sql: %w", err)
	}
	insert, insertArgs, err := s.builder.
		Insert(historyTable).
		Columns("account_id", "password_hash", "created_at").
		Values(accountID, hash, at).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert history sql: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return unavailable("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, upsert, upsertArgs...); err != nil {
		return unavailable("upsert credential", err)
	}
	if _, err = tx.Exec(ctx, insert, insertArgs...); err != nil {
		return unavailable("insert history", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (s *CredentialStore) History(ctx context.Context, accountID string, limit int) ([]store.PasswordHistoryEntry, error) {
	query := s.builder.
		Select("account_id", "password_hash", "created_at").
		From(historyTable).
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select history sql: %w", err)
	}

	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, unavailable("select history", err)
	}
	defer rows.Close()

	var out []store.PasswordHistoryEntry
	for rows.Next() {
		var e store.PasswordHistoryEntry
		if err := rows.Scan(&e.AccountID, &e.PasswordHash, &e.CreatedAt); err != nil {
			return nil, unavailable("scan history", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate history", err)
	}
	return out, nil
}

const pruneHistorySQL = `
DELETE FROM password_history h
 WHERE h.account_id = $1
   AND h.id NOT IN (
        SELECT id FROM password_history
         WHERE account_id = $1
         ORDER BY created_at DESC, id DESC
         LIMIT $2)
   AND h.password_hash IS DISTINCT FROM (
        SELECT password_hash FROM account_credentials
         WHERE account_id = $1)
`

func (s *CredentialStore) PruneHistory(ctx context.Context, accountID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	tag, err := s.db.Exec(ctx, pruneHistorySQL, accountID, keep)
	if err != nil {
		return 0, unavailable("prune history", err)
	}
	return int(tag.RowsAffected()), nil
}
