package token

import (
	"context"
	"database/sql"
	"time"
)

var _ RevocationStore = (*PGRevocations)(nil)

// PGRevocations implements RevocationStore on PostgreSQL so revocations are
// visible across processes sharing the database. Inserts are idempotent via
// ON CONFLICT, so concurrent revokes interleave safely.
type PGRevocations struct {
	db *sql.DB
}

// NewPGRevocations wraps an open database handle.
func NewPGRevocations(db *sql.DB) *PGRevocations {
	return &PGRevocations{db: db}
}

func (s *PGRevocations) Add(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into revoked_tokens(token_id, expires_at) values($1,$2)
		 on conflict (token_id) do nothing`,
		id, expiresAt,
	)
	return err
}

func (s *PGRevocations) Contains(ctx context.Context, id string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`select exists(select 1 from revoked_tokens where token_id=$1)`, id)
	var revoked bool
	if err := row.Scan(&revoked); err != nil {
		return false, err
	}
	return revoked, nil
}

// PurgeExpired removes entries whose underlying token expiry has passed.
// Expired tokens are rejected by the expiry check regardless, so this is
// housekeeping, not a correctness requirement.
func (s *PGRevocations) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from revoked_tokens where expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
