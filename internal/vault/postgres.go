package vault

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ CredentialStore = (*PGStore)(nil)

const pgUniqueViolation = "23505"

// PGStore implements CredentialStore using PostgreSQL. Uniqueness is enforced
// by the primary key on identity_key, so duplicate detection is atomic.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, identityKey string) (CredentialRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, identity_key, password_hash, algorithm, version, created_at
		   from credentials where identity_key=$1`, identityKey)
	var rec CredentialRecord
	if err := row.Scan(&rec.ID, &rec.IdentityKey, &rec.Hash, &rec.Algorithm, &rec.Version, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CredentialRecord{}, ErrNotFound
		}
		return CredentialRecord{}, err
	}
	return rec, nil
}

func (s *PGStore) Put(ctx context.Context, rec CredentialRecord) error {
	_, err := s.db.ExecContext(ctx,
		`insert into credentials(id, identity_key, password_hash, algorithm, version, created_at)
		 values($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.IdentityKey, rec.Hash, rec.Algorithm, rec.Version, rec.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateIdentity
	}
	return err
}

func (s *PGStore) Replace(ctx context.Context, rec CredentialRecord) error {
	res, err := s.db.ExecContext(ctx,
		`update credentials
		    set id=$2, password_hash=$3, algorithm=$4, version=$5, created_at=$6
		  where identity_key=$1 and version < $5`,
		rec.IdentityKey, rec.ID, rec.Hash, rec.Algorithm, rec.Version, rec.CreatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
