package token

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRevocationsAddAndContains(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	exp := time.Now().Add(time.Hour)
	mock.ExpectExec("insert into revoked_tokens").
		WithArgs("jti-1", exp).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("select exists").
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	store := NewPGRevocations(db)
	ctx := context.Background()
	if err := store.Add(ctx, "jti-1", exp); err != nil {
		t.Fatalf("Add: %v", err)
	}
	revoked, err := store.Contains(ctx, "jti-1")
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !revoked {
		t.Fatal("expected membership")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRevocationsPurgeExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectExec("delete from revoked_tokens").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	purged, err := NewPGRevocations(db).PurgeExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if purged != 3 {
		t.Fatalf("expected 3 purged, got %d", purged)
	}
}
