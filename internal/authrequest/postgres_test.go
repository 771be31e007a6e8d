package authrequest

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func authRequestColumns() []string {
	return []string{
		"id", "user_id", "request_device_identifier", "request_ip", "public_key", "access_code",
		"encrypted_key", "master_password_hash", "approved", "response_device_id", "created_at", "responded_at",
	}
}

func TestPostgresCreate(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectExec("insert into auth_requests").
		WithArgs("A1", "user-1", "device-a", "198.51.100.7", "pk-1", "XJ92KQ", created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Create(context.Background(), &AuthRequest{
		ID:                      "A1",
		UserID:                  "user-1",
		RequestDeviceIdentifier: "device-a",
		RequestIP:               "198.51.100.7",
		PublicKey:               "pk-1",
		AccessCode:              "XJ92KQ",
		CreatedAt:               created,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresFind(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()
	responded := created.Add(time.Minute)

	rows := sqlmock.NewRows(authRequestColumns()).AddRow(
		"A1", "user-1", "device-a", "", "pk-1", "XJ92KQ",
		"enc-key", "mp-hash", true, "device-b", created, responded,
	)
	mock.ExpectQuery("select id, user_id, request_device_identifier").
		WithArgs("A1").
		WillReturnRows(rows)

	rec, err := store.Find(context.Background(), "A1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if rec.ID != "A1" || rec.AccessCode != "XJ92KQ" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Approved == nil || !*rec.Approved {
		t.Fatal("expected approved record")
	}
	if rec.RespondedAt == nil || !rec.RespondedAt.Equal(responded) {
		t.Fatalf("unexpected responded_at: %v", rec.RespondedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresFindPending(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	rows := sqlmock.NewRows(authRequestColumns()).AddRow(
		"A2", "user-1", "device-a", "", "pk-1", "XJ92KQ",
		nil, nil, nil, nil, created, nil,
	)
	mock.ExpectQuery("select id, user_id, request_device_identifier").
		WithArgs("A2").
		WillReturnRows(rows)

	rec, err := store.Find(context.Background(), "A2")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if rec.Answered() {
		t.Fatal("expected pending record")
	}
	if rec.EncryptedKey != "" || rec.ResponseDeviceID != "" {
		t.Fatalf("null columns should map to empty strings: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresFindNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select id, user_id, request_device_identifier").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Find(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	responded := time.Now().UTC()
	approved := true

	mock.ExpectExec("update auth_requests").
		WithArgs("A1", "enc-key", "mp-hash", true, "device-b", responded).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Update(context.Background(), &AuthRequest{
		ID:                 "A1",
		EncryptedKey:       "enc-key",
		MasterPasswordHash: "mp-hash",
		Approved:           &approved,
		ResponseDeviceID:   "device-b",
		RespondedAt:        &responded,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdateMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update auth_requests").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), &AuthRequest{ID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
