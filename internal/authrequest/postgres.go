package authrequest

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Postgres implements Store on PostgreSQL via database/sql.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps an open connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, req *AuthRequest) error {
	_, err := s.db.ExecContext(ctx,
		`insert into auth_requests(id, user_id, request_device_identifier, request_ip, public_key, access_code, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		req.ID, req.UserID, req.RequestDeviceIdentifier, req.RequestIP, req.PublicKey, req.AccessCode, req.CreatedAt,
	)
	return err
}

func (s *Postgres) Find(ctx context.Context, id string) (*AuthRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, request_device_identifier, request_ip, public_key, access_code,
		        encrypted_key, master_password_hash, approved, response_device_id, created_at, responded_at
		 from auth_requests where id=$1`, id)

	var (
		rec              AuthRequest
		encryptedKey     sql.NullString
		masterPassHash   sql.NullString
		approved         sql.NullBool
		responseDeviceID sql.NullString
		respondedAt      sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.RequestDeviceIdentifier, &rec.RequestIP, &rec.PublicKey, &rec.AccessCode,
		&encryptedKey, &masterPassHash, &approved, &responseDeviceID, &rec.CreatedAt, &respondedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.EncryptedKey = encryptedKey.String
	rec.MasterPasswordHash = masterPassHash.String
	rec.ResponseDeviceID = responseDeviceID.String
	if approved.Valid {
		v := approved.Bool
		rec.Approved = &v
	}
	if respondedAt.Valid {
		t := respondedAt.Time
		rec.RespondedAt = &t
	}
	return &rec, nil
}

func (s *Postgres) Update(ctx context.Context, req *AuthRequest) error {
	res, err := s.db.ExecContext(ctx,
		`update auth_requests
		 set encrypted_key=nullif($2,''), master_password_hash=nullif($3,''), approved=$4,
		     response_device_id=nullif($5,''), responded_at=$6
		 where id=$1`,
		req.ID, req.EncryptedKey, req.MasterPasswordHash, nullBool(req.Approved), req.ResponseDeviceID, nullTime(req.RespondedAt),
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

func nullBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}
