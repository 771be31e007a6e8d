package device

import (
	"context"
	"database/sql"
	"errors"
)

// Postgres implements Store on PostgreSQL via database/sql.
type Postgres struct {
	db *sql.DB
}

var (
	_ Store         = (*Postgres)(nil)
	_ BatchUpserter = (*Postgres)(nil)
)

// NewPostgres wraps an open connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const deviceColumns = `id, user_id, name, identifier,
	encrypted_private_key, encrypted_public_key, encrypted_user_key,
	created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, d *Device) error {
	_, err := s.db.ExecContext(ctx,
		`insert into devices(id, user_id, name, identifier,
		        encrypted_private_key, encrypted_public_key, encrypted_user_key,
		        created_at, updated_at)
		 values($1,$2,$3,$4,nullif($5,''),nullif($6,''),nullif($7,''),$8,$9)`,
		d.ID, d.UserID, d.Name, d.Identifier,
		d.EncryptedPrivateKey, d.EncryptedPublicKey, d.EncryptedUserKey,
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (s *Postgres) Find(ctx context.Context, id string) (*Device, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+deviceColumns+` from devices where id=$1`, id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Postgres) ListByUser(ctx context.Context, userID string) ([]*Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+deviceColumns+` from devices where user_id=$1 order by created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Postgres) Upsert(ctx context.Context, d *Device) error {
	_, err := s.db.ExecContext(ctx, upsertSQL,
		d.ID, d.UserID, d.Name, d.Identifier,
		d.EncryptedPrivateKey, d.EncryptedPublicKey, d.EncryptedUserKey,
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

// UpsertMany persists the batch inside one transaction, so an untrust of
// several devices commits all cleared records or none of them.
func (s *Postgres) UpsertMany(ctx context.Context, devices []*Device) error {
	if len(devices) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, d := range devices {
		if _, err := tx.ExecContext(ctx, upsertSQL,
			d.ID, d.UserID, d.Name, d.Identifier,
			d.EncryptedPrivateKey, d.EncryptedPublicKey, d.EncryptedUserKey,
			d.CreatedAt, d.UpdatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const upsertSQL = `insert into devices(id, user_id, name, identifier,
	        encrypted_private_key, encrypted_public_key, encrypted_user_key,
	        created_at, updated_at)
	 values($1,$2,$3,$4,nullif($5,''),nullif($6,''),nullif($7,''),$8,$9)
	 on conflict (id) do update
	 set name=excluded.name,
	     identifier=excluded.identifier,
	     encrypted_private_key=excluded.encrypted_private_key,
	     encrypted_public_key=excluded.encrypted_public_key,
	     encrypted_user_key=excluded.encrypted_user_key,
	     updated_at=excluded.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d          Device
		privateKey sql.NullString
		publicKey  sql.NullString
		userKey    sql.NullString
	)
	if err := row.Scan(
		&d.ID, &d.UserID, &d.Name, &d.Identifier,
		&privateKey, &publicKey, &userKey,
		&d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.EncryptedPrivateKey = privateKey.String
	d.EncryptedPublicKey = publicKey.String
	d.EncryptedUserKey = userKey.String
	return &d, nil
}
