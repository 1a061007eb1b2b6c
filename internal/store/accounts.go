package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Account is one stored credential bundle (table yp_user).
type Account struct {
	ID         int64
	Type       string
	UserID     string
	Username   string
	Cookies    string
	AvatarURL  string
	Quota      int64
	Used       int64
	IsVIP      bool
	IsSuperVIP bool
	IsValid    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

const accountCols = `id, type, user_id, username, cookies, avatar_url,
	quota, used, is_vip, is_supervip, is_valid, created_at, updated_at`

// CreateAccount inserts a new account and returns its id.
func (s *Store) CreateAccount(ctx context.Context, a *Account) (int64, error) {
	now := s.now()

	res, err := s.db.ExecContext(ctx, `INSERT INTO yp_user
		(type, user_id, username, cookies, avatar_url, quota, used,
		 is_vip, is_supervip, is_valid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Type, a.UserID, a.Username, a.Cookies, a.AvatarURL,
		a.Quota, a.Used, a.IsVIP, a.IsSuperVIP, a.IsValid, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("store: inserting account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: account insert id: %w", err)
	}

	return id, nil
}

// GetAccount returns the account with the given id.
func (s *Store) GetAccount(ctx context.Context, id int64) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM yp_user WHERE id = ?`, id)

	return scanAccount(row)
}

// ListAccounts returns all accounts. When validOnly is set, only accounts
// whose credentials have not been marked invalid are returned.
func (s *Store) ListAccounts(ctx context.Context, validOnly bool) ([]*Account, error) {
	q := `SELECT ` + accountCols + ` FROM yp_user`
	if validOnly {
		q += ` WHERE is_valid = 1`
	}

	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: listing accounts: %w", err)
	}
	defer rows.Close()

	var out []*Account

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating accounts: %w", err)
	}

	return out, nil
}

// MarkAccountInvalid flags an account whose credentials the provider
// rejected. Invalid accounts are skipped by the dispatcher and workers.
func (s *Store) MarkAccountInvalid(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE yp_user SET is_valid = 0, updated_at = ? WHERE id = ?`,
		s.now(), id)
	if err != nil {
		return fmt.Errorf("store: marking account %d invalid: %w", id, err)
	}

	return nil
}

// UpdateAccountInfo refreshes the provider-side identity snapshot after a
// successful GetUserInfo call and re-marks the account valid.
func (s *Store) UpdateAccountInfo(ctx context.Context, id int64, username, avatarURL string, quota, used int64, isVIP, isSuperVIP bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE yp_user SET
		username = ?, avatar_url = ?, quota = ?, used = ?,
		is_vip = ?, is_supervip = ?, is_valid = 1, updated_at = ?
		WHERE id = ?`,
		username, avatarURL, quota, used, isVIP, isSuperVIP, s.now(), id)
	if err != nil {
		return fmt.Errorf("store: updating account %d: %w", id, err)
	}

	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		a                    Account
		createdAt, updatedAt int64
	)

	err := row.Scan(
		&a.ID, &a.Type, &a.UserID, &a.Username, &a.Cookies, &a.AvatarURL,
		&a.Quota, &a.Used, &a.IsVIP, &a.IsSuperVIP, &a.IsValid,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: scanning account: %w", err)
	}

	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)

	return &a, nil
}
