package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Resource is one catalogued share link owned by an account, refreshed by
// the maintenance workers before it expires.
type Resource struct {
	ID          int64
	AccountID   int64 // yp_user.id, column user_id
	Title       string
	FileID      string
	URL         string
	PwdID       string
	Password    string
	ExpiredType int
	ExpiredAt   *time.Time
	IsDeleted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateResource inserts a catalogued share and returns its id.
func (s *Store) CreateResource(ctx context.Context, r *Resource) (int64, error) {
	now := s.now()

	res, err := s.db.ExecContext(ctx, `INSERT INTO resource
		(user_id, title, file_id, url, pwd_id, password, expired_type,
		 expired_at, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.AccountID, r.Title, r.FileID, r.URL, r.PwdID, r.Password,
		r.ExpiredType, nullTime(r.ExpiredAt), r.IsDeleted, now, now)
	if err != nil {
		return 0, fmt.Errorf("store: inserting resource: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: resource insert id: %w", err)
	}

	return id, nil
}

// ListExpiringResources returns live resources whose share expires at or
// before the deadline, oldest expiry first.
func (s *Store) ListExpiringResources(ctx context.Context, deadline time.Time) ([]*Resource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, title, file_id,
		url, pwd_id, password, expired_type, expired_at, is_deleted,
		created_at, updated_at
		FROM resource
		WHERE is_deleted = 0 AND expired_at IS NOT NULL AND expired_at <= ?
		ORDER BY expired_at`, deadline.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: listing expiring resources: %w", err)
	}
	defer rows.Close()

	var out []*Resource

	for rows.Next() {
		var (
			r                    Resource
			expiredAt            sql.NullInt64
			createdAt, updatedAt int64
		)

		err := rows.Scan(&r.ID, &r.AccountID, &r.Title, &r.FileID, &r.URL,
			&r.PwdID, &r.Password, &r.ExpiredType, &expiredAt, &r.IsDeleted,
			&createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("store: scanning resource: %w", err)
		}

		r.ExpiredAt = timePtr(expiredAt)
		r.CreatedAt = time.Unix(createdAt, 0)
		r.UpdatedAt = time.Unix(updatedAt, 0)

		out = append(out, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating resources: %w", err)
	}

	return out, nil
}

// UpdateResourceShare rewrites a resource's share coordinates after its
// link was re-created.
func (s *Store) UpdateResourceShare(ctx context.Context, id int64, url, pwdID, password string, expiredType int, expiredAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE resource SET
		url = ?, pwd_id = ?, password = ?, expired_type = ?, expired_at = ?,
		updated_at = ? WHERE id = ?`,
		url, pwdID, password, expiredType, nullTime(expiredAt), s.now(), id)
	if err != nil {
		return fmt.Errorf("store: updating resource %d share: %w", id, err)
	}

	return nil
}
