package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sync strategies.
const (
	MethodIncremental = "incremental"
	MethodFull        = "full"
	MethodOverwrite   = "overwrite"
)

// SrcMeta is the parsed sync_config.src_meta JSON document.
type SrcMeta struct {
	SourceType string            `json:"source_type"`
	SourceID   string            `json:"source_id"`
	ExtParams  map[string]string `json:"ext_params,omitempty"`
}

// DstMeta is the parsed sync_config.dst_meta JSON document.
type DstMeta struct {
	FileID string `json:"file_id,omitempty"`
}

// SyncConfig is one sync contract (table sync_config). JSON columns are
// parsed at the store boundary; raw JSON never leaves this package.
type SyncConfig struct {
	ID                int64
	Enable            bool
	Type              string
	AccountID         int64 // yp_user.id, column user_id
	SrcPath           string
	SrcMeta           SrcMeta
	DstPath           string
	DstMeta           DstMeta
	Method            string
	Speed             int
	Cron              string
	LastSync          *time.Time
	EndTime           *time.Time
	ExcludeTemplateID *int64
	RenameTemplateID  *int64
	Remark            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const configCols = `id, enable, type, user_id, src_path, src_meta, dst_path,
	dst_meta, method, speed, cron, last_sync, end_time,
	exclude_template_id, rename_template_id, remark, created_at, updated_at`

// CreateSyncConfig validates and inserts a config, returning its id.
func (s *Store) CreateSyncConfig(ctx context.Context, c *SyncConfig) (int64, error) {
	if err := validateSyncConfig(c); err != nil {
		return 0, err
	}

	srcMeta, err := json.Marshal(c.SrcMeta)
	if err != nil {
		return 0, fmt.Errorf("store: encoding src_meta: %w", err)
	}

	dstMeta, err := json.Marshal(c.DstMeta)
	if err != nil {
		return 0, fmt.Errorf("store: encoding dst_meta: %w", err)
	}

	now := s.now()

	res, err := s.db.ExecContext(ctx, `INSERT INTO sync_config
		(enable, type, user_id, src_path, src_meta, dst_path, dst_meta,
		 method, speed, cron, last_sync, end_time,
		 exclude_template_id, rename_template_id, remark, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Enable, c.Type, c.AccountID, c.SrcPath, string(srcMeta),
		c.DstPath, string(dstMeta), c.Method, c.Speed,
		nullEmpty(c.Cron), nullTime(c.LastSync), nullTime(c.EndTime),
		nullInt64Ptr(c.ExcludeTemplateID), nullInt64Ptr(c.RenameTemplateID),
		c.Remark, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("store: inserting sync config: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: sync config insert id: %w", err)
	}

	return id, nil
}

// validateSyncConfig enforces the boundary rules: known method, and a
// non-empty source id for link shares.
func validateSyncConfig(c *SyncConfig) error {
	switch c.Method {
	case MethodIncremental, MethodFull, MethodOverwrite:
	default:
		return fmt.Errorf("store: invalid method %q", c.Method)
	}

	if c.SrcMeta.SourceType == "link" && c.SrcMeta.SourceID == "" {
		return errors.New("store: source_type link requires a source_id")
	}

	return nil
}

// GetSyncConfig returns the config with the given id.
func (s *Store) GetSyncConfig(ctx context.Context, id int64) (*SyncConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+configCols+` FROM sync_config WHERE id = ?`, id)

	return scanSyncConfig(row)
}

// ListScheduledConfigs returns all enabled configs that carry a cron
// expression, the dispatcher's working set.
func (s *Store) ListScheduledConfigs(ctx context.Context) ([]*SyncConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+configCols+`
		FROM sync_config
		WHERE enable = 1 AND cron IS NOT NULL AND cron != ''
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: listing scheduled configs: %w", err)
	}
	defer rows.Close()

	return collectConfigs(rows)
}

// ListSyncConfigs returns every config, for CLI display.
func (s *Store) ListSyncConfigs(ctx context.Context) ([]*SyncConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+configCols+` FROM sync_config ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: listing configs: %w", err)
	}
	defer rows.Close()

	return collectConfigs(rows)
}

// ClaimForRun is the dispatch deduplication fence: a single conditional
// UPDATE that advances last_sync to now only if it is still older than
// prevFire. Exactly one of several concurrent claimants for the same firing
// observes a row change.
func (s *Store) ClaimForRun(ctx context.Context, id int64, prevFire, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sync_config
		SET last_sync = ?, updated_at = ?
		WHERE id = ? AND enable = 1
		  AND (last_sync IS NULL OR last_sync < ?)`,
		now.Unix(), now.Unix(), id, prevFire.Unix())
	if err != nil {
		return false, fmt.Errorf("store: claiming config %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: claim rows affected: %w", err)
	}

	return n > 0, nil
}

// TouchLastSync unconditionally advances last_sync, used by manually
// triggered runs before the first provider call.
func (s *Store) TouchLastSync(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_config SET last_sync = ?, updated_at = ? WHERE id = ?`,
		now.Unix(), now.Unix(), id)
	if err != nil {
		return fmt.Errorf("store: touching last_sync for config %d: %w", id, err)
	}

	return nil
}

func collectConfigs(rows *sql.Rows) ([]*SyncConfig, error) {
	var out []*SyncConfig

	for rows.Next() {
		c, err := scanSyncConfig(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating configs: %w", err)
	}

	return out, nil
}

func scanSyncConfig(row rowScanner) (*SyncConfig, error) {
	var (
		c                       SyncConfig
		srcMeta, dstMeta        string
		cron                    sql.NullString
		lastSync, endTime       sql.NullInt64
		excludeTmpl, renameTmpl sql.NullInt64
		createdAt, updatedAt    int64
	)

	err := row.Scan(
		&c.ID, &c.Enable, &c.Type, &c.AccountID, &c.SrcPath, &srcMeta,
		&c.DstPath, &dstMeta, &c.Method, &c.Speed, &cron,
		&lastSync, &endTime, &excludeTmpl, &renameTmpl, &c.Remark,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: scanning sync config: %w", err)
	}

	if err := json.Unmarshal([]byte(srcMeta), &c.SrcMeta); err != nil {
		return nil, fmt.Errorf("store: parsing src_meta of config %d: %w", c.ID, err)
	}

	if err := json.Unmarshal([]byte(dstMeta), &c.DstMeta); err != nil {
		return nil, fmt.Errorf("store: parsing dst_meta of config %d: %w", c.ID, err)
	}

	c.Cron = cron.String
	c.LastSync = timePtr(lastSync)
	c.EndTime = timePtr(endTime)
	c.ExcludeTemplateID = int64Ptr(excludeTmpl)
	c.RenameTemplateID = int64Ptr(renameTmpl)
	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)

	return &c, nil
}

func nullEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: s, Valid: true}
}
