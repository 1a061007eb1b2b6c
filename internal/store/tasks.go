package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Task statuses.
const (
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// Task item operation types.
const (
	ItemCopy   = "copy"
	ItemDelete = "delete"
	ItemCreate = "create"
)

// SyncTask is the audit header for one execution of a sync config.
type SyncTask struct {
	ID        int64
	ConfigID  int64
	StartTime time.Time
	Status    string
	DuraTime  int64 // seconds
	TaskNum   string
	ErrMsg    string
}

// SyncTaskItem is one emitted operation within a task. Rows are append-only
// and ordered by id, which preserves emission order.
type SyncTaskItem struct {
	ID       int64
	TaskID   int64
	Type     string
	SrcPath  string
	DstPath  string
	FileName string
	FileSize int64
	Status   string
	ErrMsg   string
}

// CreateTask inserts a running task header and returns its id.
func (s *Store) CreateTask(ctx context.Context, configID int64, start time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_task (config_id, start_time, status) VALUES (?, ?, ?)`,
		configID, start.Unix(), TaskRunning)
	if err != nil {
		return 0, fmt.Errorf("store: inserting task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: task insert id: %w", err)
	}

	return id, nil
}

// FinishTask writes the terminal status, duration, counters, and first
// error message of a task.
func (s *Store) FinishTask(ctx context.Context, taskID int64, status string, duraSeconds int64, taskNum, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sync_task
		SET status = ?, dura_time = ?, task_num = ?, err_msg = ?
		WHERE id = ?`,
		status, duraSeconds, taskNum, errMsg, taskID)
	if err != nil {
		return fmt.Errorf("store: finishing task %d: %w", taskID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: finish rows affected: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("store: finishing task %d: %w", taskID, ErrNotFound)
	}

	return nil
}

// GetTask returns one task header.
func (s *Store) GetTask(ctx context.Context, taskID int64) (*SyncTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, config_id, start_time,
		status, dura_time, task_num, err_msg FROM sync_task WHERE id = ?`, taskID)

	return scanTask(row)
}

// ListTasks returns the most recent tasks for a config, newest first.
// limit <= 0 means no limit.
func (s *Store) ListTasks(ctx context.Context, configID int64, limit int) ([]*SyncTask, error) {
	q := `SELECT id, config_id, start_time, status, dura_time, task_num, err_msg
		FROM sync_task WHERE config_id = ? ORDER BY id DESC`
	args := []any{configID}

	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: listing tasks: %w", err)
	}
	defer rows.Close()

	var out []*SyncTask

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating tasks: %w", err)
	}

	return out, nil
}

// AppendTaskItem records one emitted operation. Items are append-only.
func (s *Store) AppendTaskItem(ctx context.Context, item *SyncTaskItem) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO sync_task_item
		(task_id, type, src_path, dst_path, file_name, file_size, status, err_msg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.TaskID, item.Type, item.SrcPath, item.DstPath,
		item.FileName, item.FileSize, item.Status, item.ErrMsg)
	if err != nil {
		return 0, fmt.Errorf("store: inserting task item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: task item insert id: %w", err)
	}

	return id, nil
}

// ListTaskItems returns a task's items in emission order.
func (s *Store) ListTaskItems(ctx context.Context, taskID int64) ([]*SyncTaskItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, type, src_path,
		dst_path, file_name, file_size, status, err_msg
		FROM sync_task_item WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("store: listing task items: %w", err)
	}
	defer rows.Close()

	var out []*SyncTaskItem

	for rows.Next() {
		var it SyncTaskItem

		err := rows.Scan(&it.ID, &it.TaskID, &it.Type, &it.SrcPath,
			&it.DstPath, &it.FileName, &it.FileSize, &it.Status, &it.ErrMsg)
		if err != nil {
			return nil, fmt.Errorf("store: scanning task item: %w", err)
		}

		out = append(out, &it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating task items: %w", err)
	}

	return out, nil
}

func scanTask(row rowScanner) (*SyncTask, error) {
	var (
		t         SyncTask
		startTime int64
	)

	err := row.Scan(&t.ID, &t.ConfigID, &startTime, &t.Status,
		&t.DuraTime, &t.TaskNum, &t.ErrMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: scanning task: %w", err)
	}

	t.StartTime = time.Unix(startTime, 0)

	return &t, nil
}
