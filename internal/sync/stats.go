// Package sync implements the diff-and-apply engine: it walks a share tree
// and the user's own drive level by level, emits batched mkdir / transfer /
// delete operations against a drive.Client, records every operation as a
// task item, and applies the adaptive error policy between batches.
package sync

import "encoding/json"

// Stats accumulates the counters of one sync job. FilesProcessed counts
// every source file considered, whether transferred or skipped.
type Stats struct {
	FilesProcessed   int      `json:"processed"`
	FoldersCreated   int      `json:"folders_created"`
	FilesTransferred int      `json:"transferred"`
	FilesDeleted     int      `json:"deleted"`
	FilesSkipped     int      `json:"skipped"`
	Errors           []string `json:"-"`
}

// CountersJSON renders the counters for the sync_task.task_num column.
func (s *Stats) CountersJSON() string {
	out, err := json.Marshal(struct {
		Stats
		ErrorCount int `json:"errors"`
	}{Stats: *s, ErrorCount: len(s.Errors)})
	if err != nil {
		return "{}"
	}

	return string(out)
}

// FirstError returns the first collected error string, or "".
func (s *Stats) FirstError() string {
	if len(s.Errors) == 0 {
		return ""
	}

	return s.Errors[0]
}

// Result is the outcome of one sync job.
type Result struct {
	TaskID  int64
	Success bool
	Stats   *Stats
	ErrMsg  string
}
