package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ypsync/ypsync/internal/drive"
	"github.com/ypsync/ypsync/internal/rules"
	"github.com/ypsync/ypsync/internal/store"
)

// DefaultMaxDepth bounds the diff recursion.
const DefaultMaxDepth = 100

// TaskStore is the persistence surface the engine needs. *store.Store
// implements it; tests substitute their own recorder.
type TaskStore interface {
	CreateTask(ctx context.Context, configID int64, start time.Time) (int64, error)
	FinishTask(ctx context.Context, taskID int64, status string, duraSeconds int64, taskNum, errMsg string) error
	AppendTaskItem(ctx context.Context, item *store.SyncTaskItem) (int64, error)
	TouchLastSync(ctx context.Context, id int64, now time.Time) error
}

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	Client drive.Client
	Store  TaskStore
	Logger *slog.Logger

	// MaxDepth bounds the recursion; 0 means DefaultMaxDepth.
	MaxDepth int

	// NowFunc and SleepFunc are injectable for deterministic tests.
	NowFunc   func() time.Time
	SleepFunc func(ctx context.Context, d time.Duration) error
}

// Engine runs sync jobs: one call to Run walks one configuration. The
// walk is sequential within a job; concurrency lives in the dispatcher,
// which runs one engine per in-flight configuration.
type Engine struct {
	client    drive.Client
	store     TaskStore
	logger    *slog.Logger
	maxDepth  int
	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewEngine validates the config and returns a ready engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("sync: EngineConfig.Client is required")
	}

	if cfg.Store == nil {
		return nil, fmt.Errorf("sync: EngineConfig.Store is required")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}

	if cfg.NowFunc == nil {
		cfg.NowFunc = time.Now
	}

	if cfg.SleepFunc == nil {
		cfg.SleepFunc = sleepContext
	}

	return &Engine{
		client:    cfg.Client,
		store:     cfg.Store,
		logger:    cfg.Logger,
		maxDepth:  cfg.MaxDepth,
		nowFunc:   cfg.NowFunc,
		sleepFunc: cfg.SleepFunc,
	}, nil
}

// Run executes one sync job for the given configuration. Provider and
// policy failures never escape as errors: they land in the returned Result
// and the task audit rows. The returned error covers only persistence
// failures that prevent the job from being recorded at all.
func (e *Engine) Run(ctx context.Context, cfg *store.SyncConfig, filter *rules.ItemFilter, renames []*rules.RenameRule) (*Result, error) {
	start := e.nowFunc()
	logger := e.logger.With(
		slog.Int64("config_id", cfg.ID),
		slog.String("method", cfg.Method),
	)

	// Audit writes use a detached context: a cancelled job still records
	// its header, items, and terminal status.
	dbCtx := context.WithoutCancel(ctx)

	// 1. Open the audit header.
	taskID, err := e.store.CreateTask(dbCtx, cfg.ID, start)
	if err != nil {
		return nil, fmt.Errorf("sync: creating task for config %d: %w", cfg.ID, err)
	}

	logger = logger.With(slog.Int64("task_id", taskID))
	stats := &Stats{}

	// 2. Advance last_sync before the first provider call. This write is
	// the dedup fence: a second dispatch for the same cron firing sees
	// last_sync >= prev_fire and stays away.
	if err := e.store.TouchLastSync(dbCtx, cfg.ID, start); err != nil {
		if finishErr := e.store.FinishTask(dbCtx, taskID, store.TaskFailed, 0, stats.CountersJSON(), err.Error()); finishErr != nil {
			logger.Error("finalizing task after fence failure", "error", finishErr)
		}

		return nil, fmt.Errorf("sync: writing last_sync fence for config %d: %w", cfg.ID, err)
	}

	j := &job{
		engine:    e,
		logger:    logger,
		taskID:    taskID,
		source:    cfg.SrcMeta,
		srcRoot:   cfg.SrcPath,
		dstRoot:   cfg.DstPath,
		dstRootID: cfg.DstMeta.FileID,
		strategy:  cfg.Method,
		speed:     Speed(cfg.Speed),
		filter:    filter,
		renames:   renames,
		stats:     stats,
		policy: &errorPolicy{
			logger:    logger,
			sleepFunc: e.sleepFunc,
		},
	}

	logger.Info("sync job starting",
		slog.String("src_path", cfg.SrcPath),
		slog.String("dst_path", cfg.DstPath),
		slog.String("speed", j.speed.String()),
	)

	// 3. Walk per strategy.
	if cfg.Method == store.MethodOverwrite {
		j.runOverwrite(ctx)
	} else {
		j.syncWithHave(ctx, j.srcRoot, j.dstRoot, j.dstRootID, 0)
	}

	// 4. Finalize the audit header.
	status := store.TaskCompleted
	errMsg := ""

	switch {
	case ctx.Err() != nil:
		status = store.TaskFailed
		errMsg = "cancelled"
	case len(stats.Errors) > 0:
		status = store.TaskFailed
		errMsg = stats.FirstError()
	}

	dura := int64(e.nowFunc().Sub(start).Seconds())

	if err := e.store.FinishTask(dbCtx, taskID, status, dura, stats.CountersJSON(), errMsg); err != nil {
		return nil, fmt.Errorf("sync: finalizing task %d: %w", taskID, err)
	}

	logger.Info("sync job finished",
		slog.String("status", status),
		slog.Int("transferred", stats.FilesTransferred),
		slog.Int("skipped", stats.FilesSkipped),
		slog.Int("deleted", stats.FilesDeleted),
		slog.Int("folders_created", stats.FoldersCreated),
		slog.Int("errors", len(stats.Errors)),
		slog.Int64("dura_seconds", dura),
	)

	return &Result{
		TaskID:  taskID,
		Success: status == store.TaskCompleted,
		Stats:   stats,
		ErrMsg:  errMsg,
	}, nil
}

// sleepContext waits for the given duration or until the context is
// canceled. It is the default SleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
