// Package sched drives scheduled work: the cron dispatcher that fires sync
// jobs, and the background maintenance workers that keep shares and accounts
// fresh.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/ypsync/ypsync/internal/store"
)

// Defaults for the dispatch loop.
const (
	DefaultTick    = time.Minute
	DefaultWindow  = 5 * time.Minute
	DefaultMaxJobs = 8
)

// ConfigStore is the persistence surface the dispatcher needs.
type ConfigStore interface {
	ListScheduledConfigs(ctx context.Context) ([]*store.SyncConfig, error)
	ClaimForRun(ctx context.Context, id int64, prevFire, now time.Time) (bool, error)
}

// Runner executes one claimed configuration end to end.
type Runner func(ctx context.Context, cfg *store.SyncConfig) error

// Config holds the options for New.
type Config struct {
	Store  ConfigStore
	Run    Runner
	Logger *slog.Logger

	// Tick is the poll interval; Window is how far past a cron firing may
	// lie and still be dispatched. Zero values take the defaults.
	Tick   time.Duration
	Window time.Duration

	// MaxJobs bounds the number of configurations in flight at once.
	MaxJobs int64

	NowFunc func() time.Time
}

// Dispatcher polls the scheduled configurations once per tick, computes each
// one's most recent cron firing, and starts a job for every firing that is
// inside the execution window and not yet claimed. The claim is a conditional
// last_sync update, so concurrent dispatchers agree on a single winner per
// firing.
type Dispatcher struct {
	store   ConfigStore
	run     Runner
	logger  *slog.Logger
	tick    time.Duration
	window  time.Duration
	nowFunc func() time.Time
	parser  cron.Parser
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
}

// New validates the config and returns a ready dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("sched: Config.Store is required")
	}

	if cfg.Run == nil {
		return nil, fmt.Errorf("sched: Config.Run is required")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}

	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}

	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = DefaultMaxJobs
	}

	if cfg.NowFunc == nil {
		cfg.NowFunc = time.Now
	}

	return &Dispatcher{
		store:   cfg.Store,
		run:     cfg.Run,
		logger:  cfg.Logger,
		tick:    cfg.Tick,
		window:  cfg.Window,
		nowFunc: cfg.NowFunc,
		// Five or six fields: the seconds column is optional.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
			cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		sem: semaphore.NewWeighted(cfg.MaxJobs),
	}, nil
}

// Run loops until the context is canceled, dispatching once per tick. It
// waits for in-flight jobs before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher starting",
		slog.Duration("tick", d.tick),
		slog.Duration("window", d.window),
	)

	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	d.dispatchOnce(ctx, d.nowFunc())

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping, waiting for in-flight jobs")
			d.wg.Wait()

			return ctx.Err()
		case <-ticker.C:
			d.dispatchOnce(ctx, d.nowFunc())
		}
	}
}

// dispatchOnce evaluates every scheduled configuration against now.
func (d *Dispatcher) dispatchOnce(ctx context.Context, now time.Time) {
	configs, err := d.store.ListScheduledConfigs(ctx)
	if err != nil {
		d.logger.Error("listing scheduled configs", "error", err.Error())
		return
	}

	for _, cfg := range configs {
		d.dispatchConfig(ctx, cfg, now)
	}
}

func (d *Dispatcher) dispatchConfig(ctx context.Context, cfg *store.SyncConfig, now time.Time) {
	logger := d.logger.With(slog.Int64("config_id", cfg.ID))

	if cfg.EndTime != nil && now.After(*cfg.EndTime) {
		return
	}

	schedule, err := d.parser.Parse(cfg.Cron)
	if err != nil {
		logger.Error("invalid cron expression",
			slog.String("cron", cfg.Cron),
			slog.String("error", err.Error()),
		)

		return
	}

	prev, ok := prevFire(schedule, now, d.window)
	if !ok {
		return
	}

	// Cheap skip before the write: an already advanced last_sync means this
	// firing was handled.
	if cfg.LastSync != nil && !cfg.LastSync.Before(prev) {
		return
	}

	claimed, err := d.store.ClaimForRun(ctx, cfg.ID, prev, now)
	if err != nil {
		logger.Error("claiming config for run", "error", err.Error())
		return
	}

	if !claimed {
		return
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return
	}

	execID := uuid.NewString()
	logger = logger.With(slog.String("execution_id", execID))
	logger.Info("dispatching sync job",
		slog.Time("prev_fire", prev),
		slog.String("cron", cfg.Cron),
	)

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)

		start := d.nowFunc()

		if err := d.run(ctx, cfg); err != nil {
			logger.Error("sync job failed",
				slog.Duration("elapsed", d.nowFunc().Sub(start)),
				slog.String("error", err.Error()),
			)

			return
		}

		logger.Info("sync job done", slog.Duration("elapsed", d.nowFunc().Sub(start)))
	}()
}

// Wait blocks until all in-flight jobs finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// prevFire returns the schedule's most recent firing at or before now, if it
// lies within the window. It steps Next forward from the window's start, so
// a firing older than the window is never dispatched, however long the
// process was down.
func prevFire(schedule cron.Schedule, now time.Time, window time.Duration) (time.Time, bool) {
	var (
		prev  time.Time
		found bool
	)

	t := schedule.Next(now.Add(-window - time.Second))
	for !t.IsZero() && !t.After(now) {
		prev = t
		found = true
		t = schedule.Next(t)
	}

	return prev, found
}
