package sched

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ypsync/ypsync/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "sched.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return st
}

func seedScheduledConfig(t *testing.T, st *store.Store, cronExpr string) int64 {
	t.Helper()

	ctx := context.Background()

	accountID, err := st.CreateAccount(ctx, &store.Account{
		Type: "quark", UserID: "u1", Username: "tester", Cookies: "c", IsValid: true,
	})
	require.NoError(t, err)

	cfgID, err := st.CreateSyncConfig(ctx, &store.SyncConfig{
		Enable:    true,
		Type:      "quark",
		AccountID: accountID,
		SrcPath:   "/",
		SrcMeta:   store.SrcMeta{SourceType: "link", SourceID: "https://pan.quark.cn/s/abc"},
		DstPath:   "/dst",
		Method:    store.MethodIncremental,
		Cron:      cronExpr,
	})
	require.NoError(t, err)

	return cfgID
}

type countingRunner struct {
	mu   sync.Mutex
	runs []int64
}

func (c *countingRunner) run(_ context.Context, cfg *store.SyncConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, cfg.ID)

	return nil
}

func (c *countingRunner) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.runs)
}

func newTestDispatcher(t *testing.T, st *store.Store, r Runner) *Dispatcher {
	t.Helper()

	d, err := New(Config{
		Store:  st,
		Run:    r,
		Logger: discardLogger(),
	})
	require.NoError(t, err)

	return d
}

func TestPrevFire(t *testing.T) {
	t.Parallel()

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
		cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse("0 10 * * *")
	require.NoError(t, err)

	window := 5 * time.Minute
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	// Three minutes past the firing: inside the window.
	prev, ok := prevFire(schedule, day.Add(10*time.Hour+3*time.Minute), window)
	require.True(t, ok)
	assert.Equal(t, day.Add(10*time.Hour), prev)

	// Six minutes past: the firing fell out of the window.
	_, ok = prevFire(schedule, day.Add(10*time.Hour+6*time.Minute), window)
	assert.False(t, ok)

	// Exactly on the firing.
	prev, ok = prevFire(schedule, day.Add(10*time.Hour), window)
	require.True(t, ok)
	assert.Equal(t, day.Add(10*time.Hour), prev)
}

func TestPrevFire_SixFieldExpression(t *testing.T) {
	t.Parallel()

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
		cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse("30 0 10 * * *")
	require.NoError(t, err)

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	prev, ok := prevFire(schedule, day.Add(10*time.Hour+time.Minute), 5*time.Minute)
	require.True(t, ok)
	assert.Equal(t, day.Add(10*time.Hour+30*time.Second), prev)
}

func TestDispatch_OneRunPerFiring(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	seedScheduledConfig(t, st, "0 10 * * *")

	runner := &countingRunner{}
	d := newTestDispatcher(t, st, runner.run)

	ctx := context.Background()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	// Two ticks inside the same firing's window: only the first claims.
	d.dispatchOnce(ctx, day.Add(10*time.Hour+1*time.Second))
	d.Wait()
	d.dispatchOnce(ctx, day.Add(10*time.Hour+58*time.Second))
	d.Wait()

	assert.Equal(t, 1, runner.count())

	// The next day's firing claims again.
	d.dispatchOnce(ctx, day.Add(34*time.Hour+2*time.Second))
	d.Wait()

	assert.Equal(t, 2, runner.count())
}

func TestDispatch_OutsideWindowIsSkipped(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	seedScheduledConfig(t, st, "0 10 * * *")

	runner := &countingRunner{}
	d := newTestDispatcher(t, st, runner.run)

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	d.dispatchOnce(context.Background(), day.Add(10*time.Hour+7*time.Minute))
	d.Wait()

	assert.Zero(t, runner.count())
}

func TestDispatch_InvalidCronIsLoggedNotRun(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	seedScheduledConfig(t, st, "not a cron")

	runner := &countingRunner{}
	d := newTestDispatcher(t, st, runner.run)

	d.dispatchOnce(context.Background(), time.Now())
	d.Wait()

	assert.Zero(t, runner.count())
}

func TestDispatch_ConcurrentTicksClaimOnce(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	seedScheduledConfig(t, st, "0 10 * * *")

	var runs atomic.Int64

	d := newTestDispatcher(t, st, func(context.Context, *store.SyncConfig) error {
		runs.Add(1)
		return nil
	})

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)

		go func(offset time.Duration) {
			defer wg.Done()
			d.dispatchOnce(ctx, day.Add(10*time.Hour+offset))
		}(time.Duration(i) * time.Second)
	}

	wg.Wait()
	d.Wait()

	assert.Equal(t, int64(1), runs.Load())
}

func TestNew_RequiresStoreAndRunner(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Run: func(context.Context, *store.SyncConfig) error { return nil }})
	assert.Error(t, err)

	_, err = New(Config{Store: openStore(t)})
	assert.Error(t, err)
}
