package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := Open(filepath.Join(t.TempDir(), "ypsync.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func seedAccount(t *testing.T, s *Store) int64 {
	t.Helper()

	id, err := s.CreateAccount(context.Background(), &Account{
		Type:    "quark",
		UserID:  "u-100",
		Cookies: "session=abc",
		IsValid: true,
	})
	require.NoError(t, err)

	return id
}

func TestAccountLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id := seedAccount(t, s)

	a, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "quark", a.Type)
	assert.Equal(t, "u-100", a.UserID)
	assert.True(t, a.IsValid)

	err = s.UpdateAccountInfo(ctx, id, "alice", "https://q/avatar.png", 1<<40, 1<<30, true, false)
	require.NoError(t, err)

	a, err = s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, int64(1<<40), a.Quota)
	assert.True(t, a.IsVIP)

	require.NoError(t, s.MarkAccountInvalid(ctx, id))

	valid, err := s.ListAccounts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, valid)

	all, err := s.ListAccounts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.GetAccount(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSyncConfigValidation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	accountID := seedAccount(t, s)

	_, err := s.CreateSyncConfig(ctx, &SyncConfig{
		Type: "quark", AccountID: accountID, Method: "mirror",
		SrcMeta: SrcMeta{SourceType: "link", SourceID: "https://pan.quark.cn/s/abc"},
	})
	require.Error(t, err, "unknown method rejected")

	_, err = s.CreateSyncConfig(ctx, &SyncConfig{
		Type: "quark", AccountID: accountID, Method: MethodIncremental,
		SrcMeta: SrcMeta{SourceType: "link", SourceID: ""},
	})
	require.Error(t, err, "link share requires source_id")

	id, err := s.CreateSyncConfig(ctx, &SyncConfig{
		Enable: true, Type: "quark", AccountID: accountID,
		SrcPath: "/", DstPath: "/dst", Method: MethodFull, Speed: 1,
		Cron:    "*/5 * * * *",
		SrcMeta: SrcMeta{SourceType: "link", SourceID: "https://pan.quark.cn/s/abc", ExtParams: map[string]string{"passcode": "x1y2"}},
		DstMeta: DstMeta{FileID: "fid-root"},
	})
	require.NoError(t, err)

	c, err := s.GetSyncConfig(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "link", c.SrcMeta.SourceType)
	assert.Equal(t, "x1y2", c.SrcMeta.ExtParams["passcode"])
	assert.Equal(t, "fid-root", c.DstMeta.FileID)
	assert.Nil(t, c.LastSync)
}

func TestListScheduledConfigs(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	accountID := seedAccount(t, s)

	base := SyncConfig{
		Type: "quark", AccountID: accountID, Method: MethodIncremental,
		SrcMeta: SrcMeta{SourceType: "link", SourceID: "https://pan.quark.cn/s/abc"},
	}

	scheduled := base
	scheduled.Enable = true
	scheduled.Cron = "0 3 * * *"
	_, err := s.CreateSyncConfig(ctx, &scheduled)
	require.NoError(t, err)

	disabled := base
	disabled.Enable = false
	disabled.Cron = "0 3 * * *"
	_, err = s.CreateSyncConfig(ctx, &disabled)
	require.NoError(t, err)

	manual := base
	manual.Enable = true
	_, err = s.CreateSyncConfig(ctx, &manual)
	require.NoError(t, err)

	got, err := s.ListScheduledConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0 3 * * *", got[0].Cron)
}

func TestClaimForRun_Fence(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	accountID := seedAccount(t, s)

	id, err := s.CreateSyncConfig(ctx, &SyncConfig{
		Enable: true, Type: "quark", AccountID: accountID,
		Method: MethodIncremental, Cron: "*/5 * * * *",
		SrcMeta: SrcMeta{SourceType: "link", SourceID: "https://pan.quark.cn/s/abc"},
	})
	require.NoError(t, err)

	prevFire := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := prevFire.Add(30 * time.Second)

	// First claim for this firing wins.
	claimed, err := s.ClaimForRun(ctx, id, prevFire, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Second claim for the same firing is fenced off by last_sync.
	claimed, err = s.ClaimForRun(ctx, id, prevFire, now.Add(50*time.Second))
	require.NoError(t, err)
	assert.False(t, claimed)

	c, err := s.GetSyncConfig(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c.LastSync)
	assert.Equal(t, now.Unix(), c.LastSync.Unix())

	// The next firing claims again.
	nextFire := prevFire.Add(5 * time.Minute)
	claimed, err = s.ClaimForRun(ctx, id, nextFire, nextFire.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestTaskAndItems_OrderPreserved(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	accountID := seedAccount(t, s)

	configID, err := s.CreateSyncConfig(ctx, &SyncConfig{
		Enable: true, Type: "quark", AccountID: accountID,
		Method:  MethodIncremental,
		SrcMeta: SrcMeta{SourceType: "link", SourceID: "https://pan.quark.cn/s/abc"},
	})
	require.NoError(t, err)

	start := time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC)
	taskID, err := s.CreateTask(ctx, configID, start)
	require.NoError(t, err)

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskRunning, task.Status)
	assert.Equal(t, start.Unix(), task.StartTime.Unix())

	names := []string{"b", "a", "c"}
	for _, n := range names {
		_, err := s.AppendTaskItem(ctx, &SyncTaskItem{
			TaskID: taskID, Type: ItemCopy, FileName: n,
			SrcPath: "/src/" + n, DstPath: "/dst/" + n, Status: TaskCompleted,
		})
		require.NoError(t, err)
	}

	items, err := s.ListTaskItems(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	for i, it := range items {
		assert.Equal(t, names[i], it.FileName, "items keep emission order")

		if i > 0 {
			assert.Greater(t, it.ID, items[i-1].ID)
		}
	}

	err = s.FinishTask(ctx, taskID, TaskCompleted, 42, `{"transferred":3}`, "")
	require.NoError(t, err)

	task, err = s.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, task.Status)
	assert.Equal(t, int64(42), task.DuraTime)

	err = s.FinishTask(ctx, 9999, TaskFailed, 0, "", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	tasks, err := s.ListTasks(ctx, configID, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestRuleTemplates(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateRuleTemplate(ctx, &RuleTemplate{
		TemplateName: "bad", TemplateType: "weird", RuleConfig: []byte(`{}`),
	})
	require.Error(t, err)

	id, err := s.CreateRuleTemplate(ctx, &RuleTemplate{
		TemplateName: "no-samples",
		TemplateType: TemplateExclusion,
		IsActive:     true,
		RuleConfig:   []byte(`{"rules":[{"pattern":"sample","mode":"contains"}]}`),
	})
	require.NoError(t, err)

	tmpl, err := s.GetRuleTemplate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TemplateExclusion, tmpl.TemplateType)
	assert.Contains(t, string(tmpl.RuleConfig), "sample")
	assert.Zero(t, tmpl.UsageCount)

	require.NoError(t, s.BumpTemplateUsage(ctx, id))

	tmpl, err = s.GetRuleTemplate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tmpl.UsageCount)
}

func TestExpiringResources(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	accountID := seedAccount(t, s)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(2 * time.Hour)
	far := now.Add(72 * time.Hour)

	_, err := s.CreateResource(ctx, &Resource{
		AccountID: accountID, Title: "expiring", URL: "https://pan.quark.cn/s/aaa",
		PwdID: "aaa", ExpiredType: 7, ExpiredAt: &soon,
	})
	require.NoError(t, err)

	_, err = s.CreateResource(ctx, &Resource{
		AccountID: accountID, Title: "fresh", URL: "https://pan.quark.cn/s/bbb",
		PwdID: "bbb", ExpiredType: 30, ExpiredAt: &far,
	})
	require.NoError(t, err)

	got, err := s.ListExpiringResources(ctx, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "expiring", got[0].Title)

	newExpiry := now.Add(7 * 24 * time.Hour)
	err = s.UpdateResourceShare(ctx, got[0].ID, "https://pan.quark.cn/s/ccc", "ccc", "pw", 7, &newExpiry)
	require.NoError(t, err)

	got, err = s.ListExpiringResources(ctx, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}
