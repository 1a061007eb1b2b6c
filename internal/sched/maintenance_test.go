package sched

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ypsync/ypsync/internal/drive"
	"github.com/ypsync/ypsync/internal/store"
)

// fakeMaintStore records mutations and serves canned accounts and resources.
type fakeMaintStore struct {
	mu        sync.Mutex
	accounts  []*store.Account
	resources []*store.Resource

	invalidated []int64
	updated     []int64

	shareUpdates []resourceShareUpdate
}

type resourceShareUpdate struct {
	id          int64
	url         string
	pwdID       string
	password    string
	expiredType int
}

func (f *fakeMaintStore) ListAccounts(_ context.Context, validOnly bool) ([]*store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.Account

	for _, a := range f.accounts {
		if validOnly && !a.IsValid {
			continue
		}

		out = append(out, a)
	}

	return out, nil
}

func (f *fakeMaintStore) GetAccount(_ context.Context, id int64) (*store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.accounts {
		if a.ID == id {
			return a, nil
		}
	}

	return nil, store.ErrNotFound
}

func (f *fakeMaintStore) MarkAccountInvalid(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, id)

	return nil
}

func (f *fakeMaintStore) UpdateAccountInfo(_ context.Context, id int64, _, _ string, _, _ int64, _, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, id)

	return nil
}

func (f *fakeMaintStore) ListExpiringResources(_ context.Context, _ time.Time) ([]*store.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.resources, nil
}

func (f *fakeMaintStore) UpdateResourceShare(_ context.Context, id int64, url, pwdID, password string, expiredType int, _ *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shareUpdates = append(f.shareUpdates, resourceShareUpdate{
		id: id, url: url, pwdID: pwdID, password: password, expiredType: expiredType,
	})

	return nil
}

// fakeDriveClient implements drive.Client with per-method hooks. Methods
// without a hook fail the test if called.
type fakeDriveClient struct {
	t *testing.T

	getUserInfo   func(ctx context.Context) (*drive.UserInfo, error)
	listShareInfo func(ctx context.Context, req drive.ListShareInfoRequest) ([]*drive.ShareInfo, error)
	createShare   func(ctx context.Context, req drive.CreateShareRequest) (*drive.ShareInfo, error)
	cancelShare   func(ctx context.Context, shareIDs []string) error
}

func (f *fakeDriveClient) Type() string { return "fake" }

func (f *fakeDriveClient) GetUserInfo(ctx context.Context) (*drive.UserInfo, error) {
	if f.getUserInfo == nil {
		f.t.Fatal("unexpected GetUserInfo call")
	}

	return f.getUserInfo(ctx)
}

func (f *fakeDriveClient) ListDisk(context.Context, string, string) ([]*drive.FileInfo, error) {
	f.t.Fatal("unexpected ListDisk call")
	return nil, nil
}

func (f *fakeDriveClient) ListShare(context.Context, drive.SourceType, string, string, map[string]string) ([]*drive.FileInfo, error) {
	f.t.Fatal("unexpected ListShare call")
	return nil, nil
}

func (f *fakeDriveClient) ListShareInfo(ctx context.Context, req drive.ListShareInfoRequest) ([]*drive.ShareInfo, error) {
	if f.listShareInfo == nil {
		f.t.Fatal("unexpected ListShareInfo call")
	}

	return f.listShareInfo(ctx, req)
}

func (f *fakeDriveClient) Mkdir(context.Context, drive.MkdirRequest) (*drive.FileInfo, error) {
	f.t.Fatal("unexpected Mkdir call")
	return nil, nil
}

func (f *fakeDriveClient) Remove(context.Context, drive.RemoveRequest) error {
	f.t.Fatal("unexpected Remove call")
	return nil
}

func (f *fakeDriveClient) Transfer(context.Context, drive.TransferRequest) error {
	f.t.Fatal("unexpected Transfer call")
	return nil
}

func (f *fakeDriveClient) CreateShare(ctx context.Context, req drive.CreateShareRequest) (*drive.ShareInfo, error) {
	if f.createShare == nil {
		f.t.Fatal("unexpected CreateShare call")
	}

	return f.createShare(ctx, req)
}

func (f *fakeDriveClient) CancelShare(ctx context.Context, shareIDs []string) error {
	if f.cancelShare == nil {
		f.t.Fatal("unexpected CancelShare call")
	}

	return f.cancelShare(ctx, shareIDs)
}

func newTestMaintenance(t *testing.T, st MaintenanceStore, client drive.Client) *Maintenance {
	t.Helper()

	m := NewMaintenance(st, func(string, string, *slog.Logger) (drive.Client, error) {
		return client, nil
	}, discardLogger())
	m.sleepFunc = func(context.Context, time.Duration) error { return nil }

	return m
}

func TestRefreshAccounts(t *testing.T) {
	t.Parallel()

	st := &fakeMaintStore{accounts: []*store.Account{
		{ID: 1, Type: "quark", Cookies: "good", IsValid: true},
		{ID: 2, Type: "quark", Cookies: "stale", IsValid: true},
	}}

	client := &fakeDriveClient{t: t}
	client.getUserInfo = func(context.Context) (*drive.UserInfo, error) {
		return &drive.UserInfo{Username: "alice", Quota: 100, Used: 10}, nil
	}

	m := NewMaintenance(st, func(_, cookies string, _ *slog.Logger) (drive.Client, error) {
		if cookies == "stale" {
			bad := &fakeDriveClient{t: t}
			bad.getUserInfo = func(context.Context) (*drive.UserInfo, error) {
				return nil, drive.NewError("quark", "GET /account/info", 11001, "登录失效", drive.ErrAuth)
			}

			return bad, nil
		}

		return client, nil
	}, discardLogger())
	m.sleepFunc = func(context.Context, time.Duration) error { return nil }

	m.RefreshAccounts(context.Background())

	assert.Equal(t, []int64{1}, st.updated)
	assert.Equal(t, []int64{2}, st.invalidated)
}

func TestCleanupShares_CancelsOnlyExpired(t *testing.T) {
	t.Parallel()

	st := &fakeMaintStore{accounts: []*store.Account{
		{ID: 1, Type: "quark", Cookies: "c", IsValid: true},
	}}

	var cancelled [][]string

	client := &fakeDriveClient{t: t}
	client.listShareInfo = func(_ context.Context, req drive.ListShareInfoRequest) ([]*drive.ShareInfo, error) {
		require.Equal(t, drive.SourceLocal, req.SourceType)
		require.Equal(t, 1, req.Page, "short page must end the loop")

		return []*drive.ShareInfo{
			{ShareID: "live", ExpiredType: 7, ExpiredLeft: 3},
			{ShareID: "expired-type", ExpiredType: -1, ExpiredLeft: 0},
			{ShareID: "expired-left", ExpiredType: 7, ExpiredLeft: -2},
			{ShareID: "permanent", ExpiredType: 0, ExpiredLeft: 0},
		}, nil
	}
	client.cancelShare = func(_ context.Context, ids []string) error {
		cancelled = append(cancelled, ids)
		return nil
	}

	m := newTestMaintenance(t, st, client)
	m.CleanupShares(context.Background())

	require.Len(t, cancelled, 1)
	assert.Equal(t, []string{"expired-type", "expired-left"}, cancelled[0])
}

func TestCleanupShares_Paginates(t *testing.T) {
	t.Parallel()

	st := &fakeMaintStore{accounts: []*store.Account{
		{ID: 1, Type: "baidu", Cookies: "c", IsValid: true},
	}}

	var pages []int

	client := &fakeDriveClient{t: t}
	client.listShareInfo = func(_ context.Context, req drive.ListShareInfoRequest) ([]*drive.ShareInfo, error) {
		pages = append(pages, req.Page)

		if req.Page == 1 {
			out := make([]*drive.ShareInfo, cleanupPageSize)
			for i := range out {
				out[i] = &drive.ShareInfo{ShareID: "s", ExpiredType: 7, ExpiredLeft: 1}
			}

			return out, nil
		}

		return nil, nil
	}

	m := newTestMaintenance(t, st, client)
	m.CleanupShares(context.Background())

	assert.Equal(t, []int{1, 2}, pages)
}

func TestRefreshResources(t *testing.T) {
	t.Parallel()

	st := &fakeMaintStore{
		accounts: []*store.Account{
			{ID: 1, Type: "quark", Cookies: "c", IsValid: true},
		},
		resources: []*store.Resource{
			{ID: 10, AccountID: 1, Title: "movie pack", FileID: "fid-1", ExpiredType: 7, Password: "ab12"},
		},
	}

	expires := time.Now().Add(7 * 24 * time.Hour).Truncate(time.Second)

	client := &fakeDriveClient{t: t}
	client.createShare = func(_ context.Context, req drive.CreateShareRequest) (*drive.ShareInfo, error) {
		require.Equal(t, []string{"fid-1"}, req.FileIDs)
		require.Equal(t, 7, req.ExpiredType)
		require.Equal(t, "ab12", req.Password)

		return &drive.ShareInfo{
			ShareID:     "sh-new",
			PwdID:       "pwd-new",
			URL:         "https://pan.quark.cn/s/pwd-new",
			Password:    "ab12",
			ExpiredType: 7,
			ExpiredAt:   expires,
		}, nil
	}

	m := newTestMaintenance(t, st, client)
	m.RefreshResources(context.Background())

	require.Len(t, st.shareUpdates, 1)
	up := st.shareUpdates[0]
	assert.Equal(t, int64(10), up.id)
	assert.Equal(t, "https://pan.quark.cn/s/pwd-new", up.url)
	assert.Equal(t, "pwd-new", up.pwdID)
	assert.Equal(t, 7, up.expiredType)
}

func TestRefreshResources_DefaultExpiry(t *testing.T) {
	t.Parallel()

	st := &fakeMaintStore{
		accounts: []*store.Account{
			{ID: 1, Type: "baidu", Cookies: "c", IsValid: true},
		},
		resources: []*store.Resource{
			{ID: 11, AccountID: 1, Title: "no expiry set", FileID: "fid-2"},
		},
	}

	client := &fakeDriveClient{t: t}
	client.createShare = func(_ context.Context, req drive.CreateShareRequest) (*drive.ShareInfo, error) {
		require.Equal(t, 7, req.ExpiredType, "resources without an expiry get the seven day default")

		return &drive.ShareInfo{ShareID: "sh", URL: "u", ExpiredType: 7}, nil
	}

	m := newTestMaintenance(t, st, client)
	m.RefreshResources(context.Background())

	require.Len(t, st.shareUpdates, 1)
}

func TestRefreshResources_SkipsInvalidAccount(t *testing.T) {
	t.Parallel()

	st := &fakeMaintStore{
		accounts: []*store.Account{
			{ID: 1, Type: "quark", Cookies: "c", IsValid: false},
		},
		resources: []*store.Resource{
			{ID: 10, AccountID: 1, Title: "orphaned", FileID: "fid-1"},
		},
	}

	// Client factory must never be reached for an invalid account.
	m := NewMaintenance(st, func(string, string, *slog.Logger) (drive.Client, error) {
		t.Fatal("unexpected client construction")
		return nil, nil
	}, discardLogger())
	m.sleepFunc = func(context.Context, time.Duration) error { return nil }

	m.RefreshResources(context.Background())

	assert.Empty(t, st.shareUpdates)
}
