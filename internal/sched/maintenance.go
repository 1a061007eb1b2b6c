package sched

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ypsync/ypsync/internal/drive"
	"github.com/ypsync/ypsync/internal/store"
)

// Maintenance intervals and staggers. The staggers spread provider calls out
// so a pass over many accounts never looks like a burst.
const (
	resourceRefreshInterval = 24 * time.Hour
	resourceScanWindow      = 24 * time.Hour
	shareCleanupInterval    = 24 * time.Hour
	accountRefreshInterval  = 12 * time.Hour

	// defaultShareDays is the expiry applied when a resource carries none.
	defaultShareDays = 7

	cleanupPageSize = 100
)

// MaintenanceStore is the persistence surface the workers need.
type MaintenanceStore interface {
	ListAccounts(ctx context.Context, validOnly bool) ([]*store.Account, error)
	GetAccount(ctx context.Context, id int64) (*store.Account, error)
	MarkAccountInvalid(ctx context.Context, id int64) error
	UpdateAccountInfo(ctx context.Context, id int64, username, avatarURL string, quota, used int64, isVIP, isSuperVIP bool) error
	ListExpiringResources(ctx context.Context, deadline time.Time) ([]*store.Resource, error)
	UpdateResourceShare(ctx context.Context, id int64, url, pwdID, password string, expiredType int, expiredAt *time.Time) error
}

// ClientFactory builds a provider client for one stored account.
type ClientFactory func(providerType, cookies string, logger *slog.Logger) (drive.Client, error)

// Maintenance runs the three background workers: re-create expiring resource
// shares, cancel expired shares, and refresh account profiles.
type Maintenance struct {
	store   MaintenanceStore
	clients ClientFactory
	logger  *slog.Logger

	scanWindow time.Duration

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewMaintenance builds the workers. clients defaults to drive.New.
func NewMaintenance(st MaintenanceStore, clients ClientFactory, logger *slog.Logger) *Maintenance {
	if clients == nil {
		clients = drive.New
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Maintenance{
		store:      st,
		clients:    clients,
		logger:     logger,
		scanWindow: resourceScanWindow,
		nowFunc:    time.Now,
		sleepFunc:  sleepContext,
	}
}

// SetRefreshWindow overrides how far ahead of expiry resource shares are
// re-created.
func (m *Maintenance) SetRefreshWindow(d time.Duration) {
	if d > 0 {
		m.scanWindow = d
	}
}

// Run loops all three workers until the context is canceled.
func (m *Maintenance) Run(ctx context.Context) error {
	resourceTicker := time.NewTicker(resourceRefreshInterval)
	defer resourceTicker.Stop()

	cleanupTicker := time.NewTicker(shareCleanupInterval)
	defer cleanupTicker.Stop()

	accountTicker := time.NewTicker(accountRefreshInterval)
	defer accountTicker.Stop()

	m.RefreshAccounts(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resourceTicker.C:
			m.RefreshResources(ctx)
		case <-cleanupTicker.C:
			m.CleanupShares(ctx)
		case <-accountTicker.C:
			m.RefreshAccounts(ctx)
		}
	}
}

// RefreshResources re-creates the share link of every catalogued resource
// that expires within the recreate window, pausing 5 to 10 seconds between
// items.
func (m *Maintenance) RefreshResources(ctx context.Context) {
	deadline := m.nowFunc().Add(m.scanWindow)

	resources, err := m.store.ListExpiringResources(ctx, deadline)
	if err != nil {
		m.logger.Error("listing expiring resources", "error", err.Error())
		return
	}

	m.logger.Info("refreshing expiring resources", slog.Int("count", len(resources)))

	for _, res := range resources {
		if ctx.Err() != nil {
			return
		}

		if err := m.refreshResource(ctx, res); err != nil {
			m.logger.Error("refreshing resource",
				slog.Int64("resource_id", res.ID),
				slog.String("title", res.Title),
				slog.String("error", err.Error()),
			)
		}

		if err := m.stagger(ctx, 5*time.Second, 10*time.Second); err != nil {
			return
		}
	}
}

func (m *Maintenance) refreshResource(ctx context.Context, res *store.Resource) error {
	account, err := m.store.GetAccount(ctx, res.AccountID)
	if err != nil {
		return err
	}

	if !account.IsValid {
		return errors.New("owning account is marked invalid")
	}

	client, err := m.clients(account.Type, account.Cookies, m.logger)
	if err != nil {
		return err
	}

	expiredType := res.ExpiredType
	if expiredType <= 0 {
		expiredType = defaultShareDays
	}

	info, err := client.CreateShare(ctx, drive.CreateShareRequest{
		FileName:    res.Title,
		FileIDs:     []string{res.FileID},
		ExpiredType: expiredType,
		Password:    res.Password,
	})
	if err != nil {
		return err
	}

	var expiredAt *time.Time
	if !info.ExpiredAt.IsZero() {
		expiredAt = &info.ExpiredAt
	}

	if err := m.store.UpdateResourceShare(ctx, res.ID, info.URL, info.PwdID, info.Password, info.ExpiredType, expiredAt); err != nil {
		return err
	}

	m.logger.Info("resource share re-created",
		slog.Int64("resource_id", res.ID),
		slog.String("url", info.URL),
	)

	return nil
}

// CleanupShares cancels every expired share on every valid account, paging
// 100 at a time with 5 to 8 second pauses between pages and 30 to 40 second
// pauses between accounts.
func (m *Maintenance) CleanupShares(ctx context.Context) {
	accounts, err := m.store.ListAccounts(ctx, true)
	if err != nil {
		m.logger.Error("listing accounts for share cleanup", "error", err.Error())
		return
	}

	for i, account := range accounts {
		if ctx.Err() != nil {
			return
		}

		if i > 0 {
			if err := m.stagger(ctx, 30*time.Second, 40*time.Second); err != nil {
				return
			}
		}

		if err := m.cleanupAccountShares(ctx, account); err != nil {
			m.logger.Error("cleaning up shares",
				slog.Int64("account_id", account.ID),
				slog.String("provider", account.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *Maintenance) cleanupAccountShares(ctx context.Context, account *store.Account) error {
	client, err := m.clients(account.Type, account.Cookies, m.logger)
	if err != nil {
		return err
	}

	var cancelled int

	for page := 1; ; page++ {
		if page > 1 {
			if err := m.stagger(ctx, 5*time.Second, 8*time.Second); err != nil {
				return err
			}
		}

		shares, err := client.ListShareInfo(ctx, drive.ListShareInfoRequest{
			SourceType: drive.SourceLocal,
			Page:       page,
			Size:       cleanupPageSize,
		})
		if err != nil {
			return err
		}

		var expired []string

		for _, sh := range shares {
			if sh.ExpiredType == -1 || sh.ExpiredLeft < 0 {
				expired = append(expired, sh.ShareID)
			}
		}

		if len(expired) > 0 {
			if err := client.CancelShare(ctx, expired); err != nil {
				return err
			}

			cancelled += len(expired)
		}

		if len(shares) < cleanupPageSize {
			break
		}
	}

	m.logger.Info("share cleanup finished",
		slog.Int64("account_id", account.ID),
		slog.String("provider", account.Type),
		slog.Int("cancelled", cancelled),
	)

	return nil
}

// RefreshAccounts re-fetches every account's profile and quota, marking
// accounts whose cookies no longer authenticate as invalid. Items are
// staggered 3 to 8 seconds apart.
func (m *Maintenance) RefreshAccounts(ctx context.Context) {
	accounts, err := m.store.ListAccounts(ctx, false)
	if err != nil {
		m.logger.Error("listing accounts for refresh", "error", err.Error())
		return
	}

	for i, account := range accounts {
		if ctx.Err() != nil {
			return
		}

		if i > 0 {
			if err := m.stagger(ctx, 3*time.Second, 8*time.Second); err != nil {
				return
			}
		}

		if err := m.refreshAccount(ctx, account); err != nil {
			m.logger.Error("refreshing account",
				slog.Int64("account_id", account.ID),
				slog.String("provider", account.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *Maintenance) refreshAccount(ctx context.Context, account *store.Account) error {
	client, err := m.clients(account.Type, account.Cookies, m.logger)
	if err != nil {
		return err
	}

	info, err := client.GetUserInfo(ctx)
	if err != nil {
		if errors.Is(err, drive.ErrAuth) {
			m.logger.Warn("account cookies no longer authenticate, marking invalid",
				slog.Int64("account_id", account.ID),
				slog.String("provider", account.Type),
			)

			return m.store.MarkAccountInvalid(ctx, account.ID)
		}

		return err
	}

	return m.store.UpdateAccountInfo(ctx, account.ID,
		info.Username, info.AvatarURL, info.Quota, info.Used, info.IsVIP, info.IsSuperVIP)
}

// stagger sleeps a random duration in [min, max).
func (m *Maintenance) stagger(ctx context.Context, min, max time.Duration) error {
	d := min + time.Duration(rand.Int64N(int64(max-min))) //nolint:gosec // jitter does not need crypto rand
	return m.sleepFunc(ctx, d)
}

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
