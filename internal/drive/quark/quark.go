// Package quark implements the drive.Client surface against the Quark pan
// web API. Authentication is cookie based.
//
// Shares are link addressed: the pwd_id comes out of the share URL (with an
// optional "|password" suffix), a stoken is fetched per share, and every
// listed item carries its own share_fid_token. Transfers must reuse the
// stoken and the per-file tokens captured at listing time, because a fresh
// stoken invalidates them. Mutating calls are asynchronous server-side and
// return a task id the adapter polls to completion.
package quark

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ypsync/ypsync/internal/drive"
)

const (
	providerType = "quark"

	driveBaseURL   = "https://drive-pc.quark.cn"
	accountBaseURL = "https://pan.quark.cn"

	apiPrefix = "/1/clouddrive"

	pageSize = 50

	taskPollMax      = 30
	taskPollInterval = 500 * time.Millisecond
)

func init() {
	drive.Register(providerType, New)
}

// Client talks to one Quark pan account. The account profile lives on a
// separate host from the drive API, hence two HTTP clients.
type Client struct {
	http    *drive.HTTPClient
	account *drive.HTTPClient
	logger  *slog.Logger

	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New builds a Client from the account's cookie blob.
func New(cookies string, logger *slog.Logger) (drive.Client, error) {
	if strings.TrimSpace(cookies) == "" {
		return nil, fmt.Errorf("quark: empty cookies")
	}

	return newClient(driveBaseURL, accountBaseURL, cookies, logger), nil
}

func newClient(driveBase, accountBase, cookies string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	hc := drive.NewHTTPClient(providerType, driveBase, cookies, logger)
	hc.SetReferer("https://pan.quark.cn/")

	ac := drive.NewHTTPClient(providerType, accountBase, cookies, logger)
	ac.SetReferer("https://pan.quark.cn/")

	return &Client{
		http:      hc,
		account:   ac,
		logger:    logger.With(slog.String("provider", providerType)),
		sleepFunc: func(ctx context.Context, d time.Duration) error { return sleepCtx(ctx, d) },
	}
}

// Type returns the provider tag.
func (c *Client) Type() string {
	return providerType
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
