// Package baidu implements the drive.Client surface against the Baidu
// Netdisk web API. Authentication is cookie based; mutating endpoints
// additionally need a bdstoken that is fetched once and cached.
//
// Shares come from friend and group sessions. A share level is addressed by
// the message that delivered it (msg_id) plus the sharer (from_uk), so every
// listed item carries both in its FileExt for the later transfer call.
package baidu

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ypsync/ypsync/internal/drive"
)

const (
	providerType = "baidu"
	baseURL      = "https://pan.baidu.com"

	listPageSize  = 1000
	sharePageSize = 50
)

func init() {
	drive.Register(providerType, New)
}

// Client talks to one Baidu Netdisk account.
type Client struct {
	http   *drive.HTTPClient
	logger *slog.Logger

	mu       sync.Mutex
	bdstoken string
	uk       string
}

// New builds a Client from the account's cookie blob.
func New(cookies string, logger *slog.Logger) (drive.Client, error) {
	if strings.TrimSpace(cookies) == "" {
		return nil, fmt.Errorf("baidu: empty cookies")
	}

	return newClient(baseURL, cookies, logger), nil
}

func newClient(base, cookies string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	hc := drive.NewHTTPClient(providerType, base, cookies, logger)
	hc.SetReferer("https://pan.baidu.com/disk/home")

	return &Client{
		http:   hc,
		logger: logger.With(slog.String("provider", providerType)),
	}
}

// Type returns the provider tag.
func (c *Client) Type() string {
	return providerType
}
