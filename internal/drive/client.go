package drive

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Client is the capability set every provider adapter implements.
// Listings return one complete level: adapters paginate internally and the
// order across pages is stable within a single call.
type Client interface {
	// Type returns the provider tag ("baidu", "quark").
	Type() string

	// GetUserInfo fetches identity, quota, and VIP state for the
	// authenticated account.
	GetUserInfo(ctx context.Context) (*UserInfo, error)

	// ListDisk lists one level of the user's own drive. fileID is the
	// provider id of the directory when known, empty otherwise.
	ListDisk(ctx context.Context, path, fileID string) ([]*FileInfo, error)

	// ListShare lists one level inside a share at the given path. Every
	// returned item carries the FileExt the adapter later needs to
	// transfer it. Resolving a path component to a file with components
	// remaining fails with ErrPathInvalid.
	ListShare(ctx context.Context, sourceType SourceType, sourceID, path string, extParams map[string]string) ([]*FileInfo, error)

	// ListShareInfo returns one page of share metadata.
	ListShareInfo(ctx context.Context, req ListShareInfoRequest) ([]*ShareInfo, error)

	// Mkdir creates a directory, idempotently when req.ReturnIfExist.
	Mkdir(ctx context.Context, req MkdirRequest) (*FileInfo, error)

	// Remove deletes the given entries.
	Remove(ctx context.Context, req RemoveRequest) error

	// Transfer server-side copies share entries into the user's drive.
	Transfer(ctx context.Context, req TransferRequest) error

	// CreateShare shares the given file ids and returns the share metadata
	// including URL and password. Adapters own any task polling.
	CreateShare(ctx context.Context, req CreateShareRequest) (*ShareInfo, error)

	// CancelShare revokes the given shares.
	CancelShare(ctx context.Context, shareIDs []string) error
}

// Factory builds a Client from an account's opaque credential blob.
type Factory func(cookies string, logger *slog.Logger) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a provider factory available under the given type tag.
// Adapters call it from init, mirroring database/sql driver registration.
func Register(providerType string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[providerType]; dup {
		panic("drive: Register called twice for provider " + providerType)
	}

	registry[providerType] = f
}

// New constructs a Client for the given provider type and credentials.
func New(providerType, cookies string, logger *slog.Logger) (Client, error) {
	registryMu.RLock()
	f, ok := registry[providerType]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("drive: unknown provider type %q (registered: %v)", providerType, Providers())
	}

	return f(cookies, logger)
}

// Providers returns the registered provider tags, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
