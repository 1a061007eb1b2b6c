// Package drive defines the provider-neutral client surface for cloud-drive
// backends. Each adapter (baidu, quark) implements Client and registers a
// factory; everything above this package holds only the interface.
package drive

import "time"

// SourceType identifies how a share is addressed.
type SourceType string

const (
	// SourceLink is a public share link (URL, optionally "url|password").
	SourceLink SourceType = "link"
	// SourceFriend is a share received from a friend session.
	SourceFriend SourceType = "friend"
	// SourceGroup is a share posted in a group session.
	SourceGroup SourceType = "group"
	// SourceLocal enumerates the authenticated user's own shares.
	SourceLocal SourceType = "local"
)

// FileInfo describes one file or folder on a provider, either in the user's
// own disk or inside a share listing.
//
// FileExt is an opaque per-item bag the adapter fills on listing and reads
// back on transfer (e.g. share_fid_token for Quark, msg_id/from_uk for
// Baidu). The sync engine forwards it untouched.
type FileInfo struct {
	FileID    string
	FileName  string
	FilePath  string
	IsFolder  bool
	FileSize  int64
	ParentID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	FileExt   map[string]string
}

// UserInfo is the provider-side account identity and quota snapshot.
type UserInfo struct {
	UserID     string
	Username   string
	AvatarURL  string
	Quota      int64
	Used       int64
	IsVIP      bool
	IsSuperVIP bool
}

// ShareInfo describes one share created by or visible to the user.
// ExpiredType is the normalized day count (see expiry.go); ExpiredLeft is
// days remaining, negative once expired. Providers that report an already
// expired share use ExpiredType -1.
type ShareInfo struct {
	Title       string
	ShareID     string
	PwdID       string
	URL         string
	Password    string
	ExpiredType int
	ExpiredAt   time.Time
	ExpiredLeft int
	ViewCount   int
	AuditStatus int
	Status      int
	FileID      string
	FileSize    int64
	PathInfo    string
}

// ListShareInfoRequest selects a page of share metadata.
// SourceType local lists the user's own shares; link resolves metadata for
// one external share URL in SourceID.
type ListShareInfoRequest struct {
	SourceType SourceType
	SourceID   string
	Page       int
	Size       int
	OrderBy    string
}

// MkdirRequest creates a directory. Adapters address the parent either by
// Path (Baidu) or by ParentID+Name (Quark); callers fill all three and the
// adapter picks what it needs. When ReturnIfExist is set an already existing
// directory is returned instead of an error.
type MkdirRequest struct {
	Path          string
	ParentID      string
	Name          string
	ReturnIfExist bool
}

// RemoveRequest deletes entries by path or by id, whichever the adapter
// advertised on listing.
type RemoveRequest struct {
	FilePaths []string
	FileIDs   []string
	ParentID  string
}

// FileExtEntry pairs one source file id with its opaque listing metadata.
type FileExtEntry struct {
	FileID string
	Ext    map[string]string
}

// TransferRequest asks the provider to server-side copy share entries into
// the user's own drive. FilesExtInfo must be in the same order as FileIDs;
// adapters correlate per-file tokens positionally and by id.
type TransferRequest struct {
	SourceType   SourceType
	SourceID     string
	SourcePath   string
	TargetPath   string
	TargetID     string
	FileIDs      []string
	ExtParams    map[string]string
	FilesExtInfo []FileExtEntry
}

// CreateShareRequest creates a new share over the given file ids.
// ExpiredType is the normalized day count.
type CreateShareRequest struct {
	FileName    string
	FileIDs     []string
	ExpiredType int
	Password    string
}
