package drive

import (
	"context"
)

// Item is a file or folder visible in a listing or snapshot.
type Item struct {
	ID    string
	Name  string
	Size  int64
	IsDir bool
}

// Snapshot describes the current remote state of a share reference.
type Snapshot struct {
	State     ShareState
	Items     []Item
	FileCount int
	TotalSize int64
}

// Share identifies a published share.
type Share struct {
	ShareCode   string
	ReceiveCode string
}

// SpaceInfo reports account storage usage.
type SpaceInfo struct {
	UsedBytes  int64
	TotalBytes int64
}

// Service is the remote cloud-storage surface the transfer engine consumes.
// Mutating operations (Receive, CreateFolder, EnsureFolder, Publish,
// ExtendToPermanent, DeleteItems, EmptyTrash) must be routed through the
// single-flight operation queue.
type Service interface {
	// Snapshot fetches the share's state and, when ready, its top-level items.
	Snapshot(ctx context.Context, ref ShareRef) (*Snapshot, error)
	// ListShareDir lists the children of a folder inside a share.
	ListShareDir(ctx context.Context, ref ShareRef, dirID string) ([]Item, error)
	// Receive copies the identified share items into the destination folder.
	Receive(ctx context.Context, ref ShareRef, itemIDs []string, destID string) error
	// CreateFolder creates a folder under parentID and returns its id.
	CreateFolder(ctx context.Context, parentID, name string) (string, error)
	// EnsureFolder creates the absolute path if needed and returns the
	// terminal folder id.
	EnsureFolder(ctx context.Context, path string) (string, error)
	// ListFolder lists the direct children of an owned folder.
	ListFolder(ctx context.Context, folderID string) ([]Item, error)
	// Publish creates a share over the given owned items.
	Publish(ctx context.Context, itemIDs []string) (*Share, error)
	// ExtendToPermanent converts a share to a non-expiring one.
	ExtendToPermanent(ctx context.Context, shareCode string) error
	// DeleteItems removes owned files or folders.
	DeleteItems(ctx context.Context, ids []string) error
	// EmptyTrash clears the recycle bin, unlocking with password when set.
	EmptyTrash(ctx context.Context, password string) error
	// SpaceInfo reports used and total storage bytes.
	SpaceInfo(ctx context.Context) (SpaceInfo, error)
}
