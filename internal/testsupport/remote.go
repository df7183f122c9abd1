package testsupport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"resave/internal/drive"
)

// ShareURL returns a deterministic share link for the nth generated item.
func ShareURL(n int) string {
	return fmt.Sprintf("https://115.com/s/swztest%04d?password=%04d", n, n)
}

// FakeRemote is an in-memory drive.Service. It keeps an owned folder tree
// and a table of shares, records every call, and lets tests override any
// method or inject scripted failures.
type FakeRemote struct {
	mu      sync.Mutex
	nextID  int
	folders map[string]*fakeFolder
	shares  map[string]*FakeShare

	calls    []string
	failures map[string][]error

	used  int64
	total int64

	// inFlight counts concurrently executing mutating calls. It only ever
	// exceeds 1 when the single-flight queue is violated.
	inFlight    int
	maxInFlight int

	// Optional overrides. When set they replace the default behavior.
	SnapshotFn   func(ctx context.Context, ref drive.ShareRef) (*drive.Snapshot, error)
	ListFolderFn func(ctx context.Context, folderID string) ([]drive.Item, error)

	// ReceiveHook runs before the default receive copy. A non-nil error
	// is returned to the caller and the copy is skipped.
	ReceiveHook func(ctx context.Context, ref drive.ShareRef, itemIDs []string, destID string) error
}

var _ drive.Service = (*FakeRemote)(nil)

// FakeShare is the scripted remote side of a share reference.
type FakeShare struct {
	State drive.ShareState
	Items []drive.Item
	// Children maps a share folder id to its listing.
	Children map[string][]drive.Item
	// ReceiveCode, when set, must match the incoming reference.
	ReceiveCode string
}

type fakeFolder struct {
	name     string
	parent   string
	children []drive.Item
}

// NewFakeRemote builds an empty remote with a root folder and 1 TiB of
// mostly free space.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		folders:  map[string]*fakeFolder{"0": {name: ""}},
		shares:   map[string]*FakeShare{},
		failures: map[string][]error{},
		used:     0,
		total:    1 << 40,
	}
}

// AddShare registers a scripted share under the given code.
func (f *FakeRemote) AddShare(code string, share *FakeShare) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if share.State == "" {
		share.State = drive.StateReady
	}
	f.shares[code] = share
}

// AddReadyShare registers a ready share containing fileCount plain files.
func (f *FakeRemote) AddReadyShare(code string, fileCount int) *FakeShare {
	items := make([]drive.Item, 0, fileCount)
	for i := 0; i < fileCount; i++ {
		items = append(items, drive.Item{
			ID:   fmt.Sprintf("%s-f%d", code, i),
			Name: fmt.Sprintf("file%04d.bin", i),
			Size: 1024,
		})
	}
	share := &FakeShare{State: drive.StateReady, Items: items}
	f.AddShare(code, share)
	return share
}

// FailNext arranges for the next call to the named method to return err.
// Method names match the drive.Service method, lowercased.
func (f *FakeRemote) FailNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(method)
	f.failures[key] = append(f.failures[key], err)
}

// SetSpace sets the reported used and total bytes.
func (f *FakeRemote) SetSpace(used, total int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used, f.total = used, total
}

// Calls returns the ordered method names invoked so far.
func (f *FakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (f *FakeRemote) CallCount(method string) int {
	key := strings.ToLower(method)
	count := 0
	for _, call := range f.Calls() {
		if call == key {
			count++
		}
	}
	return count
}

// MaxInFlight reports the highest number of mutating calls observed
// executing at the same time.
func (f *FakeRemote) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// FolderItems returns the direct children of an owned folder.
func (f *FakeRemote) FolderItems(folderID string) []drive.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	folder := f.folders[folderID]
	if folder == nil {
		return nil
	}
	out := make([]drive.Item, len(folder.children))
	copy(out, folder.children)
	return out
}

func (f *FakeRemote) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	if queue := f.failures[method]; len(queue) > 0 {
		err := queue[0]
		f.failures[method] = queue[1:]
		return err
	}
	return nil
}

func (f *FakeRemote) enterMutating() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
}

func (f *FakeRemote) exitMutating() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *FakeRemote) allocID() string {
	f.nextID++
	return "own-" + strconv.Itoa(f.nextID)
}

func (f *FakeRemote) Snapshot(ctx context.Context, ref drive.ShareRef) (*drive.Snapshot, error) {
	if err := f.record("snapshot"); err != nil {
		return nil, err
	}
	if f.SnapshotFn != nil {
		return f.SnapshotFn(ctx, ref)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	share, ok := f.shares[ref.ShareCode]
	if !ok {
		return nil, &drive.RemoteError{Errno: 4100013, Message: "share not found"}
	}
	snap := &drive.Snapshot{State: share.State, FileCount: len(share.Items)}
	if share.State == drive.StateReady {
		snap.Items = make([]drive.Item, len(share.Items))
		copy(snap.Items, share.Items)
		for _, item := range share.Items {
			snap.TotalSize += item.Size
		}
	}
	return snap, nil
}

func (f *FakeRemote) ListShareDir(ctx context.Context, ref drive.ShareRef, dirID string) ([]drive.Item, error) {
	if err := f.record("listsharedir"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	share, ok := f.shares[ref.ShareCode]
	if !ok {
		return nil, &drive.RemoteError{Errno: 4100013, Message: "share not found"}
	}
	children := share.Children[dirID]
	out := make([]drive.Item, len(children))
	copy(out, children)
	return out, nil
}

func (f *FakeRemote) Receive(ctx context.Context, ref drive.ShareRef, itemIDs []string, destID string) error {
	f.enterMutating()
	defer f.exitMutating()
	if err := f.record("receive"); err != nil {
		return err
	}
	if f.ReceiveHook != nil {
		if err := f.ReceiveHook(ctx, ref, itemIDs, destID); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	share, ok := f.shares[ref.ShareCode]
	if !ok {
		return &drive.RemoteError{Errno: 4100013, Message: "share not found"}
	}
	dest := f.folders[destID]
	if dest == nil {
		return &drive.RemoteError{Errno: 20004, Message: "destination folder missing"}
	}

	byID := make(map[string]drive.Item, len(share.Items))
	for _, item := range share.Items {
		byID[item.ID] = item
	}
	for _, children := range share.Children {
		for _, item := range children {
			byID[item.ID] = item
		}
	}
	for _, id := range itemIDs {
		item, ok := byID[id]
		if !ok {
			return &drive.RemoteError{Errno: 4100009, Message: "share item missing"}
		}
		copied := drive.Item{ID: f.allocID(), Name: item.Name, Size: item.Size, IsDir: item.IsDir}
		dest.children = append(dest.children, copied)
		if copied.IsDir {
			f.folders[copied.ID] = &fakeFolder{name: copied.Name, parent: destID}
		}
		f.used += item.Size
	}
	return nil
}

func (f *FakeRemote) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	f.enterMutating()
	defer f.exitMutating()
	if err := f.record("createfolder"); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	parent := f.folders[parentID]
	if parent == nil {
		return "", &drive.RemoteError{Errno: 20004, Message: "parent folder missing"}
	}
	id := f.allocID()
	f.folders[id] = &fakeFolder{name: name, parent: parentID}
	parent.children = append(parent.children, drive.Item{ID: id, Name: name, IsDir: true})
	return id, nil
}

func (f *FakeRemote) EnsureFolder(ctx context.Context, path string) (string, error) {
	f.enterMutating()
	defer f.exitMutating()
	if err := f.record("ensurefolder"); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	current := "0"
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if segment == "" {
			continue
		}
		next := ""
		for _, child := range f.folders[current].children {
			if child.IsDir && child.Name == segment {
				next = child.ID
				break
			}
		}
		if next == "" {
			next = f.allocID()
			f.folders[next] = &fakeFolder{name: segment, parent: current}
			f.folders[current].children = append(f.folders[current].children, drive.Item{ID: next, Name: segment, IsDir: true})
		}
		current = next
	}
	return current, nil
}

func (f *FakeRemote) ListFolder(ctx context.Context, folderID string) ([]drive.Item, error) {
	if err := f.record("listfolder"); err != nil {
		return nil, err
	}
	if f.ListFolderFn != nil {
		return f.ListFolderFn(ctx, folderID)
	}
	items := f.FolderItems(folderID)
	if items == nil {
		return nil, &drive.RemoteError{Errno: 20004, Message: "folder missing"}
	}
	return items, nil
}

func (f *FakeRemote) Publish(ctx context.Context, itemIDs []string) (*drive.Share, error) {
	f.enterMutating()
	defer f.exitMutating()
	if err := f.record("publish"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	code := "pub" + strconv.Itoa(f.nextID)
	f.shares[code] = &FakeShare{State: drive.StateReady}
	return &drive.Share{ShareCode: code, ReceiveCode: "0000"}, nil
}

func (f *FakeRemote) ExtendToPermanent(ctx context.Context, shareCode string) error {
	f.enterMutating()
	defer f.exitMutating()
	return f.record("extendtopermanent")
}

func (f *FakeRemote) DeleteItems(ctx context.Context, ids []string) error {
	f.enterMutating()
	defer f.exitMutating()
	if err := f.record("deleteitems"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	for _, folder := range f.folders {
		kept := folder.children[:0]
		for _, child := range folder.children {
			if _, gone := drop[child.ID]; gone {
				f.used -= child.Size
				continue
			}
			kept = append(kept, child)
		}
		folder.children = kept
	}
	for id := range drop {
		delete(f.folders, id)
	}
	return nil
}

func (f *FakeRemote) EmptyTrash(ctx context.Context, password string) error {
	f.enterMutating()
	defer f.exitMutating()
	return f.record("emptytrash")
}

func (f *FakeRemote) SpaceInfo(ctx context.Context) (drive.SpaceInfo, error) {
	if err := f.record("spaceinfo"); err != nil {
		return drive.SpaceInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return drive.SpaceInfo{UsedBytes: f.used, TotalBytes: f.total}, nil
}
