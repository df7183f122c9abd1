package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"resave/internal/config"
)

// HTTPDoer describes the HTTP client used by the drive service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type httpService struct {
	baseURL   string
	cookie    string
	userAgent string
	client    HTTPDoer
}

// NewHTTPService constructs an HTTP-backed drive service from configuration.
func NewHTTPService(cfg *config.Config, client HTTPDoer) Service {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.Provider.RequestTimeout) * time.Second}
	}
	return &httpService{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.Provider.BaseURL), "/"),
		cookie:    strings.TrimSpace(cfg.Provider.Cookie),
		userAgent: strings.TrimSpace(cfg.Provider.UserAgent),
		client:    client,
	}
}

// envelope is the provider's uniform response wrapper.
type envelope struct {
	State   bool            `json:"state"`
	Errno   int             `json:"errno"`
	Message string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type snapshotData struct {
	ShareState int            `json:"share_state"`
	FileCount  int            `json:"file_count"`
	TotalSize  int64          `json:"total_size,string"`
	List       []snapshotItem `json:"list"`
}

type snapshotItem struct {
	FileID   string `json:"fid"`
	FolderID string `json:"cid"`
	Name     string `json:"n"`
	Size     int64  `json:"s"`
}

func (i snapshotItem) toItem() Item {
	if i.FileID != "" {
		return Item{ID: i.FileID, Name: i.Name, Size: i.Size}
	}
	return Item{ID: i.FolderID, Name: i.Name, IsDir: true}
}

type listingItem struct {
	FileID   string `json:"file_id"`
	FolderID string `json:"fid"`
	Name     string `json:"fn"`
	Size     int64  `json:"fs"`
}

func (i listingItem) toItem() Item {
	if i.FileID != "" {
		return Item{ID: i.FileID, Name: i.Name, Size: i.Size}
	}
	return Item{ID: i.FolderID, Name: i.Name, IsDir: true}
}

func (s *httpService) Snapshot(ctx context.Context, ref ShareRef) (*Snapshot, error) {
	query := url.Values{
		"share_code":   {ref.ShareCode},
		"receive_code": {ref.ReceiveCode},
		"limit":        {"1150"},
	}
	var data snapshotData
	if err := s.get(ctx, "/share/snap", query, &data); err != nil {
		return nil, err
	}

	state, err := ClassifyShareState(data.ShareState)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		State:     state,
		FileCount: data.FileCount,
		TotalSize: data.TotalSize,
	}
	if state == StateReady {
		snap.Items = make([]Item, 0, len(data.List))
		for _, raw := range data.List {
			item := raw.toItem()
			if item.ID == "" {
				continue
			}
			snap.Items = append(snap.Items, item)
		}
	}
	return snap, nil
}

func (s *httpService) ListShareDir(ctx context.Context, ref ShareRef, dirID string) ([]Item, error) {
	query := url.Values{
		"share_code":   {ref.ShareCode},
		"receive_code": {ref.ReceiveCode},
		"cid":          {dirID},
		"limit":        {"1150"},
	}
	var data snapshotData
	if err := s.get(ctx, "/share/snap", query, &data); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(data.List))
	for _, raw := range data.List {
		item := raw.toItem()
		if item.ID == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *httpService) Receive(ctx context.Context, ref ShareRef, itemIDs []string, destID string) error {
	form := url.Values{
		"share_code":   {ref.ShareCode},
		"receive_code": {ref.ReceiveCode},
		"file_id":      {strings.Join(itemIDs, ",")},
		"cid":          {destID},
	}
	return s.post(ctx, "/share/receive", form, nil)
}

func (s *httpService) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	form := url.Values{
		"pid":   {parentID},
		"cname": {name},
	}
	var data struct {
		FolderID string `json:"cid"`
	}
	if err := s.post(ctx, "/files/add", form, &data); err != nil {
		return "", err
	}
	if data.FolderID == "" {
		return "", fmt.Errorf("create folder %q: empty folder id in response", name)
	}
	return data.FolderID, nil
}

func (s *httpService) EnsureFolder(ctx context.Context, path string) (string, error) {
	form := url.Values{
		"path": {path},
		"pid":  {"0"},
	}
	var data struct {
		FolderID string `json:"cid"`
	}
	if err := s.post(ctx, "/files/makedirs", form, &data); err != nil {
		return "", err
	}
	if data.FolderID == "" {
		return "", fmt.Errorf("ensure folder %q: empty folder id in response", path)
	}
	return data.FolderID, nil
}

func (s *httpService) ListFolder(ctx context.Context, folderID string) ([]Item, error) {
	query := url.Values{
		"cid":   {folderID},
		"limit": {"1150"},
	}
	var data struct {
		List []listingItem `json:"list"`
	}
	if err := s.get(ctx, "/files", query, &data); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(data.List))
	for _, raw := range data.List {
		item := raw.toItem()
		if item.ID == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *httpService) Publish(ctx context.Context, itemIDs []string) (*Share, error) {
	form := url.Values{
		"file_ids": {strings.Join(itemIDs, ",")},
	}
	var data struct {
		ShareCode   string `json:"share_code"`
		ReceiveCode string `json:"receive_code"`
	}
	if err := s.post(ctx, "/share/send", form, &data); err != nil {
		return nil, err
	}
	if data.ShareCode == "" {
		return nil, fmt.Errorf("publish: empty share code in response")
	}
	return &Share{ShareCode: data.ShareCode, ReceiveCode: data.ReceiveCode}, nil
}

func (s *httpService) ExtendToPermanent(ctx context.Context, shareCode string) error {
	form := url.Values{
		"share_code":     {shareCode},
		"share_duration": {"-1"},
	}
	return s.post(ctx, "/share/updateshare", form, nil)
}

func (s *httpService) DeleteItems(ctx context.Context, ids []string) error {
	form := url.Values{
		"fid": {strings.Join(ids, ",")},
	}
	err := s.post(ctx, "/rb/delete", form, nil)
	if IsAlreadyDeleted(err) {
		return nil
	}
	return err
}

func (s *httpService) EmptyTrash(ctx context.Context, password string) error {
	form := url.Values{}
	if password != "" {
		form.Set("password", password)
	}
	return s.post(ctx, "/rb/clean", form, nil)
}

func (s *httpService) SpaceInfo(ctx context.Context) (SpaceInfo, error) {
	var data struct {
		SpaceInfo struct {
			Total struct {
				Size int64 `json:"size"`
			} `json:"all_total"`
			Used struct {
				Size int64 `json:"size"`
			} `json:"all_use"`
		} `json:"space_info"`
	}
	if err := s.get(ctx, "/files/index_info", nil, &data); err != nil {
		return SpaceInfo{}, err
	}
	return SpaceInfo{
		UsedBytes:  data.SpaceInfo.Used.Size,
		TotalBytes: data.SpaceInfo.Total.Size,
	}, nil
}

func (s *httpService) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	return s.do(req, path, out)
}

func (s *httpService) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req, path, out)
}

func (s *httpService) do(req *http.Request, path string, out any) error {
	req.Header.Set("Cookie", s.cookie)
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("call %s: status %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if !env.State {
		return &RemoteError{Errno: env.Errno, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "... (" + strconv.Itoa(len(value)) + " bytes)"
}
