package drive

import (
	"fmt"
	"net/url"
	"strings"
)

// ShareRef identifies remote shared content not yet owned by this account.
type ShareRef struct {
	ShareCode   string
	ReceiveCode string
}

// String renders the canonical share URL for the reference.
func (r ShareRef) String() string {
	if r.ReceiveCode == "" {
		return fmt.Sprintf("https://115.com/s/%s", r.ShareCode)
	}
	return fmt.Sprintf("https://115.com/s/%s?password=%s", r.ShareCode, r.ReceiveCode)
}

// ParseRef extracts a share reference from a share URL. An explicit access
// code overrides one embedded in the URL.
func ParseRef(rawURL, accessCode string) (ShareRef, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ShareRef{}, fmt.Errorf("share url is empty")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ShareRef{}, fmt.Errorf("parse share url %q: %w", trimmed, err)
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	var code string
	for i, segment := range segments {
		if segment == "s" && i+1 < len(segments) {
			code = segments[i+1]
			break
		}
	}
	if code == "" {
		return ShareRef{}, fmt.Errorf("share url %q has no share code", trimmed)
	}

	receive := strings.TrimSpace(accessCode)
	if receive == "" {
		receive = parsed.Query().Get("password")
	}
	return ShareRef{ShareCode: code, ReceiveCode: receive}, nil
}
