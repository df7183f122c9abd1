package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"resave/internal/drive"
	"resave/internal/logging"
)

// Stabilizer waits out the remote's eventual consistency after a receive.
// Listings can lag the copy by several seconds, so a snapshot taken too
// early publishes an incomplete share.
type Stabilizer struct {
	remote   drive.Service
	attempts int
	interval time.Duration
	logger   *slog.Logger
}

// NewStabilizer builds a stabilizer polling at the given cadence.
// Non-positive attempts default to 10.
func NewStabilizer(remote drive.Service, attempts int, interval time.Duration, logger *slog.Logger) *Stabilizer {
	if attempts <= 0 {
		attempts = 10
	}
	return &Stabilizer{
		remote:   remote,
		attempts: attempts,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "stabilizer"),
	}
}

// WaitForListing polls the folder until its listing settles and returns it.
// The listing is settled when it reaches the expected count, or when two
// consecutive polls agree on the same name and size set. When the attempt
// budget runs out, the last non-empty listing wins over failing outright.
func (s *Stabilizer) WaitForListing(ctx context.Context, folderID string, expectCount int) ([]drive.Item, error) {
	var previous string
	var lastNonEmpty []drive.Item

	for attempt := 1; attempt <= s.attempts; attempt++ {
		items, err := s.remote.ListFolder(ctx, folderID)
		if err != nil {
			return nil, Classify("stabilize", "list folder", err)
		}

		if expectCount > 0 && len(items) == expectCount {
			return items, nil
		}
		current := fingerprint(items)
		if attempt > 1 && len(items) > 0 && current == previous {
			return items, nil
		}
		previous = current
		if len(items) > 0 {
			lastNonEmpty = items
		}

		s.logger.Debug("listing not settled",
			logging.Int("attempt", attempt),
			logging.Int("items", len(items)),
			logging.Int("expected", expectCount),
		)
		if attempt < s.attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.interval):
			}
		}
	}

	if lastNonEmpty != nil {
		s.logger.Warn("listing never settled, using last observation",
			logging.Int("items", len(lastNonEmpty)),
			logging.Int("expected", expectCount),
		)
		return lastNonEmpty, nil
	}
	return nil, Wrap(ErrNotVisible, "stabilize", "wait for listing", fmt.Sprintf("folder %s stayed empty", folderID), nil)
}

// fingerprint collapses a listing into an order-independent key. Names are
// width-folded and NFC-normalized first: the remote sometimes re-encodes
// CJK names between polls without the content changing.
func fingerprint(items []drive.Item) string {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, fmt.Sprintf("%s\x00%d\x00%t", normalizeName(item.Name), item.Size, item.IsDir))
	}
	sort.Strings(keys)
	return strings.Join(keys, "\n")
}

func normalizeName(name string) string {
	return width.Fold.String(norm.NFC.String(name))
}
