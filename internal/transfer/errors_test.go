package transfer_test

import (
	"errors"
	"strings"
	"testing"

	"resave/internal/drive"
	"resave/internal/transfer"
)

func TestWrapTagsAndFormats(t *testing.T) {
	base := errors.New("underlying")
	err := transfer.Wrap(transfer.ErrShareGone, "probe", "snapshot", "expired upstream", base)
	if !errors.Is(err, transfer.ErrShareGone) {
		t.Fatalf("marker lost: %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("cause lost: %v", err)
	}
	for _, fragment := range []string{"probe", "snapshot", "expired upstream"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("message %q missing %q", err.Error(), fragment)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := transfer.Wrap(nil, "stage", "op", "", nil)
	if !errors.Is(err, transfer.ErrTransient) {
		t.Fatalf("nil marker should default to transient, got %v", err)
	}
}

func TestClassifyMapsRemoteErrnos(t *testing.T) {
	throttled := transfer.Classify("receive", "receive", &drive.RemoteError{Errno: 990})
	if !errors.Is(throttled, transfer.ErrThrottled) {
		t.Fatalf("errno 990 = %v, want ErrThrottled", throttled)
	}

	timeout := transfer.Classify("probe", "snapshot", drive.ErrTimeout)
	if !errors.Is(timeout, transfer.ErrTransient) {
		t.Fatalf("timeout = %v, want ErrTransient", timeout)
	}

	tagged := transfer.Wrap(transfer.ErrShareGone, "probe", "state", "", nil)
	if got := transfer.Classify("probe", "state", tagged); !errors.Is(got, transfer.ErrShareGone) {
		t.Fatalf("already-tagged error reclassified: %v", got)
	}
	if transfer.Classify("x", "y", nil) != nil {
		t.Fatal("nil error must classify to nil")
	}
}

func TestPermanent(t *testing.T) {
	if !transfer.Permanent(transfer.Wrap(transfer.ErrValidation, "", "", "", nil)) {
		t.Error("validation errors are permanent")
	}
	if transfer.Permanent(transfer.Wrap(transfer.ErrTransient, "", "", "", nil)) {
		t.Error("transient errors are not permanent")
	}
	if transfer.Permanent(transfer.Wrap(transfer.ErrThrottled, "", "", "", nil)) {
		t.Error("throttled errors are not permanent")
	}
}
