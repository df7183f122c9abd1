package transfer

import (
	"errors"
	"fmt"
	"strings"

	"resave/internal/drive"
)

var (
	// ErrShareGone marks shares the remote reports expired or deleted.
	ErrShareGone = errors.New("share gone")
	// ErrShareRestricted marks content the remote refuses on policy grounds.
	ErrShareRestricted = errors.New("share restricted")
	// ErrSharePending marks shares still auditing or snapshotting; the
	// transfer is parked, not failed.
	ErrSharePending = errors.New("share pending")
	// ErrThrottled marks remote rate limiting. It trips the global
	// throttle flag.
	ErrThrottled = errors.New("remote throttled")
	// ErrNotVisible marks received content whose listing never surfaced
	// within the stabilization budget. The transfer is parked for the
	// long-poll worker, not failed.
	ErrNotVisible = errors.New("content not yet visible")
	// ErrValidation marks bad caller input.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks failures worth retrying later.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes pipeline context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps a raw remote failure onto the pipeline's sentinel taxonomy.
// Errors already carrying a sentinel pass through unchanged.
func Classify(stage, operation string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrShareGone, ErrShareRestricted, ErrSharePending, ErrThrottled, ErrNotVisible, ErrValidation, ErrTransient} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if drive.IsThrottled(err) {
		return Wrap(ErrThrottled, stage, operation, "", err)
	}
	return Wrap(ErrTransient, stage, operation, "", err)
}

// Permanent reports whether the failure cannot succeed on retry.
func Permanent(err error) bool {
	return errors.Is(err, ErrShareGone) ||
		errors.Is(err, ErrShareRestricted) ||
		errors.Is(err, ErrValidation)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "transfer failure"
	}
	return strings.Join(parts, ": ")
}
