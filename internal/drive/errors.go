package drive

import (
	"errors"
	"fmt"
)

// Remote errno values observed from the provider.
const (
	// errnoDuplicateReceive is returned when the share was already received
	// into the destination.
	errnoDuplicateReceive = 4200045
	// errnoAlreadyDeleted is returned when deleting items the provider
	// already removed; treated as success.
	errnoAlreadyDeleted = 231011
	// errnoReceiveLimit is returned when a receive call names more items
	// than the per-call ceiling.
	errnoReceiveLimit = 4200028
	// errnoTooFrequent and errnoTrafficControl signal rate limiting.
	errnoTooFrequent    = 990
	errnoTrafficControl = 911
)

// ErrTimeout marks a remote call that exhausted its retry budget on
// timeouts. The retrier is the only producer.
var ErrTimeout = errors.New("remote call timed out")

// ErrAmbiguousState marks a snapshot response that fits no known share state.
var ErrAmbiguousState = errors.New("ambiguous share state")

// RemoteError is a provider rejection carrying its errno.
type RemoteError struct {
	Errno   int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote errno %d", e.Errno)
	}
	return fmt.Sprintf("remote errno %d: %s", e.Errno, e.Message)
}

func remoteErrno(err error) (int, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Errno, true
	}
	return 0, false
}

// IsDuplicateReceive reports the "file already received" rejection.
func IsDuplicateReceive(err error) bool {
	errno, ok := remoteErrno(err)
	return ok && errno == errnoDuplicateReceive
}

// IsAlreadyDeleted reports deletion of items the provider already removed.
func IsAlreadyDeleted(err error) bool {
	errno, ok := remoteErrno(err)
	return ok && errno == errnoAlreadyDeleted
}

// IsReceiveLimit reports the per-call item-count ceiling rejection.
func IsReceiveLimit(err error) bool {
	errno, ok := remoteErrno(err)
	return ok && errno == errnoReceiveLimit
}

// IsThrottled reports a rate-limit rejection.
func IsThrottled(err error) bool {
	errno, ok := remoteErrno(err)
	return ok && (errno == errnoTooFrequent || errno == errnoTrafficControl)
}
