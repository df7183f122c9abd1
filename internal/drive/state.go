package drive

import (
	"fmt"
)

// ShareState is the prober's classification of a share snapshot.
type ShareState string

const (
	// StateReady means the share's items can be received now.
	StateReady ShareState = "ready"
	// StateAuditing means the provider is still reviewing the content.
	StateAuditing ShareState = "auditing"
	// StateSnapshotting means the provider has not finished generating the
	// share's snapshot.
	StateSnapshotting ShareState = "snapshotting"
	// StateExpired means the share is gone; terminal.
	StateExpired ShareState = "expired"
	// StateProhibited means the content violates provider policy; terminal.
	StateProhibited ShareState = "prohibited"
)

// Terminal reports whether the state is a permanent failure.
func (s ShareState) Terminal() bool {
	return s == StateExpired || s == StateProhibited
}

// Pending reports whether the caller should park the transfer and poll.
func (s ShareState) Pending() bool {
	return s == StateAuditing || s == StateSnapshotting
}

// shareStateCodes maps the provider's numeric share_state field. Codes were
// collected from observed snapshot responses.
var shareStateCodes = map[int]ShareState{
	1:  StateReady,
	7:  StateReady, // ready, access-code protected
	0:  StateAuditing,
	3:  StateSnapshotting,
	4:  StateExpired,
	2:  StateProhibited,
	6:  StateProhibited,
	10: StateProhibited,
}

// ClassifyShareState translates the provider's share_state code into the
// prober vocabulary. Unknown codes are an error rather than a guess.
func ClassifyShareState(code int) (ShareState, error) {
	state, ok := shareStateCodes[code]
	if !ok {
		return "", fmt.Errorf("%w: share_state %d", ErrAmbiguousState, code)
	}
	return state, nil
}
