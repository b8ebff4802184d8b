package session

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyActive     = errors.New("session already active")
	ErrNotActive         = errors.New("session not active")
	ErrBridgeUnreachable = errors.New("bridge unreachable")
	ErrUnknownDeploy     = errors.New("unknown deploy")
)

// BridgeError reports a failed bridge start for Host. It matches
// ErrBridgeUnreachable and unwraps to the bridge's own error, so callers can
// still reach a status code or message the bridge returned.
type BridgeError struct {
	Host string
	Err  error
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("bridge to %s: %v", e.Host, e.Err)
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

func (e *BridgeError) Is(target error) bool {
	return target == ErrBridgeUnreachable
}
