package remote

import (
	"fmt"

	"gatekeeper/pkg/platform/sentinel"
)

// Operations reported in StoreError.Op and the remote error metric.
const (
	OpGet       = "get"
	OpSet       = "set"
	OpIncrement = "increment"
	OpTTL       = "ttl"
)

// StoreError describes a failed remote store operation. It matches
// sentinel.ErrUnavailable so callers can fail over without knowing the adapter.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("remote window store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == sentinel.ErrUnavailable
}
