// Package replay records which (account, time step) pairs have already been
// used to authenticate, so a code observed once cannot be presented again
// while it is still inside the verification window.
package replay

import (
	"context"
	"time"
)

type Status int

const (
	Fresh Status = iota
	AlreadyUsed
)

func (s Status) String() string {
	if s == AlreadyUsed {
		return "already_used"
	}
	return "fresh"
}

// Guard atomically checks and consumes a (accountID, step) pair. Two
// concurrent calls for the same pair yield exactly one Fresh.
type Guard interface {
	CheckAndConsume(ctx context.Context, accountID string, step uint64) (Status, error)
}

// TTL returns how long a consumed step must be remembered: the full window a
// code for that step can be accepted in, (2*skew + 1) steps.
func TTL(period time.Duration, skew uint) time.Duration {
	return time.Duration(2*skew+1) * period
}
