package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrIllegalOrderState = errors.New("illegal order state")

	// ErrUnknownReference: a related entity (member, product) that must
	// exist is missing. Indicates data corruption, not a user error.
	ErrUnknownReference = errors.New("unknown reference")
)

func illegalTransition(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalOrderState, from, to)
}
