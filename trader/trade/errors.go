package trade

import (
	"errors"
	"fmt"
)

var (
	// ErrRouteUnavailable wraps every trade router failure. No plan is produced.
	ErrRouteUnavailable = errors.New("route unavailable")
	// ErrInvalidBlockTime is returned for a zero or negative block time, or one so
	// long that the execution time no longer fits in a time.Duration
	ErrInvalidBlockTime = errors.New("invalid block time")
	// ErrInvalidAmount is returned for amounts that cannot be traded at all
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrEmptySwaps is returned when a price difference is asked for a route without hops
	ErrEmptySwaps = errors.New("swap route has no hops")
)

func routeUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrRouteUnavailable, err)
}

func invalidAmount(name string, value fmt.Stringer) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidAmount, name, value)
}
