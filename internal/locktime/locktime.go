// Package locktime classifies lock-time values as block heights or unix timestamps
// and compares values of the same class.
package locktime

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"

	"github.com/goodnatureofminers/custody-core/internal/model"
)

// Threshold splits the lock-time domain: lower values are block heights, the rest unix seconds.
const Threshold int64 = txscript.LockTimeThreshold

// IsByBlock reports whether v is interpreted as a block height. Zero disables a lock time.
func IsByBlock(v int64) bool {
	return v < Threshold
}

// IsByTime reports whether v is interpreted as a unix timestamp.
func IsByTime(v int64) bool {
	return v >= Threshold
}

// IsBeforeLockTime reports whether current lies before target. Both values must be
// non-negative and of the same class.
func IsBeforeLockTime(current, target int64) (bool, error) {
	if current < 0 || target < 0 {
		return false, fmt.Errorf("lock time must not be negative, got %d and %d: %w", current, target, model.ErrInvalidArgument)
	}
	if IsByTime(current) != IsByTime(target) {
		return false, fmt.Errorf("cannot compare block height with timestamp (%d vs %d): %w", current, target, model.ErrInvalidArgument)
	}
	return current < target, nil
}

// IsAfterLockTime is the negation of IsBeforeLockTime.
func IsAfterLockTime(current, target int64) (bool, error) {
	before, err := IsBeforeLockTime(current, target)
	if err != nil {
		return false, err
	}
	return !before, nil
}
