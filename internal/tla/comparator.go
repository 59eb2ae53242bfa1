package tla

import (
	"cmp"
	"slices"
)

// LockTimeComparator orders addresses by lock time only.
func LockTimeComparator(ascending bool) func(a, b *TimeLockedAddress) int {
	return func(a, b *TimeLockedAddress) int {
		if ascending {
			return cmp.Compare(a.lockTime, b.lockTime)
		}
		return cmp.Compare(b.lockTime, a.lockTime)
	}
}

// SortByLockTime sorts addrs in place; addresses with equal lock times keep their order.
func SortByLockTime(addrs []*TimeLockedAddress, ascending bool) {
	slices.SortStableFunc(addrs, LockTimeComparator(ascending))
}
