// Package ledger holds the capacity arithmetic of volunteer slots and supply
// lots. The persisted guard lives in the response repository. These helpers
// serve the advisory check at response creation and the read models.
package ledger

// Remaining is the capacity left after the approved units
func Remaining(capacity, approved int) int {
	return capacity - approved
}

// CanAccept reports whether requested more units fit next to the approved ones
func CanAccept(capacity, approved, requested int) bool {
	if requested <= 0 {
		return false
	}
	return approved+requested <= capacity
}
