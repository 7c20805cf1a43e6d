// Package system provides the wall clock used to stamp snapshots.
package system

import "time"

// Precision matches the timestamp resolution of both stores, so an accessed time
// shown in the confirmation table is exactly the value written.
const Precision = time.Microsecond

// Clock reads the wall clock in UTC.
type Clock struct {
	now func() time.Time
}

// New returns a Clock backed by time.Now.
func New() *Clock {
	return &Clock{now: time.Now}
}

// Now returns the current UTC time truncated to Precision, without a monotonic reading.
func (c *Clock) Now() time.Time {
	now := time.Now
	if c != nil && c.now != nil {
		now = c.now
	}
	return now().UTC().Truncate(Precision)
}
