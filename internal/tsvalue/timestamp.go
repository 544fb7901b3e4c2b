// Package tsvalue implements the typed time-series value model that crosses
// node boundaries: timestamps, series identity, the closed set of value
// types, and the process-wide type registry nodes dispatch against.
package tsvalue

import "fmt"

// Resolution is the chrono-unit a Timestamp's epoch value is expressed in.
type Resolution int

const (
	Nanoseconds Resolution = iota
	Microseconds
	Milliseconds
	Seconds
)

func (r Resolution) String() string {
	switch r {
	case Nanoseconds:
		return "nanoseconds"
	case Microseconds:
		return "microseconds"
	case Milliseconds:
		return "milliseconds"
	case Seconds:
		return "seconds"
	default:
		return "unknown"
	}
}

// nanosPerUnit is the scale factor from one unit of a Resolution to a
// nanosecond, used to make cross-resolution arithmetic resolution-aware.
var nanosPerUnit = map[Resolution]int64{
	Nanoseconds:  1,
	Microseconds: 1_000,
	Milliseconds: 1_000_000,
	Seconds:      1_000_000_000,
}

// Timestamp is an epoch value plus a resolution tag. Comparison and
// arithmetic between two Timestamps of differing resolution are
// resolution-aware: both sides are normalized to nanoseconds first.
type Timestamp struct {
	Epoch      int64
	Resolution Resolution
}

// NewTimestamp constructs a Timestamp, defaulting an unrecognized resolution
// to Milliseconds (the most common wire resolution for this domain).
func NewTimestamp(epoch int64, res Resolution) Timestamp {
	if _, ok := nanosPerUnit[res]; !ok {
		res = Milliseconds
	}
	return Timestamp{Epoch: epoch, Resolution: res}
}

// Nanos returns the epoch value normalized to nanoseconds.
func (t Timestamp) Nanos() int64 {
	return t.Epoch * nanosPerUnit[t.Resolution]
}

// In converts t to an equivalent Timestamp at the target resolution. Integer
// division truncates toward zero when moving to a coarser resolution.
func (t Timestamp) In(res Resolution) Timestamp {
	if t.Resolution == res {
		return t
	}
	nanos := t.Nanos()
	return Timestamp{Epoch: nanos / nanosPerUnit[res], Resolution: res}
}

// Before reports whether t occurs strictly before other.
func (t Timestamp) Before(other Timestamp) bool {
	return t.Nanos() < other.Nanos()
}

// After reports whether t occurs strictly after other.
func (t Timestamp) After(other Timestamp) bool {
	return t.Nanos() > other.Nanos()
}

// Equal reports whether t and other denote the same instant, regardless of
// the resolution each is expressed in.
func (t Timestamp) Equal(other Timestamp) bool {
	return t.Nanos() == other.Nanos()
}

// Add returns t advanced by delta nanoseconds, preserving t's resolution.
func (t Timestamp) Add(deltaNanos int64) Timestamp {
	unit := nanosPerUnit[t.Resolution]
	return Timestamp{Epoch: t.Epoch + deltaNanos/unit, Resolution: t.Resolution}
}

// Sub returns the signed difference t - other in nanoseconds.
func (t Timestamp) Sub(other Timestamp) int64 {
	return t.Nanos() - other.Nanos()
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d%s", t.Epoch, unitSuffix(t.Resolution))
}

func unitSuffix(r Resolution) string {
	switch r {
	case Nanoseconds:
		return "ns"
	case Microseconds:
		return "us"
	case Milliseconds:
		return "ms"
	case Seconds:
		return "s"
	default:
		return ""
	}
}
