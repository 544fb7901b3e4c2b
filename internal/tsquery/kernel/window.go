package kernel

import (
	"time"

	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// BucketBoundary computes the downsample bucket start for ts under a fixed
// interval, per §8: "bucket boundaries align to floor(timestamp/interval) *
// interval ... boundary points belong to the bucket whose start equals
// them." For fixed-duration intervals (anything not calendar-aligned) this
// is pure integer arithmetic in the timestamp's own resolution and the
// timezone argument is irrelevant.
func BucketBoundary(ts tsvalue.Timestamp, interval time.Duration) tsvalue.Timestamp {
	nanos := ts.Nanos()
	intervalNanos := interval.Nanoseconds()
	if intervalNanos <= 0 {
		return ts
	}
	bucketNanos := (nanos / intervalNanos) * intervalNanos
	if bucketNanos > nanos {
		// Integer division truncates toward zero; step down to the floor
		// for negative timestamps that are not on a boundary.
		bucketNanos -= intervalNanos
	}
	return tsvalue.Timestamp{Epoch: bucketNanos, Resolution: tsvalue.Nanoseconds}.In(ts.Resolution)
}

// CalendarBucketBoundary computes the downsample bucket start for ts when
// the interval names a calendar unit (day/week/month) in the given IANA
// timezone. Per the recorded DST policy (SPEC_FULL.md §5): boundaries are
// computed with wall-clock arithmetic in loc, so a "1d" bucket spanning a
// spring-forward transition is 23 wall-clock hours and one spanning a
// fall-back transition is 25 — Go's time.Date/AddDate already produce this
// behavior, so no special-casing is required here.
func CalendarBucketBoundary(ts tsvalue.Timestamp, unit CalendarUnit, loc *time.Location) tsvalue.Timestamp {
	t := time.Unix(0, ts.Nanos()).In(loc)
	var bucketStart time.Time
	switch unit {
	case CalendarDay:
		bucketStart = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	case CalendarWeek:
		// Weeks start on Monday.
		offset := (int(t.Weekday()) + 6) % 7
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		bucketStart = day.AddDate(0, 0, -offset)
	case CalendarMonth:
		bucketStart = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	default:
		bucketStart = t
	}
	return tsvalue.Timestamp{Epoch: bucketStart.UnixNano(), Resolution: tsvalue.Nanoseconds}.In(ts.Resolution)
}

// CalendarUnit names a calendar-aligned downsample bucket unit.
type CalendarUnit int

const (
	CalendarNone CalendarUnit = iota
	CalendarDay
	CalendarWeek
	CalendarMonth
)

// Bucketer assigns input samples to downsample buckets and folds them
// through a fresh Accumulator per bucket, then applies fill for buckets
// that received zero samples across the requested [start, end) range.
type Bucketer struct {
	Interval   time.Duration
	Calendar   CalendarUnit
	Location   *time.Location
	Aggregator Aggregator
	Percentile float64
	Filler     Filler
}

// Bucket is one output (start, value) pair from a Downsample pass.
type Bucket struct {
	Start tsvalue.Timestamp
	Value float64
	Count int64
}

// Downsample buckets points into fixed (or calendar) intervals spanning
// [start, end), applying the configured aggregator per bucket and the
// configured fill policy to buckets that received no samples.
func (b Bucketer) Downsample(points []tsvalue.NumericPoint, start, end tsvalue.Timestamp) []Bucket {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}

	boundaryFor := func(ts tsvalue.Timestamp) tsvalue.Timestamp {
		if b.Calendar != CalendarNone {
			return CalendarBucketBoundary(ts, b.Calendar, loc)
		}
		return BucketBoundary(ts, b.Interval)
	}

	buckets := map[int64]*Accumulator{}
	order := []int64{}
	for _, p := range points {
		if p.Timestamp.Before(start) || !p.Timestamp.Before(end) {
			continue
		}
		bs := boundaryFor(p.Timestamp)
		key := bs.Nanos()
		acc, ok := buckets[key]
		if !ok {
			acc = NewAccumulator(b.Aggregator, b.Percentile)
			buckets[key] = acc
			order = append(order, key)
		}
		acc.Add(p.Value)
	}

	// Walk every expected bucket boundary in [start, end) so empty buckets
	// get fill treatment rather than being silently omitted.
	var out []Bucket
	seen := map[int64]bool{}
	cursor := boundaryFor(start)
	for cursor.Before(end) {
		key := cursor.Nanos()
		seen[key] = true
		if acc, ok := buckets[key]; ok {
			out = append(out, Bucket{Start: cursor, Value: acc.Result(), Count: acc.Count()})
		} else {
			v, ok := b.Filler.Resolve(0, 0, false, false)
			if ok {
				out = append(out, Bucket{Start: cursor, Value: v, Count: 0})
			}
		}
		cursor = nextBoundary(cursor, b, loc)
	}
	// Any bucket produced from data outside the walked boundary grid (can
	// happen only if caller passes a degenerate interval) is appended last,
	// in encounter order, to avoid silently dropping data.
	for _, key := range order {
		if !seen[key] {
			acc := buckets[key]
			out = append(out, Bucket{
				Start: tsvalue.Timestamp{Epoch: key, Resolution: tsvalue.Nanoseconds}.In(start.Resolution),
				Value: acc.Result(), Count: acc.Count(),
			})
		}
	}
	return out
}

func nextBoundary(cur tsvalue.Timestamp, b Bucketer, loc *time.Location) tsvalue.Timestamp {
	if b.Calendar == CalendarNone {
		return cur.Add(b.Interval.Nanoseconds())
	}
	t := time.Unix(0, cur.Nanos()).In(loc)
	var next time.Time
	switch b.Calendar {
	case CalendarDay:
		next = t.AddDate(0, 0, 1)
	case CalendarWeek:
		next = t.AddDate(0, 0, 7)
	case CalendarMonth:
		next = t.AddDate(0, 1, 0)
	default:
		next = t.Add(b.Interval)
	}
	return tsvalue.Timestamp{Epoch: next.UnixNano(), Resolution: tsvalue.Nanoseconds}.In(cur.Resolution)
}
