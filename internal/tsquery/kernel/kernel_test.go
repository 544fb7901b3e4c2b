package kernel

import (
	"math"
	"testing"
	"time"

	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// TestSimpleDownsampleSum is seed scenario 1 from the spec: points at
// {1000:42, 2000:8, 3000:10, 4000:6} ms, interval=2s, sum -> {0:42, 2000:18, 4000:6}.
func TestSimpleDownsampleSum(t *testing.T) {
	points := []tsvalue.NumericPoint{
		{Timestamp: tsvalue.NewTimestamp(1000, tsvalue.Milliseconds), Value: 42},
		{Timestamp: tsvalue.NewTimestamp(2000, tsvalue.Milliseconds), Value: 8},
		{Timestamp: tsvalue.NewTimestamp(3000, tsvalue.Milliseconds), Value: 10},
		{Timestamp: tsvalue.NewTimestamp(4000, tsvalue.Milliseconds), Value: 6},
	}
	b := Bucketer{
		Interval:   2 * time.Second,
		Aggregator: AggSum,
		Filler:     Filler{Policy: FillNotANumber},
	}
	start := tsvalue.NewTimestamp(0, tsvalue.Milliseconds)
	end := tsvalue.NewTimestamp(6000, tsvalue.Milliseconds)
	buckets := b.Downsample(points, start, end)

	want := map[int64]float64{0: 42, 2000: 18, 4000: 6}
	got := map[int64]float64{}
	for _, bucket := range buckets {
		got[bucket.Start.In(tsvalue.Milliseconds).Epoch] = bucket.Value
	}
	for k, v := range want {
		gv, ok := got[k]
		if !ok {
			t.Fatalf("missing bucket at %d", k)
		}
		if gv != v {
			t.Fatalf("bucket %d: want %v got %v", k, v, gv)
		}
	}
}

func TestBucketBoundaryFloorAlignment(t *testing.T) {
	ts := tsvalue.NewTimestamp(2000, tsvalue.Milliseconds)
	b := BucketBoundary(ts, 2*time.Second)
	if b.In(tsvalue.Milliseconds).Epoch != 2000 {
		t.Fatalf("expected boundary point to belong to its own bucket, got %d", b.Epoch)
	}
}

func TestPercentileAndMedian(t *testing.T) {
	acc := NewAccumulator(AggMedian, 0)
	for _, v := range []float64{1, 3, 5, 7, 9} {
		acc.Add(v)
	}
	if acc.Result() != 5 {
		t.Fatalf("expected median 5, got %v", acc.Result())
	}

	p95 := NewAccumulator(AggPercentile, 0.95)
	for i := 1; i <= 100; i++ {
		p95.Add(float64(i))
	}
	if got := p95.Result(); got < 94 || got > 96 {
		t.Fatalf("expected p95 near 95, got %v", got)
	}
}

func TestAccumulatorEmptyIsNaN(t *testing.T) {
	acc := NewAccumulator(AggSum, 0)
	if !math.IsNaN(acc.Result()) {
		t.Fatalf("expected NaN result for empty accumulator")
	}
}

func TestFillPolicies(t *testing.T) {
	f := Filler{Policy: FillZero}
	v, ok := f.Resolve(0, 0, false, false)
	if !ok || v != 0 {
		t.Fatalf("expected zero fill, got %v %v", v, ok)
	}

	f = Filler{Policy: FillPreferPrevious}
	v, ok = f.Resolve(5, 9, true, true)
	if !ok || v != 5 {
		t.Fatalf("expected prefer-previous to pick previous, got %v", v)
	}

	f = Filler{Policy: FillNone}
	_, ok = f.Resolve(0, 0, false, false)
	if ok {
		t.Fatalf("expected FillNone to report not-ok when nothing to fill")
	}
}

func TestAggregateArraysColumnwise(t *testing.T) {
	arrays := [][]float64{
		{1, 2, 3},
		{4, 5, 6},
	}
	out := AggregateArrays(AggSum, 0, arrays, nil)
	want := []float64{5, 7, 9}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("index %d: want %v got %v", i, want[i], out[i])
		}
	}
}

func TestCalendarDayBucketDuringDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// Spring-forward 2024-03-10 in America/New_York.
	springDay := time.Date(2024, 3, 10, 12, 0, 0, 0, loc)
	ts := tsvalue.Timestamp{Epoch: springDay.UnixNano(), Resolution: tsvalue.Nanoseconds}
	boundary := CalendarBucketBoundary(ts, CalendarDay, loc)
	bt := time.Unix(0, boundary.Epoch).In(loc)
	if bt.Hour() != 0 || bt.Day() != 10 {
		t.Fatalf("expected bucket start at midnight of day 10, got %v", bt)
	}
}
