package tsvalue

import "math"

// TypeToken is the opaque, globally-unique identifier for a value type.
// Nodes dispatch on a TypeToken, never on a Go type switch or an
// inheritance hierarchy — new types plug into the TypeRegistry without any
// core code change.
type TypeToken uint8

const (
	// TypeNumeric identifies a scalar (integer or floating) per timestamp.
	TypeNumeric TypeToken = iota
	// TypeNumericSummary identifies a summary-id -> scalar mapping per timestamp.
	TypeNumericSummary
	// TypeNumericArray identifies a fixed-interval dense array of scalars.
	TypeNumericArray
	// TypeEvent identifies a typed, non-numeric payload (e.g. deploy marker).
	TypeEvent
	// TypeAnnotation identifies a human-authored annotation attached to a time range.
	TypeAnnotation
)

func (t TypeToken) String() string {
	switch t {
	case TypeNumeric:
		return "numeric"
	case TypeNumericSummary:
		return "numeric_summary"
	case TypeNumericArray:
		return "numeric_array"
	case TypeEvent:
		return "event"
	case TypeAnnotation:
		return "annotation"
	default:
		return "unknown"
	}
}

// SummaryID identifies one column of a NumericSummary value.
type SummaryID int

const (
	SummarySum SummaryID = iota
	SummaryCount
	SummaryMin
	SummaryMax
	_ // reserved, matches the source numbering gap at index 4
	SummaryAvg
	SummaryFirst
	SummaryLast
)

// NumericPoint is one scalar sample of a Numeric series.
type NumericPoint struct {
	Timestamp Timestamp
	Value     float64
	IsInteger bool
}

// NumericSummaryPoint is one row of a NumericSummary series: a mapping from
// summary-id to scalar at a single timestamp.
type NumericSummaryPoint struct {
	Timestamp Timestamp
	Values    map[SummaryID]float64
}

// NumericArray is a fixed-interval dense array of scalars sharing a single
// start timestamp and an implicit stride taken from the enclosing
// TimeSpecification. A missing sample is represented by NaN in Values and a
// corresponding true in Missing (nil Missing means "nothing missing").
type NumericArray struct {
	Start   Timestamp
	Values  []float64
	Missing []bool
}

// At returns the value at index i, treating an out-of-range or masked
// index as missing (NaN, true).
func (a NumericArray) At(i int) (value float64, missing bool) {
	if i < 0 || i >= len(a.Values) {
		return math.NaN(), true
	}
	if a.Missing != nil && i < len(a.Missing) && a.Missing[i] {
		return math.NaN(), true
	}
	return a.Values[i], false
}

// Event is a typed, non-numeric payload outside the numeric family.
type Event struct {
	Timestamp Timestamp
	Kind      string
	Payload   map[string]string
}

// Annotation attaches free-form text to a time range.
type Annotation struct {
	Start       Timestamp
	End         Timestamp
	Description string
	Custom      map[string]string
}
