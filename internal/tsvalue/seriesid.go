package tsvalue

import (
	"bytes"
	"sort"
	"strings"
)

// TimeSeriesID identifies one series. Tag keys are unique within Tags;
// AggregatedTags and DisjointTags are expected to be disjoint from Tags'
// keys (the planner and merger enforce this, not this type). Two ids are
// equal iff every field matches byte-for-byte, per the string/byte-form
// duality described in the data model.
type TimeSeriesID struct {
	Namespace      string
	Metric         string
	Tags           map[string]string
	AggregatedTags []string
	DisjointTags   []string
	Alias          string
}

// NewTimeSeriesID returns an id with an initialized Tags map.
func NewTimeSeriesID(metric string, tags map[string]string) TimeSeriesID {
	if tags == nil {
		tags = map[string]string{}
	}
	return TimeSeriesID{Metric: metric, Tags: tags}
}

// Equal implements byte-for-byte equality across all fields. Tag maps
// compare by key/value set, not insertion order; Aggregated/Disjoint tag
// lists are order-sensitive, matching their Bytes() encoding below.
func (id TimeSeriesID) Equal(other TimeSeriesID) bool {
	if id.Namespace != other.Namespace || id.Metric != other.Metric || id.Alias != other.Alias {
		return false
	}
	if len(id.Tags) != len(other.Tags) {
		return false
	}
	for k, v := range id.Tags {
		if ov, ok := other.Tags[k]; !ok || ov != v {
			return false
		}
	}
	return stringSliceEqual(id.AggregatedTags, other.AggregatedTags) &&
		stringSliceEqual(id.DisjointTags, other.DisjointTags)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Key returns a deterministic, order-independent string key for use in maps
// and as a merge/join matching key. Tag keys are sorted so that two ids
// carrying the same tag set in different insertion order produce the same
// key — required for plan fingerprint stability under tag-map permutation.
func (id TimeSeriesID) Key() string {
	var b strings.Builder
	b.WriteString(id.Namespace)
	b.WriteByte(0)
	b.WriteString(id.Metric)
	keys := make([]string, 0, len(id.Tags))
	for k := range id.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(id.Tags[k])
	}
	return b.String()
}

// Bytes renders the byte form of the id: the same fields as an opaque,
// order-stable byte sequence, as used by storage-encoded ids on the wire.
func (id TimeSeriesID) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(id.Namespace)
	buf.WriteByte(0)
	buf.WriteString(id.Metric)
	buf.WriteByte(0)
	keys := make([]string, 0, len(id.Tags))
	for k := range id.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(id.Tags[k])
		buf.WriteByte(';')
	}
	buf.WriteByte(0)
	for _, t := range id.AggregatedTags {
		buf.WriteString(t)
		buf.WriteByte(';')
	}
	buf.WriteByte(0)
	for _, t := range id.DisjointTags {
		buf.WriteString(t)
		buf.WriteByte(';')
	}
	return buf.Bytes()
}

// WithTag returns a copy of id with the given tag key set, leaving id
// untouched — ids are treated as immutable after planning.
func (id TimeSeriesID) WithTag(key, value string) TimeSeriesID {
	cp := id
	cp.Tags = make(map[string]string, len(id.Tags)+1)
	for k, v := range id.Tags {
		cp.Tags[k] = v
	}
	cp.Tags[key] = value
	return cp
}
