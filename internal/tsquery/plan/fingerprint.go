package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint renders a stable hash of q: two queries that differ only in
// tag-map key order or filter-set/metric slice order produce the same
// fingerprint, matching §4.4 step 7 and the Key/Bytes canonicalization idiom
// used for TimeSeriesID. It is used as the plan cache key.
func Fingerprint(q *TimeSeriesQuery) string {
	var b strings.Builder
	writeTimeRange(&b, q.Time)
	b.WriteByte(0)

	filterSets := append([]FilterSet(nil), q.FilterSets...)
	sort.Slice(filterSets, func(i, j int) bool { return filterSets[i].ID < filterSets[j].ID })
	for _, fs := range filterSets {
		writeFilterSet(&b, fs)
	}
	b.WriteByte(0)

	metrics := append([]MetricSpec(nil), q.Metrics...)
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].ID < metrics[j].ID })
	for _, m := range metrics {
		writeMetric(&b, m)
	}
	b.WriteByte(0)

	exprs := append([]ExpressionSpec(nil), q.Expressions...)
	sort.Slice(exprs, func(i, j int) bool { return exprs[i].ID < exprs[j].ID })
	for _, es := range exprs {
		writeExpression(&b, es)
	}
	b.WriteByte(0)

	outputs := append([]OutputSpec(nil), q.Outputs...)
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].ID+"\x00"+outputs[i].Sink < outputs[j].ID+"\x00"+outputs[j].Sink })
	for _, out := range outputs {
		b.WriteString(out.ID)
		b.WriteByte('=')
		b.WriteString(out.Sink)
		b.WriteByte(';')
	}
	b.WriteByte(0)
	b.WriteString(strconv.FormatBool(q.UseCache))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeTimeRange(b *strings.Builder, t TimeRange) {
	b.WriteString(t.Start)
	b.WriteByte(0)
	b.WriteString(t.End)
	b.WriteByte(0)
	b.WriteString(t.Aggregator)
	b.WriteByte(0)
	b.WriteString(t.Downsample)
	b.WriteByte(0)
	b.WriteString(strconv.FormatBool(t.Rate))
	b.WriteByte(0)
	b.WriteString(t.Timezone)
}

func writeFilterSet(b *strings.Builder, fs FilterSet) {
	b.WriteString(fs.ID)
	b.WriteByte('|')
	b.WriteString(fs.Op)
	b.WriteByte('|')
	b.WriteString(fs.Key)
	b.WriteByte('|')
	b.WriteString(fs.Match)
	b.WriteByte('|')
	b.WriteString(fs.Value)
	b.WriteByte('|')
	terms := append([]FilterTerm(nil), fs.Terms...)
	sort.Slice(terms, func(i, j int) bool { return terms[i].Ref < terms[j].Ref })
	for _, t := range terms {
		b.WriteString(t.Ref)
		b.WriteByte(',')
	}
	b.WriteByte(';')
}

func writeTags(b *strings.Builder, tags map[string]string) {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(tags[k])
		b.WriteByte(',')
	}
}

func writeMetric(b *strings.Builder, m MetricSpec) {
	b.WriteString(m.ID)
	b.WriteByte('|')
	b.WriteString(m.Name)
	b.WriteByte('|')
	writeTags(b, m.Tags)
	b.WriteByte('|')
	b.WriteString(m.Filter)
	b.WriteByte('|')
	if m.GroupBy != nil {
		keys := append([]string(nil), m.GroupBy.TagKeys...)
		sort.Strings(keys)
		b.WriteString(strings.Join(keys, ","))
		b.WriteByte('|')
		b.WriteString(string(m.GroupBy.Aggregator))
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(m.GroupBy.Percentile, 'g', -1, 64))
	}
	b.WriteByte('|')
	if m.Downsample != nil {
		b.WriteString(m.Downsample.Interval)
		b.WriteByte('|')
		b.WriteString(m.Downsample.Calendar)
		b.WriteByte('|')
		b.WriteString(string(m.Downsample.Aggregator))
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(m.Downsample.Percentile, 'g', -1, 64))
		b.WriteByte('|')
		b.WriteString(m.Downsample.Fill)
	}
	b.WriteByte('|')
	if m.Rate != nil {
		b.WriteString(strconv.FormatBool(m.Rate.IsCounter))
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(m.Rate.CounterMax, 'g', -1, 64))
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(m.Rate.ResetValue, 'g', -1, 64))
	}
	b.WriteByte('|')
	if m.TopN != nil {
		b.WriteString(strconv.Itoa(m.TopN.N))
		b.WriteByte('|')
		b.WriteString(string(m.TopN.Aggregator))
		b.WriteByte('|')
		b.WriteString(strconv.FormatBool(m.TopN.Descending))
	}
	b.WriteByte('|')
	if m.Summarizer != nil {
		ids := append([]int(nil), m.Summarizer.SummaryIDs...)
		sort.Ints(ids)
		for _, id := range ids {
			b.WriteString(strconv.Itoa(id))
			b.WriteByte(',')
		}
	}
	b.WriteByte(';')
}

func writeExpression(b *strings.Builder, es ExpressionSpec) {
	b.WriteString(es.ID)
	b.WriteByte('|')
	b.WriteString(es.Expr)
	b.WriteByte('|')
	if es.Join != nil {
		b.WriteString(es.Join.Left)
		b.WriteByte(',')
		b.WriteString(es.Join.Right)
		b.WriteByte(',')
		b.WriteString(es.Join.Kind)
		b.WriteByte(',')
		b.WriteString(es.Join.Fill)
	}
	b.WriteByte(';')
}
