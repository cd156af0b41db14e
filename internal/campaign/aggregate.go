package campaign

import "sort"

// DefaultTopK is the number of locations kept in the location view.
const DefaultTopK = 5

// Option configures aggregation.
type Option func(*options)

type options struct {
	topK int
}

// WithTopK sets how many locations the location view keeps. Non-positive values keep the
// default.
func WithTopK(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.topK = k
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{topK: DefaultTopK}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Aggregate computes all five views over an already filtered record set.
func Aggregate(records []Record, opts ...Option) Snapshot {
	o := applyOptions(opts)
	return Snapshot{
		SentimentCounts:     SentimentCounts(records),
		EngagementTrend:     EngagementTrend(records),
		PlatformEngagements: PlatformEngagements(records),
		MediaTypeCounts:     MediaTypeCounts(records),
		LocationEngagements: LocationEngagements(records, o.topK),
	}
}

// SentimentCounts counts records per sentiment, descending by count.
func SentimentCounts(records []Record) []Pair {
	return rank(group(records, func(r Record) (string, int64) { return r.Sentiment, 1 }), 0)
}

// EngagementTrend sums engagements per calendar day in ascending date order. Days without
// records are absent; records without a timestamp are skipped.
func EngagementTrend(records []Record) []Pair {
	sums := make(map[string]int64)
	for _, rec := range records {
		if !rec.HasTimestamp() {
			continue
		}
		sums[rec.Day().Format(DayLayout)] += rec.Engagements
	}
	out := toPairs(sums)
	// DayLayout sorts lexically in date order.
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// PlatformEngagements sums engagements per platform, descending by total.
func PlatformEngagements(records []Record) []Pair {
	return rank(group(records, func(r Record) (string, int64) { return r.Platform, r.Engagements }), 0)
}

// MediaTypeCounts counts records per media type, descending by count.
func MediaTypeCounts(records []Record) []Pair {
	return rank(group(records, func(r Record) (string, int64) { return r.MediaType, 1 }), 0)
}

// LocationEngagements sums engagements per location and keeps the top k.
func LocationEngagements(records []Record, k int) []Pair {
	if k <= 0 {
		k = DefaultTopK
	}
	return rank(group(records, func(r Record) (string, int64) { return r.Location, r.Engagements }), k)
}

// DayLayout formats engagement trend labels.
const DayLayout = "2006-01-02"

func group(records []Record, key func(Record) (string, int64)) map[string]int64 {
	sums := make(map[string]int64)
	for _, rec := range records {
		label, v := key(rec)
		sums[label] += v
	}
	return sums
}

// rank orders pairs by value descending with an ascending label tie-break and truncates
// to limit when limit > 0.
func rank(sums map[string]int64, limit int) []Pair {
	out := toPairs(sums)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Label < out[j].Label
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func toPairs(sums map[string]int64) []Pair {
	out := make([]Pair, 0, len(sums))
	for label, v := range sums {
		out = append(out, Pair{Label: label, Value: v})
	}
	return out
}
