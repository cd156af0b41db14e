package campaign

import (
	"sort"
	"time"
)

// Filter returns the records matching criteria in their original relative order.
// Dimensions are AND-combined; values within a dimension are OR-combined. Empty criteria
// return the input slice unchanged. Records without a timestamp only match when no date
// bound is set. Selection values absent from the data simply match nothing.
func Filter(records []Record, criteria Criteria) []Record {
	if criteria.IsEmpty() {
		return records
	}

	m := newMatcher(criteria)
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if m.match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

type matcher struct {
	dated      bool
	from       time.Time
	until      time.Time // exclusive: the day after End
	platforms  map[string]struct{}
	sentiments map[string]struct{}
	mediaTypes map[string]struct{}
	locations  map[string]struct{}
}

func newMatcher(c Criteria) matcher {
	m := matcher{
		dated:      c.HasDateBound(),
		platforms:  toSet(c.Platforms),
		sentiments: toSet(c.Sentiments),
		mediaTypes: toSet(c.MediaTypes),
		locations:  toSet(c.Locations),
	}
	if !c.Start.IsZero() {
		m.from = startOfDay(c.Start)
	}
	if !c.End.IsZero() {
		m.until = startOfDay(c.End).AddDate(0, 0, 1)
	}
	return m
}

func (m matcher) match(rec Record) bool {
	if m.dated {
		if !rec.HasTimestamp() {
			return false
		}
		ts := rec.Timestamp.UTC()
		if !m.from.IsZero() && ts.Before(m.from) {
			return false
		}
		if !m.until.IsZero() && !ts.Before(m.until) {
			return false
		}
	}
	return member(m.platforms, rec.Platform) &&
		member(m.sentiments, rec.Sentiment) &&
		member(m.mediaTypes, rec.MediaType) &&
		member(m.locations, rec.Location)
}

// member treats a nil set as "no restriction".
func member(set map[string]struct{}, value string) bool {
	if set == nil {
		return true
	}
	_, ok := set[value]
	return ok
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// FilterOptions lists the selectable values of each dimension and the dated span of a
// record set.
type FilterOptions struct {
	Platforms  []string  `json:"platforms"`
	Sentiments []string  `json:"sentiments"`
	MediaTypes []string  `json:"media_types"`
	Locations  []string  `json:"locations"`
	MinDate    time.Time `json:"min_date"`
	MaxDate    time.Time `json:"max_date"`
	Undated    int       `json:"undated"`
}

// Options collects sorted distinct dimension values and the first/last dated day.
func Options(records []Record) FilterOptions {
	platforms := make(map[string]struct{})
	sentiments := make(map[string]struct{})
	mediaTypes := make(map[string]struct{})
	locations := make(map[string]struct{})

	var opts FilterOptions
	for _, rec := range records {
		platforms[rec.Platform] = struct{}{}
		sentiments[rec.Sentiment] = struct{}{}
		mediaTypes[rec.MediaType] = struct{}{}
		locations[rec.Location] = struct{}{}

		if !rec.HasTimestamp() {
			opts.Undated++
			continue
		}
		day := rec.Day()
		if opts.MinDate.IsZero() || day.Before(opts.MinDate) {
			opts.MinDate = day
		}
		if day.After(opts.MaxDate) {
			opts.MaxDate = day
		}
	}

	opts.Platforms = sortedKeys(platforms)
	opts.Sentiments = sortedKeys(sentiments)
	opts.MediaTypes = sortedKeys(mediaTypes)
	opts.Locations = sortedKeys(locations)
	return opts
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
