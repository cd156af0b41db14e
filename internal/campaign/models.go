package campaign

import "time"

// Record represents one normalized campaign mention.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	Engagements int64     `json:"engagements"`
	Platform    string    `json:"platform"`
	Sentiment   string    `json:"sentiment"`
	MediaType   string    `json:"media_type"`
	Location    string    `json:"location"`
	Headline    string    `json:"headline,omitempty"`
}

// HasTimestamp reports whether the record carries a resolvable date.
func (r Record) HasTimestamp() bool { return !r.Timestamp.IsZero() }

// Day returns the record timestamp truncated to its UTC calendar day.
func (r Record) Day() time.Time {
	return startOfDay(r.Timestamp)
}

// Criteria selects which records are in scope. Zero Start/End leave that side of the
// range open; empty selection sets leave the dimension unrestricted.
type Criteria struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Platforms  []string  `json:"platforms"`
	Sentiments []string  `json:"sentiments"`
	MediaTypes []string  `json:"media_types"`
	Locations  []string  `json:"locations"`
}

// HasDateBound reports whether either end of the date range is constrained.
func (c Criteria) HasDateBound() bool {
	return !c.Start.IsZero() || !c.End.IsZero()
}

// IsEmpty returns true when the criteria match every record.
func (c Criteria) IsEmpty() bool {
	return !c.HasDateBound() &&
		len(c.Platforms) == 0 &&
		len(c.Sentiments) == 0 &&
		len(c.MediaTypes) == 0 &&
		len(c.Locations) == 0
}

// Pair is a single (label, value) point of an aggregated view.
type Pair struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// Chart keys naming the five views of a Snapshot.
const (
	ChartSentiment = "sentiment_counts"
	ChartTrend     = "engagement_trend"
	ChartPlatform  = "platform_engagements"
	ChartMediaType = "media_type_counts"
	ChartLocation  = "location_engagements"
)

// ChartKeys lists the snapshot views in display order.
var ChartKeys = []string{ChartSentiment, ChartTrend, ChartPlatform, ChartMediaType, ChartLocation}

// Snapshot holds the five ordered metric views derived from a filtered record set.
type Snapshot struct {
	SentimentCounts     []Pair `json:"sentiment_counts"`
	EngagementTrend     []Pair `json:"engagement_trend"`
	PlatformEngagements []Pair `json:"platform_engagements"`
	MediaTypeCounts     []Pair `json:"media_type_counts"`
	LocationEngagements []Pair `json:"location_engagements"`
}

// View returns the view stored under chart key, or false for an unknown key.
func (s Snapshot) View(chart string) ([]Pair, bool) {
	switch chart {
	case ChartSentiment:
		return s.SentimentCounts, true
	case ChartTrend:
		return s.EngagementTrend, true
	case ChartPlatform:
		return s.PlatformEngagements, true
	case ChartMediaType:
		return s.MediaTypeCounts, true
	case ChartLocation:
		return s.LocationEngagements, true
	default:
		return nil, false
	}
}

// IsEmpty returns true when every view is empty.
func (s Snapshot) IsEmpty() bool {
	return len(s.SentimentCounts) == 0 &&
		len(s.EngagementTrend) == 0 &&
		len(s.PlatformEngagements) == 0 &&
		len(s.MediaTypeCounts) == 0 &&
		len(s.LocationEngagements) == 0
}

// ChartTitle returns a human-readable title for a chart key.
func ChartTitle(chart string) string {
	switch chart {
	case ChartSentiment:
		return "Sentiment Breakdown"
	case ChartTrend:
		return "Engagement Trend Over Time"
	case ChartPlatform:
		return "Engagements by Platform"
	case ChartMediaType:
		return "Media Type Mix"
	case ChartLocation:
		return "Top Locations by Engagement"
	default:
		return chart
	}
}

func startOfDay(ts time.Time) time.Time {
	if ts.IsZero() {
		return ts
	}
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
