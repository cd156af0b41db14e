package campaign

import (
	"io"
	"strings"
)

// Compute filters records and aggregates the result into a fresh Snapshot.
func Compute(records []Record, criteria Criteria, opts ...Option) Snapshot {
	return Aggregate(Filter(records, criteria), opts...)
}

// Highlights are the headline facts of a snapshot used to brief the text generator.
type Highlights struct {
	DominantSentiment string   `json:"dominant_sentiment"`
	TopPlatform       string   `json:"top_platform"`
	TopMediaType      string   `json:"top_media_type"`
	TopLocations      []string `json:"top_locations"`
	PeakDate          string   `json:"peak_date"`
}

// Unknown fills highlight slots that an empty view cannot answer.
const Unknown = "Unknown"

// Highlight derives the dominant sentiment, top platform, top media type, top two locations
// and peak-engagement date. Equal peaks resolve to the earliest date.
func Highlight(s Snapshot) Highlights {
	h := Highlights{
		DominantSentiment: firstLabel(s.SentimentCounts),
		TopPlatform:       firstLabel(s.PlatformEngagements),
		TopMediaType:      firstLabel(s.MediaTypeCounts),
		PeakDate:          Unknown,
	}

	for i, p := range s.LocationEngagements {
		if i == 2 {
			break
		}
		h.TopLocations = append(h.TopLocations, p.Label)
	}
	if len(h.TopLocations) == 0 {
		h.TopLocations = []string{Unknown}
	}

	var peak int64 = -1
	for _, p := range s.EngagementTrend {
		if p.Value > peak {
			peak = p.Value
			h.PeakDate = p.Label
		}
	}
	return h
}

// Lines renders highlights as bullet lines for prompts and reports.
func (h Highlights) Lines() []string {
	return []string{
		"Most dominant sentiment: " + h.DominantSentiment,
		"Platform with the highest engagement: " + h.TopPlatform,
		"Most used media type: " + h.TopMediaType,
		"Locations with the highest engagement: " + strings.Join(h.TopLocations, ", "),
		"Peak engagement date: " + h.PeakDate,
	}
}

func firstLabel(pairs []Pair) string {
	if len(pairs) == 0 {
		return Unknown
	}
	return pairs[0].Label
}

// Load reads a CSV table from r and normalizes it in the given mode.
func Load(r io.Reader, mode Mode) ([]Record, NormalizeReport, error) {
	table, err := ReadTable(r)
	if err != nil {
		return nil, NormalizeReport{Mode: mode}, err
	}
	return Normalize(table, mode)
}
