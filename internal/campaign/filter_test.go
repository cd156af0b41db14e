package campaign

import (
	"reflect"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func scenarioRecords() []Record {
	return []Record{
		{Timestamp: day(2024, 1, 1), Engagements: 10, Platform: "FB", Sentiment: "Positive", MediaType: "Video", Location: "Jakarta"},
		{Timestamp: day(2024, 1, 1), Engagements: 5, Platform: "IG", Sentiment: "Negative", MediaType: "Photo", Location: "Bandung"},
		{Timestamp: day(2024, 1, 2), Engagements: 7, Platform: "FB", Sentiment: "Positive", MediaType: "Video", Location: "Jakarta"},
	}
}

func TestFilterScenario(t *testing.T) {
	records := scenarioRecords()
	got := Filter(records, Criteria{
		Start:     day(2024, 1, 1),
		End:       day(2024, 1, 2),
		Platforms: []string{"FB"},
	})
	want := []Record{records[0], records[2]}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected filter result %+v", got)
	}
}

func TestFilterIdentity(t *testing.T) {
	records := scenarioRecords()
	records = append(records, Record{Engagements: 3, Platform: "X", Sentiment: "Neutral", MediaType: "Text", Location: "Medan"})

	got := Filter(records, Criteria{})
	if !reflect.DeepEqual(got, records) {
		t.Fatalf("empty criteria must return input unchanged, got %+v", got)
	}
}

func TestFilterEndDayInclusive(t *testing.T) {
	records := []Record{
		{Timestamp: time.Date(2024, 1, 2, 23, 59, 59, 0, time.UTC), Platform: "FB"},
		{Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Platform: "FB"},
		{Timestamp: time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), Platform: "FB"},
	}
	got := Filter(records, Criteria{Start: day(2024, 1, 1), End: day(2024, 1, 2)})
	if len(got) != 1 || got[0].Timestamp.Day() != 2 {
		t.Fatalf("expected only the late 2024-01-02 record, got %+v", got)
	}
}

func TestFilterUndatedRecords(t *testing.T) {
	records := []Record{
		{Timestamp: day(2024, 1, 1), Platform: "FB"},
		{Platform: "FB"},
	}

	if got := Filter(records, Criteria{Platforms: []string{"FB"}}); len(got) != 2 {
		t.Errorf("undated record should match when no date bound is set, got %d", len(got))
	}
	if got := Filter(records, Criteria{Start: day(2020, 1, 1)}); len(got) != 1 || !got[0].HasTimestamp() {
		t.Errorf("undated record should be excluded under a date bound, got %+v", got)
	}
}

func TestFilterUnknownSelectionMatchesNothing(t *testing.T) {
	got := Filter(scenarioRecords(), Criteria{Locations: []string{"Atlantis"}})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}

func TestFilterIsDeterministic(t *testing.T) {
	records := scenarioRecords()
	c := Criteria{Sentiments: []string{"Positive", "Negative"}, MediaTypes: []string{"Video"}}
	first := Filter(records, c)
	for i := 0; i < 5; i++ {
		if !reflect.DeepEqual(first, Filter(records, c)) {
			t.Fatalf("filter output changed between runs")
		}
	}
}

func TestOptions(t *testing.T) {
	records := append(scenarioRecords(), Record{Platform: "TikTok", Sentiment: "Neutral", MediaType: "Video", Location: "Bali"})
	opts := Options(records)

	if !reflect.DeepEqual(opts.Platforms, []string{"FB", "IG", "TikTok"}) {
		t.Errorf("unexpected platforms %v", opts.Platforms)
	}
	if !reflect.DeepEqual(opts.Locations, []string{"Bali", "Bandung", "Jakarta"}) {
		t.Errorf("unexpected locations %v", opts.Locations)
	}
	if !opts.MinDate.Equal(day(2024, 1, 1)) || !opts.MaxDate.Equal(day(2024, 1, 2)) {
		t.Errorf("unexpected date span %v - %v", opts.MinDate, opts.MaxDate)
	}
	if opts.Undated != 1 {
		t.Errorf("expected 1 undated record, got %d", opts.Undated)
	}
}
