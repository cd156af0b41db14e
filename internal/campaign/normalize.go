package campaign

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Mode controls how the normalizer treats rows with unparseable or missing values.
type Mode string

const (
	// ModeLenient keeps such rows, substituting defaults.
	ModeLenient Mode = "lenient"
	// ModeStrict drops such rows.
	ModeStrict Mode = "strict"
)

// ParseMode converts a textual mode into a Mode. An empty string selects lenient.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLenient:
		return ModeLenient, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("campaign: unknown normalize mode %q", s)
	}
}

// Sentinels substituted for missing categorical values in lenient mode.
const (
	UnknownPlatform  = "Unknown"
	UnknownLocation  = "Unknown"
	NeutralSentiment = "Neutral"
	OtherMediaType   = "Other"
)

// ParseError describes a row-level problem. It is never fatal to the batch: depending on
// the mode the value was substituted or the row dropped.
type ParseError struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Value   string `json:"value"`
	Reason  string `json:"reason"`
	Dropped bool   `json:"dropped"`
}

func (e *ParseError) Error() string {
	action := "substituted"
	if e.Dropped {
		action = "dropped"
	}
	return fmt.Sprintf("row %d: %s %q: %s (%s)", e.Row, e.Column, e.Value, e.Reason, action)
}

// SchemaError reports required columns absent from the table header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("campaign: missing required columns: %s", strings.Join(e.Missing, ", "))
}

// NormalizeReport summarises a normalization run.
type NormalizeReport struct {
	Mode        Mode          `json:"mode"`
	Total       int           `json:"total"`
	Kept        int           `json:"kept"`
	Dropped     int           `json:"dropped"`
	Substituted int           `json:"substituted"`
	Errors      []*ParseError `json:"errors,omitempty"`
}

// Normalize validates and cleans raw rows into Records. Output order follows input order.
// Row numbers in the report are 1-based and exclude the header.
func Normalize(table Table, mode Mode) ([]Record, NormalizeReport, error) {
	if mode == "" {
		mode = ModeLenient
	}
	if mode != ModeLenient && mode != ModeStrict {
		return nil, NormalizeReport{}, fmt.Errorf("campaign: unknown normalize mode %q", mode)
	}

	idx := columnIndex(table.Header)
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, NormalizeReport{}, &SchemaError{Missing: missing}
	}

	report := NormalizeReport{Mode: mode, Total: len(table.Rows)}
	records := make([]Record, 0, len(table.Rows))

	for i, row := range table.Rows {
		n := rowNormalizer{row: i + 1, mode: mode}

		rec := Record{
			Timestamp:   n.timestamp(cell(row, idx, ColumnDate)),
			Engagements: n.engagements(cell(row, idx, ColumnEngagements)),
			Platform:    n.category(ColumnPlatform, cell(row, idx, ColumnPlatform), UnknownPlatform),
			Sentiment:   n.category(ColumnSentiment, cell(row, idx, ColumnSentiment), NeutralSentiment),
			MediaType:   n.category(ColumnMediaType, cell(row, idx, ColumnMediaType), OtherMediaType),
			Location:    n.category(ColumnLocation, cell(row, idx, ColumnLocation), UnknownLocation),
			Headline:    cell(row, idx, ColumnHeadline),
		}

		report.Errors = append(report.Errors, n.errs...)
		if n.drop {
			report.Dropped++
			continue
		}
		report.Substituted += len(n.errs)
		records = append(records, rec)
	}

	report.Kept = len(records)
	return records, report, nil
}

type rowNormalizer struct {
	row  int
	mode Mode
	drop bool
	errs []*ParseError
}

func (n *rowNormalizer) fail(column, value, reason string) {
	dropped := n.mode == ModeStrict
	if dropped {
		n.drop = true
	}
	n.errs = append(n.errs, &ParseError{Row: n.row, Column: column, Value: value, Reason: reason, Dropped: dropped})
}

func (n *rowNormalizer) timestamp(raw string) time.Time {
	if raw == "" {
		n.fail(ColumnDate, raw, "missing date")
		return time.Time{}
	}
	ts, ok := parseTimestamp(raw)
	if !ok {
		n.fail(ColumnDate, raw, "unrecognised date format")
		return time.Time{}
	}
	return ts
}

func (n *rowNormalizer) engagements(raw string) int64 {
	if raw == "" {
		n.fail(ColumnEngagements, raw, "missing engagements")
		return 0
	}
	v, err := parseEngagements(raw)
	if err != nil {
		n.fail(ColumnEngagements, raw, err.Error())
		return 0
	}
	if v < 0 {
		n.fail(ColumnEngagements, raw, "negative engagements")
		return 0
	}
	return v
}

func (n *rowNormalizer) category(column, raw, sentinel string) string {
	if raw == "" {
		n.fail(column, raw, "missing value")
		return sentinel
	}
	return raw
}

var timestampLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
}

// parseTimestamp tries the known textual layouts in order. The wall clock of a zoned
// timestamp is kept and relabelled as UTC, so a record stays on the calendar day it was
// written with.
func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			y, m, d := ts.Date()
			return time.Date(y, m, d, ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC), true
		}
	}
	return time.Time{}, false
}

func parseEngagements(raw string) (int64, error) {
	clean := strings.ReplaceAll(raw, ",", "")
	clean = strings.ReplaceAll(clean, "_", "")
	if v, err := strconv.ParseInt(clean, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number")
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("out of range")
	}
	return int64(f), nil
}
