package campaign

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Canonical column names. The normalizer is the only code that sees raw header spellings.
const (
	ColumnDate        = "date"
	ColumnEngagements = "engagements"
	ColumnPlatform    = "platform"
	ColumnSentiment   = "sentiment"
	ColumnMediaType   = "media_type"
	ColumnLocation    = "location"
	ColumnHeadline    = "headline"
)

var requiredColumns = []string{
	ColumnDate,
	ColumnEngagements,
	ColumnPlatform,
	ColumnSentiment,
	ColumnMediaType,
	ColumnLocation,
}

// Table is a raw table with declared column names, as uploaded.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable reads a CSV document into a Table. Rows with a different number of fields than
// the header are kept; missing trailing cells read as empty.
func ReadTable(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, errors.New("campaign: empty table")
		}
		return Table{}, fmt.Errorf("campaign: read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("campaign: read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}

	return Table{Header: header, Rows: rows}, nil
}

// canonicalColumn maps a raw header to its canonical name. Both historical spellings of the
// media type column ("Media_Type" and "Media Type") resolve to media_type.
func canonicalColumn(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	switch key {
	case "media_type", "mediatype":
		return ColumnMediaType
	default:
		return key
	}
}

// columnIndex resolves canonical column names to their position in the header. The first
// occurrence wins when two spellings are present.
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := canonicalColumn(h)
		if key == "" {
			continue
		}
		if _, ok := idx[key]; ok {
			continue
		}
		idx[key] = i
	}
	return idx
}

func cell(row []string, idx map[string]int, column string) string {
	i, ok := idx[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
