// Package export writes flattened records as CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
)

// ValueColumn holds records that are not JSON objects.
const ValueColumn = "value"

type row struct {
	fields map[string]json.RawMessage
	scalar json.RawMessage
}

// WriteCSV writes one row per record under a header of the sorted union of
// top-level keys. String values are written as-is, null as an empty cell
// and everything else as compact JSON. It returns the number of data rows.
func WriteCSV(w io.Writer, records []batch.Record) (int, error) {
	rows, columns, err := parse(records)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	line := make([]string, len(columns))
	for i, r := range rows {
		for c, col := range columns {
			raw := r.fields[col]
			if r.fields == nil && col == ValueColumn {
				raw = r.scalar
			}
			cell, err := cellText(raw)
			if err != nil {
				return i, fmt.Errorf("record %d column %s: %w", i, col, err)
			}
			line[c] = cell
		}
		if err := cw.Write(line); err != nil {
			return i, fmt.Errorf("write record %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return len(rows), fmt.Errorf("flush csv: %w", err)
	}
	return len(rows), nil
}

// Columns returns the header WriteCSV would write for records.
func Columns(records []batch.Record) ([]string, error) {
	_, columns, err := parse(records)
	return columns, err
}

func parse(records []batch.Record) ([]row, []string, error) {
	rows := make([]row, len(records))
	seen := make(map[string]bool)
	for i, rec := range records {
		trimmed := bytes.TrimSpace(rec)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(trimmed, &fields); err != nil {
				return nil, nil, fmt.Errorf("record %d: %w", i, err)
			}
			rows[i].fields = fields
			for k := range fields {
				seen[k] = true
			}
			continue
		}
		rows[i].scalar = trimmed
		seen[ValueColumn] = true
	}

	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return rows, columns, nil
}

func cellText(raw json.RawMessage) (string, error) {
	if batch.IsNull(raw) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}
