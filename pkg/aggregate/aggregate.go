// Package aggregate flattens the ordered pages of a dispatch run into one
// record list. It performs no I/O.
package aggregate

import (
	"encoding/json"
	"fmt"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
)

// KeyMissingError reports non-null pages that did not carry the page key
// as an array. It is only returned by FlattenStrict.
type KeyMissingError struct {
	Key     batch.PageKey
	Indexes []int
}

// Error implements the error interface.
func (e *KeyMissingError) Error() string {
	return fmt.Sprintf("%d page(s) missing key %q: indexes %v", len(e.Indexes), e.Key, e.Indexes)
}

// Skipped returns how many pages were skipped for lacking the key.
func (e *KeyMissingError) Skipped() int {
	return len(e.Indexes)
}

// Stats describes what a flatten pass consumed.
type Stats struct {
	Pages      int
	NullPages  int
	MissingKey []int
	Records    int
}

// Flatten appends, in page order, every element of each page's key array.
// Null pages and pages without the key contribute nothing. An empty key
// treats every non-null page as a single record.
func Flatten(pages []batch.Page, key batch.PageKey) []batch.Record {
	records, _ := flatten(pages, key)
	return records
}

// FlattenStrict behaves like Flatten but also returns a *KeyMissingError
// when any non-null page lacked the key. The records are returned either way.
func FlattenStrict(pages []batch.Page, key batch.PageKey) ([]batch.Record, error) {
	records, stats := flatten(pages, key)
	if len(stats.MissingKey) > 0 {
		return records, &KeyMissingError{Key: key, Indexes: stats.MissingKey}
	}
	return records, nil
}

// FlattenWithStats returns the records together with per-pass counts.
func FlattenWithStats(pages []batch.Page, key batch.PageKey) ([]batch.Record, Stats) {
	return flatten(pages, key)
}

func flatten(pages []batch.Page, key batch.PageKey) ([]batch.Record, Stats) {
	records := []batch.Record{}
	stats := Stats{Pages: len(pages)}

	for i, page := range pages {
		if batch.IsNull(page) {
			stats.NullPages++
			continue
		}

		if key == "" {
			records = append(records, batch.Record(page))
			continue
		}

		items, ok := extract(page, string(key))
		if !ok {
			stats.MissingKey = append(stats.MissingKey, i)
			continue
		}
		records = append(records, items...)
	}

	stats.Records = len(records)
	return records, stats
}

// extract returns the array stored under key, or false if the page is not
// an object, lacks the key, or the value is not an array.
func extract(page batch.Page, key string) ([]batch.Record, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(page, &obj); err != nil {
		return nil, false
	}

	raw, ok := obj[key]
	if !ok {
		return nil, false
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}

	out := make([]batch.Record, len(items))
	for i, item := range items {
		out[i] = batch.Record(item)
	}
	return out, true
}
