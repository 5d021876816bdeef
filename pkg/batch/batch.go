// Package batch defines the data contracts shared by the fetch pipeline:
// the ordered URL batch handed to the dispatcher, the raw JSON pages it
// returns, and the page key used to flatten them.
package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
)

// Batch is an ordered list of fully-formed request URLs processed in one run.
// Order is meaningful and preserved end to end; duplicates are allowed.
type Batch []string

// Page is one decoded JSON response body. A nil Page (or the literal JSON
// null) marks a failed or empty call at that position.
type Page = json.RawMessage

// PageKey is the field under which a marketplace nests its record array.
// The empty key means each page is itself a single record.
type PageKey string

// Record is one flattened domain record (an asset, an event, ...).
type Record = json.RawMessage

// Validate checks that every entry is an absolute http(s) URL.
func (b Batch) Validate() error {
	for i, raw := range b {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("batch[%d]: %w", i, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("batch[%d]: unsupported scheme %q", i, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("batch[%d]: missing host", i)
		}
	}
	return nil
}

var nullLiteral = []byte("null")

// IsNull reports whether p is the failure marker.
func IsNull(p Page) bool {
	trimmed := bytes.TrimSpace(p)
	return len(trimmed) == 0 || bytes.Equal(trimmed, nullLiteral)
}

// CountNull returns how many pages are failure markers.
func CountNull(pages []Page) int {
	n := 0
	for _, p := range pages {
		if IsNull(p) {
			n++
		}
	}
	return n
}
