// Package marketplace turns typed marketplace queries into URL batches and
// the page key their responses nest records under.
package marketplace

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
)

// Query is a marketplace request that expands into one or more pages.
type Query interface {
	Build() (batch.Batch, batch.PageKey, error)
}

// ValidationError reports a query field outside its accepted values.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

func (d Direction) validate(field string) error {
	switch d {
	case "", Ascending, Descending:
		return nil
	}
	return &ValidationError{Field: field, Value: d, Reason: "must be asc or desc"}
}

// maxGetAllPages is the number of offset pages a GetAll query expands into.
const maxGetAllPages = 200

// getAllLimit is the page size used by GetAll queries.
const getAllLimit = 50

func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &ValidationError{Field: field, Value: v, Reason: fmt.Sprintf("must be within %d..%d", lo, hi)}
	}
	return nil
}

func oneOf[T comparable](field string, v T, allowed ...T) error {
	var zero T
	if v == zero {
		return nil
	}
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return &ValidationError{Field: field, Value: v, Reason: fmt.Sprintf("must be one of %v", allowed)}
}

// encodeURL joins base and params. url.Values.Encode sorts by key, so the
// same query always yields the same URL.
func encodeURL(base string, params url.Values) string {
	if len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}

func setString(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

func setInt(params url.Values, key string, value int) {
	if value != 0 {
		params.Set(key, strconv.Itoa(value))
	}
}

func setBool(params url.Values, key string, value bool) {
	if value {
		params.Set(key, "true")
	}
}

// offsetPages expands an offset/limit query. With getAll the query becomes
// maxGetAllPages pages of getAllLimit each starting at offset zero;
// otherwise a single page at the given offset and limit.
func offsetPages(base string, params url.Values, offset, limit int, getAll bool) batch.Batch {
	if !getAll {
		p := cloneValues(params)
		setInt(p, "limit", limit)
		p.Set("offset", strconv.Itoa(offset))
		return batch.Batch{encodeURL(base, p)}
	}

	b := make(batch.Batch, 0, maxGetAllPages)
	for i := 0; i < maxGetAllPages; i++ {
		p := cloneValues(params)
		p.Set("limit", strconv.Itoa(getAllLimit))
		p.Set("offset", strconv.Itoa(i*getAllLimit))
		b = append(b, encodeURL(base, p))
	}
	return b
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// pathSegment escapes a required path parameter.
func pathSegment(field, v string) (string, error) {
	if v == "" {
		return "", &ValidationError{Field: field, Value: v, Reason: "must not be empty"}
	}
	return url.PathEscape(v), nil
}

// singlePages builds one URL per id under base/prefix. Each response is a
// single record.
func singlePages(field, base, prefix string, ids []string) (batch.Batch, batch.PageKey, error) {
	if len(ids) == 0 {
		return nil, "", &ValidationError{Field: field, Value: ids, Reason: "at least one is required"}
	}
	b := make(batch.Batch, 0, len(ids))
	for _, id := range ids {
		seg, err := pathSegment(field, id)
		if err != nil {
			return nil, "", err
		}
		b = append(b, base+prefix+seg)
	}
	return b, "", nil
}
