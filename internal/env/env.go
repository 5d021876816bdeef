// Package env overlays NFTSCRAPER_* environment variables onto config
// fields. A variable that is set but unparseable is an error rather than a
// silent default.
package env

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Prefix is prepended to every key a Reader looks up.
const Prefix = "NFTSCRAPER_"

// Key returns the variable name for suffix, e.g. Key("REDIS_DB") is
// "NFTSCRAPER_REDIS_DB".
func Key(suffix string) string {
	return Prefix + suffix
}

// ParseError reports a variable whose value does not parse as its field's
// type.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Reader overrides fields from prefixed variables. Unset variables leave the
// field untouched. The first parse failure sticks and turns later calls into
// no-ops, so a caller reads a whole section and checks Err once.
type Reader struct {
	lookup func(string) (string, bool)
	err    error
}

// NewReader returns a Reader over the process environment.
func NewReader() *Reader {
	return &Reader{lookup: os.LookupEnv}
}

// Err returns the first parse failure, if any.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) value(suffix string) (string, string, bool) {
	if r.err != nil {
		return "", "", false
	}
	key := Key(suffix)
	v, ok := r.lookup(key)
	return key, v, ok
}

// String sets dst to the variable's value when it is set, even if empty.
func (r *Reader) String(dst *string, suffix string) {
	if _, v, ok := r.value(suffix); ok {
		*dst = v
	}
}

func (r *Reader) Bool(dst *bool, suffix string) {
	key, v, ok := r.value(suffix)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.err = &ParseError{Key: key, Err: err}
		return
	}
	*dst = b
}

func (r *Reader) Int(dst *int, suffix string) {
	key, v, ok := r.value(suffix)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.err = &ParseError{Key: key, Err: err}
		return
	}
	*dst = i
}

func (r *Reader) Int64(dst *int64, suffix string) {
	key, v, ok := r.value(suffix)
	if !ok {
		return
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.err = &ParseError{Key: key, Err: err}
		return
	}
	*dst = i
}

// Duration accepts time.ParseDuration syntax, e.g. "250ms" or "2s".
func (r *Reader) Duration(dst *time.Duration, suffix string) {
	key, v, ok := r.value(suffix)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.err = &ParseError{Key: key, Err: err}
		return
	}
	*dst = d
}
