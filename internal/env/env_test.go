package env

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if got := Key("REDIS_DB"); got != "NFTSCRAPER_REDIS_DB" {
		t.Errorf("Key() = %q, want NFTSCRAPER_REDIS_DB", got)
	}
}

func TestReader_Overrides(t *testing.T) {
	t.Setenv("NFTSCRAPER_TRANSPORT", "redis")
	t.Setenv("NFTSCRAPER_LOG_PRETTY", "true")
	t.Setenv("NFTSCRAPER_CONCURRENCY", "16")
	t.Setenv("NFTSCRAPER_MAX_BODY_BYTES", "33554432")
	t.Setenv("NFTSCRAPER_POLL_INTERVAL", "250ms")

	var (
		transport = "file"
		pretty    bool
		workers   = 4
		maxBody   int64
		poll      = time.Second
	)

	r := NewReader()
	r.String(&transport, "TRANSPORT")
	r.Bool(&pretty, "LOG_PRETTY")
	r.Int(&workers, "CONCURRENCY")
	r.Int64(&maxBody, "MAX_BODY_BYTES")
	r.Duration(&poll, "POLL_INTERVAL")

	if err := r.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if transport != "redis" || !pretty || workers != 16 || maxBody != 32<<20 || poll != 250*time.Millisecond {
		t.Errorf("got transport=%q pretty=%v workers=%d maxBody=%d poll=%v", transport, pretty, workers, maxBody, poll)
	}
}

func TestReader_UnsetKeepsValue(t *testing.T) {
	var (
		addr    = "localhost:6379"
		db      = 2
		timeout = 5 * time.Second
	)

	r := NewReader()
	r.String(&addr, "TEST_UNSET_ADDR")
	r.Int(&db, "TEST_UNSET_DB")
	r.Duration(&timeout, "TEST_UNSET_TIMEOUT")

	if r.Err() != nil || addr != "localhost:6379" || db != 2 || timeout != 5*time.Second {
		t.Errorf("got addr=%q db=%d timeout=%v err=%v", addr, db, timeout, r.Err())
	}
}

func TestReader_EmptyStringOverrides(t *testing.T) {
	t.Setenv("NFTSCRAPER_METRICS_ADDR", "")

	addr := ":9090"
	r := NewReader()
	r.String(&addr, "METRICS_ADDR")

	if addr != "" {
		t.Errorf("addr = %q, want empty", addr)
	}
}

func TestReader_ParseErrorNamesKey(t *testing.T) {
	tests := []struct {
		name    string
		read    func(r *Reader)
		wantKey string
	}{
		{name: "bool", read: func(r *Reader) { r.Bool(new(bool), "LOG_PRETTY") }, wantKey: "NFTSCRAPER_LOG_PRETTY"},
		{name: "int", read: func(r *Reader) { r.Int(new(int), "POOL_SIZE") }, wantKey: "NFTSCRAPER_POOL_SIZE"},
		{name: "int64", read: func(r *Reader) { r.Int64(new(int64), "MAX_BODY_BYTES") }, wantKey: "NFTSCRAPER_MAX_BODY_BYTES"},
		{name: "duration", read: func(r *Reader) { r.Duration(new(time.Duration), "POLL_INTERVAL") }, wantKey: "NFTSCRAPER_POLL_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.wantKey, "lots")

			r := NewReader()
			tt.read(r)

			var perr *ParseError
			if !errors.As(r.Err(), &perr) {
				t.Fatalf("Err() = %v, want *ParseError", r.Err())
			}
			if perr.Key != tt.wantKey {
				t.Errorf("Key = %q, want %q", perr.Key, tt.wantKey)
			}
		})
	}
}

func TestReader_FirstErrorSticks(t *testing.T) {
	t.Setenv("NFTSCRAPER_CONCURRENCY", "many")
	t.Setenv("NFTSCRAPER_REDIS_DB", "3")

	workers, db := 4, 0
	r := NewReader()
	r.Int(&workers, "CONCURRENCY")
	r.Int(&db, "REDIS_DB")

	if workers != 4 {
		t.Errorf("workers = %d, want untouched 4", workers)
	}
	if db != 0 {
		t.Errorf("db = %d, reads after a failure should be skipped", db)
	}
	if !errors.Is(r.Err(), strconv.ErrSyntax) {
		t.Errorf("Err() = %v, want wrapped strconv.ErrSyntax", r.Err())
	}
}
