package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/asdfghjkxd/NFTScraper/internal/testutil"
	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
	"github.com/rs/zerolog"
)

// newTestDispatcher creates a dispatcher with logging disabled.
func newTestDispatcher(t *testing.T, cfg Config) *Dispatcher {
	t.Helper()

	d, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create dispatcher: %v", err)
	}
	d.SetLogger(zerolog.Nop())
	return d
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "zero config takes defaults",
			config: Config{},
		},
		{
			name:   "explicit config",
			config: Config{Concurrency: 5, PerCallTimeout: time.Second, PoolSize: 2},
		},
		{
			name:        "negative concurrency",
			config:      Config{Concurrency: -1},
			expectError: true,
			errorMsg:    "concurrency must be > 0 (got -1)",
		},
		{
			name:        "negative timeout",
			config:      Config{PerCallTimeout: -time.Second},
			expectError: true,
			errorMsg:    "per_call_timeout must be > 0 (got -1s)",
		},
		{
			name:        "negative pool size",
			config:      Config{PoolSize: -2},
			expectError: true,
			errorMsg:    "pool_size must be > 0 (got -2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			cfg := d.Config()
			if cfg.Concurrency <= 0 || cfg.PerCallTimeout <= 0 || cfg.PoolSize <= 0 {
				t.Errorf("Effective config not defaulted: %+v", cfg)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Concurrency != 100 {
		t.Errorf("Concurrency = %d, want 100", cfg.Concurrency)
	}
	if cfg.PerCallTimeout != 15*time.Second {
		t.Errorf("PerCallTimeout = %v, want 15s", cfg.PerCallTimeout)
	}
	if cfg.PoolSize == cfg.Concurrency {
		t.Error("PoolSize should be configured independently of Concurrency")
	}
	if cfg.APIKeyHeader != "X-API-KEY" {
		t.Errorf("APIKeyHeader = %q, want X-API-KEY", cfg.APIKeyHeader)
	}
}

func TestDispatch_LengthPreserved(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	d := newTestDispatcher(t, Config{Concurrency: 3, PerCallTimeout: 2 * time.Second})

	for _, k := range []int{0, 1, 7, 25} {
		t.Run(strconv.Itoa(k), func(t *testing.T) {
			b := make(batch.Batch, k)
			for i := range b {
				b[i] = fmt.Sprintf("%s/page?i=%d", mock.URL(), i)
			}

			results := d.Dispatch(context.Background(), b)
			if len(results) != k {
				t.Fatalf("len(results) = %d, want %d", len(results), k)
			}
			for i, r := range results {
				if r.Index != i || r.URL != b[i] {
					t.Errorf("results[%d] = {Index: %d, URL: %q}, want {%d, %q}", i, r.Index, r.URL, i, b[i])
				}
			}
		})
	}
}

func TestDispatch_FaultIsolation(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	b := batch.Batch{
		mock.URL() + "/assets?offset=0",
		mock.URL() + "/assets?offset=50",
		testutil.RefusedURL(t),
		mock.URL() + "/assets?offset=150",
		mock.URL() + "/assets?offset=200",
	}

	d := newTestDispatcher(t, Config{Concurrency: 5, PerCallTimeout: 2 * time.Second})
	results := d.Dispatch(context.Background(), b)
	pages := Pages(results)

	if len(pages) != 5 {
		t.Fatalf("len(pages) = %d, want 5", len(pages))
	}
	if pages[2] != nil {
		t.Errorf("pages[2] = %s, want nil", pages[2])
	}
	if results[2].Class() != FailureNetwork {
		t.Errorf("results[2].Class() = %q, want %q", results[2].Class(), FailureNetwork)
	}

	for _, i := range []int{0, 1, 3, 4} {
		want := fmt.Sprintf(`{"path":"/assets","query":"offset=%d"}`, i*50)
		if got := string(pages[i]); got != want+"\n" {
			t.Errorf("pages[%d] = %q, want %q", i, got, want)
		}
	}
}

func TestDispatch_ConcurrencyBound(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	mock.SetResponse("/slow", testutil.NewSlowResponse(20*time.Millisecond, `{"ok":true}`))

	b := make(batch.Batch, 50)
	for i := range b {
		b[i] = fmt.Sprintf("%s/slow?i=%d", mock.URL(), i)
	}

	d := newTestDispatcher(t, Config{Concurrency: 5, PerCallTimeout: 10 * time.Second})
	results := d.Dispatch(context.Background(), b)

	if s := Summarize(results); s.Succeeded != 50 {
		t.Fatalf("Succeeded = %d, want 50 (summary %+v)", s.Succeeded, s)
	}
	if peak := mock.PeakInFlight(); peak > 5 {
		t.Errorf("Peak in-flight requests = %d, want <= 5", peak)
	}
	if mock.RequestCount() != 50 {
		t.Errorf("RequestCount = %d, want 50", mock.RequestCount())
	}
}

func TestDispatch_TimeoutIsolation(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	const timeout = 200 * time.Millisecond
	mock.SetResponse("/stuck", testutil.NewSlowResponse(10*timeout, `{"late":true}`))

	b := batch.Batch{
		mock.URL() + "/fast?i=0",
		mock.URL() + "/stuck",
		mock.URL() + "/fast?i=2",
	}

	d := newTestDispatcher(t, Config{Concurrency: 3, PerCallTimeout: timeout})

	start := time.Now()
	results := d.Dispatch(context.Background(), b)
	elapsed := time.Since(start)

	if elapsed > timeout+time.Second {
		t.Errorf("Dispatch took %v, want bounded by %v plus epsilon", elapsed, timeout)
	}
	if results[1].OK() {
		t.Fatal("Stuck URL should resolve to a null page")
	}
	if c := results[1].Class(); c != FailureTimeout && c != FailureAdmission {
		t.Errorf("results[1].Class() = %q, want timeout", c)
	}
	if !results[0].OK() {
		t.Errorf("results[0] failed: %v", results[0].Err)
	}
}

func TestDispatch_NoHeadOfLineBlocking(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	const timeout = 300 * time.Millisecond
	mock.SetResponse("/stuck", testutil.NewSlowResponse(10*timeout, `{}`))

	b := batch.Batch{mock.URL() + "/stuck"}
	for i := 0; i < 10; i++ {
		b = append(b, fmt.Sprintf("%s/fast?i=%d", mock.URL(), i))
	}

	d := newTestDispatcher(t, Config{Concurrency: 4, PerCallTimeout: timeout})
	results := d.Dispatch(context.Background(), b)

	for i := 1; i < len(results); i++ {
		if !results[i].OK() {
			t.Errorf("results[%d] failed behind the stuck call: %v", i, results[i].Err)
		}
	}
	if results[0].OK() {
		t.Error("Stuck call should have timed out")
	}
}

func TestDispatch_OrderIndependentOfCompletion(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	mock.SetHandler("/delayed", func(w http.ResponseWriter, r *http.Request) {
		ms, _ := strconv.Atoi(r.URL.Query().Get("ms"))
		time.Sleep(time.Duration(ms) * time.Millisecond)
		fmt.Fprintf(w, `{"ms":%d}`, ms)
	})

	// Earlier URLs finish later.
	b := batch.Batch{}
	for _, ms := range []int{120, 90, 60, 30, 0} {
		b = append(b, fmt.Sprintf("%s/delayed?ms=%d", mock.URL(), ms))
	}

	d := newTestDispatcher(t, Config{Concurrency: 5, PerCallTimeout: 5 * time.Second})
	pages := d.DispatchPages(context.Background(), b)

	for i, ms := range []int{120, 90, 60, 30, 0} {
		if want := fmt.Sprintf(`{"ms":%d}`, ms); string(pages[i]) != want {
			t.Errorf("pages[%d] = %s, want %s", i, pages[i], want)
		}
	}
}

func TestDispatch_DecodeAndStatusHandling(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	mock.SetResponse("/html", testutil.NewHTMLResponse())
	mock.SetResponse("/notfound", testutil.MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"detail":"not found"}`,
	})
	mock.SetResponse("/empty", testutil.MockResponse{StatusCode: http.StatusOK})

	b := batch.Batch{mock.URL() + "/html", mock.URL() + "/notfound", mock.URL() + "/empty"}
	d := newTestDispatcher(t, Config{Concurrency: 2, PerCallTimeout: 2 * time.Second})
	results := d.Dispatch(context.Background(), b)

	if results[0].OK() || results[0].Class() != FailureDecode {
		t.Errorf("HTML body: OK=%v class=%q, want decode failure", results[0].OK(), results[0].Class())
	}
	if !results[1].OK() || results[1].StatusCode != http.StatusNotFound {
		t.Errorf("JSON 404 body: OK=%v status=%d, want page with status 404", results[1].OK(), results[1].StatusCode)
	}
	if results[2].OK() || results[2].Class() != FailureDecode {
		t.Errorf("Empty body: OK=%v class=%q, want decode failure", results[2].OK(), results[2].Class())
	}

	s := Summarize(results)
	if s.Failed != 2 || s.ByClass[FailureDecode] != 2 {
		t.Errorf("Summary = %+v, want 2 decode failures", s)
	}
}

func TestDispatch_BodyTooLarge(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	mock.SetResponse("/big", testutil.MockResponse{Body: `{"padding":"0123456789abcdef"}`})

	d := newTestDispatcher(t, Config{Concurrency: 1, PerCallTimeout: time.Second, MaxBodyBytes: 8})
	results := d.Dispatch(context.Background(), batch.Batch{mock.URL() + "/big"})

	if results[0].OK() || results[0].Class() != FailureDecode {
		t.Errorf("Oversized body: OK=%v class=%q, want decode failure", results[0].OK(), results[0].Class())
	}
}

func TestDispatch_ForwardsHeaders(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	d := newTestDispatcher(t, Config{
		Concurrency: 1,
		UserAgent:   "TestApp/1.0.0",
		APIKey:      "secret-key",
	})
	d.Dispatch(context.Background(), batch.Batch{mock.URL() + "/assets"})

	h := mock.LastRequestHeader()
	if got := h.Get("X-API-KEY"); got != "secret-key" {
		t.Errorf("X-API-KEY = %q, want secret-key", got)
	}
	if got := h.Get("User-Agent"); got != "TestApp/1.0.0" {
		t.Errorf("User-Agent = %q, want TestApp/1.0.0", got)
	}
}

func TestDispatch_NoAPIKeyHeaderWhenEmpty(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	d := newTestDispatcher(t, Config{Concurrency: 1})
	d.Dispatch(context.Background(), batch.Batch{mock.URL() + "/assets"})

	if _, ok := mock.LastRequestHeader()["X-Api-Key"]; ok {
		t.Error("X-API-KEY header should not be sent without a key")
	}
}

func TestDispatch_Deterministic(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	b := batch.Batch{}
	for i := 0; i < 20; i++ {
		b = append(b, fmt.Sprintf("%s/events?offset=%d", mock.URL(), i*50))
	}

	d := newTestDispatcher(t, Config{Concurrency: 7, PerCallTimeout: 2 * time.Second})
	first := d.DispatchPages(context.Background(), b)
	second := d.DispatchPages(context.Background(), b)

	for i := range first {
		if string(first[i]) != string(second[i]) {
			t.Errorf("Run mismatch at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestDispatch_ParentContextCancelled(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDispatcher(t, Config{Concurrency: 2})
	results := d.Dispatch(ctx, batch.Batch{mock.URL() + "/a", mock.URL() + "/b"})

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for i, r := range results {
		if r.OK() {
			t.Errorf("results[%d] succeeded with a cancelled context", i)
		}
	}
}
