package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/asdfghjkxd/NFTScraper/internal/testutil"
	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
	"github.com/asdfghjkxd/NFTScraper/pkg/dispatch"
)

// stubDispatcher answers every URL with {"url": <url>} except those in fail.
type stubDispatcher struct {
	fail map[string]bool
}

func (s stubDispatcher) DispatchPages(ctx context.Context, b batch.Batch) []batch.Page {
	pages := make([]batch.Page, len(b))
	for i, u := range b {
		if s.fail[u] {
			continue
		}
		pages[i], _ = json.Marshal(map[string]string{"url": u})
	}
	return pages
}

// serveAsync launches the worker side in a goroutine, as a separate
// process would.
func serveAsync(d PageDispatcher) Launcher {
	return LauncherFunc(func(ctx context.Context, files Files) error {
		go ServeFiles(context.Background(), files, d)
		return nil
	})
}

func fastPoll() PollConfig {
	return PollConfig{Interval: 10 * time.Millisecond, MaxPolls: 500}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("%s should not exist (stat err = %v)", path, err)
	}
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("%s should exist: %v", path, err)
	}
}

func TestNewFileExchanger_Validation(t *testing.T) {
	noop := LauncherFunc(func(context.Context, Files) error { return nil })

	if _, err := NewFileExchanger(Files{}, noop, PollConfig{}); err == nil {
		t.Error("expected error for empty files")
	}
	if _, err := NewFileExchanger(DefaultFiles(t.TempDir()), nil, PollConfig{}); err == nil {
		t.Error("expected error for nil launcher")
	}
	x, err := NewFileExchanger(DefaultFiles(t.TempDir()), noop, PollConfig{})
	if err != nil {
		t.Fatalf("NewFileExchanger() error = %v", err)
	}
	if x.poll != DefaultPollConfig() {
		t.Errorf("poll = %+v, want defaults", x.poll)
	}
}

func TestFileExchanger_RoundTrip(t *testing.T) {
	mock := testutil.NewMockMarketplace()
	defer mock.Close()

	d, err := dispatch.New(dispatch.Config{Concurrency: 2, PerCallTimeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	files := DefaultFiles(t.TempDir())
	x, err := NewFileExchanger(files, serveAsync(d), fastPoll())
	if err != nil {
		t.Fatal(err)
	}

	b := batch.Batch{
		mock.URL() + "/assets?offset=0",
		testutil.RefusedURL(t),
		mock.URL() + "/assets?offset=50",
	}

	pages, err := x.Exchange(context.Background(), b)
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if len(pages) != len(b) {
		t.Fatalf("len(pages) = %d, want %d", len(pages), len(b))
	}
	if pages[1] != nil {
		t.Errorf("pages[1] = %s, want nil for refused call", pages[1])
	}

	for _, i := range []int{0, 2} {
		var echo map[string]string
		if err := json.Unmarshal(pages[i], &echo); err != nil {
			t.Fatalf("pages[%d] not JSON: %v", i, err)
		}
		if echo["path"] != "/assets" {
			t.Errorf("pages[%d] path = %q", i, echo["path"])
		}
	}
	if pages[0] == nil || string(pages[0]) == string(pages[2]) {
		t.Error("pages[0] and pages[2] should hold distinct bodies")
	}

	assertMissing(t, files.BatchPath())
	assertMissing(t, files.ResultsPath())
}

func TestFileExchanger_EmptyBatch(t *testing.T) {
	files := DefaultFiles(t.TempDir())
	x, _ := NewFileExchanger(files, serveAsync(stubDispatcher{}), fastPoll())

	pages, err := x.Exchange(context.Background(), batch.Batch{})
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if len(pages) != 0 {
		t.Errorf("len(pages) = %d, want 0", len(pages))
	}
}

func TestFileExchanger_Timeout(t *testing.T) {
	files := DefaultFiles(t.TempDir())
	launched := false
	launcher := LauncherFunc(func(context.Context, Files) error {
		launched = true
		return nil
	})

	x, _ := NewFileExchanger(files, launcher, PollConfig{Interval: 5 * time.Millisecond, MaxPolls: 3})

	_, err := x.Exchange(context.Background(), batch.Batch{"https://a/1"})
	if !errors.Is(err, ErrBatchTimeout) {
		t.Fatalf("Exchange() error = %v, want ErrBatchTimeout", err)
	}
	if !launched {
		t.Error("launcher was not called")
	}

	var herr *Error
	if !errors.As(err, &herr) || herr.State != StateLaunched {
		t.Errorf("error state = %v, want launched", err)
	}
	assertMissing(t, files.BatchPath())
}

func TestFileExchanger_Corruption(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "Traceback (most recent call last)"},
		{name: "wrong length", body: `[{"a":1}]`},
		{name: "object instead of array", body: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := DefaultFiles(t.TempDir())
			launcher := LauncherFunc(func(_ context.Context, f Files) error {
				return os.WriteFile(f.ResultsPath(), []byte(tt.body), 0o644)
			})

			x, _ := NewFileExchanger(files, launcher, fastPoll())

			_, err := x.Exchange(context.Background(), batch.Batch{"https://a/1", "https://a/2"})
			if !errors.Is(err, ErrHandoffCorruption) {
				t.Fatalf("Exchange() error = %v, want ErrHandoffCorruption", err)
			}

			// Corrupt results are kept for inspection.
			assertExists(t, files.ResultsPath())
			assertMissing(t, files.BatchPath())
		})
	}
}

func TestFileExchanger_LaunchFailure(t *testing.T) {
	files := DefaultFiles(t.TempDir())
	launcher := LauncherFunc(func(context.Context, Files) error {
		return errors.New("exec: no such file")
	})

	x, _ := NewFileExchanger(files, launcher, fastPoll())

	_, err := x.Exchange(context.Background(), batch.Batch{"https://a/1"})
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("Exchange() error = %v, want ErrLaunchFailed", err)
	}
	assertMissing(t, files.BatchPath())
}

func TestFileExchanger_IgnoresStaleResults(t *testing.T) {
	files := DefaultFiles(t.TempDir())

	// A well-formed results file from an earlier run must not be consumed.
	if err := os.WriteFile(files.ResultsPath(), []byte(`[{"stale":true}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	noop := LauncherFunc(func(context.Context, Files) error { return nil })
	x, _ := NewFileExchanger(files, noop, PollConfig{Interval: 5 * time.Millisecond, MaxPolls: 3})

	if _, err := x.Exchange(context.Background(), batch.Batch{"https://a/1"}); !errors.Is(err, ErrBatchTimeout) {
		t.Fatalf("Exchange() error = %v, want ErrBatchTimeout", err)
	}
}

func TestFileExchanger_ContextCancelled(t *testing.T) {
	files := DefaultFiles(t.TempDir())
	noop := LauncherFunc(func(context.Context, Files) error { return nil })
	x, _ := NewFileExchanger(files, noop, fastPoll())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := x.Exchange(ctx, batch.Batch{"https://a/1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Exchange() error = %v, want context.Canceled", err)
	}
	assertMissing(t, files.BatchPath())
}

func TestFileExchanger_SequentialRuns(t *testing.T) {
	files := DefaultFiles(t.TempDir())
	x, _ := NewFileExchanger(files, serveAsync(stubDispatcher{}), fastPoll())

	for run, b := range []batch.Batch{{"https://a/1"}, {"https://b/1", "https://b/2"}} {
		pages, err := x.Exchange(context.Background(), b)
		if err != nil {
			t.Fatalf("run %d: Exchange() error = %v", run, err)
		}
		if len(pages) != len(b) {
			t.Fatalf("run %d: len(pages) = %d, want %d", run, len(pages), len(b))
		}
		for i, u := range b {
			var got map[string]string
			if err := json.Unmarshal(pages[i], &got); err != nil || got["url"] != u {
				t.Errorf("run %d: pages[%d] = %s, want url %s", run, i, pages[i], u)
			}
		}
	}
}
