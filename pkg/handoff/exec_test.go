package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
	"github.com/asdfghjkxd/NFTScraper/pkg/dispatch"
)

// TestHelperProcess is not a real test. ExecLauncher re-executes the test
// binary with GO_WANT_HELPER_PROCESS=1 to act as the dispatcher process.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "missing -- separator")
		os.Exit(2)
	}

	opts, err := ParseWorkerArgs(args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	d := keyEchoDispatcher{key: opts.Dispatch.APIKey}
	if err := ServeFiles(context.Background(), opts.Files, d); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// keyEchoDispatcher reports the API key it was configured with, so the test
// can check it crossed the process boundary.
type keyEchoDispatcher struct {
	key string
}

func (k keyEchoDispatcher) DispatchPages(_ context.Context, b batch.Batch) []batch.Page {
	pages := make([]batch.Page, len(b))
	for i, u := range b {
		pages[i], _ = json.Marshal(map[string]string{"url": u, "key": k.key})
	}
	return pages
}

func helperLauncher(t *testing.T, cfg dispatch.Config) *ExecLauncher {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable() error = %v", err)
	}

	l := NewExecLauncher(exe, cfg)
	l.Args = []string{"-test.run=^TestHelperProcess$", "--"}
	l.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	return l
}

func TestExecLauncher_FileExchange(t *testing.T) {
	cfg := dispatch.DefaultConfig()
	cfg.APIKey = "secret-key"

	files := DefaultFiles(t.TempDir())
	x, err := NewFileExchanger(files, helperLauncher(t, cfg), PollConfig{Interval: 20 * time.Millisecond, MaxPolls: 1000})
	if err != nil {
		t.Fatal(err)
	}

	b := batch.Batch{"https://a/1", "https://a/2", "https://a/3"}
	pages, err := x.Exchange(context.Background(), b)
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if len(pages) != len(b) {
		t.Fatalf("len(pages) = %d, want %d", len(pages), len(b))
	}

	for i, u := range b {
		var got map[string]string
		if err := json.Unmarshal(pages[i], &got); err != nil {
			t.Fatalf("pages[%d] not JSON: %v", i, err)
		}
		if got["url"] != u {
			t.Errorf("pages[%d] url = %q, want %q", i, got["url"], u)
		}
		if got["key"] != "secret-key" {
			t.Errorf("pages[%d] key = %q, want secret-key", i, got["key"])
		}
	}

	assertMissing(t, files.BatchPath())
	assertMissing(t, files.ResultsPath())
}

func TestExecLauncher_RelativeDir(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)

	files := DefaultFiles("dumps")
	x, err := NewFileExchanger(files, helperLauncher(t, dispatch.DefaultConfig()), PollConfig{Interval: 20 * time.Millisecond, MaxPolls: 1000})
	if err != nil {
		t.Fatal(err)
	}

	b := batch.Batch{"https://a/1", "https://a/2"}
	pages, err := x.Exchange(context.Background(), b)
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if len(pages) != len(b) {
		t.Fatalf("len(pages) = %d, want %d", len(pages), len(b))
	}

	assertMissing(t, filepath.Join(root, "dumps", DefaultBatchName))
	assertMissing(t, filepath.Join(root, "dumps", DefaultResultsName))
	assertMissing(t, filepath.Join(root, "dumps", "dumps"))
}

func TestExecLauncher_MissingExecutable(t *testing.T) {
	files := DefaultFiles(t.TempDir())
	l := NewExecLauncher(filepath.Join(t.TempDir(), "no-such-binary"), dispatch.DefaultConfig())

	x, _ := NewFileExchanger(files, l, fastPoll())

	_, err := x.Exchange(context.Background(), batch.Batch{"https://a/1"})
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("Exchange() error = %v, want ErrLaunchFailed", err)
	}
	assertMissing(t, files.BatchPath())
}
