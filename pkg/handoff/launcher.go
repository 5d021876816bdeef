package handoff

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
	"github.com/asdfghjkxd/NFTScraper/pkg/dispatch"
	"github.com/asdfghjkxd/NFTScraper/pkg/logging"
	"github.com/rs/zerolog"
)

// APIKeyEnv carries the API key to the dispatcher process so it never
// appears on a command line.
const APIKeyEnv = "NFTSCRAPER_API_KEY"

// Launcher starts the dispatcher for the batch in files. It must not wait
// for the dispatcher to finish.
type Launcher interface {
	Launch(ctx context.Context, files Files) error
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, files Files) error

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, files Files) error {
	return f(ctx, files)
}

// ExecLauncher starts the dispatcher as an OS process, fire-and-forget.
// The process is reaped in the background and its exit status only logged;
// the originator learns about failures through polling.
type ExecLauncher struct {
	// Path to the dispatcher executable.
	Path string

	// Args are placed before the generated worker flags.
	Args []string

	// Env is appended to the current environment.
	Env []string

	// Dispatch is the explicit dispatcher configuration handed to the process.
	Dispatch dispatch.Config

	Logger zerolog.Logger
}

// NewExecLauncher creates a launcher for the executable at path.
func NewExecLauncher(path string, cfg dispatch.Config) *ExecLauncher {
	return &ExecLauncher{
		Path:     path,
		Dispatch: cfg,
		Logger:   logging.NewLogger("launcher"),
	}
}

// Launch starts the process and returns without waiting for it. The
// process runs inside files.Dir and is given that directory as an absolute
// path, so a relative handoff dir is not resolved twice.
func (l *ExecLauncher) Launch(ctx context.Context, files Files) error {
	dir, err := filepath.Abs(files.Dir)
	if err != nil {
		return fmt.Errorf("resolve handoff dir: %w", err)
	}
	files.Dir = dir

	path := l.Path
	if strings.ContainsRune(path, filepath.Separator) && !filepath.IsAbs(path) {
		if path, err = filepath.Abs(path); err != nil {
			return fmt.Errorf("resolve %s: %w", l.Path, err)
		}
	}

	args := append(append([]string{}, l.Args...), WorkerArgs(l.Dispatch, files)...)

	cmd := exec.Command(path, args...)
	cmd.Dir = files.Dir
	cmd.Env = append(os.Environ(), l.Env...)
	if l.Dispatch.APIKey != "" {
		cmd.Env = append(cmd.Env, APIKeyEnv+"="+l.Dispatch.APIKey)
	}
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", path, err)
	}

	pid := cmd.Process.Pid
	l.Logger.Info().Int("pid", pid).Str("path", path).Str("dir", dir).Msg("Dispatcher process started")

	go func() {
		if err := cmd.Wait(); err != nil {
			l.Logger.Error().Err(err).Int("pid", pid).Msg("Dispatcher process exited with error")
			return
		}
		l.Logger.Debug().Int("pid", pid).Msg("Dispatcher process exited")
	}()

	return nil
}

// WorkerArgs renders the worker flags for cfg and files. The API key is
// deliberately omitted; it travels in APIKeyEnv.
func WorkerArgs(cfg dispatch.Config, files Files) []string {
	args := []string{
		"-dir=" + files.Dir,
		"-batch-file=" + files.BatchName,
		"-results-file=" + files.ResultsName,
	}
	if cfg.Concurrency > 0 {
		args = append(args, "-concurrency="+strconv.Itoa(cfg.Concurrency))
	}
	if cfg.PerCallTimeout > 0 {
		args = append(args, "-timeout="+cfg.PerCallTimeout.String())
	}
	if cfg.PoolSize > 0 {
		args = append(args, "-pool-size="+strconv.Itoa(cfg.PoolSize))
	}
	if cfg.MaxBodyBytes > 0 {
		args = append(args, "-max-body-bytes="+strconv.FormatInt(cfg.MaxBodyBytes, 10))
	}
	if cfg.UserAgent != "" {
		args = append(args, "-user-agent="+cfg.UserAgent)
	}
	if cfg.APIKeyHeader != "" {
		args = append(args, "-api-key-header="+cfg.APIKeyHeader)
	}
	if cfg.InsecureSkipVerify {
		args = append(args, "-insecure")
	}
	return args
}

// WorkerOptions are the parsed worker flags.
type WorkerOptions struct {
	Files    Files
	Dispatch dispatch.Config

	// Literal is set when the batch was given as a positional list argument
	// instead of a batch file.
	Literal batch.Batch
}

// BindWorkerFlags registers the worker flags on fs.
func BindWorkerFlags(fs *flag.FlagSet) *WorkerOptions {
	def := dispatch.DefaultConfig()
	opts := &WorkerOptions{Files: DefaultFiles("."), Dispatch: def}

	fs.StringVar(&opts.Files.Dir, "dir", ".", "directory holding the handoff files")
	fs.StringVar(&opts.Files.BatchName, "batch-file", DefaultBatchName, "batch file name")
	fs.StringVar(&opts.Files.ResultsName, "results-file", DefaultResultsName, "results file name")
	fs.IntVar(&opts.Dispatch.Concurrency, "concurrency", def.Concurrency, "maximum calls in flight")
	fs.DurationVar(&opts.Dispatch.PerCallTimeout, "timeout", def.PerCallTimeout, "per-call timeout")
	fs.IntVar(&opts.Dispatch.PoolSize, "pool-size", def.PoolSize, "maximum open connections per host")
	fs.Int64Var(&opts.Dispatch.MaxBodyBytes, "max-body-bytes", def.MaxBodyBytes, "maximum response body size")
	fs.StringVar(&opts.Dispatch.UserAgent, "user-agent", def.UserAgent, "User-Agent header")
	fs.StringVar(&opts.Dispatch.APIKeyHeader, "api-key-header", def.APIKeyHeader, "header carrying the API key")
	fs.BoolVar(&opts.Dispatch.InsecureSkipVerify, "insecure", false, "skip TLS certificate verification")

	return opts
}

// Complete reads the API key from the environment and the optional
// positional list argument. Call it after fs.Parse.
func (o *WorkerOptions) Complete(fs *flag.FlagSet) error {
	o.Dispatch.APIKey = os.Getenv(APIKeyEnv)

	switch fs.NArg() {
	case 0:
		return nil
	case 1:
		b, err := ParseLiteralList(fs.Arg(0))
		if err != nil {
			return err
		}
		o.Literal = b
		return nil
	default:
		return fmt.Errorf("expected at most one positional argument, got %d", fs.NArg())
	}
}

// ParseWorkerArgs parses a full worker command line.
func ParseWorkerArgs(args []string) (*WorkerOptions, error) {
	fs := flag.NewFlagSet("nftdispatch", flag.ContinueOnError)
	opts := BindWorkerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := opts.Complete(fs); err != nil {
		return nil, err
	}
	return opts, nil
}

// ParseLiteralList parses a textual list such as
// "[https://a/1, 'https://a/2']" into a batch. Entries are separated by
// ", "; a bare comma belongs to the URL, as in "?token_ids=1,2".
func ParseLiteralList(s string) (batch.Batch, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("literal list must be enclosed in brackets: %q", s)
	}

	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return batch.Batch{}, nil
	}

	parts := strings.Split(inner, ", ")
	b := make(batch.Batch, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `'"`)
		if p == "" {
			return nil, fmt.Errorf("literal list entry %d is empty", i)
		}
		b = append(b, p)
	}
	return b, nil
}
