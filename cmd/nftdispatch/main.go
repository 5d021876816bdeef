// Command nftdispatch is the dispatcher process. It fetches one batch of
// URLs concurrently and writes the ordered pages back.
//
// File mode (default) reads the batch file from -dir and writes the
// results file next to it; this is what nftscraper launches. Given a
// positional list such as "[https://a/1, https://a/2]" it fetches those
// URLs and prints the results array to stdout instead. With -redis-addr it
// runs as a long-lived worker serving batches from a redis queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/asdfghjkxd/NFTScraper/pkg/dispatch"
	"github.com/asdfghjkxd/NFTScraper/pkg/handoff"
	"github.com/asdfghjkxd/NFTScraper/pkg/logging"
	"github.com/asdfghjkxd/NFTScraper/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	worker *handoff.WorkerOptions

	logLevel  string
	logPretty bool

	redisAddr     string
	redisPassword string
	redisDB       int
	redisKeys     handoff.RedisConfig

	metricsAddr string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("nftdispatch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{worker: handoff.BindWorkerFlags(fs)}
	def := handoff.DefaultRedisConfig()

	fs.StringVar(&opts.logLevel, "log-level", string(logging.LevelInfo), "log level (debug, info, warn, error, disabled)")
	fs.BoolVar(&opts.logPretty, "log-pretty", false, "human-readable log output")
	fs.StringVar(&opts.redisAddr, "redis-addr", "", "serve batches from this redis server instead of files")
	fs.StringVar(&opts.redisPassword, "redis-password", "", "redis password")
	fs.IntVar(&opts.redisDB, "redis-db", 0, "redis database")
	fs.StringVar(&opts.redisKeys.Queue, "queue", def.Queue, "redis list batches are taken from")
	fs.StringVar(&opts.redisKeys.ResultPrefix, "result-prefix", def.ResultPrefix, "redis key prefix for results")
	fs.DurationVar(&opts.redisKeys.ResultTTL, "result-ttl", def.ResultTTL, "expiry of uncollected results")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics on this address (redis mode)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := opts.worker.Complete(fs); err != nil {
		return nil, err
	}
	if err := logging.ValidateLevel(logging.LogLevel(opts.logLevel)); err != nil {
		return nil, err
	}
	if opts.redisAddr != "" && opts.worker.Literal != nil {
		return nil, fmt.Errorf("a literal batch cannot be combined with -redis-addr")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintln(stderr, "nftdispatch:", err)
		}
		return exitUsage
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(opts.logLevel),
		Pretty:  opts.logPretty,
		Output:  stderr,
		Process: "nftdispatch",
	})
	logger := logging.NewLogger("main")

	d, err := dispatch.New(opts.worker.Dispatch)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid dispatcher configuration")
		return exitUsage
	}

	switch {
	case opts.redisAddr != "":
		err = serveRedis(ctx, opts, d)
	case opts.worker.Literal != nil:
		err = serveLiteral(ctx, opts.worker, d, stdout)
	default:
		err = handoff.ServeFiles(ctx, opts.worker.Files, d)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Dispatcher failed")
		return exitError
	}
	return exitOK
}

// serveLiteral prints the results array for a literal batch. Malformed
// entries are not rejected up front; they fail their own call and come
// back as null like any other per-call failure.
func serveLiteral(ctx context.Context, opts *handoff.WorkerOptions, d *dispatch.Dispatcher, stdout io.Writer) error {
	data, err := handoff.EncodeResults(d.DispatchPages(ctx, opts.Literal))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%s\n", data)
	return err
}

func serveRedis(ctx context.Context, opts *options, d *dispatch.Dispatcher) error {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.redisAddr,
		Password: opts.redisPassword,
		DB:       opts.redisDB,
	})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", opts.redisAddr, err)
	}

	logger := logging.NewLogger("metrics")
	go func() {
		if err := metrics.Serve(ctx, opts.metricsAddr); err != nil {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return handoff.NewRedisWorker(client, opts.redisKeys, d).Run(ctx)
}
