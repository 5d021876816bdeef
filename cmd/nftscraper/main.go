// Command nftscraper builds a marketplace query, hands the URL batch to the
// dispatcher, flattens the returned pages and writes the records as CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/asdfghjkxd/NFTScraper/pkg/aggregate"
	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
	"github.com/asdfghjkxd/NFTScraper/pkg/config"
	"github.com/asdfghjkxd/NFTScraper/pkg/export"
	"github.com/asdfghjkxd/NFTScraper/pkg/logging"
	"github.com/asdfghjkxd/NFTScraper/pkg/marketplace"
	"github.com/asdfghjkxd/NFTScraper/pkg/metrics"
	"github.com/rs/zerolog"
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

// listFlag collects a repeatable or comma-separated string flag.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

type options struct {
	configPath string
	source     string
	params     marketplace.Params
	transport  string
	strict     bool
	output     string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("nftscraper", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	var contracts, tokenIDs, ids, symbols, blacklist, activityTypes listFlag
	var onSale string

	fs.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&opts.source, "source", "", "query source: "+strings.Join(marketplace.Sources(), ", "))
	fs.StringVar(&opts.transport, "transport", "", "override handoff transport (inproc, file, redis)")
	fs.BoolVar(&opts.strict, "strict", false, "fail when any page lacks the page key")
	fs.StringVar(&opts.output, "output", "-", "CSV output file, - for stdout")

	p := &opts.params
	fs.StringVar(&p.BaseURL, "base-url", "", "override the marketplace API root")
	fs.StringVar(&p.Owner, "owner", "", "owner, account or user address")
	fs.StringVar(&p.Collection, "collection", "", "collection slug or address")
	fs.Var(&contracts, "contract", "asset contract address (repeatable)")
	fs.Var(&tokenIDs, "token-id", "token id (repeatable)")
	fs.Var(&ids, "id", "item id for single-item sources (repeatable)")
	fs.StringVar(&p.OrderBy, "order-by", "", "sort field")
	fs.StringVar(&p.Direction, "direction", "", "sort direction (asc, desc)")
	fs.StringVar(&p.EventType, "event-type", "", "event type filter")
	fs.StringVar(&p.Category, "category", "", "category filter")
	fs.StringVar(&p.Status, "status", "", "asset status filter")
	fs.StringVar(&p.Name, "name", "", "asset name filter")
	fs.StringVar(&p.Metadata, "metadata", "", "JSON-encoded metadata filter")
	fs.Var(&symbols, "symbol", "token symbol (repeatable)")
	fs.Var(&blacklist, "blacklist", "collection address to hide (repeatable)")
	fs.Var(&activityTypes, "activity-type", "order activity type (repeatable)")
	fs.StringVar(&onSale, "on-sale", "", "bundle on_sale filter (true, false)")
	fs.BoolVar(&p.SellOrders, "sell-orders", false, "include sell order details")
	fs.BoolVar(&p.BuyOrders, "buy-orders", false, "include buy order details")
	fs.BoolVar(&p.IncludeFees, "include-fees", false, "include fees")
	fs.BoolVar(&p.IncludeMeta, "include-meta", false, "include item metadata")
	fs.StringVar(&p.UpdatedMin, "updated-min", "", "minimum last-updated timestamp")
	fs.StringVar(&p.UpdatedMax, "updated-max", "", "maximum last-updated timestamp")
	fs.StringVar(&p.Cursor, "cursor", "", "cursor or continuation token")
	fs.IntVar(&p.Offset, "offset", 0, "result offset")
	fs.IntVar(&p.Limit, "limit", 20, "page size")
	fs.BoolVar(&p.GetAll, "get-all", false, "expand into every page the API allows")
	fs.IntVar(&p.Network, "network", 0, "network id")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.source == "" {
		return nil, errors.New("-source is required")
	}

	if onSale != "" {
		v, err := strconv.ParseBool(onSale)
		if err != nil {
			return nil, fmt.Errorf("-on-sale: %w", err)
		}
		p.OnSale = &v
	}

	p.Contracts, p.TokenIDs, p.IDs = contracts, tokenIDs, ids
	p.Symbols, p.Blacklist, p.ActivityTypes = symbols, blacklist, activityTypes
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "nftscraper:", err)
		}
		return exitUsage
	}

	cfg, err := config.Load(opts.configPath)
	if err == nil && opts.transport != "" {
		err = cfg.OverrideTransport(opts.transport)
	}
	if err != nil {
		fmt.Fprintln(stderr, "nftscraper:", err)
		return exitUsage
	}

	lc := cfg.Logging("nftscraper")
	lc.Output = stderr
	logging.Setup(lc)
	logger := logging.NewLogger("main")

	query, err := marketplace.NewQuery(opts.source, opts.params)
	if err != nil {
		logger.Error().Err(err).Msg("Unknown source")
		return exitUsage
	}
	b, key, err := query.Build()
	if err == nil {
		err = b.Validate()
	}
	if err != nil {
		logger.Error().Err(err).Str("source", opts.source).Msg("Invalid query")
		return exitUsage
	}

	exchanger, closeFn, err := newExchanger(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("transport", cfg.Handoff.Transport).Msg("Failed to set up transport")
		return exitError
	}
	defer closeFn()

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	go func() {
		if err := metrics.Serve(metricsCtx, cfg.Metrics.Addr); err != nil {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	start := time.Now()
	logger.Info().
		Str("source", opts.source).
		Str("transport", cfg.Handoff.Transport).
		Int("urls", len(b)).
		Msg("Scrape started")

	pages, err := exchanger.Exchange(ctx, b)
	if err != nil {
		logger.Error().Err(err).Msg("Handoff failed")
		return exitError
	}

	records, err := flatten(pages, key, opts.strict, logging.NewLogger("aggregate"))
	if err != nil {
		logger.Error().Err(err).Msg("Aggregation failed")
		return exitError
	}

	rows, err := writeOutput(opts.output, stdout, records)
	if err != nil {
		logger.Error().Err(err).Str("output", opts.output).Msg("Failed to write CSV")
		return exitError
	}

	logger.Info().
		Int("pages", len(pages)).
		Int("failed_pages", batch.CountNull(pages)).
		Int("records", rows).
		Dur("duration", time.Since(start)).
		Msg("Scrape complete")
	return exitOK
}

func flatten(pages []batch.Page, key batch.PageKey, strict bool, logger zerolog.Logger) ([]batch.Record, error) {
	if strict {
		return aggregate.FlattenStrict(pages, key)
	}

	records, stats := aggregate.FlattenWithStats(pages, key)
	if len(stats.MissingKey) > 0 {
		logger.Warn().
			Str("page_key", string(key)).
			Ints("indexes", stats.MissingKey).
			Msg("Pages without the page key were skipped")
	}
	return records, nil
}

func writeOutput(path string, stdout io.Writer, records []batch.Record) (int, error) {
	if path == "" || path == "-" {
		return export.WriteCSV(stdout, records)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := export.WriteCSV(f, records)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}
