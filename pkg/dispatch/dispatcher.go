package dispatch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
	"github.com/asdfghjkxd/NFTScraper/pkg/limiter"
	"github.com/asdfghjkxd/NFTScraper/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for dispatch runs.
var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nft_fetch_total",
		Help: "Total fetch calls by outcome",
	}, []string{"outcome"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nft_fetch_duration_seconds",
		Help:    "Fetch call duration in seconds, including limiter wait",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15},
	}, []string{"outcome"})

	dispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nft_dispatch_duration_seconds",
		Help:    "Wall-clock duration of a whole dispatch run",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120},
	})

	dispatchBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nft_dispatch_batch_size",
		Help:    "Number of URLs per dispatch run",
		Buckets: []float64{1, 10, 50, 100, 200, 500, 1000},
	})
)

// progressEvery controls how often settled-call progress is logged.
const progressEvery = 50

// Config holds dispatcher configuration.
type Config struct {
	// Concurrency is the limiter capacity: calls allowed in flight at once.
	Concurrency int

	// PerCallTimeout bounds each call from scheduling until its body is
	// decoded, so it covers limiter wait as well as the request itself.
	PerCallTimeout time.Duration

	// PoolSize caps open connections per host. It is deliberately separate
	// from Concurrency.
	PoolSize int

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64

	// UserAgent header sent on every call.
	UserAgent string

	// APIKey is forwarded opaquely in APIKeyHeader when non-empty.
	APIKey       string
	APIKeyHeader string

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:    100,
		PerCallTimeout: 15 * time.Second,
		PoolSize:       64,
		MaxBodyBytes:   32 << 20,
		UserAgent:      "NFTScraper/0.1.0",
		APIKeyHeader:   "X-API-KEY",
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Concurrency == 0 {
		c.Concurrency = def.Concurrency
	}
	if c.PerCallTimeout == 0 {
		c.PerCallTimeout = def.PerCallTimeout
	}
	if c.PoolSize == 0 {
		c.PoolSize = def.PoolSize
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	if c.APIKeyHeader == "" {
		c.APIKeyHeader = def.APIKeyHeader
	}
	return c
}

// Validate reports configuration values that cannot be defaulted.
func (c Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be > 0 (got %d)", c.Concurrency)
	}
	if c.PerCallTimeout < 0 {
		return fmt.Errorf("per_call_timeout must be > 0 (got %s)", c.PerCallTimeout)
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("pool_size must be > 0 (got %d)", c.PoolSize)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must be > 0 (got %d)", c.MaxBodyBytes)
	}
	return nil
}

// Result is the outcome of one call, positioned at Index in the batch.
type Result struct {
	Index      int
	URL        string
	Page       batch.Page
	StatusCode int
	Duration   time.Duration
	Err        error
}

// OK reports whether the call produced a JSON page.
func (r Result) OK() bool {
	return r.Err == nil
}

// Class returns the failure classification, or FailureNone on success.
func (r Result) Class() FailureClass {
	if r.Err == nil {
		return FailureNone
	}
	var fe *FetchError
	if errors.As(r.Err, &fe) {
		return fe.Class
	}
	return FailureNetwork
}

// outcome is the metrics label for a result.
func (r Result) outcome() string {
	if r.OK() {
		return "ok"
	}
	return string(r.Class())
}

// Pages projects results onto the page contract: the decoded body, or nil
// for any failure. The output is index-aligned with the input.
func Pages(results []Result) []batch.Page {
	pages := make([]batch.Page, len(results))
	for i, r := range results {
		if r.OK() {
			pages[i] = r.Page
		}
	}
	return pages
}

// Summary counts the outcomes of a run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	ByClass   map[FailureClass]int
}

// Summarize counts results by outcome.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), ByClass: make(map[FailureClass]int)}
	for _, r := range results {
		if r.OK() {
			s.Succeeded++
			continue
		}
		s.Failed++
		s.ByClass[r.Class()]++
	}
	return s
}

// Dispatcher fetches every URL of a batch concurrently under a limiter.
type Dispatcher struct {
	config Config
	logger zerolog.Logger
}

// New creates a new dispatcher. Zero config values take their defaults.
func New(cfg Config) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Dispatcher{
		config: cfg.withDefaults(),
		logger: logging.NewLogger("dispatcher"),
	}, nil
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.config
}

// SetLogger replaces the dispatcher logger.
func (d *Dispatcher) SetLogger(logger zerolog.Logger) {
	d.logger = logger
}

// Dispatch issues one GET per URL and returns once every call has settled.
// The result slice always has len(b) entries in input order. Individual
// failures are recorded on their Result and never cancel siblings; the only
// way to end calls early is the per-call deadline or cancelling ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, b batch.Batch) []Result {
	start := time.Now()
	results := make([]Result, len(b))
	dispatchBatchSize.Observe(float64(len(b)))

	if len(b) == 0 {
		d.logger.Debug().Msg("Empty batch, nothing to dispatch")
		return results
	}

	lim, err := limiter.New(d.config.Concurrency)
	if err != nil {
		// Unreachable after New, which guarantees Concurrency > 0.
		panic(err)
	}

	transport := d.newTransport()
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport}

	d.logger.Info().
		Int("urls", len(b)).
		Int("concurrency", d.config.Concurrency).
		Int("pool_size", d.config.PoolSize).
		Dur("per_call_timeout", d.config.PerCallTimeout).
		Msg("Starting dispatch")

	var settled atomic.Int64
	var wg sync.WaitGroup
	for i, u := range b {
		wg.Add(1)
		go func(index int, rawURL string) {
			defer wg.Done()
			results[index] = d.call(ctx, client, lim, index, rawURL)

			if n := settled.Add(1); n%progressEvery == 0 {
				d.logger.Debug().
					Int64("settled", n).
					Int("total", len(b)).
					Float64("progress_pct", float64(n)/float64(len(b))*100).
					Msg("Dispatch progress")
			}
		}(i, u)
	}
	wg.Wait()

	elapsed := time.Since(start)
	dispatchDuration.Observe(elapsed.Seconds())

	summary := Summarize(results)
	event := d.logger.Info()
	if summary.Failed > 0 {
		event = d.logger.Warn()
	}
	event.
		Int("urls", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("peak_in_flight", lim.Peak()).
		Dur("duration", elapsed).
		Msg("Dispatch complete")

	return results
}

// DispatchPages is Dispatch projected onto the JSON-or-null page contract.
func (d *Dispatcher) DispatchPages(ctx context.Context, b batch.Batch) []batch.Page {
	return Pages(d.Dispatch(ctx, b))
}

// call runs one task: admission, request, decode. The deadline starts
// before admission so a task can never outlive PerCallTimeout.
func (d *Dispatcher) call(ctx context.Context, client *http.Client, lim *limiter.Limiter, index int, rawURL string) Result {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, d.config.PerCallTimeout)
	defer cancel()

	res := Result{Index: index, URL: rawURL}

	release, err := lim.Acquire(callCtx)
	if err != nil {
		res.Err = &FetchError{URL: rawURL, Class: FailureAdmission, Err: err}
	} else {
		func() {
			defer release()
			res.Page, res.StatusCode, res.Err = d.fetch(callCtx, client, rawURL)
		}()
	}
	res.Duration = time.Since(start)

	outcome := res.outcome()
	fetchTotal.WithLabelValues(outcome).Inc()
	fetchDuration.WithLabelValues(outcome).Observe(res.Duration.Seconds())

	if res.Err != nil {
		d.logger.Debug().
			Err(res.Err).
			Int("index", index).
			Str("url", rawURL).
			Str("class", outcome).
			Dur("duration", res.Duration).
			Msg("Fetch failed, recording null page")
	}

	return res
}

// newTransport builds the connection pool shared by every call of one run.
func (d *Dispatcher) newTransport() *http.Transport {
	dialer := &net.Dialer{
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        d.config.PoolSize,
		MaxIdleConnsPerHost: d.config.PoolSize,
		MaxConnsPerHost:     d.config.PoolSize,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: d.config.InsecureSkipVerify,
		},
	}
}
