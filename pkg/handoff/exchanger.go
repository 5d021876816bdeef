package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for handoff exchanges.
var (
	handoffExchangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nft_handoff_exchanges_total",
		Help: "Total batch exchanges by transport and outcome",
	}, []string{"transport", "outcome"})

	handoffPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nft_handoff_polls_total",
		Help: "Total result polls by transport",
	}, []string{"transport"})

	handoffDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nft_handoff_duration_seconds",
		Help:    "Time from batch submission to results consumed",
		Buckets: []float64{1, 5, 15, 30, 60, 300, 600},
	}, []string{"transport"})
)

// Exchanger is the request/response contract between the originator and
// the dispatcher: a batch goes in, len(batch) ordered pages come out.
type Exchanger interface {
	Exchange(ctx context.Context, b batch.Batch) ([]batch.Page, error)
}

// PageDispatcher is the dispatcher surface the handoff needs.
type PageDispatcher interface {
	DispatchPages(ctx context.Context, b batch.Batch) []batch.Page
}

// PollConfig bounds how long an originator waits for results.
type PollConfig struct {
	// Interval between existence checks.
	Interval time.Duration

	// MaxPolls is the number of checks before ErrBatchTimeout.
	MaxPolls int
}

// DefaultPollConfig polls once a second for up to ten minutes.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval: 1 * time.Second,
		MaxPolls: 600,
	}
}

func (c PollConfig) withDefaults() PollConfig {
	def := DefaultPollConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = def.MaxPolls
	}
	return c
}

// Budget returns the worst-case wait before a timeout.
func (c PollConfig) Budget() time.Duration {
	return time.Duration(c.MaxPolls) * c.Interval
}

// poll calls check until it reports done, ctx ends, or MaxPolls checks
// have failed. The first check happens immediately.
func (c PollConfig) poll(ctx context.Context, transport string, check func() (bool, error)) (bool, error) {
	for i := 0; i < c.MaxPolls; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(c.Interval):
			}
		}

		handoffPollsTotal.WithLabelValues(transport).Inc()
		done, err := check()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}

// InProcess runs the dispatcher in the calling process. It satisfies the
// same contract as the file and redis transports without isolation.
type InProcess struct {
	Dispatcher PageDispatcher
}

// Exchange dispatches the batch directly.
func (x InProcess) Exchange(ctx context.Context, b batch.Batch) ([]batch.Page, error) {
	start := time.Now()
	pages := x.Dispatcher.DispatchPages(ctx, b)
	if len(pages) != len(b) {
		handoffExchangesTotal.WithLabelValues("inproc", "corruption").Inc()
		return nil, corruption(StateResultsWritten, "", fmt.Sprintf("got %d pages, want %d", len(pages), len(b)), nil)
	}
	handoffExchangesTotal.WithLabelValues("inproc", "ok").Inc()
	handoffDuration.WithLabelValues("inproc").Observe(time.Since(start).Seconds())
	return pages, nil
}
