// Package limiter provides the fixed-capacity admission gate that bounds how
// many fetch calls are in flight at once.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

// Prometheus metrics for admission control.
var (
	limiterInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nft_limiter_in_flight",
		Help: "Number of fetch calls currently holding a limiter slot",
	})

	limiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nft_limiter_wait_seconds",
		Help:    "Time spent waiting for a limiter slot",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15},
	})

	limiterRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nft_limiter_rejected_total",
		Help: "Total number of acquisitions abandoned because the context ended",
	})
)

// Limiter is a counting semaphore with a fixed capacity. Every successful
// Acquire must be paired with exactly one call of the returned release func.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
	peak     atomic.Int64
}

// New creates a limiter admitting at most capacity concurrent holders.
func New(capacity int) (*Limiter, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("limiter capacity must be > 0 (got %d)", capacity)
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}, nil
}

// Acquire blocks until a slot is free or ctx ends. The returned release is
// safe to call more than once; only the first call frees the slot.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	start := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		limiterRejectedTotal.Inc()
		return nil, err
	}
	limiterWaitSeconds.Observe(time.Since(start).Seconds())

	n := l.inFlight.Add(1)
	limiterInFlight.Inc()
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.inFlight.Add(-1)
			limiterInFlight.Dec()
			l.sem.Release(1)
		})
	}, nil
}

// Capacity returns the admission ceiling N.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// InFlight returns the number of slots currently held.
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Peak returns the highest number of slots held at once since creation.
func (l *Limiter) Peak() int {
	return int(l.peak.Load())
}
