// Package metrics exposes the Prometheus metrics of the scraper over HTTP.
// The metrics themselves are declared with promauto next to the code that
// records them (dispatch, limiter, handoff), so importing this package
// creates no import cycles.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/asdfghjkxd/NFTScraper/pkg/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves /metrics from the default gatherer and a /health probe.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Serve runs the metrics endpoint on addr until ctx ends. An empty addr
// disables it and returns immediately.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	logger := logging.NewLogger("metrics")
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info().Msg("Metrics server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics reference
//
// Dispatch (pkg/dispatch):
//   - nft_fetch_total{outcome} (Counter): calls by outcome (ok, admission, timeout, network, decode)
//   - nft_fetch_duration_seconds{outcome} (Histogram): call duration including limiter wait
//   - nft_dispatch_duration_seconds (Histogram): wall-clock duration of a dispatch run
//   - nft_dispatch_batch_size (Histogram): URLs per run
//
// Admission (pkg/limiter):
//   - nft_limiter_in_flight (Gauge): calls holding a slot
//   - nft_limiter_wait_seconds (Histogram): time waiting for a slot
//   - nft_limiter_rejected_total (Counter): waits abandoned because the deadline passed
//
// Handoff (pkg/handoff):
//   - nft_handoff_exchanges_total{transport, outcome} (Counter): exchanges by transport and outcome
//   - nft_handoff_polls_total{transport} (Counter): result polls
//   - nft_handoff_duration_seconds{transport} (Histogram): submission to results consumed
//   - nft_redis_jobs_total{outcome} (Counter): jobs served by the redis worker
//
// Example queries:
//
//   # Failure ratio per run
//   sum(rate(nft_fetch_total{outcome!="ok"}[5m])) / sum(rate(nft_fetch_total[5m]))
//
//   # Calls timing out while queued behind the limiter
//   rate(nft_limiter_rejected_total[5m])
//
//   # P95 call latency
//   histogram_quantile(0.95, rate(nft_fetch_duration_seconds_bucket[5m]))
//
//   # Handoffs lost to timeout or corruption
//   sum by (outcome) (rate(nft_handoff_exchanges_total{outcome!="ok"}[15m]))
