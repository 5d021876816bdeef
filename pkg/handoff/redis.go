package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
	"github.com/asdfghjkxd/NFTScraper/pkg/logging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/tinylib/msgp/msgp"
)

var redisJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nft_redis_jobs_total",
	Help: "Total batch jobs served by the redis worker by outcome",
}, []string{"outcome"})

// RedisConfig names the redis keys of the queue transport.
type RedisConfig struct {
	// Queue is the list batch jobs are pushed onto.
	Queue string

	// ResultPrefix is prepended to the job id to form the result key.
	ResultPrefix string

	// ResultTTL expires results nobody collected.
	ResultTTL time.Duration

	// BlockTimeout bounds a single worker BRPOP.
	BlockTimeout time.Duration
}

// DefaultRedisConfig returns the default key layout.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Queue:        "nftscraper:batches",
		ResultPrefix: "nftscraper:results:",
		ResultTTL:    15 * time.Minute,
		BlockTimeout: 5 * time.Second,
	}
}

func (c RedisConfig) withDefaults() RedisConfig {
	def := DefaultRedisConfig()
	if c.Queue == "" {
		c.Queue = def.Queue
	}
	if c.ResultPrefix == "" {
		c.ResultPrefix = def.ResultPrefix
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = def.ResultTTL
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = def.BlockTimeout
	}
	return c
}

func (c RedisConfig) resultKey(id string) string {
	return c.ResultPrefix + id
}

// RedisExchanger hands batches to a RedisWorker through a redis list and
// collects the results from a per-job key. It follows the same state
// machine as the file protocol with keys in place of files.
type RedisExchanger struct {
	client *redis.Client
	config RedisConfig
	poll   PollConfig
	logger zerolog.Logger
}

// NewRedisExchanger creates a redis-backed exchanger.
func NewRedisExchanger(client *redis.Client, cfg RedisConfig, poll PollConfig) *RedisExchanger {
	return &RedisExchanger{
		client: client,
		config: cfg.withDefaults(),
		poll:   poll.withDefaults(),
		logger: logging.NewLogger("handoff").With().Str("transport", "redis").Logger(),
	}
}

// Exchange pushes the batch as a job and polls for its results.
func (x *RedisExchanger) Exchange(ctx context.Context, b batch.Batch) ([]batch.Page, error) {
	start := time.Now()
	id := uuid.NewString()
	key := x.config.resultKey(id)
	logger := x.logger.With().Str("job_id", id).Logger()

	job := encodeJob(id, b)
	if err := x.client.LPush(ctx, x.config.Queue, job).Err(); err != nil {
		handoffExchangesTotal.WithLabelValues("redis", "launch").Inc()
		return nil, &Error{Kind: KindLaunch, State: StateNoFile, Path: x.config.Queue, Message: "could not enqueue batch", Err: err}
	}
	logger.Debug().Int("urls", len(b)).Msg("Batch enqueued")

	var data []byte
	found, err := x.poll.poll(ctx, "redis", func() (bool, error) {
		v, err := x.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("get %s: %w", key, err)
		}
		data = v
		return true, nil
	})
	if err != nil {
		x.withdraw(ctx, job, logger)
		return nil, fmt.Errorf("poll results: %w", err)
	}
	if !found {
		x.withdraw(ctx, job, logger)
		handoffExchangesTotal.WithLabelValues("redis", "timeout").Inc()
		logger.Error().Int("max_polls", x.poll.MaxPolls).Msg("Timed out waiting for results")
		return nil, &Error{
			Kind:    KindBatchTimeout,
			State:   StateLaunched,
			Path:    key,
			Message: fmt.Sprintf("no results after %d polls", x.poll.MaxPolls),
		}
	}

	if err := x.client.Del(ctx, key).Err(); err != nil {
		logger.Warn().Err(err).Msg("Failed to delete result key")
	}

	pages, err := DecodeResults(data, len(b))
	if err != nil {
		handoffExchangesTotal.WithLabelValues("redis", "corruption").Inc()
		return nil, corruption(StateResultsWritten, key, "results invalid", err)
	}

	elapsed := time.Since(start)
	handoffExchangesTotal.WithLabelValues("redis", "ok").Inc()
	handoffDuration.WithLabelValues("redis").Observe(elapsed.Seconds())
	logger.Info().
		Int("urls", len(b)).
		Int("null_pages", batch.CountNull(pages)).
		Dur("duration", elapsed).
		Msg("Handoff complete")

	return pages, nil
}

// withdraw removes an abandoned job so a late worker does not fetch a batch
// nobody waits for. A job a worker already popped is not on the queue and
// LRem is a no-op.
func (x *RedisExchanger) withdraw(ctx context.Context, job []byte, logger zerolog.Logger) {
	n, err := x.client.LRem(context.WithoutCancel(ctx), x.config.Queue, 1, job).Result()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to withdraw job")
		return
	}
	logger.Debug().Int64("removed", n).Msg("Job withdrawn")
}

// RedisWorker is the dispatcher side of the redis transport.
type RedisWorker struct {
	client     *redis.Client
	config     RedisConfig
	dispatcher PageDispatcher
	logger     zerolog.Logger
}

// NewRedisWorker creates a worker that serves jobs with d.
func NewRedisWorker(client *redis.Client, cfg RedisConfig, d PageDispatcher) *RedisWorker {
	return &RedisWorker{
		client:     client,
		config:     cfg.withDefaults(),
		dispatcher: d,
		logger:     logging.NewLogger("redis-worker"),
	}
}

// Run serves jobs until ctx ends.
func (w *RedisWorker) Run(ctx context.Context) error {
	w.logger.Info().Str("queue", w.config.Queue).Msg("Redis worker started")
	for {
		if _, err := w.ServeOne(ctx); err != nil {
			if ctx.Err() != nil {
				w.logger.Info().Msg("Redis worker stopped")
				return nil
			}
			w.logger.Error().Err(err).Msg("Failed to serve job")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// ServeOne waits up to BlockTimeout for a job and serves it. It reports
// whether a job was taken off the queue.
func (w *RedisWorker) ServeOne(ctx context.Context) (bool, error) {
	res, err := w.client.BRPop(ctx, w.config.BlockTimeout, w.config.Queue).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("brpop %s: %w", w.config.Queue, err)
	}

	// BRPOP replies with [queue, value].
	id, b, err := decodeJob([]byte(res[1]))
	if err != nil {
		redisJobsTotal.WithLabelValues("invalid").Inc()
		return true, err
	}

	logger := w.logger.With().Str("job_id", id).Int("urls", len(b)).Logger()
	logger.Debug().Msg("Job received")

	data, err := EncodeResults(w.dispatcher.DispatchPages(ctx, b))
	if err != nil {
		redisJobsTotal.WithLabelValues("error").Inc()
		return true, err
	}

	if err := w.client.Set(ctx, w.config.resultKey(id), data, w.config.ResultTTL).Err(); err != nil {
		redisJobsTotal.WithLabelValues("error").Inc()
		return true, fmt.Errorf("store results for %s: %w", id, err)
	}

	redisJobsTotal.WithLabelValues("ok").Inc()
	logger.Info().Msg("Job served")
	return true, nil
}

// encodeJob packs a job as the MessagePack array [id, [urls...]].
func encodeJob(id string, b batch.Batch) []byte {
	buf := msgp.AppendArrayHeader(nil, 2)
	buf = msgp.AppendString(buf, id)
	return append(buf, EncodeBatch(b)...)
}

func decodeJob(data []byte) (string, batch.Batch, error) {
	n, rest, err := msgp.ReadArrayHeaderBytes(data)
	if err != nil {
		return "", nil, fmt.Errorf("decode job header: %w", err)
	}
	if n != 2 {
		return "", nil, fmt.Errorf("decode job: want 2 fields, got %d", n)
	}

	id, rest, err := msgp.ReadStringBytes(rest)
	if err != nil {
		return "", nil, fmt.Errorf("decode job id: %w", err)
	}
	if id == "" {
		return "", nil, errors.New("decode job: empty id")
	}

	b, rest, err := readBatch(rest)
	if err != nil {
		return "", nil, err
	}
	if len(rest) != 0 {
		return "", nil, fmt.Errorf("decode job: %d trailing bytes", len(rest))
	}
	return id, b, nil
}
