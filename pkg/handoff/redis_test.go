package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local redis, skipping when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

// testRedisConfig isolates each test in its own key space.
func testRedisConfig() RedisConfig {
	prefix := "nftscraper-test:" + uuid.NewString() + ":"
	return RedisConfig{
		Queue:        prefix + "batches",
		ResultPrefix: prefix + "results:",
		ResultTTL:    time.Minute,
		BlockTimeout: 100 * time.Millisecond,
	}
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := RedisConfig{}.withDefaults()
	if cfg != DefaultRedisConfig() {
		t.Errorf("withDefaults() = %+v, want %+v", cfg, DefaultRedisConfig())
	}
	if got := cfg.resultKey("abc"); got != "nftscraper:results:abc" {
		t.Errorf("resultKey() = %q", got)
	}
}

func TestRedisExchange_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	cfg := testRedisConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := NewRedisWorker(client, cfg, stubDispatcher{fail: map[string]bool{"https://a/2": true}})
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	x := NewRedisExchanger(client, cfg, PollConfig{Interval: 10 * time.Millisecond, MaxPolls: 500})

	b := batch.Batch{"https://a/1", "https://a/2", "https://a/3"}
	pages, err := x.Exchange(ctx, b)
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("len(pages) = %d, want 3", len(pages))
	}
	if pages[1] != nil {
		t.Errorf("pages[1] = %s, want nil", pages[1])
	}
	for _, i := range []int{0, 2} {
		var got map[string]string
		if err := json.Unmarshal(pages[i], &got); err != nil || got["url"] != b[i] {
			t.Errorf("pages[%d] = %s", i, pages[i])
		}
	}

	keys, err := client.Keys(ctx, cfg.ResultPrefix+"*").Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("result keys left behind: %v", keys)
	}

	cancel()
	<-done
}

func TestRedisExchange_Timeout(t *testing.T) {
	client := setupTestRedis(t)
	cfg := testRedisConfig()
	defer client.Del(context.Background(), cfg.Queue)

	x := NewRedisExchanger(client, cfg, PollConfig{Interval: 5 * time.Millisecond, MaxPolls: 3})

	_, err := x.Exchange(context.Background(), batch.Batch{"https://a/1"})
	if !errors.Is(err, ErrBatchTimeout) {
		t.Fatalf("Exchange() error = %v, want ErrBatchTimeout", err)
	}

	// A worker that comes up later must not pick up the abandoned batch.
	n, err := client.LLen(context.Background(), cfg.Queue).Result()
	if err != nil {
		t.Fatalf("LLen() error = %v", err)
	}
	if n != 0 {
		t.Errorf("queue length after timeout = %d, want 0", n)
	}
}

func TestRedisWorker_ServeOneEmptyQueue(t *testing.T) {
	client := setupTestRedis(t)
	worker := NewRedisWorker(client, testRedisConfig(), stubDispatcher{})

	served, err := worker.ServeOne(context.Background())
	if err != nil {
		t.Fatalf("ServeOne() error = %v", err)
	}
	if served {
		t.Error("ServeOne() reported a job on an empty queue")
	}
}

func TestRedisWorker_InvalidJob(t *testing.T) {
	client := setupTestRedis(t)
	cfg := testRedisConfig()
	ctx := context.Background()

	if err := client.LPush(ctx, cfg.Queue, "not msgpack").Err(); err != nil {
		t.Fatal(err)
	}

	worker := NewRedisWorker(client, cfg, stubDispatcher{})
	served, err := worker.ServeOne(ctx)
	if err == nil {
		t.Error("ServeOne() expected error for invalid job")
	}
	if !served {
		t.Error("ServeOne() should report the invalid job as taken")
	}
}
