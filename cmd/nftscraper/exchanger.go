package main

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/asdfghjkxd/NFTScraper/pkg/config"
	"github.com/asdfghjkxd/NFTScraper/pkg/dispatch"
	"github.com/asdfghjkxd/NFTScraper/pkg/handoff"
	"github.com/redis/go-redis/v9"
)

// newExchanger builds the configured transport. The returned func releases
// whatever the transport holds open.
func newExchanger(ctx context.Context, cfg *config.Config) (handoff.Exchanger, func(), error) {
	noop := func() {}

	switch cfg.Handoff.Transport {
	case config.TransportInProcess:
		d, err := dispatch.New(cfg.DispatcherConfig())
		if err != nil {
			return nil, noop, err
		}
		return handoff.InProcess{Dispatcher: d}, noop, nil

	case config.TransportFile:
		path, err := resolveDispatcher(cfg.Handoff.DispatcherPath)
		if err != nil {
			return nil, noop, err
		}
		launcher := handoff.NewExecLauncher(path, cfg.DispatcherConfig())
		launcher.Args = []string{"-log-level=" + cfg.Log.Level}
		x, err := handoff.NewFileExchanger(cfg.Files(), launcher, cfg.PollConfig())
		if err != nil {
			return nil, noop, err
		}
		return x, noop, nil

	case config.TransportRedis:
		client := redis.NewClient(cfg.RedisOptions())
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		closeFn := func() { client.Close() }
		return handoff.NewRedisExchanger(client, cfg.RedisKeys(), cfg.PollConfig()), closeFn, nil

	default:
		return nil, noop, fmt.Errorf("unknown transport %q", cfg.Handoff.Transport)
	}
}

// resolveDispatcher makes the dispatcher path absolute. The process runs in
// the handoff directory, where a relative path would resolve differently.
func resolveDispatcher(path string) (string, error) {
	if !strings.ContainsRune(path, filepath.Separator) && !strings.ContainsRune(path, '/') {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return "", fmt.Errorf("dispatcher %q not found: %w", path, err)
		}
		path = resolved
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return abs, nil
}
