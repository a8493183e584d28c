// Startup behavior: wait for the bus to become reachable, then
// create consumer groups for every registered handler, then start loops.
// The reachability poll is the one place this codebase reaches for a
// generic backoff library rather than the hand-rolled retry policy in
// retry.go: that package's formulas are pinned by monotonicity tests,
// and startup polling has no such contract, just "try roughly every
// second for up to 30s".
package sagabus

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

func waitForBusWithBackoff(ctx context.Context, rdb *redis.Client, timeout time.Duration) error {
	policy := backoff.NewConstantBackOff(time.Second)
	bo := backoff.WithContext(backoff.WithMaxElapsedTime(policy, timeout), ctx)

	op := func() error {
		return rdb.Ping(ctx).Err()
	}

	if err := backoff.Retry(op, bo); err != nil {
		return NewError(ErrBusUnreachable, "bus did not become reachable within startup budget", "", "")
	}
	return nil
}

// StartupConfig bundles what the composition root needs to bring a
// dispatcher up
type StartupConfig struct {
	ReachabilityTimeout time.Duration // default 30s
}

// DefaultStartupConfig returns the documented defaults.
func DefaultStartupConfig() StartupConfig {
	return StartupConfig{ReachabilityTimeout: 30 * time.Second}
}

// Startup waits for the bus, then creates every registered handler's
// consumer group, then returns — the caller starts the dispatcher loops
// afterward. A failure to reach the bus or create a group is fatal and
// surfaces as ErrFatalConfig.
func Startup(ctx context.Context, bus *BusClient, reg *Registry, cfg StartupConfig) error {
	if cfg.ReachabilityTimeout <= 0 {
		cfg.ReachabilityTimeout = 30 * time.Second
	}

	if err := bus.WaitForBus(ctx, cfg.ReachabilityTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrFatalConfig, err)
	}

	for _, d := range reg.Descriptors() {
		if _, err := bus.CreateGroup(ctx, d.Stream, d.Group, GroupStartIDProduction); err != nil {
			return NewError(ErrFatalConfig, "failed to create consumer group for handler "+d.Name, "", "")
		}
	}

	return nil
}
