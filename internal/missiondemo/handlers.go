// Package missiondemo implements the five opaque step handlers the
// mission saga exercises: allocate-resources, plan-route,
// perform-exploration, integrate-maps, release-resources. Per spec.md
// framing, the business logic of each step is out of scope for the
// core runtime — these are deliberately simple (simulate brief work,
// return a result map), grounded in
// original_source/app/command_handlers/handlers/*.py, and are wired into
// the cmd/orchestrator binary to drive the mission saga end to end.
package missiondemo

import (
	"context"
	"fmt"
	"time"

	"github.com/hyzhak/sagabus"
)

// StepConfig lets a demo step simulate the work it stands in for, and —
// for deterministic exercise of saga compensation — force a
// failure. This mirrors original_source/app/orchestrator.py's
// `fail_steps` testing hook; it is a demo/test affordance only, not a
// library feature.
type StepConfig struct {
	WorkDuration time.Duration
	ForceFailure bool
}

// AllocateResources handles resources:allocate on resources:commands /
// resources_handler_group.
func AllocateResources(cfg StepConfig) sagabus.ProgressHandler {
	return func(ctx context.Context, fields sagabus.Fields, progress sagabus.ProgressFunc) (map[string]any, error) {
		if cfg.ForceFailure {
			return nil, fmt.Errorf("allocate_resources: forced failure")
		}
		_ = progress(ctx, 0.5, map[string]any{"stage": "allocating"})
		simulateWork(ctx, cfg.WorkDuration)
		var payload struct {
			RobotCount int `json:"robot_count"`
		}
		_ = sagabus.DecodePayload([]byte(fields["payload"]), &payload)
		return map[string]any{"allocated": payload.RobotCount}, nil
	}
}

// PlanRoute handles routing:plan on routing:commands / routing_handler_group.
func PlanRoute(cfg StepConfig) sagabus.ProgressHandler {
	return func(ctx context.Context, fields sagabus.Fields, progress sagabus.ProgressFunc) (map[string]any, error) {
		if cfg.ForceFailure {
			return nil, fmt.Errorf("plan_route: forced failure")
		}
		_ = progress(ctx, 0.5, map[string]any{"stage": "planning"})
		simulateWork(ctx, cfg.WorkDuration)
		var payload struct {
			Area string `json:"area"`
		}
		_ = sagabus.DecodePayload([]byte(fields["payload"]), &payload)
		return map[string]any{"route": "route-through-" + payload.Area}, nil
	}
}

// PerformExploration handles exploration:perform on exploration:commands
// / exploration_handler_group.
func PerformExploration(cfg StepConfig) sagabus.ProgressHandler {
	return func(ctx context.Context, fields sagabus.Fields, progress sagabus.ProgressFunc) (map[string]any, error) {
		if cfg.ForceFailure {
			return nil, fmt.Errorf("perform_exploration: forced failure")
		}
		_ = progress(ctx, 0.5, map[string]any{"stage": "exploring"})
		simulateWork(ctx, cfg.WorkDuration)
		return map[string]any{"explored": true}, nil
	}
}

// IntegrateMaps handles map:integrate on map:commands / map_handler_group.
func IntegrateMaps(cfg StepConfig) sagabus.ProgressHandler {
	return func(ctx context.Context, fields sagabus.Fields, progress sagabus.ProgressFunc) (map[string]any, error) {
		if cfg.ForceFailure {
			return nil, fmt.Errorf("integrate_maps: forced failure")
		}
		_ = progress(ctx, 0.5, map[string]any{"stage": "integrating"})
		simulateWork(ctx, cfg.WorkDuration)
		return map[string]any{"final_map": "merged-map"}, nil
	}
}

// ReleaseResources handles resources:release on resources:commands /
// resources_release_handler_group.
func ReleaseResources(cfg StepConfig) sagabus.ProgressHandler {
	return func(ctx context.Context, fields sagabus.Fields, progress sagabus.ProgressFunc) (map[string]any, error) {
		if cfg.ForceFailure {
			return nil, fmt.Errorf("release_resources: forced failure")
		}
		_ = progress(ctx, 0.5, map[string]any{"stage": "releasing"})
		simulateWork(ctx, cfg.WorkDuration)
		return map[string]any{"released": true}, nil
	}
}

func simulateWork(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
