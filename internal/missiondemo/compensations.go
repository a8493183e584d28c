package missiondemo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyzhak/sagabus"
)

// CompensationConfig lets a compensation simulate failure, for exercising
// CompensationError policy: logged, never aborts the remaining
// compensation walk.
type CompensationConfig struct {
	ForceFailure bool
}

// ReleaseResourcesCompensation undoes allocate_resources and plan_route —
// both map to freeing the same robot allocation, matching
// original_source/app/orchestrator.py's compensation table where
// release_resources is dispatched after either step fails.
func ReleaseResourcesCompensation(cfg CompensationConfig) sagabus.CompensationFunc {
	return func(ctx context.Context, sagaID, correlationID string, saga *sagabus.SagaContext) (map[string]any, error) {
		if cfg.ForceFailure {
			return nil, fmt.Errorf("release_resources compensation: forced failure")
		}
		slog.Info("compensation: releasing resources", "saga_id", sagaID, "correlation_id", correlationID)
		return map[string]any{"released": true}, nil
	}
}

// AbortExplorationCompensation undoes perform_exploration, grounded in
// original_source's abort_exploration.delay(saga_id).
func AbortExplorationCompensation(cfg CompensationConfig) sagabus.CompensationFunc {
	return func(ctx context.Context, sagaID, correlationID string, saga *sagabus.SagaContext) (map[string]any, error) {
		if cfg.ForceFailure {
			return nil, fmt.Errorf("abort_exploration compensation: forced failure")
		}
		slog.Info("compensation: aborting exploration", "saga_id", sagaID, "correlation_id", correlationID)
		return map[string]any{"aborted": true}, nil
	}
}

// RollbackIntegrationCompensation undoes integrate_maps, grounded in
// original_source's rollback_integration.delay(saga_id).
func RollbackIntegrationCompensation(cfg CompensationConfig) sagabus.CompensationFunc {
	return func(ctx context.Context, sagaID, correlationID string, saga *sagabus.SagaContext) (map[string]any, error) {
		if cfg.ForceFailure {
			return nil, fmt.Errorf("rollback_integration compensation: forced failure")
		}
		slog.Info("compensation: rolling back map integration", "saga_id", sagaID, "correlation_id", correlationID)
		return map[string]any{"rolled_back": true}, nil
	}
}
