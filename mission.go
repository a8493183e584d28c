// Mission-start trigger handler: an ordinary registered handler
// whose body launches the five-step mission saga
// (allocate-resources -> plan-route -> perform-exploration ->
// integrate-maps -> release-resources).
package sagabus

import (
	"context"
	"fmt"
	"time"
)

// Reserved stream/group names for the mission topic.
const (
	MissionStream    = "mission:commands"
	MissionGroup     = "mission_orchestrator_group"
	MissionEventType = "mission:start"

	ResourcesStream    = "resources:commands"
	ResourcesReplies   = "resources:replies"
	RoutingStream      = "routing:commands"
	RoutingReplies     = "routing:replies"
	ExplorationStream  = "exploration:commands"
	ExplorationReplies = "exploration:replies"
	MapStream          = "map:commands"
	MapReplies         = "map:replies"
)

// MissionStartPayload is the decoded payload of a mission:start
// command: robot_count and area. correlation_id travels in the
// envelope, not the payload.
type MissionStartPayload struct {
	RobotCount int    `json:"robot_count"`
	Area       string `json:"area"`
}

// MissionSagaResult has the same keys as the result map the trigger
// handler returns; the handler builds that map directly and does not
// use this type.
type MissionSagaResult struct {
	SagaID    string   `json:"saga_id"`
	Completed []string `json:"completed_steps"`
	Status    string   `json:"status"`
}

// NewMissionTriggerHandler builds the registered handler for
// mission:commands / mission_orchestrator_group / mission:start. It
// extracts correlation_id, robot_count, area (failing with
// ErrMissingField if correlation_id is absent) and invokes the saga
// executor with the five-step mission saga built from steps.
func NewMissionTriggerHandler(executor *SagaExecutor, steps []Step, defaultTimeout time.Duration) Handler {
	return func(ctx context.Context, fields Fields) (map[string]any, error) {
		correlationID := fields["correlation_id"]
		if correlationID == "" {
			return nil, NewError(ErrMissingField, "mission:start command missing correlation_id", fields["request_id"], "")
		}

		var payload MissionStartPayload
		_ = DecodePayload([]byte(fields["payload"]), &payload)

		initialVars := map[string]any{
			"robot_count": payload.RobotCount,
			"area":        payload.Area,
		}

		saga, err := executor.Run(ctx, correlationID, steps, defaultTimeout, initialVars)
		if err != nil {
			return nil, fmt.Errorf("mission saga: %w", err)
		}

		return map[string]any{
			"saga_id":        saga.SagaID,
			"completed_steps": saga.Completed,
			"status":         string(saga.Status),
		}, nil
	}
}

// FirstStepLivenessTimeout is the liveness-probe timeout the mission
// saga uses on its first step.
const FirstStepLivenessTimeout = 3 * time.Second

// MissionSagaSteps returns the five-step allocate/plan/explore/integrate/
// release saga, wired against the demo handlers in internal/missiondemo.
// PayloadBuilder closures read robot_count/area out of saga.Vars, which
// the mission trigger handler seeds from the mission:start payload
// before calling the executor.
func MissionSagaSteps(compensations MissionCompensations) []Step {
	return []Step{
		{
			Name:          "allocate_resources",
			CommandStream: ResourcesStream,
			ReplyPrefix:   ResourcesReplies,
			EventType:     "resources:allocate",
			Timeout:       FirstStepLivenessTimeout,
			PayloadBuilder: func(saga *SagaContext) any {
				return map[string]any{"robot_count": saga.Vars["robot_count"]}
			},
			Compensation: compensations.ReleaseResources,
		},
		{
			Name:          "plan_route",
			CommandStream: RoutingStream,
			ReplyPrefix:   RoutingReplies,
			EventType:     "routing:plan",
			PayloadBuilder: func(saga *SagaContext) any {
				return map[string]any{"area": saga.Vars["area"]}
			},
			Compensation: compensations.ReleaseResources,
		},
		{
			Name:          "perform_exploration",
			CommandStream: ExplorationStream,
			ReplyPrefix:   ExplorationReplies,
			EventType:     "exploration:perform",
			PayloadBuilder: func(saga *SagaContext) any {
				return map[string]any{"robot_count": saga.Vars["robot_count"]}
			},
			Compensation: compensations.AbortExploration,
		},
		{
			Name:          "integrate_maps",
			CommandStream: MapStream,
			ReplyPrefix:   MapReplies,
			EventType:     "map:integrate",
			PayloadBuilder: func(*SagaContext) any {
				return map[string]any{}
			},
			Compensation: compensations.RollbackIntegration,
		},
		{
			Name:          "release_resources",
			CommandStream: ResourcesStream,
			ReplyPrefix:   ResourcesReplies,
			EventType:     "resources:release",
			PayloadBuilder: func(*SagaContext) any {
				return map[string]any{}
			},
			Compensation: nil,
		},
	}
}

// MissionCompensations bundles the compensation callables the mission
// saga's steps reference. Kept as a struct of funcs (rather than a
// registry lookup) so the composition root can swap them per test
// scenario.
type MissionCompensations struct {
	ReleaseResources    CompensationFunc
	AbortExploration    CompensationFunc
	RollbackIntegration CompensationFunc
}
