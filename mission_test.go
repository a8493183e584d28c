package sagabus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMissionTriggerHandlerMissingCorrelationID(t *testing.T) {
	executor := NewSagaExecutor(NewCoordinator(requireRedis(t)))
	handler := NewMissionTriggerHandler(executor, nil, time.Second)

	_, err := handler(context.Background(), Fields{"payload": `{"robot_count":2,"area":"ZoneA"}`})
	if err == nil {
		t.Fatal("expected MissingField error")
	}
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}

func TestMissionTriggerHandlerRunsSagaSteps(t *testing.T) {
	bus := requireRedis(t)
	coordinator := NewCoordinator(bus)
	executor := NewSagaExecutor(coordinator)

	stream := testPrefix + ":mission:cmds:" + newRequestID()
	runAutoWorker(t, bus, stream, nil)

	steps := []Step{
		{Name: "only_step", CommandStream: stream, ReplyPrefix: testPrefix + ":mission:replies", EventType: "step:one"},
	}
	handler := NewMissionTriggerHandler(executor, steps, 3*time.Second)

	result, err := handler(context.Background(), Fields{
		"correlation_id": "c1",
		"payload":        `{"robot_count":2,"area":"ZoneA"}`,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result["status"] != string(SagaSucceeded) {
		t.Errorf("status = %v, want succeeded", result["status"])
	}
}

func TestMissionSagaStepsOrderAndCompensationWiring(t *testing.T) {
	comps := MissionCompensations{
		ReleaseResources:    func(ctx context.Context, sagaID, correlationID string, saga *SagaContext) (map[string]any, error) { return nil, nil },
		AbortExploration:    func(ctx context.Context, sagaID, correlationID string, saga *SagaContext) (map[string]any, error) { return nil, nil },
		RollbackIntegration: func(ctx context.Context, sagaID, correlationID string, saga *SagaContext) (map[string]any, error) { return nil, nil },
	}
	steps := MissionSagaSteps(comps)

	wantOrder := []string{"allocate_resources", "plan_route", "perform_exploration", "integrate_maps", "release_resources"}
	if len(steps) != len(wantOrder) {
		t.Fatalf("expected %d steps, got %d", len(wantOrder), len(steps))
	}
	for i, name := range wantOrder {
		if steps[i].Name != name {
			t.Errorf("step %d: name = %q, want %q", i, steps[i].Name, name)
		}
	}
	if steps[0].Timeout != FirstStepLivenessTimeout {
		t.Errorf("expected the first step to use the liveness-probe timeout, got %v", steps[0].Timeout)
	}
	if steps[len(steps)-1].Compensation != nil {
		t.Error("expected release_resources (the last step) to have no compensation")
	}
}
