// Saga executor: runs an ordered list of request/reply step
// invocations, compensating completed steps in reverse order on
// failure (compensation symmetry).
package sagabus

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newSagaID mints the short saga id: a random hex string truncated to
// 8 characters.
func newSagaID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// CompensationFunc best-effort undoes a previously completed step. It is
// not itself a request/reply exchange by default, though nothing
// stops an implementation from issuing one.
type CompensationFunc func(ctx context.Context, sagaID, correlationID string, saga *SagaContext) (map[string]any, error)

// PayloadBuilder builds a step's command payload from the running saga
// context, so later steps can reference earlier steps' results.
type PayloadBuilder func(saga *SagaContext) any

// Step is one entry in a saga's ordered step list.
type Step struct {
	Name           string
	CommandStream  string
	ReplyPrefix    string
	EventType      string
	PayloadBuilder PayloadBuilder
	Compensation   CompensationFunc
	// Timeout overrides the saga's default per-step reply-wait budget
	// when set (the first step typically uses a shorter liveness-probe
	// timeout).
	Timeout time.Duration
}

// SagaStatus is the saga instance's lifecycle state.
type SagaStatus string

const (
	SagaRunning      SagaStatus = "running"
	SagaSucceeded    SagaStatus = "succeeded"
	SagaCompensating SagaStatus = "compensating"
	SagaFailed       SagaStatus = "failed"
)

// SagaContext is the mutable, in-memory state a single saga instance
// owns exclusively for the duration of its initiating handler's
// invocation. It is never persisted: a process restart loses any
// in-flight saga.
type SagaContext struct {
	SagaID        string
	CorrelationID string
	Status        SagaStatus
	Completed     []string
	Results       map[string]Fields
	Vars          map[string]any
}

// SagaExecutor runs Step sequences against a Coordinator.
type SagaExecutor struct {
	coordinator *Coordinator
	logger      *Logger
}

// NewSagaExecutor constructs an executor bound to coordinator.
func NewSagaExecutor(coordinator *Coordinator) *SagaExecutor {
	return &SagaExecutor{coordinator: coordinator, logger: NewLogger("saga")}
}

// Run executes steps in order against correlationID, minting a fresh
// saga_id. On a step failure it compensates completed steps in reverse
// and returns the triggering error. A degraded empty reply (the
// coordinator's response to a reply timeout) is not a failure: the
// executor proceeds to the next step as if the step had completed.
func (s *SagaExecutor) Run(ctx context.Context, correlationID string, steps []Step, defaultTimeout time.Duration, initialVars map[string]any) (*SagaContext, error) {
	saga := &SagaContext{
		SagaID:        newSagaID(),
		CorrelationID: correlationID,
		Status:        SagaRunning,
		Completed:     make([]string, 0, len(steps)),
		Results:       make(map[string]Fields, len(steps)),
		Vars:          make(map[string]any, len(initialVars)),
	}
	for k, v := range initialVars {
		saga.Vars[k] = v
	}

	log := s.logger.WithSaga(saga.SagaID, correlationID)
	log.Info("saga starting", "steps", len(steps))

	var stepErr error

	for _, step := range steps {
		timeout := step.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}

		var payload any
		if step.PayloadBuilder != nil {
			payload = step.PayloadBuilder(saga)
		}

		fields, err := s.coordinator.RequestAndReply(ctx, step.CommandStream, step.ReplyPrefix, correlationID, saga.SagaID, step.EventType, payload, timeout)
		if err != nil {
			// A genuine handler failure (ErrHandlerFailed) and any other
			// non-degraded error both land here; only ErrReplyTimeout is
			// swallowed by the coordinator before this point.
			stepErr = err
			log.Error("saga step failed", "step", step.Name, "error", err)
			break
		}

		saga.Results[step.Name] = fields
		saga.Completed = append(saga.Completed, step.Name)
		log.Info("saga step completed", "step", step.Name)
	}

	if stepErr == nil {
		saga.Status = SagaSucceeded
		log.Info("saga succeeded")
		return saga, nil
	}

	saga.Status = SagaCompensating
	s.compensate(ctx, saga, steps, log)
	saga.Status = SagaFailed
	return saga, stepErr
}

// compensate walks the completed-steps list in reverse, invoking each
// step's compensation best-effort. The failing step itself is never
// compensated: it was never appended to saga.Completed.
func (s *SagaExecutor) compensate(ctx context.Context, saga *SagaContext, steps []Step, log *Logger) {
	byName := make(map[string]Step, len(steps))
	for _, st := range steps {
		byName[st.Name] = st
	}

	for i := len(saga.Completed) - 1; i >= 0; i-- {
		name := saga.Completed[i]
		step, ok := byName[name]
		if !ok || step.Compensation == nil {
			continue
		}

		if _, err := step.Compensation(ctx, saga.SagaID, saga.CorrelationID, saga); err != nil {
			// Logged, compensation continues with the next step
			// regardless.
			log.Error("compensation failed, continuing", "step", name, "error", err)
			continue
		}
		log.Info("compensation completed", "step", name)
	}
}
