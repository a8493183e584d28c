// Multi-stage reply wrapper: decorates a step handler so that
// invocation emits start, optional progress, and a terminal
// completed/failed on the command's nominated reply stream. Reworked
// from a signature-introspecting decorator into an explicit two-case
// interface, since Go has no runtime parameter introspection.
package sagabus

import (
	"context"
)

// ProgressFunc emits a progress event carrying a completion fraction and
// optional extra payload fields.
type ProgressFunc func(ctx context.Context, fraction float64, extra map[string]any) error

// Handler is a step handler with no progress reporting.
type Handler func(ctx context.Context, fields Fields) (map[string]any, error)

// ProgressHandler is a step handler that reports progress via the
// callback it's given.
type ProgressHandler func(ctx context.Context, fields Fields, progress ProgressFunc) (map[string]any, error)

// StepFunc is implemented by exactly one of Handler or ProgressHandler;
// MultiStageWrap type-switches on it to decide whether to synthesize a
// progress callback.
type StepFunc interface{}

// MultiStageWrap wraps fn so that every invocation emits the fixed
// start/progress*/terminal lifecycle to the reply_stream named in
// the command's fields. If reply_stream is absent, fn is invoked directly
// and no events are emitted.
//
// The wrapper guarantees exactly one of completed/failed is emitted per
// invocation: both exit paths (normal return, panic-free error return)
// write a terminal event before returning control to the caller.
func MultiStageWrap(bus *BusClient, fn StepFunc) Handler {
	return func(ctx context.Context, fields Fields) (map[string]any, error) {
		replyStream := fields["reply_stream"]
		correlationID := fields["correlation_id"]
		sagaID := fields["saga_id"]
		eventType := fields["event_type"]
		requestID := fields["request_id"]
		traceparent := fields["traceparent"]

		if replyStream == "" {
			return invokeStep(ctx, fn, fields, nil)
		}

		emit := func(status EventStatus, payload any) {
			ev, err := BuildEvent(correlationID, sagaID, eventType, status, payload, requestID, traceparent)
			if err != nil {
				return
			}
			_, _ = bus.Append(ctx, replyStream, ev, 0, 0)
		}

		emit(StatusStart, map[string]any{})

		progress := func(pctx context.Context, fraction float64, extra map[string]any) error {
			payload := map[string]any{"fraction": fraction}
			for k, v := range extra {
				payload[k] = v
			}
			emit(StatusProgress, payload)
			return nil
		}

		result, err := invokeStep(ctx, fn, fields, progress)
		if err != nil {
			emit(StatusFailed, map[string]any{"error": err.Error()})
			return nil, err
		}

		payload := result
		if payload == nil {
			payload = map[string]any{}
		}
		emit(StatusCompleted, payload)
		return result, nil
	}
}

// invokeStep dispatches to whichever concrete StepFunc shape fn is.
func invokeStep(ctx context.Context, fn StepFunc, fields Fields, progress ProgressFunc) (map[string]any, error) {
	switch h := fn.(type) {
	case Handler:
		return h(ctx, fields)
	case ProgressHandler:
		if progress == nil {
			progress = func(context.Context, float64, map[string]any) error { return nil }
		}
		return h(ctx, fields, progress)
	default:
		return nil, NewError(ErrHandlerFailed, "step function is neither Handler nor ProgressHandler", fields["request_id"], fields["saga_id"])
	}
}
