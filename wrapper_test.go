package sagabus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMultiStageWrapEmitsStartProgressCompleted(t *testing.T) {
	bus := requireRedis(t)
	replyStream := testPrefix + ":wrap:" + newRequestID()
	requestID := newRequestID()

	fn := ProgressHandler(func(ctx context.Context, fields Fields, progress ProgressFunc) (map[string]any, error) {
		if err := progress(ctx, 0.5, map[string]any{"stage": "working"}); err != nil {
			return nil, err
		}
		return map[string]any{"allocated": 2}, nil
	})

	handler := MultiStageWrap(bus, fn)
	fields := Fields{
		"reply_stream":   replyStream,
		"correlation_id": "c1",
		"saga_id":        "s1",
		"event_type":     "resources:allocate",
		"request_id":     requestID,
	}

	if _, err := handler(testCtx, fields); err != nil {
		t.Fatalf("handler: %v", err)
	}

	group := "verify-group"
	if _, err := bus.CreateGroup(testCtx, replyStream, group, "0"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	streams, err := bus.ReadGroup(testCtx, replyStream, group, "verify", ">", 10, time.Second)
	if err != nil {
		t.Fatalf("ReadGroup: %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("expected events on the reply stream, got %+v", streams)
	}

	entries := streams[0].Entries
	if len(entries) != 3 {
		t.Fatalf("expected start, progress, completed (3 events), got %d", len(entries))
	}

	want := []EventStatus{StatusStart, StatusProgress, StatusCompleted}
	for i, re := range entries {
		entry := ParseEntry(re.ID, re.Fields)
		if entry.Status != want[i] {
			t.Errorf("event %d: status = %q, want %q", i, entry.Status, want[i])
		}
		if entry.RequestID != requestID {
			t.Errorf("event %d: request_id = %q, want %q", i, entry.RequestID, requestID)
		}
	}
}

func TestMultiStageWrapEmitsFailedOnError(t *testing.T) {
	bus := requireRedis(t)
	replyStream := testPrefix + ":wrap:" + newRequestID()
	requestID := newRequestID()

	fn := Handler(func(ctx context.Context, fields Fields) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	handler := MultiStageWrap(bus, fn)
	fields := Fields{
		"reply_stream":   replyStream,
		"correlation_id": "c1",
		"saga_id":        "s1",
		"event_type":     "resources:allocate",
		"request_id":     requestID,
	}

	if _, err := handler(testCtx, fields); err == nil {
		t.Fatal("expected handler error to propagate")
	}

	group := "verify-group"
	if _, err := bus.CreateGroup(testCtx, replyStream, group, "0"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	streams, err := bus.ReadGroup(testCtx, replyStream, group, "verify", ">", 10, time.Second)
	if err != nil {
		t.Fatalf("ReadGroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Entries) != 2 {
		t.Fatalf("expected start+failed (2 events), got %+v", streams)
	}

	last := streams[0].Entries[len(streams[0].Entries)-1]
	entry := ParseEntry(last.ID, last.Fields)
	if entry.Status != StatusFailed {
		t.Errorf("terminal status = %q, want failed", entry.Status)
	}
}

func TestMultiStageWrapSuppressesEventsWithoutReplyStream(t *testing.T) {
	bus := requireRedis(t)
	var called bool
	fn := Handler(func(ctx context.Context, fields Fields) (map[string]any, error) {
		called = true
		return map[string]any{"ok": true}, nil
	})

	handler := MultiStageWrap(bus, fn)
	result, err := handler(testCtx, Fields{"event_type": "resources:allocate"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !called {
		t.Error("expected fn to be invoked directly")
	}
	if result["ok"] != true {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestMultiStageWrapRejectsUnknownStepFunc(t *testing.T) {
	bus := requireRedis(t)
	handler := MultiStageWrap(bus, "not-a-handler")
	if _, err := handler(testCtx, Fields{}); err == nil {
		t.Error("expected an error for a StepFunc that is neither Handler nor ProgressHandler")
	}
}
