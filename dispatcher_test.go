package sagabus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestDispatcherInvokesHandlerAndAcks(t *testing.T) {
	bus := requireRedis(t)
	stream := testPrefix + ":disp:" + newRequestID()
	group := "handler-group"

	var invoked int32
	var mu sync.Mutex
	reg := NewRegistry()
	if err := reg.Register(HandlerDescriptor{
		Name:   "h1",
		Stream: stream,
		Group:  group,
		Fn: func(ctx context.Context, fields Fields) (map[string]any, error) {
			mu.Lock()
			invoked++
			mu.Unlock()
			return map[string]any{"ok": true}, nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := bus.CreateGroup(testCtx, stream, group, GroupStartIDTest); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	entryID, err := bus.Append(testCtx, stream, Fields{"event_type": "x", "payload": "{}"}, 0, 0)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	dispatcher := NewDispatcher(bus, reg, DefaultDispatcherConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := invoked == 1
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("handler was not invoked in time")
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()

	pending, err := bus.PendingIdle(testCtx, stream, group, 0, 10)
	if err != nil {
		t.Fatalf("PendingIdle: %v", err)
	}
	for _, p := range pending {
		if p.ID == entryID {
			t.Error("expected the entry to be acked after a successful handler invocation")
		}
	}
}

func TestDispatcherSkipsMismatchedEventTypeWithoutAck(t *testing.T) {
	bus := requireRedis(t)
	stream := testPrefix + ":disp:" + newRequestID()
	group := "handler-group"

	var invoked bool
	reg := NewRegistry()
	if err := reg.Register(HandlerDescriptor{
		Name:      "h1",
		Stream:    stream,
		Group:     group,
		EventType: "resources:allocate",
		Fn: func(ctx context.Context, fields Fields) (map[string]any, error) {
			invoked = true
			return map[string]any{}, nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := bus.CreateGroup(testCtx, stream, group, GroupStartIDTest); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	entryID, err := bus.Append(testCtx, stream, Fields{"event_type": "resources:release", "payload": "{}"}, 0, 0)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	dispatcher := NewDispatcher(bus, reg, DefaultDispatcherConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	time.Sleep(300 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	if invoked {
		t.Error("expected the handler not to be invoked for a mismatched event_type")
	}

	pending, err := bus.PendingIdle(testCtx, stream, group, 0, 10)
	if err != nil {
		t.Fatalf("PendingIdle: %v", err)
	}
	found := false
	for _, p := range pending {
		if p.ID == entryID {
			found = true
		}
	}
	if !found {
		t.Error("expected the skipped entry to remain un-acked/pending")
	}
}

func TestDispatcherDoesNotAckOnHandlerError(t *testing.T) {
	bus := requireRedis(t)
	stream := testPrefix + ":disp:" + newRequestID()
	group := "handler-group"

	reg := NewRegistry()
	if err := reg.Register(HandlerDescriptor{
		Name:   "h1",
		Stream: stream,
		Group:  group,
		Fn: func(ctx context.Context, fields Fields) (map[string]any, error) {
			return nil, fmt.Errorf("boom")
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := bus.CreateGroup(testCtx, stream, group, GroupStartIDTest); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	entryID, err := bus.Append(testCtx, stream, Fields{"event_type": "x", "payload": "{}"}, 0, 0)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	dispatcher := NewDispatcher(bus, reg, DefaultDispatcherConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	time.Sleep(300 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	pending, err := bus.PendingIdle(testCtx, stream, group, 0, 10)
	if err != nil {
		t.Fatalf("PendingIdle: %v", err)
	}
	found := false
	for _, p := range pending {
		if p.ID == entryID {
			found = true
		}
	}
	if !found {
		t.Error("expected an entry whose handler raised to remain un-acked, awaiting redelivery")
	}
}

func TestRegistryRejectsIncompleteDescriptor(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(HandlerDescriptor{Name: "broken"})
	if err == nil {
		t.Error("expected an error for a descriptor missing stream/group/fn")
	}
}
