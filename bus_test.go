package sagabus

import (
	"testing"
	"time"
)

func TestBusAppendAndReadGroup(t *testing.T) {
	bus := requireRedis(t)
	stream := testPrefix + ":bus:" + newRequestID()
	group := "g1"

	id, err := bus.Append(testCtx, stream, Fields{"event_type": "resources:allocate", "payload": "{}"}, 0, 0)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty entry id")
	}

	if _, err := bus.CreateGroup(testCtx, stream, group, "0"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	streams, err := bus.ReadGroup(testCtx, stream, group, "consumer-1", ">", 10, time.Second)
	if err != nil {
		t.Fatalf("ReadGroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Entries) != 1 {
		t.Fatalf("expected 1 stream with 1 entry, got %+v", streams)
	}
	if streams[0].Entries[0].Fields["event_type"] != "resources:allocate" {
		t.Errorf("unexpected fields: %+v", streams[0].Entries[0].Fields)
	}

	if err := bus.Ack(testCtx, stream, group, streams[0].Entries[0].ID); err != nil {
		t.Fatalf("Ack: %v", err)
	}
}

func TestBusCreateGroupIdempotent(t *testing.T) {
	bus := requireRedis(t)
	stream := testPrefix + ":bus:" + newRequestID()
	group := "g1"

	if _, err := bus.CreateGroup(testCtx, stream, group, "0"); err != nil {
		t.Fatalf("first CreateGroup: %v", err)
	}
	created, err := bus.CreateGroup(testCtx, stream, group, "0")
	if err != nil {
		t.Fatalf("duplicate CreateGroup should not error, got: %v", err)
	}
	if created {
		t.Error("expected duplicate CreateGroup to report created=false")
	}
}

func TestBusReadGroupFromBlankIsEmpty(t *testing.T) {
	bus := requireRedis(t)
	stream := testPrefix + ":bus:" + newRequestID()
	group := "g1"

	if _, err := bus.CreateGroup(testCtx, stream, group, "$"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	streams, err := bus.ReadGroup(testCtx, stream, group, "consumer-1", ">", 10, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadGroup: %v", err)
	}
	if len(streams) != 0 {
		t.Errorf("expected no entries on an empty group read, got %+v", streams)
	}
}

func TestBusStreamLen(t *testing.T) {
	bus := requireRedis(t)
	stream := testPrefix + ":bus:" + newRequestID()

	for i := 0; i < 3; i++ {
		if _, err := bus.Append(testCtx, stream, Fields{"event_type": "x", "payload": "{}"}, 0, 0); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	n, err := bus.StreamLen(testCtx, stream)
	if err != nil {
		t.Fatalf("StreamLen: %v", err)
	}
	if n != 3 {
		t.Errorf("StreamLen = %d, want 3", n)
	}
}

func TestBusPendingIdleAndClaim(t *testing.T) {
	bus := requireRedis(t)
	stream := testPrefix + ":bus:" + newRequestID()
	group := "g1"

	if _, err := bus.Append(testCtx, stream, Fields{"event_type": "x", "payload": "{}"}, 0, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := bus.CreateGroup(testCtx, stream, group, "0"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := bus.ReadGroup(testCtx, stream, group, "consumer-1", ">", 10, time.Second); err != nil {
		t.Fatalf("ReadGroup: %v", err)
	}

	pending, err := bus.PendingIdle(testCtx, stream, group, 0, 10)
	if err != nil {
		t.Fatalf("PendingIdle: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending entry, got %d", len(pending))
	}

	claimed, err := bus.Claim(testCtx, stream, group, "consumer-2", 0, []string{pending[0].ID})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed entry, got %d", len(claimed))
	}
}

func TestWaitForBusReachable(t *testing.T) {
	bus := requireRedis(t)
	if err := bus.WaitForBus(testCtx, 2*time.Second); err != nil {
		t.Fatalf("WaitForBus: %v", err)
	}
}
