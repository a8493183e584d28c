// Envelope codec: builds and parses the well-known stream entry field
// map. payload is always JSON text; no schema is enforced on it
// beyond what the caller's handler expects.
package sagabus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// BuildCommand constructs the field map for a command entry. Commands
// require correlation_id, saga_id, event_type, payload, timestamp;
// request_id, traceparent and reply_stream are optional but always set by
// the coordinator.
func BuildCommand(correlationID, sagaID, eventType string, payload any, requestID, traceparent, replyStream string) (Fields, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal command payload: %w", err)
	}

	f := Fields{
		"correlation_id": correlationID,
		"saga_id":        sagaID,
		"event_type":     eventType,
		"payload":        string(payloadJSON),
		"timestamp":      strconv.FormatInt(time.Now().Unix(), 10),
	}
	if requestID != "" {
		f["request_id"] = requestID
	}
	if traceparent != "" {
		f["traceparent"] = traceparent
	}
	if replyStream != "" {
		f["reply_stream"] = replyStream
	}
	return f, nil
}

// BuildEvent constructs the field map for an event entry. Events require
// correlation_id, saga_id, event_type, status, payload, timestamp.
func BuildEvent(correlationID, sagaID, eventType string, status EventStatus, payload any, requestID, traceparent string) (Fields, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	f := Fields{
		"correlation_id": correlationID,
		"saga_id":        sagaID,
		"event_type":     eventType,
		"status":         string(status),
		"payload":        string(payloadJSON),
		"timestamp":      strconv.FormatInt(time.Now().Unix(), 10),
	}
	if requestID != "" {
		f["request_id"] = requestID
	}
	if traceparent != "" {
		f["traceparent"] = traceparent
	}
	return f, nil
}

// ParseEntry decodes a raw field map (as returned by the bus adapter)
// into an Entry. It does not itself enforce the command-xor-event
// invariant: callers that need to distinguish kinds use
// Entry.IsCommand/IsEvent.
func ParseEntry(entryID string, fields Fields) Entry {
	e := Entry{
		EntryID:       entryID,
		CorrelationID: fields["correlation_id"],
		SagaID:        fields["saga_id"],
		EventType:     fields["event_type"],
		RequestID:     fields["request_id"],
		Traceparent:   fields["traceparent"],
		ReplyStream:   fields["reply_stream"],
		Payload:       []byte(fields["payload"]),
		Status:        EventStatus(fields["status"]),
	}
	if ts, err := strconv.ParseInt(fields["timestamp"], 10, 64); err == nil {
		e.Timestamp = ts
	}
	return e
}

// DecodePayload unmarshals an entry's JSON payload into dst.
func DecodePayload(payload []byte, dst any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, dst)
}

// Encode round-trips an Entry back into the wire field map. Used by
// callers (and tests asserting encode(decode(entry)) == entry) that
// need to re-emit or compare entries.
func (e Entry) Encode() Fields {
	f := Fields{
		"correlation_id": e.CorrelationID,
		"saga_id":        e.SagaID,
		"event_type":     e.EventType,
		"payload":        string(e.Payload),
		"timestamp":      strconv.FormatInt(e.Timestamp, 10),
	}
	if e.RequestID != "" {
		f["request_id"] = e.RequestID
	}
	if e.Traceparent != "" {
		f["traceparent"] = e.Traceparent
	}
	if e.ReplyStream != "" {
		f["reply_stream"] = e.ReplyStream
	}
	if e.Status != "" {
		f["status"] = string(e.Status)
	}
	return f
}
