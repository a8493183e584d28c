// Request/reply coordinator: mints a request id, mints a
// per-request reply stream, emits the command, and delegates to the
// reply reader. On ErrReplyTimeout it degrades to an empty field map
// rather than raising — a deliberate policy choice that lets
// the saga executor treat a silent downstream as "completed without a
// meaningful response".
package sagabus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Coordinator issues request/reply exchanges over the bus.
type Coordinator struct {
	bus    *BusClient
	reader *ReplyReader
	logger *Logger
}

// NewCoordinator constructs a coordinator bound to bus.
func NewCoordinator(bus *BusClient) *Coordinator {
	return &Coordinator{bus: bus, reader: NewReplyReader(bus), logger: NewLogger("coordinator")}
}

// newRequestID mints a 128-bit random hex request id.
func newRequestID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// RequestAndReply mints a request, appends the command, waits for the
// matching reply, and returns its fields end to end.
func (c *Coordinator) RequestAndReply(ctx context.Context, commandStream, replyPrefix, correlationID, sagaID, eventType string, payload any, timeout time.Duration) (Fields, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	requestID := newRequestID()
	replyStream := fmt.Sprintf("%s:%s", replyPrefix, requestID)
	traceparent := requestID
	if tp := traceparentFromContext(ctx); tp != "" {
		traceparent = tp
	}

	fields, err := BuildCommand(correlationID, sagaID, eventType, payload, requestID, traceparent, replyStream)
	if err != nil {
		return nil, fmt.Errorf("request_and_reply: %w", err)
	}

	if _, err := c.bus.Append(ctx, commandStream, fields, 0, 0); err != nil {
		return nil, fmt.Errorf("request_and_reply: append command: %w", err)
	}

	entry, err := c.reader.Read(ctx, replyStream, correlationID, requestID, timeout, ExponentialRetry())
	if err != nil {
		if isReplyTimeout(err) {
			c.logger.WithRequest(requestID).Warn("request_and_reply: degraded empty reply", "correlation_id", correlationID)
			return Fields{}, nil
		}
		return nil, err
	}

	return entry.Encode(), nil
}

func isReplyTimeout(err error) bool {
	for err != nil {
		if err == ErrReplyTimeout {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
