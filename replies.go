// Reply reader: blocks on a per-request reply stream until a terminal
// entry arrives or the deadline elapses. A completed terminal returns
// normally; a failed terminal ends the wait too, but as ErrHandlerFailed
// rather than ErrReplyTimeout, so a handler-reported failure is never
// mistaken for degraded silence by the coordinator (see §9 open question
// 1 — this is the "surface failed as an exception at the reader level"
// resolution). Reply streams are always <prefix>:<request_id>, never
// <prefix>:<correlation_id>.
package sagabus

import (
	"context"
	"fmt"
	"time"
)

// ReplyReader reads the lifecycle events a command produced on its
// nominated reply stream.
type ReplyReader struct {
	bus    *BusClient
	logger *Logger
}

// NewReplyReader constructs a reader bound to bus.
func NewReplyReader(bus *BusClient) *ReplyReader {
	return &ReplyReader{bus: bus, logger: NewLogger("reply-reader")}
}

// Read creates the per-reader consumer group,
// loop reading one entry at a time with a block timeout of the remaining
// budget (the retry policy sets the pause after an empty read), ack
// everything observed, and return the first completed
// entry's fields. A failed entry ends the wait with ErrHandlerFailed;
// sustained silence ends it with ErrReplyTimeout.
func (r *ReplyReader) Read(ctx context.Context, replyStream, correlationID, requestID string, timeout time.Duration, strategy RetryStrategy) (Entry, error) {
	ctx, span := startReplySpan(ctx, replyStream, correlationID, requestID, timeout)
	defer span.End()

	log := r.logger.WithRequest(requestID)

	group := fmt.Sprintf("%s.%s.group", replyStream, requestID)
	consumer := fmt.Sprintf("read_replies-%s", requestID)

	if _, err := r.bus.CreateGroup(ctx, replyStream, group, "0"); err != nil {
		return Entry{}, fmt.Errorf("reply reader create group: %w", err)
	}

	if strategy == nil {
		strategy = ExponentialRetry()
	}

	start := time.Now()
	attempt := 0
	var lastDelay time.Duration

	for {
		elapsed := time.Since(start)
		if elapsed >= timeout {
			break
		}

		remaining := timeout - elapsed
		block := remaining
		if block < 0 {
			block = 0
		}

		streams, err := r.bus.ReadGroup(ctx, replyStream, group, consumer, ">", 1, block)
		if err != nil {
			log.Warn("reply reader read error", "error", err)
			continue
		}

		var found Entry
		var foundTerminal bool
		var foundFailed Entry
		var sawFailed bool

		for _, s := range streams {
			for _, re := range s.Entries {
				_ = r.bus.Ack(ctx, replyStream, group, re.ID)

				entry := ParseEntry(re.ID, re.Fields)
				switch entry.Status {
				case StatusCompleted:
					found = entry
					foundTerminal = true
				case StatusStart, StatusProgress:
					log.LifecycleEvent(entry.Status)
				case StatusFailed:
					log.LifecycleEvent(entry.Status)
					foundFailed = entry
					sawFailed = true
				default:
					log.Warn("reply reader: unknown status", "status", entry.Status)
				}
			}
		}

		if foundTerminal {
			return found, nil
		}

		// A failed terminal ends the wait like completed does, but is
		// reported as a distinct HandlerError rather than ErrReplyTimeout
		// — the coordinator only swallows genuine silence (ErrReplyTimeout),
		// so a handler-reported failure still reaches the saga executor as
		// a step failure instead of being mistaken for a degraded success.
		if sawFailed {
			return foundFailed, NewError(ErrHandlerFailed, "step reported failed status", requestID, "")
		}

		if len(streams) > 0 && streamsHaveEntries(streams) {
			// Entries were observed (start/progress or an unknown status)
			// but no terminal yet; keep waiting within budget.
			continue
		}

		attempt++
		elapsed = time.Since(start)
		delay, ok := strategy(attempt, elapsed, lastDelay)
		if !ok {
			break
		}
		delay, ok = clampToBudget(delay, elapsed, timeout)
		if !ok {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
		lastDelay = delay
	}

	log.Error("reply timeout", "correlation_id", correlationID, "timeout", timeout)
	return Entry{}, NewError(ErrReplyTimeout, "no completed reply received within timeout", requestID, "")
}

func streamsHaveEntries(streams []StreamEntries) bool {
	for _, s := range streams {
		if len(s.Entries) > 0 {
			return true
		}
	}
	return false
}
