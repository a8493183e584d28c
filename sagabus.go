// Package sagabus implements a saga orchestration runtime on top of a
// log-structured message bus with ordered streams and consumer groups
// (Redis Streams). It provides request/reply messaging with correlation,
// a fixed start/progress/completed/failed event lifecycle per handled
// command, a concurrent handler dispatcher, and a saga executor that runs
// an ordered sequence of request/reply steps with reverse-order
// compensation on failure.
package sagabus

import "time"

// EventStatus is the lifecycle status carried by event entries.
type EventStatus string

const (
	StatusStart     EventStatus = "start"
	StatusProgress  EventStatus = "progress"
	StatusCompleted EventStatus = "completed"
	StatusFailed    EventStatus = "failed"
)

// Config configures a BusClient's connection to the bus and its identity
// within it.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	// Prefix names the namespace this client belongs to. NewBusClient
	// does not apply it to stream or group names, and no default is
	// filled in when it is empty.
	Prefix string
}

// DefaultConfig returns the documented environment defaults.
func DefaultConfig() Config {
	return Config{
		Host:   "localhost",
		Port:   6379,
		Prefix: "sagabus",
	}
}

// Entry is the decoded form of a stream entry. EntryID is the
// server-assigned, monotonically-ordered identifier; the rest mirror
// the field map.
type Entry struct {
	EntryID       string
	CorrelationID string
	SagaID        string
	EventType     string
	RequestID     string
	Traceparent   string
	ReplyStream   string
	Payload       []byte
	Status        EventStatus
	Timestamp     int64
}

// IsCommand reports whether the entry looks like a command: it carries
// event_type and no status. reply_stream is not checked.
func (e Entry) IsCommand() bool {
	return e.EventType != "" && e.Status == ""
}

// IsEvent reports whether the entry looks like an event: it carries a
// status. reply_stream is not checked.
func (e Entry) IsEvent() bool {
	return e.Status != ""
}

// Fields is the wire field map: every value is text, matching the
// bus's string-keyed, string-valued entry model.
type Fields map[string]string

// defaultTimeout is the documented default total reply-wait budget.
const defaultTimeout = 30 * time.Second
