// Bus client adapter: a thin semantic wrapper over Redis Streams and
// consumer groups. Apart from the startup reachability poll in
// startup.go, every other component talks to the bus through BusClient.
package sagabus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// BusClient is the adapter's concrete implementation over a *redis.Client.
type BusClient struct {
	rdb    *redis.Client
	logger *Logger
}

// NewBusClient dials the bus per cfg. The connection is not verified until
// a call is made or WaitForBus is invoked.
func NewBusClient(cfg Config) *BusClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &BusClient{rdb: rdb, logger: NewLogger("bus")}
}

// NewBusClientFromRedis wraps an already-constructed *redis.Client. Used
// by tests and by callers embedding sagabus in a process that already
// owns a Redis connection.
func NewBusClientFromRedis(rdb *redis.Client) *BusClient {
	return &BusClient{rdb: rdb, logger: NewLogger("bus")}
}

// Close releases the underlying connection.
func (b *BusClient) Close() error {
	return b.rdb.Close()
}

// Redis exposes the underlying client for callers that need raw Redis
// operations outside the bus's stream/group vocabulary. Nothing in this
// module calls it.
func (b *BusClient) Redis() *redis.Client {
	return b.rdb
}

// Append appends fields to stream, optionally capping its length
// (approximate MAXLEN) and setting a TTL on the key. Returns the
// server-assigned entry_id.
func (b *BusClient) Append(ctx context.Context, stream string, fields Fields, maxLen int64, ttl time.Duration) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	args := &redis.XAddArgs{Stream: stream, Values: values}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}

	id, err := b.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("append %s: %w", stream, err)
	}
	if ttl > 0 {
		b.rdb.Expire(ctx, stream, ttl)
	}
	return id, nil
}

// CreateGroup creates consumer group `group` on `stream`, starting
// delivery from startID ("$" for new-only, "0" for full replay).
// Duplicate creation is not an error: BUSYGROUP is swallowed and
// reported via the bool return, never an error.
func (b *BusClient) CreateGroup(ctx context.Context, stream, group, startID string) (created bool, err error) {
	err = b.rdb.XGroupCreateMkStream(ctx, stream, group, startID).Err()
	if err != nil {
		if isBusyGroup(err) {
			return false, nil
		}
		return false, fmt.Errorf("create group %s/%s: %w", stream, group, err)
	}
	return true, nil
}

func isBusyGroup(err error) bool {
	return strings.Contains(err.Error(), "BUSYGROUP")
}

// StreamEntries is one stream's worth of entries from a ReadGroup call.
type StreamEntries struct {
	Stream  string
	Entries []ReadEntry
}

// ReadEntry pairs a raw entry_id with its undecoded field map.
type ReadEntry struct {
	ID     string
	Fields Fields
}

// ReadGroup reads up to count entries from stream via the named
// consumer group/consumer, blocking up to block for new entries when
// fromID is ">". fromID may also be a numeric id to replay
// history already delivered to this group/consumer.
func (b *BusClient) ReadGroup(ctx context.Context, stream, group, consumer, fromID string, count int64, block time.Duration) ([]StreamEntries, error) {
	res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, fromID},
		Count:    count,
		Block:    block,
	}).Result()

	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read group %s/%s: %w", stream, group, err)
	}

	out := make([]StreamEntries, 0, len(res))
	for _, s := range res {
		entries := make([]ReadEntry, 0, len(s.Messages))
		for _, m := range s.Messages {
			entries = append(entries, ReadEntry{ID: m.ID, Fields: toFields(m.Values)})
		}
		out = append(out, StreamEntries{Stream: s.Stream, Entries: entries})
	}
	return out, nil
}

func toFields(values map[string]interface{}) Fields {
	f := make(Fields, len(values))
	for k, v := range values {
		switch t := v.(type) {
		case string:
			f[k] = t
		case int64:
			f[k] = strconv.FormatInt(t, 10)
		default:
			f[k] = fmt.Sprintf("%v", t)
		}
	}
	return f
}

// Ack acknowledges entryID on stream/group.
func (b *BusClient) Ack(ctx context.Context, stream, group, entryID string) error {
	if err := b.rdb.XAck(ctx, stream, group, entryID).Err(); err != nil {
		return fmt.Errorf("ack %s/%s/%s: %w", stream, group, entryID, err)
	}
	return nil
}

// PendingIdle lists entries idle for at least minIdle on stream/group, up
// to count entries — the primitive the dispatcher's redelivery path
// builds on.
func (b *BusClient) PendingIdle(ctx context.Context, stream, group string, minIdle time.Duration, count int64) ([]redis.XPendingExt, error) {
	res, err := b.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("pending %s/%s: %w", stream, group, err)
	}
	return res, nil
}

// Claim reassigns idle entries to consumer, for redelivery.
func (b *BusClient) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]ReadEntry, error) {
	msgs, err := b.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("claim %s/%s: %w", stream, group, err)
	}
	out := make([]ReadEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ReadEntry{ID: m.ID, Fields: toFields(m.Values)})
	}
	return out, nil
}

// StreamLen reports the number of entries currently on stream (used by
// the admin HTTP surface's queue-depth endpoint).
func (b *BusClient) StreamLen(ctx context.Context, stream string) (int64, error) {
	return b.rdb.XLen(ctx, stream).Result()
}

// WaitForBus polls the bus with Ping until it answers or timeout
// elapses. Returns ErrBusUnreachable on timeout.
func (b *BusClient) WaitForBus(ctx context.Context, timeout time.Duration) error {
	return waitForBusWithBackoff(ctx, b.rdb, timeout)
}
