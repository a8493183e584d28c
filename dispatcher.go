// Handler registry and dispatcher. Hosts one long-lived consumer loop
// per registered handler, sharing a single bus connection, over an
// arbitrary set of (stream, group, event_type) handler descriptors
// built by an explicit registry rather than package introspection.
package sagabus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Group start ids: "$" for production (only
// entries appended after group creation), "0" for tests (replay
// everything already on the stream).
const (
	GroupStartIDProduction = "$"
	GroupStartIDTest       = "0"
)

// HandlerDescriptor is a registered handler.
// EventType is an optional filter: when set, entries whose event_type
// differs are skipped (not acked) so other handlers on the same shared
// topic still see them.
type HandlerDescriptor struct {
	Name      string
	Stream    string
	Group     string
	EventType string // optional
	Fn        Handler
}

// Registry is the explicit, process-scoped list of handler descriptors:
// a single list built at startup that maps (stream, group, event_type)
// to handler function, wired by the composition root.
type Registry struct {
	mu          sync.RWMutex
	descriptors []HandlerDescriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds d to the registry. Descriptors missing Stream, Group or
// Fn are rejected with an error rather than silently skipped at
// dispatch time, so misconfiguration surfaces at startup.
func (r *Registry) Register(d HandlerDescriptor) error {
	if d.Stream == "" || d.Group == "" || d.Fn == nil {
		return fmt.Errorf("sagabus: handler %q missing stream, group, or fn", d.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = append(r.descriptors, d)
	return nil
}

// Descriptors returns a snapshot of the registered handlers.
func (r *Registry) Descriptors() []HandlerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HandlerDescriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// DispatcherConfig configures the per-handler consumer loops.
type DispatcherConfig struct {
	Consumer          string        // consumer name; defaults to "listener"
	Count             int64         // entries per read, default 10
	BlockTimeout      time.Duration // default 1s
	ReadErrorBackoff  time.Duration // default 100ms, after a transient read error
	ReclaimerInterval time.Duration // default 30s
	IdleTimeout       time.Duration // default 60s, minimum idle before reclaim
	MaxDeliveries     int           // default 5; beyond this a reclaimed entry is dead-lettered, not reprocessed
}

// DefaultDispatcherConfig returns the documented defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Consumer:          "listener",
		Count:             10,
		BlockTimeout:      time.Second,
		ReadErrorBackoff:  100 * time.Millisecond,
		ReclaimerInterval: 30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxDeliveries:     5,
	}
}

// Dispatcher runs every registered handler's consumer loop concurrently
// over a single shared bus connection.
type Dispatcher struct {
	bus    *BusClient
	reg    *Registry
	cfg    DispatcherConfig
	logger *Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher constructs a dispatcher over bus and reg.
func NewDispatcher(bus *BusClient, reg *Registry, cfg DispatcherConfig) *Dispatcher {
	if cfg.Consumer == "" {
		cfg.Consumer = "listener"
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = time.Second
	}
	if cfg.ReadErrorBackoff <= 0 {
		cfg.ReadErrorBackoff = 100 * time.Millisecond
	}
	if cfg.ReclaimerInterval <= 0 {
		cfg.ReclaimerInterval = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}
	return &Dispatcher{bus: bus, reg: reg, cfg: cfg, logger: NewLogger("dispatcher")}
}

// Run starts one goroutine per registered handler and blocks until ctx is
// canceled; in-flight handler invocations are allowed to finish so the
// ack/non-ack decision for each is never abandoned mid-flight.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("sagabus: dispatcher already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	for _, desc := range d.reg.Descriptors() {
		d.wg.Add(1)
		go func(desc HandlerDescriptor) {
			defer d.wg.Done()
			d.runLoop(loopCtx, desc)
		}(desc)
	}

	<-loopCtx.Done()
	d.wg.Wait()

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	return nil
}

// Stop signals every handler loop to exit on its next iteration.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runLoop is the per-handler read/dispatch/ack loop.
func (d *Dispatcher) runLoop(ctx context.Context, desc HandlerDescriptor) {
	log := d.logger.With("handler", desc.Name, "stream", desc.Stream, "group", desc.Group)
	log.Info("handler loop starting")

	for {
		select {
		case <-ctx.Done():
			log.Info("handler loop stopping")
			return
		default:
		}

		streams, err := d.bus.ReadGroup(ctx, desc.Stream, desc.Group, d.cfg.Consumer, ">", d.cfg.Count, d.cfg.BlockTimeout)
		if err != nil {
			log.Warn("read_group error, retrying", "error", err)
			select {
			case <-time.After(d.cfg.ReadErrorBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, s := range streams {
			for _, re := range s.Entries {
				entriesRead.WithLabelValues(desc.Name, desc.Stream).Inc()
				d.handleEntry(ctx, desc, log, re)
			}
		}
	}
}

func (d *Dispatcher) handleEntry(ctx context.Context, desc HandlerDescriptor, log *Logger, re ReadEntry) {
	entry := ParseEntry(re.ID, re.Fields)

	if desc.EventType != "" && entry.EventType != desc.EventType {
		// Skip without acking so other handlers/groups on the same
		// shared topic still see the entry.
		entriesSkipped.WithLabelValues(desc.Name, desc.Stream).Inc()
		log.Debug("skipping entry: event_type mismatch", "entry_id", re.ID, "event_type", entry.EventType, "want", desc.EventType)
		return
	}

	_, err := desc.Fn(ctx, re.Fields)
	if err != nil {
		// Do not ack; the bus redelivers after the pending-entry idle
		// timeout.
		entriesFailed.WithLabelValues(desc.Name, desc.Stream).Inc()
		log.Error("handler failed, entry not acked", "entry_id", re.ID, "error", err)
		return
	}

	if err := d.bus.Ack(context.WithoutCancel(ctx), desc.Stream, desc.Group, re.ID); err != nil {
		log.Error("ack failed", "entry_id", re.ID, "error", err)
		return
	}
	entriesAcked.WithLabelValues(desc.Name, desc.Stream).Inc()
}

// RunReclaimer periodically reclaims entries that have been pending
// longer than IdleTimeout and redelivers them to this dispatcher's
// consumer, or dead-letters them once MaxDeliveries is exceeded.
func (d *Dispatcher) RunReclaimer(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ReclaimerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.reclaimOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) reclaimOnce(ctx context.Context) {
	for _, desc := range d.reg.Descriptors() {
		pending, err := d.bus.PendingIdle(ctx, desc.Stream, desc.Group, d.cfg.IdleTimeout, 10)
		if err != nil {
			continue
		}

		for _, p := range pending {
			claimed, err := d.bus.Claim(ctx, desc.Stream, desc.Group, d.cfg.Consumer, d.cfg.IdleTimeout, []string{p.ID})
			if err != nil || len(claimed) == 0 {
				continue
			}

			if int(p.RetryCount) > d.cfg.MaxDeliveries {
				d.moveToDeadLetter(ctx, desc, claimed[0])
				continue
			}
			d.handleEntry(ctx, desc, d.logger.With("handler", desc.Name), claimed[0])
		}
	}
}

func (d *Dispatcher) moveToDeadLetter(ctx context.Context, desc HandlerDescriptor, re ReadEntry) {
	dlStream := desc.Stream + ":dead-letter"
	fields := re.Fields
	fields["original_id"] = re.ID
	_, _ = d.bus.Append(ctx, dlStream, fields, 0, 0)
	_ = d.bus.Ack(ctx, desc.Stream, desc.Group, re.ID)
}
