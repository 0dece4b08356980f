package habitauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples the auth operations from sink latency: emitAudit
// enqueues, a single worker goroutine delivers. Drops are accounted per
// event type so operators can tell a flood of rate_limit_triggered events
// from lost session_create records.
type auditDispatcher struct {
	sink        AuditSink
	events      chan AuditEvent
	quit        chan struct{}
	workerDone  chan struct{}
	dropOnFull  bool
	closing     atomic.Bool
	closeOnce   sync.Once
	dropTotal   atomic.Uint64
	dropMu      sync.Mutex
	dropByEvent map[string]uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:        sink,
		events:      make(chan AuditEvent, cfg.BufferSize),
		quit:        make(chan struct{}),
		workerDone:  make(chan struct{}),
		dropOnFull:  cfg.DropIfFull,
		dropByEvent: make(map[string]uint64),
	}

	go d.deliver()

	return d
}

// deliver is the single consumer. On shutdown it drains whatever the auth
// operations managed to enqueue before Close, so a logout immediately
// followed by Engine.Close still reaches the sink.
func (d *auditDispatcher) deliver() {
	defer close(d.workerDone)

	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			for {
				select {
				case event := <-d.events:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event for delivery. With DropIfFull the call never blocks an
// auth operation on a slow sink; the drop is charged to the event's type.
// Without it the call waits, bounded by ctx.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropOnFull {
		select {
		case d.events <- event:
		case <-d.quit:
		default:
			d.recordDrop(event.EventType)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
		d.recordDrop(event.EventType)
	case <-d.quit:
	}
}

// Close stops intake, waits for the worker to drain the queue, and returns.
// Safe to call more than once; Engine.Close relies on that.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.quit)
		<-d.workerDone
	})
}

// Dropped reports how many events were discarded since construction.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropTotal.Load()
}

// DroppedByEvent returns a copy of the per-event-type drop counts.
func (d *auditDispatcher) DroppedByEvent() map[string]uint64 {
	if d == nil {
		return nil
	}

	d.dropMu.Lock()
	defer d.dropMu.Unlock()

	out := make(map[string]uint64, len(d.dropByEvent))
	for eventType, n := range d.dropByEvent {
		out[eventType] = n
	}
	return out
}

func (d *auditDispatcher) recordDrop(eventType string) {
	d.dropTotal.Add(1)

	d.dropMu.Lock()
	d.dropByEvent[eventType]++
	d.dropMu.Unlock()
}
