// Package eventbus implements the Event Bus (spec §4.8): a
// single-process pub/sub hub that multiplexes alarm events to the Event
// Store, to WebSocket subscribers, and to an optional callback, none of
// which may block the producer.
package eventbus

import (
	"context"
	"sync"

	"github.com/clustermon/clustermon/internal/eventstore"
	"github.com/clustermon/clustermon/internal/metrics"
	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/pkg/logger"
)

// defaultQueueDepth is the bounded in-memory queue depth between
// Publish and the worker that fans out to the three outputs (spec §5
// "Backpressure... bounded by a configurable depth (default 1024)").
const defaultQueueDepth = 1024

// Callback is the optional third fan-out target (spec §4.8 step 3).
type Callback func(ctx context.Context, ev model.AlarmEvent)

// Bus is the Event Bus.
type Bus struct {
	store    *eventstore.Store
	hub      *Hub
	callback Callback
	log      *logger.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	queue    []model.AlarmEvent
	notifyCh chan struct{}
	depth    int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Bus. hub may be nil to disable WebSocket broadcast
// (used by tests). callback may be nil.
func New(store *eventstore.Store, hub *Hub, callback Callback, log *logger.Logger) *Bus {
	b := &Bus{
		store:    store,
		hub:      hub,
		callback: callback,
		log:      log,
		notifyCh: make(chan struct{}, 1),
		depth:    defaultQueueDepth,
		stopCh:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.drain()
	return b
}

// WithMetrics attaches a metrics sink for the emitted-events counter.
func (b *Bus) WithMetrics(m *metrics.Metrics) *Bus {
	b.metrics = m
	return b
}

// Publish enqueues an event for asynchronous fan-out (spec §4.8, §5
// "never block the producer"). Within one fingerprint the caller (the
// Rule Engine / Liveness Monitor) holds its own lock across transition +
// Publish, so ordering per fingerprint is preserved by call order here;
// the bus itself processes its queue strictly FIFO.
func (b *Bus) Publish(ctx context.Context, ev model.AlarmEvent) {
	b.mu.Lock()
	if len(b.queue) >= b.depth {
		b.dropOldestNonFiringLocked()
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.notifyCh <- struct{}{}:
	default:
	}
}

// dropOldestNonFiringLocked evicts the oldest non-firing event to make
// room, or logs and leaves the queue over-depth if every queued event is
// firing (spec §5 "firing events are never silently dropped").
func (b *Bus) dropOldestNonFiringLocked() {
	for i, ev := range b.queue {
		if ev.Status != model.StatusFiring {
			b.log.WithField("fingerprint", ev.Fingerprint).Warn("event bus queue full, dropping oldest non-firing event")
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			return
		}
	}
	b.log.Warn("event bus queue full and every queued event is firing; queue growing past configured depth")
}

func (b *Bus) drain() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case <-b.notifyCh:
			b.drainOnce(context.Background())
		}
	}
}

func (b *Bus) drainOnce(ctx context.Context) {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		ev := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.fanOut(ctx, ev)
	}
}

// fanOut invokes the three outputs in order (spec §4.8).
func (b *Bus) fanOut(ctx context.Context, ev model.AlarmEvent) {
	if b.metrics != nil {
		b.metrics.RecordEventEmitted(string(ev.Status))
	}

	if err := b.store.Process(ctx, ev); err != nil {
		b.log.WithField("fingerprint", ev.Fingerprint).WithField("error", err).Warn("event persistence failed")
	}

	if b.hub != nil {
		b.hub.Broadcast(ev)
	}

	if b.callback != nil {
		b.callback(ctx, ev)
	}
}

// Stop drains remaining events synchronously then stops the worker.
func (b *Bus) Stop() {
	close(b.stopCh)
	b.wg.Wait()
	b.drainOnce(context.Background())
}
