package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/clustermon/clustermon/internal/eventstore"
	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/pkg/config"
	"github.com/clustermon/clustermon/pkg/logger"
)

func testPoolConfig() config.PoolConfig {
	return config.PoolConfig{
		MaxConnections:      1,
		ConnectionTimeout:   time.Second,
		AcquireTimeout:      time.Second,
		IdleTimeout:         time.Hour,
		MaxLifetime:         time.Hour,
		HealthCheckInterval: time.Hour,
		AutoReconnect:       true,
	}
}

func newMockEventStore(t *testing.T) (*eventstore.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 10; i++ {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(1, 1))
	}

	store, err := eventstore.OpenWithDB(context.Background(), sqlx.NewDb(db, "mysql"), testPoolConfig(), logger.NewDefault("eventbus-test"))
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })
	return store, mock
}

func waitForCond(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func firingEvent(fp string) model.AlarmEvent {
	return model.AlarmEvent{Fingerprint: fp, Status: model.StatusFiring, StartsAt: time.Now()}
}

func resolvedEvent(fp string) model.AlarmEvent {
	now := time.Now()
	return model.AlarmEvent{Fingerprint: fp, Status: model.StatusResolved, StartsAt: now, EndsAt: &now}
}

func TestBus_PublishInvokesCallback(t *testing.T) {
	store, _ := newMockEventStore(t)

	received := make(chan model.AlarmEvent, 1)
	bus := New(store, nil, func(ctx context.Context, ev model.AlarmEvent) {
		received <- ev
	}, logger.NewDefault("eventbus-test"))
	defer bus.Stop()

	bus.Publish(context.Background(), firingEvent("alertname=HighCPU,"))

	select {
	case ev := <-received:
		if ev.Fingerprint != "alertname=HighCPU," {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestBus_QueueOverflowDropsOldestNonFiring(t *testing.T) {
	store, _ := newMockEventStore(t)

	var seen []model.AlarmEvent
	done := make(chan struct{})
	bus := &Bus{
		store: store,
		log:   logger.NewDefault("eventbus-test"),
		depth: 2,
	}
	bus.notifyCh = make(chan struct{}, 1)
	bus.stopCh = make(chan struct{})
	bus.callback = func(ctx context.Context, ev model.AlarmEvent) {
		seen = append(seen, ev)
		if len(seen) == 2 {
			close(done)
		}
	}

	// Fill the queue to depth without draining, by locking the mutex
	// manually and appending directly (bypassing the drain goroutine).
	bus.mu.Lock()
	bus.queue = append(bus.queue, resolvedEvent("a"), resolvedEvent("b"))
	bus.mu.Unlock()

	// Publish a third event past depth: the oldest non-firing ("a")
	// should be evicted, leaving "b" and the new event "c".
	bus.wg.Add(1)
	go bus.drain()
	defer bus.Stop()

	bus.Publish(context.Background(), resolvedEvent("c"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected 2 events fanned out, got %d: %+v", len(seen), seen)
	}

	fps := map[string]bool{}
	for _, ev := range seen {
		fps[ev.Fingerprint] = true
	}
	if fps["a"] {
		t.Fatalf("expected oldest non-firing event 'a' to be dropped, got %+v", seen)
	}
	if !fps["b"] || !fps["c"] {
		t.Fatalf("expected 'b' and 'c' to survive, got %+v", seen)
	}
}

func TestBus_FiringEventsNeverDropped(t *testing.T) {
	store, _ := newMockEventStore(t)

	bus := &Bus{
		store: store,
		log:   logger.NewDefault("eventbus-test"),
		depth: 1,
	}
	bus.notifyCh = make(chan struct{}, 1)
	bus.stopCh = make(chan struct{})

	bus.mu.Lock()
	bus.queue = append(bus.queue, firingEvent("only-firing"))
	bus.mu.Unlock()

	// Attempt to enqueue past depth while every queued event is firing:
	// dropOldestNonFiringLocked must find nothing to evict and leave the
	// queue over-depth rather than drop a firing event.
	bus.dropOldestNonFiringLocked()

	bus.mu.Lock()
	n := len(bus.queue)
	bus.mu.Unlock()

	if n != 1 {
		t.Fatalf("expected firing event to survive eviction attempt, queue len = %d", n)
	}
}
