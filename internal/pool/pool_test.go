package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clustermon/clustermon/internal/apierr"
	"github.com/clustermon/clustermon/pkg/config"
	"github.com/clustermon/clustermon/pkg/logger"
)

// fakeConn is a trivial Conn used to exercise the pool without a real
// backend driver.
type fakeConn struct {
	id     int
	closed atomic.Bool
	pingErr error
}

func (c *fakeConn) Ping(ctx context.Context) error { return c.pingErr }
func (c *fakeConn) Close() error                   { c.closed.Store(true); return nil }

func testLogger() *logger.Logger { return logger.NewDefault("pool-test") }

func newCountingOpener() (Opener[*fakeConn], *atomic.Int64) {
	var n atomic.Int64
	return func(ctx context.Context) (*fakeConn, error) {
		id := int(n.Add(1))
		return &fakeConn{id: id}, nil
	}, &n
}

func testConfig() config.PoolConfig {
	return config.PoolConfig{
		MinConnections:      1,
		MaxConnections:      2,
		InitialConnections:  1,
		ConnectionTimeout:   time.Second,
		AcquireTimeout:      200 * time.Millisecond,
		IdleTimeout:         time.Hour,
		MaxLifetime:         time.Hour,
		HealthCheckInterval: time.Hour,
		AutoReconnect:       true,
	}
}

func TestPool_AcquireReleaseRoundTrip(t *testing.T) {
	opener, _ := newCountingOpener()
	p := New[*fakeConn]("test", testConfig(), opener, testLogger())
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown(ctx)

	h, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if h.Conn() == nil {
		t.Fatalf("expected non-nil connection")
	}
	h.Release(false)

	stats := p.Stats()
	if stats.Active != 0 {
		t.Fatalf("expected 0 active after release, got %d", stats.Active)
	}
	if stats.Idle != 1 {
		t.Fatalf("expected 1 idle after release, got %d", stats.Idle)
	}
}

func TestPool_AcquireBeforeStart(t *testing.T) {
	opener, _ := newCountingOpener()
	p := New[*fakeConn]("test", testConfig(), opener, testLogger())

	_, err := p.Acquire(context.Background())
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != apierr.CodePoolUnavailable {
		t.Fatalf("expected POOL_UNAVAILABLE, got %v", err)
	}
}

func TestPool_ExhaustionTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	cfg.InitialConnections = 1
	cfg.AcquireTimeout = 50 * time.Millisecond

	opener, _ := newCountingOpener()
	p := New[*fakeConn]("test", cfg, opener, testLogger())
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown(ctx)

	h, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_, err = p.Acquire(ctx)
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != apierr.CodePoolExhausted {
		t.Fatalf("expected POOL_EXHAUSTED, got %v", err)
	}

	h.Release(false)
}

func TestPool_FIFOWaiterHandoff(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	cfg.InitialConnections = 1
	cfg.AcquireTimeout = time.Second

	opener, _ := newCountingOpener()
	p := New[*fakeConn]("test", cfg, opener, testLogger())
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown(ctx)

	h, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h2, err := p.Acquire(ctx)
			if err != nil {
				results <- err
				return
			}
			h2.Release(false)
			results <- nil
		}()
	}

	time.Sleep(20 * time.Millisecond)
	h.Release(false)
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			t.Fatalf("waiter acquire failed: %v", err)
		}
	}
}

func TestPool_BrokenReleaseDiscardsAndReplaces(t *testing.T) {
	cfg := testConfig()
	opener, n := newCountingOpener()
	p := New[*fakeConn]("test", cfg, opener, testLogger())
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown(ctx)

	h, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	conn := h.Conn()
	h.Release(true)

	if !conn.closed.Load() {
		t.Fatalf("expected broken connection to be closed")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if n.Load() >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n.Load() < 2 {
		t.Fatalf("expected a replacement connection to be opened, opener called %d times", n.Load())
	}
}

func TestPool_ShutdownFailsPendingWaiters(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	cfg.InitialConnections = 1
	cfg.AcquireTimeout = 5 * time.Second

	opener, _ := newCountingOpener()
	p := New[*fakeConn]("test", cfg, opener, testLogger())
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	_ = h

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-errCh:
		var apiErr *apierr.Error
		if !errors.As(err, &apiErr) || apiErr.Code != apierr.CodeShutdownInProgress {
			t.Fatalf("expected SHUTDOWN_IN_PROGRESS, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter never unblocked on shutdown")
	}
}

func TestPool_InvariantActiveIdleNeverExceedMax(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 3
	cfg.InitialConnections = 1
	cfg.AcquireTimeout = time.Second

	opener, _ := newCountingOpener()
	p := New[*fakeConn]("test", cfg, opener, testLogger())
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Shutdown(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Acquire(ctx)
			if err != nil {
				return
			}
			time.Sleep(time.Millisecond)
			h.Release(false)
		}()
	}
	wg.Wait()

	stats := p.Stats()
	if stats.Active+stats.Idle > cfg.MaxConnections {
		t.Fatalf("active(%d)+idle(%d) exceeds max(%d)", stats.Active, stats.Idle, cfg.MaxConnections)
	}
}
