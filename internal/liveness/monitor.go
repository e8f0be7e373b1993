// Package liveness implements the Liveness Monitor (spec §4.6): a 1s
// cadence scan of the Node Registry that derives each node's
// online/offline status and emits a synthetic NodeOffline alarm on
// transition.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/internal/registry"
	"github.com/clustermon/clustermon/internal/rules"
)

const (
	scanInterval   = 1 * time.Second
	onlineThreshold = 20 * time.Second
)

// Publisher is anything that accepts emitted AlarmEvents.
type Publisher interface {
	Publish(ctx context.Context, ev model.AlarmEvent)
}

// Monitor runs the fixed-cadence liveness scan.
type Monitor struct {
	reg       *registry.Registry
	publisher Publisher

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Monitor.
func New(reg *registry.Registry, publisher Publisher) *Monitor {
	return &Monitor{reg: reg, publisher: publisher, stopCh: make(chan struct{})}
}

// Start launches the scan loop.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop ends the scan loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.scan(ctx)
		}
	}
}

// scan computes dt = now - last_heartbeat for every known node and, on a
// status transition, updates the registry and emits a NodeOffline
// AlarmEvent (spec §4.6). dt == exactly onlineThreshold is still online
// (spec §8 boundary behavior).
func (m *Monitor) scan(ctx context.Context) {
	now := time.Now()
	for _, n := range m.reg.SnapshotAll() {
		dt := now.Sub(n.LastHeartbeat)
		expected := model.NodeOnline
		if dt > onlineThreshold {
			expected = model.NodeOffline
		}
		if expected == n.Status {
			continue
		}

		m.reg.UpdateStatus(n.HostIP, expected)

		labels := map[string]string{"host_ip": n.HostIP}
		fp := rules.Fingerprint("NodeOffline", labels)
		ev := model.AlarmEvent{
			Fingerprint: fp,
			Labels: map[string]string{
				"alertname": "NodeOffline",
				"host_ip":   n.HostIP,
			},
			Annotations: map[string]string{
				"summary": "node " + n.HostIP + " is offline",
			},
		}
		if expected == model.NodeOffline {
			ev.Status = model.StatusFiring
			ev.StartsAt = now
		} else {
			ev.Status = model.StatusResolved
			ev.StartsAt = now
			ev.EndsAt = &now
		}
		m.publisher.Publish(ctx, ev)
	}
}
