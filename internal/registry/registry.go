// Package registry implements the Node Registry (spec §4.6): a
// thread-safe, in-memory authoritative map of known nodes keyed by
// host_ip, updated by heartbeats and BMC packets and read by the
// Liveness Monitor and the HTTP query API.
package registry

import (
	"sync"
	"time"

	"github.com/clustermon/clustermon/internal/model"
)

// Registry is the host_ip → NodeRecord map.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*model.NodeRecord
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{nodes: make(map[string]*model.NodeRecord)}
}

// UpsertHeartbeat sets identity fields and refreshes last_heartbeat from
// a BoxInfo payload (spec §4.6 "upsert_heartbeat").
func (r *Registry) UpsertHeartbeat(info model.BoxInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[info.HostIP]
	if !ok {
		n = &model.NodeRecord{HostIP: info.HostIP, Status: model.NodeOnline}
		r.nodes[info.HostIP] = n
	}
	n.BoxID = info.BoxID
	n.SlotID = info.SlotID
	n.CPUID = info.CPUID
	n.SRIOID = info.SRIOID
	n.Hostname = info.Hostname
	n.ServicePort = info.ServicePort
	n.HardwareType = info.HardwareType
	n.GPUs = info.GPUs
	n.LastHeartbeat = time.Now()
}

// BMCBoardUpdate is one valid board's identity derived from a decoded
// BMC packet (spec §4.5 fan-out "per-valid-board update").
type BMCBoardUpdate struct {
	HostIP      string
	BoxID       int
	SlotID      int
	IPMBAddress byte
	ModuleType  uint16
	BMCCompany  uint16
	BMCVersion  string
}

// UpsertFromBMC applies one board's derived identity to the registry,
// creating the record if absent, and refreshes last_heartbeat (spec
// §4.6 "upsert_from_bmc").
func (r *Registry) UpsertFromBMC(update BMCBoardUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[update.HostIP]
	if !ok {
		n = &model.NodeRecord{HostIP: update.HostIP, Status: model.NodeOnline}
		r.nodes[update.HostIP] = n
	}
	n.BoxID = update.BoxID
	n.SlotID = update.SlotID
	n.IPMBAddress = update.IPMBAddress
	n.ModuleType = update.ModuleType
	n.BMCCompany = update.BMCCompany
	n.BMCVersion = update.BMCVersion
	n.LastHeartbeat = time.Now()
}

// Get returns a snapshot copy of one node, or false if unknown.
func (r *Registry) Get(hostIP string) (model.NodeRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[hostIP]
	if !ok {
		return model.NodeRecord{}, false
	}
	return *n, true
}

// SnapshotAll returns a copy of every known node.
func (r *Registry) SnapshotAll() []model.NodeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.NodeRecord, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	return out
}

// SnapshotActive returns only nodes whose last_heartbeat is within
// window of now (spec §4.6 "snapshot_active(window)").
func (r *Registry) SnapshotActive(window time.Duration) []model.NodeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := time.Now()
	out := make([]model.NodeRecord, 0, len(r.nodes))
	for _, n := range r.nodes {
		if now.Sub(n.LastHeartbeat) <= window {
			out = append(out, *n)
		}
	}
	return out
}

// UpdateStatus sets the derived online/offline projection for a node
// (spec §4.6 "update_status"); used by the Liveness Monitor.
func (r *Registry) UpdateStatus(hostIP string, status model.NodeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[hostIP]; ok {
		n.Status = status
	}
}

// HostIPs returns every known host_ip, for the /node/metrics route's
// pagination.
func (r *Registry) HostIPs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.nodes))
	for ip := range r.nodes {
		out = append(out, ip)
	}
	return out
}
