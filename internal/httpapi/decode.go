package httpapi

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/clustermon/clustermon/internal/apierr"
	"github.com/clustermon/clustermon/internal/model"
)

// heartbeatEnvelope is the expected shape of POST /heartbeat's body
// (spec §6 "body {api_version, data: BoxInfo}").
type heartbeatEnvelope struct {
	Data model.BoxInfo `json:"data"`
}

// decodeHeartbeat parses a heartbeat body on the fast path, falling back
// to a lenient gjson extraction of host_ip, the identity integers,
// hostname and hardware_type for a node whose reporting agent uses a slightly different
// schema (SPEC_FULL §4.5.1 "lenient ingestion parsing").
func decodeHeartbeat(body []byte) (model.BoxInfo, error) {
	var env heartbeatEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Data.HostIP != "" {
		return env.Data, nil
	}

	hostIP := firstNonEmpty(body, "data.host_ip", "host_ip")
	if hostIP == "" {
		return model.BoxInfo{}, apierr.New(apierr.CodeInvalidInput, "missing host_ip")
	}
	return model.BoxInfo{
		HostIP:       hostIP,
		BoxID:        int(firstInt(body, "data.box_id", "box_id")),
		SlotID:       int(firstInt(body, "data.slot_id", "slot_id")),
		CPUID:        int(firstInt(body, "data.cpu_id", "cpu_id")),
		SRIOID:       int(firstInt(body, "data.srio_id", "srio_id")),
		Hostname:     firstNonEmpty(body, "data.hostname", "hostname"),
		ServicePort:  int(firstInt(body, "data.service_port", "service_port")),
		HardwareType: firstNonEmpty(body, "data.hardware_type", "hardware_type"),
	}, nil
}

// resourcePayload is the expected shape of POST /resource's `data` field
// (spec §6 "body {api_version, data: {host_ip, resource: ResourceSnapshot}}").
type resourcePayload struct {
	HostIP   string                 `json:"host_ip"`
	Resource model.ResourceSnapshot `json:"resource"`
}

type resourceEnvelope struct {
	Data resourcePayload `json:"data"`
}

// decodeResource parses a resource snapshot body on the fast path,
// falling back to a lenient gjson extraction of host_ip plus the two
// scalar families (cpu, memory) when the full shape doesn't decode —
// array families (disks/networks/gpus/containers/sensors) are not
// leniently recovered, since a malformed list can't be trusted
// element-by-element without the strict schema (SPEC_FULL §4.5.1).
func decodeResource(body []byte) (string, model.ResourceSnapshot, error) {
	var env resourceEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Data.HostIP != "" {
		return env.Data.HostIP, env.Data.Resource, nil
	}

	hostIP := firstNonEmpty(body, "data.host_ip", "host_ip")
	if hostIP == "" {
		return "", model.ResourceSnapshot{}, apierr.New(apierr.CodeInvalidInput, "missing host_ip")
	}

	var snap model.ResourceSnapshot
	if cpuUsage := gjson.GetBytes(body, "data.resource.cpu.usage_percent"); cpuUsage.Exists() {
		snap.CPU = &model.CPUSample{UsagePercent: cpuUsage.Float()}
	}
	if memUsage := gjson.GetBytes(body, "data.resource.memory.usage_percent"); memUsage.Exists() {
		snap.Memory = &model.MemorySample{UsagePercent: memUsage.Float()}
	}
	return hostIP, snap, nil
}

func firstNonEmpty(body []byte, paths ...string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func firstInt(body []byte, paths ...string) int64 {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.Exists() {
			return v.Int()
		}
	}
	return 0
}
