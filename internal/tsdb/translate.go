package tsdb

import (
	"time"

	"github.com/clustermon/clustermon/internal/model"
)

// The driver returns numeric columns as the Go type closest to the
// TDengine column kind (float64 for DOUBLE, int64 for BIGINT/INT,
// string for BINARY). These helpers take those bare scanned values; rows
// from LAST_ROW(*) and SELECT * share the same column keys because
// queryLastRow strips the last_row(...) wrapper from each column name.

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	default:
		return 0
	}
}

func asInt(v any) int {
	switch x := v.(type) {
	case int64:
		return int(x)
	case int32:
		return int(x)
	case int:
		return x
	case float64:
		return int(x)
	default:
		return 0
	}
}

func asUint64(v any) uint64 {
	switch x := v.(type) {
	case int64:
		return uint64(x)
	case uint64:
		return x
	case float64:
		return uint64(x)
	default:
		return 0
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return ""
	}
}

func asTime(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}

func rowToCPU(row map[string]any) model.CPUSample {
	return model.CPUSample{
		Ts: asTime(row["ts"]), UsagePercent: asFloat(row["usage_percent"]),
		LoadAvg1m: asFloat(row["load_avg_1m"]), LoadAvg5m: asFloat(row["load_avg_5m"]), LoadAvg15m: asFloat(row["load_avg_15m"]),
		CoreCount: asInt(row["core_count"]), CoreAllocated: asInt(row["core_allocated"]),
		Temperature: asFloat(row["temperature"]), Voltage: asFloat(row["voltage"]), Current: asFloat(row["current"]), Power: asFloat(row["power"]),
	}
}

func rowToMemory(row map[string]any) model.MemorySample {
	return model.MemorySample{
		Ts: asTime(row["ts"]), Total: asUint64(row["total"]), Used: asUint64(row["used"]),
		Free: asUint64(row["free"]), UsagePercent: asFloat(row["usage_percent"]),
	}
}

func rowToDisk(row map[string]any) model.DiskSample {
	return model.DiskSample{
		Ts: asTime(row["ts"]), Device: asString(row["device"]), MountPoint: asString(row["mount_point"]),
		Total: asUint64(row["total"]), Used: asUint64(row["used"]), Free: asUint64(row["free"]), UsagePercent: asFloat(row["usage_percent"]),
	}
}

func rowToNetwork(row map[string]any) model.NetworkSample {
	return model.NetworkSample{
		Ts: asTime(row["ts"]), Interface: asString(row["interface"]),
		RxBytes: asUint64(row["rx_bytes"]), TxBytes: asUint64(row["tx_bytes"]),
		RxPackets: asUint64(row["rx_packets"]), TxPackets: asUint64(row["tx_packets"]),
		RxErrors: asUint64(row["rx_errors"]), TxErrors: asUint64(row["tx_errors"]),
		RxRate: asFloat(row["rx_rate"]), TxRate: asFloat(row["tx_rate"]),
	}
}

func rowToGPU(row map[string]any) model.GPUSample {
	return model.GPUSample{
		Ts: asTime(row["ts"]), GPUIndex: asInt(row["gpu_index"]), GPUName: asString(row["gpu_name"]),
		ComputeUsage: asFloat(row["compute_usage"]), MemUsage: asFloat(row["mem_usage"]),
		MemUsed: asUint64(row["mem_used"]), MemTotal: asUint64(row["mem_total"]),
		Temperature: asFloat(row["temperature"]), Power: asFloat(row["power"]),
	}
}

func rowToContainer(row map[string]any) model.ContainerSample {
	return model.ContainerSample{
		Ts: asTime(row["ts"]), ContainerID: asString(row["container_id"]), Name: asString(row["name"]),
		CPUPercent: asFloat(row["cpu_percent"]), MemUsage: asUint64(row["mem_usage"]), MemLimit: asUint64(row["mem_limit"]),
	}
}

func rowToSensor(row map[string]any) model.SensorSample {
	return model.SensorSample{Ts: asTime(row["ts"]), Name: asString(row["name"]), Value: asFloat(row["value"])}
}

func rowToFan(row map[string]any) model.FanSample {
	return model.FanSample{
		Ts: asTime(row["ts"]), BoxID: asInt(row["box_id"]), FanSeq: asInt(row["fan_seq"]),
		Speed: uint32(asUint64(row["speed"])), AlarmType: asInt(row["alarm_type"]), WorkMode: asInt(row["work_mode"]),
	}
}

func rowToBMCSensor(row map[string]any) model.BMCSensorSample {
	return model.BMCSensorSample{
		Ts: asTime(row["ts"]), BoxID: asInt(row["box_id"]), SlotID: asInt(row["slot_id"]),
		SensorSeq: asInt(row["sensor_seq"]), SensorName: asString(row["sensor_name"]),
		SensorType: asInt(row["sensor_type"]), HostIP: asString(row["host_ip"]),
		Value: asFloat(row["sensor_value"]), AlarmType: asInt(row["alarm_type"]),
	}
}
