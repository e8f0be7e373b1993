package model

import "time"

// CPUSample is one row of the cpu stable (spec §4.4).
type CPUSample struct {
	Ts             time.Time `json:"ts"`
	UsagePercent   float64   `json:"usage_percent"`
	LoadAvg1m      float64   `json:"load_avg_1m"`
	LoadAvg5m      float64   `json:"load_avg_5m"`
	LoadAvg15m     float64   `json:"load_avg_15m"`
	CoreCount      int       `json:"core_count"`
	CoreAllocated  int       `json:"core_allocated"`
	Temperature    float64   `json:"temperature"`
	Voltage        float64   `json:"voltage"`
	Current        float64   `json:"current"`
	Power          float64   `json:"power"`
}

// MemorySample is one row of the memory stable.
type MemorySample struct {
	Ts           time.Time `json:"ts"`
	Total        uint64    `json:"total"`
	Used         uint64    `json:"used"`
	Free         uint64    `json:"free"`
	UsagePercent float64   `json:"usage_percent"`
}

// DiskSample is one row of the disk stable, tagged by device/mount_point.
type DiskSample struct {
	Ts           time.Time `json:"ts"`
	Device       string    `json:"device"`
	MountPoint   string    `json:"mount_point"`
	Total        uint64    `json:"total"`
	Used         uint64    `json:"used"`
	Free         uint64    `json:"free"`
	UsagePercent float64   `json:"usage_percent"`
}

// NetworkSample is one row of the network stable, tagged by interface.
type NetworkSample struct {
	Ts        time.Time `json:"ts"`
	Interface string    `json:"interface"`
	RxBytes   uint64    `json:"rx_bytes"`
	TxBytes   uint64    `json:"tx_bytes"`
	RxPackets uint64    `json:"rx_packets"`
	TxPackets uint64    `json:"tx_packets"`
	RxErrors  uint64    `json:"rx_errors"`
	TxErrors  uint64    `json:"tx_errors"`
	RxRate    float64   `json:"rx_rate"`
	TxRate    float64   `json:"tx_rate"`
}

// GPUSample is one row of the gpu stable, tagged by gpu_index/gpu_name.
type GPUSample struct {
	Ts           time.Time `json:"ts"`
	GPUIndex     int       `json:"gpu_index"`
	GPUName      string    `json:"gpu_name"`
	ComputeUsage float64   `json:"compute_usage"`
	MemUsage     float64   `json:"mem_usage"`
	MemUsed      uint64    `json:"mem_used"`
	MemTotal     uint64    `json:"mem_total"`
	Temperature  float64   `json:"temperature"`
	Power        float64   `json:"power"`
}

// ContainerSample is one row of the container stable, tagged by container_id.
type ContainerSample struct {
	Ts           time.Time `json:"ts"`
	ContainerID  string    `json:"container_id"`
	Name         string    `json:"name"`
	CPUPercent   float64   `json:"cpu_percent"`
	MemUsage     uint64    `json:"mem_usage"`
	MemLimit     uint64    `json:"mem_limit"`
}

// SensorSample is one row of the generic sensor stable, tagged by sensor name.
type SensorSample struct {
	Ts    time.Time `json:"ts"`
	Name  string    `json:"name"`
	Value float64   `json:"value"`
}

// ResourceSnapshot is the JSON body carried by POST /resource (spec §6):
// zero or more samples across every family, all stamped with the same
// collection instant on the node side.
type ResourceSnapshot struct {
	CPU        *CPUSample        `json:"cpu,omitempty"`
	Memory     *MemorySample     `json:"memory,omitempty"`
	Disks      []DiskSample      `json:"disks,omitempty"`
	Networks   []NetworkSample   `json:"networks,omitempty"`
	GPUs       []GPUSample       `json:"gpus,omitempty"`
	Containers []ContainerSample `json:"containers,omitempty"`
	Sensors    []SensorSample    `json:"sensors,omitempty"`
}

// NodeResourceSample is the response shape for latest(host_ip) (spec §4.4):
// the most recent row of each family, with "no data" sentinels for families
// that have never reported for this host.
type NodeResourceSample struct {
	HostIP     string            `json:"host_ip"`
	HasCPUData bool              `json:"has_cpu_data"`
	CPU        *CPUSample        `json:"cpu,omitempty"`
	HasMemData bool              `json:"has_mem_data"`
	Memory     *MemorySample     `json:"memory,omitempty"`
	Disks      []DiskSample      `json:"disks,omitempty"`
	Networks   []NetworkSample   `json:"networks,omitempty"`
	GPUs       []GPUSample       `json:"gpus,omitempty"`
	Containers []ContainerSample `json:"containers,omitempty"`
	Sensors    []SensorSample    `json:"sensors,omitempty"`
}

// FanSample is one row of the BMC fan stable, tagged box_id/fan_seq.
type FanSample struct {
	Ts        time.Time `json:"ts"`
	BoxID     int       `json:"box_id"`
	FanSeq    int       `json:"fan_seq"`
	Speed     uint32    `json:"speed"`
	AlarmType int       `json:"alarm_type"`
	WorkMode  int       `json:"work_mode"`
}

// BMCSensorSample is one row of the BMC sensor stable.
type BMCSensorSample struct {
	Ts         time.Time `json:"ts"`
	BoxID      int       `json:"box_id"`
	SlotID     int       `json:"slot_id"`
	SensorSeq  int       `json:"sensor_seq"`
	SensorName string    `json:"sensor_name"`
	SensorType int       `json:"sensor_type"`
	HostIP     string    `json:"host_ip"`
	Value      float64   `json:"sensor_value"`
	AlarmType  int       `json:"alarm_type"`
}
