package httpapi

import "testing"

func TestDecodeHeartbeat_StrictEnvelope(t *testing.T) {
	body := []byte(`{"api_version":1,"data":{"host_ip":"10.0.0.1","box_id":2,"slot_id":3,"hostname":"node-1"}}`)

	info, err := decodeHeartbeat(body)
	if err != nil {
		t.Fatalf("decodeHeartbeat: %v", err)
	}
	if info.HostIP != "10.0.0.1" || info.BoxID != 2 || info.SlotID != 3 || info.Hostname != "node-1" {
		t.Fatalf("unexpected BoxInfo: %+v", info)
	}
}

func TestDecodeHeartbeat_LenientFallback(t *testing.T) {
	// Not the documented envelope shape, but host_ip/box_id are present
	// at recognizable paths.
	body := []byte(`{"host_ip":"10.0.0.2","box_id":5,"extra_junk":[1,2,3]}`)

	info, err := decodeHeartbeat(body)
	if err != nil {
		t.Fatalf("decodeHeartbeat: %v", err)
	}
	if info.HostIP != "10.0.0.2" || info.BoxID != 5 {
		t.Fatalf("unexpected BoxInfo: %+v", info)
	}
}

func TestDecodeHeartbeat_MissingHostIPFails(t *testing.T) {
	body := []byte(`{"box_id":5}`)
	if _, err := decodeHeartbeat(body); err == nil {
		t.Fatal("expected error for missing host_ip")
	}
}

func TestDecodeResource_StrictEnvelope(t *testing.T) {
	body := []byte(`{"api_version":1,"data":{"host_ip":"10.0.0.1","resource":{"cpu":{"usage_percent":42.5}}}}`)

	hostIP, snap, err := decodeResource(body)
	if err != nil {
		t.Fatalf("decodeResource: %v", err)
	}
	if hostIP != "10.0.0.1" {
		t.Fatalf("hostIP = %q", hostIP)
	}
	if snap.CPU == nil || snap.CPU.UsagePercent != 42.5 {
		t.Fatalf("unexpected CPU sample: %+v", snap.CPU)
	}
}

func TestDecodeResource_LenientRecoversScalarFamiliesOnly(t *testing.T) {
	body := []byte(`{"host_ip":"10.0.0.3","data":{"resource":{"cpu":{"usage_percent":10},"memory":{"usage_percent":20},"disks":"not-a-list"}}}`)

	hostIP, snap, err := decodeResource(body)
	if err != nil {
		t.Fatalf("decodeResource: %v", err)
	}
	if hostIP != "10.0.0.3" {
		t.Fatalf("hostIP = %q", hostIP)
	}
	if snap.CPU == nil || snap.CPU.UsagePercent != 10 {
		t.Fatalf("cpu not recovered: %+v", snap.CPU)
	}
	if snap.Memory == nil || snap.Memory.UsagePercent != 20 {
		t.Fatalf("memory not recovered: %+v", snap.Memory)
	}
	if snap.Disks != nil {
		t.Fatalf("disks should not be leniently recovered, got %+v", snap.Disks)
	}
}

func TestDecodeResource_MissingHostIPFails(t *testing.T) {
	body := []byte(`{"resource":{}}`)
	if _, _, err := decodeResource(body); err == nil {
		t.Fatal("expected error for missing host_ip")
	}
}
