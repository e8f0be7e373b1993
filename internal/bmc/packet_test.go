package bmc

import (
	"encoding/binary"
	"testing"
)

// buildPacket assembles a minimal valid packet with one populated board
// (index 2, matching the seed scenario in spec §8) and zeroed rest.
func buildPacket(t *testing.T, boxID uint32, boardIdx int, ipmbAddr byte, moduleType uint16, sensors []SensorInfo) []byte {
	t.Helper()
	buf := make([]byte, PacketSize)
	binary.LittleEndian.PutUint16(buf[0:2], magicHeadTail)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(PacketSize))

	off := 18 // head+length+sequence+type+timestamp+reserved[4] = 2+2+4+2+4+4
	copy(buf[off:off+16], []byte("chassis-1"))
	off += 16
	binary.LittleEndian.PutUint32(buf[off:off+4], boxID)
	off += 4

	off += fanCount * fanInfoSize // skip fans, leave zeroed

	boardsOff := off
	bOff := boardsOff + boardIdx*boardInfoSize
	buf[bOff] = ipmbAddr
	binary.LittleEndian.PutUint16(buf[bOff+1:bOff+3], moduleType)
	sOff := bOff + 14
	for i, s := range sensors {
		buf[sOff+i*sensorInfoSize] = s.Seq
		buf[sOff+i*sensorInfoSize+1] = s.Type
		copy(buf[sOff+i*sensorInfoSize+2:sOff+i*sensorInfoSize+8], []byte(s.Name))
		buf[sOff+i*sensorInfoSize+8] = byte(s.Value & 0xFF)
		buf[sOff+i*sensorInfoSize+9] = byte((s.Value >> 8) & 0xFF)
		buf[sOff+i*sensorInfoSize+10] = s.AlarmType
	}

	binary.LittleEndian.PutUint16(buf[PacketSize-2:PacketSize], magicHeadTail)
	return buf
}

func TestDecode_SeedScenarioBoard2Sensor(t *testing.T) {
	raw := buildPacket(t, 3, 2, 0x38, 0x1, []SensorInfo{
		{Seq: 1, Type: 2, Name: "TEMP", Value: 0x2C},
	})

	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if p.BoxID != 3 {
		t.Fatalf("expected box_id=3, got %d", p.BoxID)
	}
	board := p.Boards[2]
	if board.IPMBAddr != 0x38 || board.ModuleType != 1 {
		t.Fatalf("expected board 2 populated, got %+v", board)
	}
	sensor := board.Sensors[0]
	if sensor.Name != "TEMP" || sensor.Value != 44 {
		t.Fatalf("expected sensor TEMP=44, got %+v", sensor)
	}

	slot, ok := SlotForIPMB(board.IPMBAddr)
	if !ok || slot != 3 {
		t.Fatalf("expected slot 3 for ipmb 0x38, got %d ok=%v", slot, ok)
	}
	hostIP, ok := HostIP(int(p.BoxID), slot)
	if !ok || hostIP != "192.168.6.69" {
		t.Fatalf("expected host_ip 192.168.6.69, got %q ok=%v", hostIP, ok)
	}
}

func TestDecode_RejectsBadHead(t *testing.T) {
	raw := buildPacket(t, 1, 0, 0x7c, 1, nil)
	raw[0] = 0x00
	if _, err := Decode(raw); err == nil {
		t.Fatalf("expected PacketFormatError for bad head")
	}
}

func TestDecode_RejectsBadLength(t *testing.T) {
	raw := buildPacket(t, 1, 0, 0x7c, 1, nil)
	if _, err := Decode(raw[:len(raw)-4]); err == nil {
		t.Fatalf("expected PacketFormatError for bad length")
	}
}

func TestDecode_RejectsBadTail(t *testing.T) {
	raw := buildPacket(t, 1, 0, 0x7c, 1, nil)
	raw[len(raw)-1] = 0xFF
	if _, err := Decode(raw); err == nil {
		t.Fatalf("expected PacketFormatError for bad tail")
	}
}

func TestDecode_ModuleTypeZeroBoardSkippedByCaller(t *testing.T) {
	raw := buildPacket(t, 1, 0, 0x7c, 0, nil)
	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Boards[0].ModuleType != 0 {
		t.Fatalf("expected module_type 0 preserved for caller to skip")
	}
}

func TestSanitizeSensorName(t *testing.T) {
	cases := map[string]string{
		"TEMP\x00\x00": "TEMP",
		"a-b/c\x00":    "a_b_c",
		"\x00\x00":     "unknown",
	}
	for in, want := range cases {
		if got := sanitizeSensorName([]byte(in)); got != want {
			t.Fatalf("sanitizeSensorName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlotForIPMB_UnknownAddressRejected(t *testing.T) {
	if _, ok := SlotForIPMB(0xFF); ok {
		t.Fatalf("expected unknown ipmb address to be rejected")
	}
}

func TestHostIP_SlotRangesAndFallback(t *testing.T) {
	if ip, ok := HostIP(1, 8); !ok || ip != "192.168.3.5" {
		t.Fatalf("expected 192.168.3.5 for box=1 slot=8, got %q ok=%v", ip, ok)
	}
	if _, ok := HostIP(1, 13); ok {
		t.Fatalf("expected unmapped slot 13 to report ok=false")
	}
}
