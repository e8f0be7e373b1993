// Package bmc implements the BMC Ingestor (spec §4.5): a UDP multicast
// listener that decodes fixed-layout chassis telemetry packets and fans
// them out to the TS Store and the Node Registry.
package bmc

import (
	"encoding/binary"
	"fmt"
)

const (
	magicHeadTail = 0xA55A

	fanCount    = 2
	boardCount  = 14
	sensorCount = 5

	fanInfoSize   = 6  // fan_seq u8, fan_mode u8, speed u32
	sensorInfoSize = 12 // seq u8, type u8, name[6], value_lo u8, value_hi u8, alarm_type u8, reserved u8
	boardInfoSize  = 1 + 2 + 2 + 8 + 1 + sensorCount*sensorInfoSize + 2
	headerSize     = 2 + 2 + 4 + 2 + 4 + 4 + 16 + 4 // head,length,sequence,type,timestamp,reserved[4],box_name[16],box_id

	// PacketSize is sizeof(packet): header + fans + boards + tail(u16).
	PacketSize = headerSize + fanCount*fanInfoSize + boardCount*boardInfoSize + 2
)

// FanInfo is one decoded fan reading (spec §4.5 "FanInfo").
type FanInfo struct {
	Seq       uint8
	AlarmType uint8
	WorkMode  uint8
	Speed     uint32
}

// SensorInfo is one decoded board sensor reading (spec §4.5 "SensorInfo").
type SensorInfo struct {
	Seq       uint8
	Type      uint8
	Name      string
	Value     int32
	AlarmType uint8
}

// BoardInfo is one decoded chassis board (spec §4.5 "BoardInfo").
type BoardInfo struct {
	IPMBAddr   byte
	ModuleType uint16
	BMCCompany uint16
	BMCVersion string
	SensorNum  uint8
	Sensors    []SensorInfo
}

// Packet is a fully decoded BMC telemetry packet.
type Packet struct {
	Sequence  uint32
	Type      uint16
	Timestamp uint32
	BoxName   string
	BoxID     uint32
	Fans      [fanCount]FanInfo
	Boards    [boardCount]BoardInfo
}

// PacketFormatError is returned when head/tail markers or length don't
// match (spec §4.5 "discarded with a warning" / spec §7 PacketFormatError).
type PacketFormatError struct {
	Reason string
}

func (e *PacketFormatError) Error() string { return "bmc: malformed packet: " + e.Reason }

// Decode parses a raw UDP datagram into a Packet. It validates head, tail,
// and exact length before touching any field (spec §8 invariant: every
// accepted packet has head==tail==0xA55A and sizeof(P)==expected).
func Decode(data []byte) (Packet, error) {
	if len(data) != PacketSize {
		return Packet{}, &PacketFormatError{Reason: fmt.Sprintf("length %d != expected %d", len(data), PacketSize)}
	}
	head := binary.LittleEndian.Uint16(data[0:2])
	if head != magicHeadTail {
		return Packet{}, &PacketFormatError{Reason: fmt.Sprintf("bad head marker 0x%04X", head)}
	}
	tail := binary.LittleEndian.Uint16(data[PacketSize-2 : PacketSize])
	if tail != magicHeadTail {
		return Packet{}, &PacketFormatError{Reason: fmt.Sprintf("bad tail marker 0x%04X", tail)}
	}

	var p Packet
	off := 2 // skip head
	off += 2 // length, already validated via len(data)
	p.Sequence = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	p.Type = binary.LittleEndian.Uint16(data[off : off+2])
	off += 2
	p.Timestamp = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	off += 4 // reserved[4]
	p.BoxName = sanitizeASCII(data[off : off+16])
	off += 16
	p.BoxID = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4

	for i := 0; i < fanCount; i++ {
		p.Fans[i] = decodeFan(data[off : off+fanInfoSize])
		off += fanInfoSize
	}
	for i := 0; i < boardCount; i++ {
		b, n := decodeBoard(data[off : off+boardInfoSize])
		p.Boards[i] = b
		off += n
	}
	return p, nil
}

func decodeFan(b []byte) FanInfo {
	mode := b[1]
	return FanInfo{
		Seq:       b[0],
		AlarmType: mode >> 4,
		WorkMode:  mode & 0x0F,
		Speed:     binary.LittleEndian.Uint32(b[2:6]),
	}
}

func decodeBoard(b []byte) (BoardInfo, int) {
	board := BoardInfo{
		IPMBAddr:   b[0],
		ModuleType: binary.LittleEndian.Uint16(b[1:3]),
		BMCCompany: binary.LittleEndian.Uint16(b[3:5]),
		BMCVersion: sanitizeASCII(b[5:13]),
		SensorNum:  b[13],
	}
	off := 14
	board.Sensors = make([]SensorInfo, 0, sensorCount)
	for i := 0; i < sensorCount; i++ {
		board.Sensors = append(board.Sensors, decodeSensor(b[off:off+sensorInfoSize]))
		off += sensorInfoSize
	}
	return board, boardInfoSize
}

func decodeSensor(b []byte) SensorInfo {
	return SensorInfo{
		Seq:       b[0],
		Type:      b[1],
		Name:      sanitizeSensorName(b[2:8]),
		Value:     int32(b[8]) | int32(b[9])<<8,
		AlarmType: b[10],
		// b[11] is reserved.
	}
}

// sanitizeASCII trims at the first null byte; used for box_name/bmc_version
// which are free-form and don't need the underscore substitution sensor
// names get.
func sanitizeASCII(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// sanitizeSensorName stops at the null terminator, replaces any
// non-alphanumeric/non-underscore byte with '_', and falls back to
// "unknown" if the result is empty (spec §4.5 "Sensor names are
// sanitized").
func sanitizeSensorName(b []byte) string {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == 0 {
			break
		}
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "unknown"
	}
	return string(out)
}
