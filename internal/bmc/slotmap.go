package bmc

import "fmt"

// ipmbToSlot is the bijective IPMB address → slot id mapping (spec §4.5).
var ipmbToSlot = map[byte]int{
	0x7c: 1, 0x7a: 2, 0x38: 3, 0x76: 4, 0x34: 5, 0x32: 6, 0x70: 7,
	0x6e: 8, 0x2c: 9, 0x2a: 10, 0x68: 11, 0x26: 12, 0x02: 13, 0x04: 14,
}

// SlotForIPMB returns the slot id for a known IPMB address, or false if
// the address isn't in the mapping (spec §4.5: "unknown → no insert").
func SlotForIPMB(addr byte) (int, bool) {
	slot, ok := ipmbToSlot[addr]
	return slot, ok
}

// hostNumberLow1to7 and hostNumberLow8to12 are the host-number-within-subnet
// lookup tables for the two slot ranges (spec §4.5).
var hostNumberLow1to7 = [...]int{5, 37, 69, 101, 133, 170, 180}
var hostNumberLow8to12 = [...]int{5, 37, 69, 101, 133}

// HostIP derives the node's host_ip from (box_id, slot_id) per spec §4.5.
// Unknown slots fall back to "<subnet>.5" and report ok=false so the
// caller can log a warning.
func HostIP(boxID, slotID int) (string, bool) {
	switch {
	case slotID >= 1 && slotID <= 7:
		subnet := 2 * boxID
		host := hostNumberLow1to7[slotID-1]
		return fmt.Sprintf("192.168.%d.%d", subnet, host), true
	case slotID >= 8 && slotID <= 12:
		subnet := 2*boxID + 1
		host := hostNumberLow8to12[slotID-8]
		return fmt.Sprintf("192.168.%d.%d", subnet, host), true
	default:
		subnet := 2 * boxID
		return fmt.Sprintf("192.168.%d.5", subnet), false
	}
}
