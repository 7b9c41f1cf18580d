package events

import "iter"

// Special event layout (8 bytes):
//
//	data:u32      bit 0 validity, bits 1-7 special type, bits 8-31 payload
//	timestamp:i32 microseconds, 31-bit range
//
// Special events mark out-of-band conditions in the event stream: timestamp
// wraps and resets, external input edges, and row-only readouts.
const (
	specialEventSize = 8

	specialTypeShift = 1
	specialTypeMask  = 0x0000007F
	specialDataShift = 8
	specialDataMask  = 0x00FFFFFF

	specialTimestampOffset = 4
)

// SpecialEventType enumerates the defined special event kinds.
type SpecialEventType uint8

const (
	// SpecialTimestampWrap is the synthetic marker emitted when the 31-bit
	// device timestamp wraps; packets allocated afterwards carry the bumped
	// overflow epoch.
	SpecialTimestampWrap SpecialEventType = 1
	// SpecialTimestampReset marks a device-side timestamp reset to zero.
	SpecialTimestampReset SpecialEventType = 2

	SpecialExternalInputRising  SpecialEventType = 3
	SpecialExternalInputFalling SpecialEventType = 4
	SpecialExternalInputPulse   SpecialEventType = 5

	// SpecialDVSRowOnly encodes the address of a row-only readout; the row
	// address travels in the payload field.
	SpecialDVSRowOnly SpecialEventType = 6
)

// SpecialPacket holds special events.
type SpecialPacket struct {
	Packet
}

// AllocateSpecialPacket allocates a packet for capacity special events, all
// initially invalid.
func AllocateSpecialPacket(capacity int32, source int16, tsOverflow int32) (*SpecialPacket, error) {
	p, err := allocatePacket(TypeSpecial, capacity, specialEventSize, source, tsOverflow)
	if err != nil {
		return nil, err
	}
	return &SpecialPacket{Packet: *p}, nil
}

// AsSpecial reinterprets a generic packet as a special packet.
func (p *Packet) AsSpecial() (*SpecialPacket, bool) {
	if p.EventType() != TypeSpecial {
		return nil, false
	}
	return &SpecialPacket{Packet: *p}, true
}

// SpecialEvent is a view over one event slot; the zero value is the
// not-found sentinel.
type SpecialEvent struct {
	pkt *Packet
	off int
}

// Event returns a bounds-checked view of slot n.
func (p *SpecialPacket) Event(n int32) (SpecialEvent, bool) {
	if !p.checkBounds(n) {
		return SpecialEvent{}, false
	}
	return p.at(n), true
}

func (p *SpecialPacket) at(n int32) SpecialEvent {
	return SpecialEvent{pkt: &p.Packet, off: p.eventOffset(n)}
}

func (p *SpecialPacket) All() iter.Seq2[int32, SpecialEvent] {
	return forwardAll(p.EventNumber(), p.at)
}

func (p *SpecialPacket) Valid() iter.Seq2[int32, SpecialEvent] {
	return forwardValid(p.EventNumber(), p.at, SpecialEvent.IsValid)
}

func (p *SpecialPacket) ReverseAll() iter.Seq2[int32, SpecialEvent] {
	return reverseAll(p.EventNumber(), p.at)
}

func (p *SpecialPacket) ReverseValid() iter.Seq2[int32, SpecialEvent] {
	return reverseValid(p.EventNumber(), p.at, SpecialEvent.IsValid)
}

// FindFirst scans forward and returns the first valid event matching pred.
// The classic use is locating a particular special type in a packet.
func (p *SpecialPacket) FindFirst(pred func(SpecialEvent) bool) (SpecialEvent, bool) {
	_, ev, ok := findFirst(p.Valid(), pred)
	return ev, ok
}

func (e SpecialEvent) data() uint32 {
	if e.pkt == nil {
		return 0
	}
	return e.pkt.word32(e.off)
}

func (e SpecialEvent) setData(w uint32) {
	if e.pkt == nil {
		return
	}
	e.pkt.setWord32(e.off, w)
}

func (e SpecialEvent) IsValid() bool {
	return getField32(e.data(), validMarkShift, validMarkMask) != 0
}

func (e SpecialEvent) Validate() {
	if e.pkt != nil {
		e.pkt.validateAt(e.off)
	}
}

func (e SpecialEvent) Invalidate() {
	if e.pkt != nil {
		e.pkt.invalidateAt(e.off)
	}
}

func (e SpecialEvent) Timestamp() int32 {
	if e.pkt == nil {
		return 0
	}
	return e.pkt.timestampAt(e.off + specialTimestampOffset)
}

func (e SpecialEvent) Timestamp64() int64 {
	if e.pkt == nil {
		return 0
	}
	return Timestamp64(e.pkt.TSOverflow(), e.Timestamp())
}

func (e SpecialEvent) SetTimestamp(ts int32) {
	if e.pkt != nil {
		e.pkt.setTimestampAt(e.off+specialTimestampOffset, ts)
	}
}

// Type is the special event kind.
func (e SpecialEvent) Type() SpecialEventType {
	return SpecialEventType(getField32(e.data(), specialTypeShift, specialTypeMask))
}

func (e SpecialEvent) SetType(t SpecialEventType) {
	e.setData(setField32(e.data(), specialTypeShift, specialTypeMask, uint32(t)))
}

// Data is the 24-bit payload; its meaning depends on Type.
func (e SpecialEvent) Data() uint32 {
	return getField32(e.data(), specialDataShift, specialDataMask)
}

func (e SpecialEvent) SetData(d uint32) {
	e.setData(setField32(e.data(), specialDataShift, specialDataMask, d))
}
