package events

import "iter"

// Chip-config event layout (12 bytes):
//
//	data:u32      bit 0 validity, bits 1-31 configuration payload
//	chipID:u8     bits 0-3 chip identifier; 3 reserved bytes follow
//	timestamp:i32 microseconds, 31-bit range
//
// Chip-config events report configuration words read back from neuromorphic
// chip arrays, tagged with the chip they came from.
const (
	chipConfigEventSize = 12

	chipConfigDataShift = 1
	chipConfigDataMask  = 0x7FFFFFFF

	chipConfigChipIDOffset = 4
	chipConfigChipIDShift  = 0
	chipConfigChipIDMask   = 0x0F

	chipConfigTimestampOffset = 8
)

// ChipConfigPacket holds chip-config events.
type ChipConfigPacket struct {
	Packet
}

// AllocateChipConfigPacket allocates a packet for capacity chip-config
// events, all initially invalid.
func AllocateChipConfigPacket(capacity int32, source int16, tsOverflow int32) (*ChipConfigPacket, error) {
	p, err := allocatePacket(TypeChipConfig, capacity, chipConfigEventSize, source, tsOverflow)
	if err != nil {
		return nil, err
	}
	return &ChipConfigPacket{Packet: *p}, nil
}

// AsChipConfig reinterprets a generic packet as a chip-config packet.
func (p *Packet) AsChipConfig() (*ChipConfigPacket, bool) {
	if p.EventType() != TypeChipConfig {
		return nil, false
	}
	return &ChipConfigPacket{Packet: *p}, true
}

// ChipConfigEvent is a view over one event slot; the zero value is the
// not-found sentinel.
type ChipConfigEvent struct {
	pkt *Packet
	off int
}

// Event returns a bounds-checked view of slot n.
func (p *ChipConfigPacket) Event(n int32) (ChipConfigEvent, bool) {
	if !p.checkBounds(n) {
		return ChipConfigEvent{}, false
	}
	return p.at(n), true
}

func (p *ChipConfigPacket) at(n int32) ChipConfigEvent {
	return ChipConfigEvent{pkt: &p.Packet, off: p.eventOffset(n)}
}

func (p *ChipConfigPacket) All() iter.Seq2[int32, ChipConfigEvent] {
	return forwardAll(p.EventNumber(), p.at)
}

func (p *ChipConfigPacket) Valid() iter.Seq2[int32, ChipConfigEvent] {
	return forwardValid(p.EventNumber(), p.at, ChipConfigEvent.IsValid)
}

func (p *ChipConfigPacket) ReverseAll() iter.Seq2[int32, ChipConfigEvent] {
	return reverseAll(p.EventNumber(), p.at)
}

func (p *ChipConfigPacket) ReverseValid() iter.Seq2[int32, ChipConfigEvent] {
	return reverseValid(p.EventNumber(), p.at, ChipConfigEvent.IsValid)
}

func (p *ChipConfigPacket) FindFirst(pred func(ChipConfigEvent) bool) (ChipConfigEvent, bool) {
	_, ev, ok := findFirst(p.Valid(), pred)
	return ev, ok
}

func (e ChipConfigEvent) dataWord() uint32 {
	if e.pkt == nil {
		return 0
	}
	return e.pkt.word32(e.off)
}

func (e ChipConfigEvent) setDataWord(w uint32) {
	if e.pkt == nil {
		return
	}
	e.pkt.setWord32(e.off, w)
}

func (e ChipConfigEvent) IsValid() bool {
	return getField32(e.dataWord(), validMarkShift, validMarkMask) != 0
}

func (e ChipConfigEvent) Validate() {
	if e.pkt != nil {
		e.pkt.validateAt(e.off)
	}
}

func (e ChipConfigEvent) Invalidate() {
	if e.pkt != nil {
		e.pkt.invalidateAt(e.off)
	}
}

func (e ChipConfigEvent) Timestamp() int32 {
	if e.pkt == nil {
		return 0
	}
	return e.pkt.timestampAt(e.off + chipConfigTimestampOffset)
}

func (e ChipConfigEvent) Timestamp64() int64 {
	if e.pkt == nil {
		return 0
	}
	return Timestamp64(e.pkt.TSOverflow(), e.Timestamp())
}

func (e ChipConfigEvent) SetTimestamp(ts int32) {
	if e.pkt != nil {
		e.pkt.setTimestampAt(e.off+chipConfigTimestampOffset, ts)
	}
}

// Data is the 31-bit configuration payload.
func (e ChipConfigEvent) Data() uint32 {
	return getField32(e.dataWord(), chipConfigDataShift, chipConfigDataMask)
}

func (e ChipConfigEvent) SetData(d uint32) {
	e.setDataWord(setField32(e.dataWord(), chipConfigDataShift, chipConfigDataMask, d))
}

// ChipID identifies which chip in the array produced this word.
func (e ChipConfigEvent) ChipID() uint8 {
	if e.pkt == nil {
		return 0
	}
	b := uint32(e.pkt.buf[e.off+chipConfigChipIDOffset])
	return uint8(getField32(b, chipConfigChipIDShift, chipConfigChipIDMask))
}

func (e ChipConfigEvent) SetChipID(id uint8) {
	if e.pkt == nil {
		return
	}
	b := uint32(e.pkt.buf[e.off+chipConfigChipIDOffset])
	e.pkt.buf[e.off+chipConfigChipIDOffset] = byte(setField32(b, chipConfigChipIDShift, chipConfigChipIDMask, uint32(id)))
}
