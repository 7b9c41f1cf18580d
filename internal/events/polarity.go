package events

import "iter"

// Polarity event layout (8 bytes):
//
//	data:u32      bit 0 validity, bit 1 polarity, bits 2-16 y, bits 17-31 x
//	timestamp:i32 microseconds, 31-bit range
//
// A polarity event reports a single pixel's brightness change: ON (increase)
// or OFF (decrease) at address (x, y).
const (
	polarityEventSize = 8

	polarityPolarityShift = 1
	polarityPolarityMask  = 0x00000001
	polarityYShift        = 2
	polarityYMask         = 0x00007FFF
	polarityXShift        = 17
	polarityXMask         = 0x00007FFF

	polarityTimestampOffset = 4
)

// PolarityPacket holds polarity events.
type PolarityPacket struct {
	Packet
}

// AllocatePolarityPacket allocates a packet for capacity polarity events, all
// initially invalid.
func AllocatePolarityPacket(capacity int32, source int16, tsOverflow int32) (*PolarityPacket, error) {
	p, err := allocatePacket(TypePolarity, capacity, polarityEventSize, source, tsOverflow)
	if err != nil {
		return nil, err
	}
	return &PolarityPacket{Packet: *p}, nil
}

// AsPolarity reinterprets a generic packet as a polarity packet.
func (p *Packet) AsPolarity() (*PolarityPacket, bool) {
	if p.EventType() != TypePolarity {
		return nil, false
	}
	return &PolarityPacket{Packet: *p}, true
}

// PolarityEvent is a view over one event slot. The zero value is the
// not-found sentinel: reads return zero values and writes are dropped.
type PolarityEvent struct {
	pkt *Packet
	off int
}

// Event returns a bounds-checked view of slot n. Out-of-range indices are
// logged and yield the sentinel with ok=false.
func (p *PolarityPacket) Event(n int32) (PolarityEvent, bool) {
	if !p.checkBounds(n) {
		return PolarityEvent{}, false
	}
	return p.at(n), true
}

func (p *PolarityPacket) at(n int32) PolarityEvent {
	return PolarityEvent{pkt: &p.Packet, off: p.eventOffset(n)}
}

// All iterates every written slot in insertion order.
func (p *PolarityPacket) All() iter.Seq2[int32, PolarityEvent] {
	return forwardAll(p.EventNumber(), p.at)
}

// Valid iterates only slots whose validity bit is set, in insertion order.
func (p *PolarityPacket) Valid() iter.Seq2[int32, PolarityEvent] {
	return forwardValid(p.EventNumber(), p.at, PolarityEvent.IsValid)
}

// ReverseAll iterates every written slot from last to first.
func (p *PolarityPacket) ReverseAll() iter.Seq2[int32, PolarityEvent] {
	return reverseAll(p.EventNumber(), p.at)
}

// ReverseValid iterates valid slots from last to first.
func (p *PolarityPacket) ReverseValid() iter.Seq2[int32, PolarityEvent] {
	return reverseValid(p.EventNumber(), p.at, PolarityEvent.IsValid)
}

// FindFirst scans forward and returns the first valid event matching pred.
func (p *PolarityPacket) FindFirst(pred func(PolarityEvent) bool) (PolarityEvent, bool) {
	_, ev, ok := findFirst(p.Valid(), pred)
	return ev, ok
}

func (e PolarityEvent) data() uint32 {
	if e.pkt == nil {
		return 0
	}
	return e.pkt.word32(e.off)
}

func (e PolarityEvent) setData(w uint32) {
	if e.pkt == nil {
		return
	}
	e.pkt.setWord32(e.off, w)
}

// IsValid reports the event's validity bit.
func (e PolarityEvent) IsValid() bool {
	return getField32(e.data(), validMarkShift, validMarkMask) != 0
}

// Validate marks the event valid and bumps the owning packet's number and
// valid counters. Legal only on a currently invalid event.
func (e PolarityEvent) Validate() {
	if e.pkt != nil {
		e.pkt.validateAt(e.off)
	}
}

// Invalidate clears the validity bit and decrements valid only. Legal only on
// a currently valid event.
func (e PolarityEvent) Invalidate() {
	if e.pkt != nil {
		e.pkt.invalidateAt(e.off)
	}
}

// Timestamp is the event's 32-bit microsecond timestamp. It wraps at 2^31;
// use Timestamp64 for the monotonic time.
func (e PolarityEvent) Timestamp() int32 {
	if e.pkt == nil {
		return 0
	}
	return e.pkt.timestampAt(e.off + polarityTimestampOffset)
}

// Timestamp64 combines the packet's overflow epoch with the event timestamp.
func (e PolarityEvent) Timestamp64() int64 {
	if e.pkt == nil {
		return 0
	}
	return Timestamp64(e.pkt.TSOverflow(), e.Timestamp())
}

// SetTimestamp stores ts; negative values are logged and ignored.
func (e PolarityEvent) SetTimestamp(ts int32) {
	if e.pkt != nil {
		e.pkt.setTimestampAt(e.off+polarityTimestampOffset, ts)
	}
}

// Polarity reports the change direction: true = ON (brightness increase).
func (e PolarityEvent) Polarity() bool {
	return getField32(e.data(), polarityPolarityShift, polarityPolarityMask) != 0
}

func (e PolarityEvent) SetPolarity(on bool) {
	v := uint32(0)
	if on {
		v = 1
	}
	e.setData(setField32(e.data(), polarityPolarityShift, polarityPolarityMask, v))
}

// X is the pixel column address.
func (e PolarityEvent) X() uint16 {
	return uint16(getField32(e.data(), polarityXShift, polarityXMask))
}

func (e PolarityEvent) SetX(x uint16) {
	e.setData(setField32(e.data(), polarityXShift, polarityXMask, uint32(x)))
}

// Y is the pixel row address.
func (e PolarityEvent) Y() uint16 {
	return uint16(getField32(e.data(), polarityYShift, polarityYMask))
}

func (e PolarityEvent) SetY(y uint16) {
	e.setData(setField32(e.data(), polarityYShift, polarityYMask, uint32(y)))
}
