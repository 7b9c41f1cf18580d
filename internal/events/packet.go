package events

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
)

// EventType identifies the kind of events a packet carries.
type EventType int16

const (
	TypeSpecial    EventType = 0
	TypePolarity   EventType = 1
	TypeFrame      EventType = 2
	TypeIMU6       EventType = 3
	TypeChipConfig EventType = 7
)

func (t EventType) String() string {
	switch t {
	case TypeSpecial:
		return "special"
	case TypePolarity:
		return "polarity"
	case TypeFrame:
		return "frame"
	case TypeIMU6:
		return "imu6"
	case TypeChipConfig:
		return "chipconfig"
	default:
		return fmt.Sprintf("unknown(%d)", int16(t))
	}
}

// Packet header field offsets within the 32-byte header.
const (
	headerTypeOffset       = 0  // i16
	headerSourceOffset     = 2  // i16
	headerSizeOffset       = 4  // i32, total bytes including header
	headerEventSizeOffset  = 8  // i32
	headerTSOffsetOffset   = 12 // i32, reserved, always 0
	headerTSOverflowOffset = 16 // i32
	headerCapacityOffset   = 20 // i32
	headerNumberOffset     = 24 // i32
	headerValidOffset      = 28 // i32

	// HeaderSize is the byte size of the packet header.
	HeaderSize = 32
)

// TSOverflowShift is the bit position the overflow epoch occupies in the
// 64-bit reconstructed timestamp. The 32-bit timestamp is signed and never
// negative, so it contributes 31 bits.
const TSOverflowShift = 31

// validMarkShift/validMarkMask locate the validity bit in the first word of
// every event type.
const (
	validMarkShift = 0
	validMarkMask  = 0x1
)

// Timestamp64 reconstructs the monotonic 64-bit microsecond timestamp from a
// packet-scoped overflow epoch and a 31-bit-range timestamp.
func Timestamp64(tsOverflow int32, timestamp int32) int64 {
	return int64(uint64(uint32(tsOverflow))<<TSOverflowShift | uint64(uint32(timestamp)))
}

// Packet is a single contiguous header + event-array buffer. The typed packet
// views (PolarityPacket, SpecialPacket, ...) embed it and add field accessors;
// Packet itself carries everything needed for byte-level forwarding and for
// type-independent bookkeeping.
type Packet struct {
	buf []byte
}

// allocatePacket builds a zeroed packet buffer for capacity events of
// eventSize bytes each. All event slots start invalid.
func allocatePacket(etype EventType, capacity, eventSize int32, source int16, tsOverflow int32) (*Packet, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("allocate %s packet: negative capacity %d", etype, capacity)
	}
	if eventSize <= 0 {
		return nil, fmt.Errorf("allocate %s packet: invalid event size %d", etype, eventSize)
	}
	total := int64(HeaderSize) + int64(capacity)*int64(eventSize)
	if total > math.MaxInt32 {
		return nil, fmt.Errorf("allocate %s packet: %d events of %d bytes exceed packet size limit", etype, capacity, eventSize)
	}

	p := &Packet{buf: make([]byte, total)}
	binary.LittleEndian.PutUint16(p.buf[headerTypeOffset:], uint16(etype))
	binary.LittleEndian.PutUint16(p.buf[headerSourceOffset:], uint16(source))
	binary.LittleEndian.PutUint32(p.buf[headerSizeOffset:], uint32(total))
	binary.LittleEndian.PutUint32(p.buf[headerEventSizeOffset:], uint32(eventSize))
	binary.LittleEndian.PutUint32(p.buf[headerTSOverflowOffset:], uint32(tsOverflow))
	binary.LittleEndian.PutUint32(p.buf[headerCapacityOffset:], uint32(capacity))
	return p, nil
}

// PacketFromBytes wraps a serialized packet buffer, checking that the header
// is self-consistent before accepting it. The buffer is used directly, not
// copied.
func PacketFromBytes(buf []byte) (*Packet, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("packet buffer too short: %d bytes, need at least %d", len(buf), HeaderSize)
	}
	p := &Packet{buf: buf}
	if p.EventSize() <= 0 {
		return nil, fmt.Errorf("packet has invalid event size %d", p.EventSize())
	}
	if p.EventCapacity() < 0 {
		return nil, fmt.Errorf("packet has negative capacity %d", p.EventCapacity())
	}
	want := int64(HeaderSize) + int64(p.EventCapacity())*int64(p.EventSize())
	if int64(p.PacketSize()) != want || int64(len(buf)) != want {
		return nil, fmt.Errorf("packet size mismatch: header says %d, layout needs %d, buffer has %d",
			p.PacketSize(), want, len(buf))
	}
	if p.EventNumber() < 0 || p.EventNumber() > p.EventCapacity() {
		return nil, fmt.Errorf("packet event number %d outside [0, %d]", p.EventNumber(), p.EventCapacity())
	}
	if p.EventValid() < 0 || p.EventValid() > p.EventNumber() {
		return nil, fmt.Errorf("packet valid count %d outside [0, %d]", p.EventValid(), p.EventNumber())
	}
	return p, nil
}

// Bytes exposes the raw packet buffer for byte-level forwarding.
func (p *Packet) Bytes() []byte { return p.buf }

func (p *Packet) EventType() EventType {
	return EventType(binary.LittleEndian.Uint16(p.buf[headerTypeOffset:]))
}

func (p *Packet) EventSource() int16 {
	return int16(binary.LittleEndian.Uint16(p.buf[headerSourceOffset:]))
}

// PacketSize is the total byte size of the packet, header included.
func (p *Packet) PacketSize() int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[headerSizeOffset:]))
}

func (p *Packet) EventSize() int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[headerEventSizeOffset:]))
}

func (p *Packet) TSOffset() int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[headerTSOffsetOffset:]))
}

// TSOverflow is the packet's timestamp-overflow epoch, fixed at allocation.
func (p *Packet) TSOverflow() int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[headerTSOverflowOffset:]))
}

func (p *Packet) EventCapacity() int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[headerCapacityOffset:]))
}

// EventNumber is the count of event slots written so far. It only grows.
func (p *Packet) EventNumber() int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[headerNumberOffset:]))
}

// EventValid is the count of events whose validity bit is currently set.
func (p *Packet) EventValid() int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[headerValidOffset:]))
}

func (p *Packet) setEventNumber(n int32) {
	binary.LittleEndian.PutUint32(p.buf[headerNumberOffset:], uint32(n))
}

func (p *Packet) setEventValid(n int32) {
	binary.LittleEndian.PutUint32(p.buf[headerValidOffset:], uint32(n))
}

// eventOffset returns the byte offset of event slot n. Callers bounds-check n
// first.
func (p *Packet) eventOffset(n int32) int {
	return HeaderSize + int(n)*int(p.EventSize())
}

// checkBounds reports whether n addresses a slot inside [0, capacity). An
// out-of-range index is a caller contract violation: it is logged and the
// not-found sentinel is returned by the accessor, with no state change.
func (p *Packet) checkBounds(n int32) bool {
	if n < 0 || n >= p.EventCapacity() {
		log.Printf("events: %s packet event index %d outside [0, %d)", p.EventType(), n, p.EventCapacity())
		return false
	}
	return true
}

// word32 reads the 32-bit little-endian word at off.
func (p *Packet) word32(off int) uint32 {
	return binary.LittleEndian.Uint32(p.buf[off:])
}

func (p *Packet) setWord32(off int, w uint32) {
	binary.LittleEndian.PutUint32(p.buf[off:], w)
}

// validAt reports the validity bit of the event whose first word is at off.
func (p *Packet) validAt(off int) bool {
	return getField32(p.word32(off), validMarkShift, validMarkMask) != 0
}

// validateAt sets the validity bit and increments both number and valid.
// Calling it on an already-valid event is a protocol violation: logged, no
// counter change, so the counts are never doubled.
func (p *Packet) validateAt(off int) {
	if p.validAt(off) {
		log.Printf("events: Validate called on already valid %s event", p.EventType())
		return
	}
	p.setWord32(off, setField32(p.word32(off), validMarkShift, validMarkMask, 1))
	p.setEventNumber(p.EventNumber() + 1)
	p.setEventValid(p.EventValid() + 1)
}

// invalidateAt clears the validity bit and decrements valid only; number
// keeps counting slots that were ever written. Calling it on an invalid event
// is a protocol violation: logged, counters untouched.
func (p *Packet) invalidateAt(off int) {
	if !p.validAt(off) {
		log.Printf("events: Invalidate called on already invalid %s event", p.EventType())
		return
	}
	p.setWord32(off, setField32(p.word32(off), validMarkShift, validMarkMask, 0))
	p.setEventValid(p.EventValid() - 1)
}

// timestampAt reads the 32-bit microsecond timestamp stored at off.
func (p *Packet) timestampAt(off int) int32 {
	return int32(p.word32(off))
}

// setTimestampAt stores ts at off. Negative values would corrupt the
// sign/valid semantics of the 31-bit timestamp; they are logged and ignored.
func (p *Packet) setTimestampAt(off int, ts int32) {
	if ts < 0 {
		log.Printf("events: SetTimestamp called with negative value %d on %s event", ts, p.EventType())
		return
	}
	p.setWord32(off, uint32(ts))
}

// tsFieldOffset is the byte offset of the timestamp field within one event of
// this packet's type. Frame events use the exposure-start timestamp as their
// representative time.
func (p *Packet) tsFieldOffset() (int, bool) {
	switch p.EventType() {
	case TypeSpecial, TypePolarity, TypeIMU6:
		return 4, true
	case TypeChipConfig:
		return chipConfigTimestampOffset, true
	case TypeFrame:
		return frameTSStartExposureOffset, true
	default:
		return 0, false
	}
}

// EventValidAt reports the validity bit of slot n, type-independently.
func (p *Packet) EventValidAt(n int32) bool {
	if !p.checkBounds(n) {
		return false
	}
	return p.validAt(p.eventOffset(n))
}

// EventTimestamp64 returns the reconstructed 64-bit timestamp of slot n, or
// false if the index or the packet type does not permit it.
func (p *Packet) EventTimestamp64(n int32) (int64, bool) {
	tsOff, ok := p.tsFieldOffset()
	if !ok || !p.checkBounds(n) {
		return 0, false
	}
	return Timestamp64(p.TSOverflow(), p.timestampAt(p.eventOffset(n)+tsOff)), true
}

// getField32 extracts a shift/mask packed field from a word.
func getField32(word, shift, mask uint32) uint32 {
	return (word >> shift) & mask
}

// setField32 writes a shift/mask packed field, clearing the field's full bit
// range first so neighbouring fields are never clobbered.
func setField32(word, shift, mask, value uint32) uint32 {
	word &^= mask << shift
	return word | (value&mask)<<shift
}
