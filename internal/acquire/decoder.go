package acquire

import (
	"encoding/binary"
	"log"

	"github.com/banshee-data/eventcam/internal/config"
	"github.com/banshee-data/eventcam/internal/events"
)

/*
Raw transfer decoder

The device multiplexes every data source over one bulk endpoint as a stream
of fixed 8-byte little-endian records:

	┌──────────────┬──────────────┐
	│ addr:u32     │ ts:u32       │
	└──────────────┴──────────────┘

ts carries the low 31 bits of the device's microsecond clock; bit 31 must be
zero (a set bit marks a corrupt record). The top nibble of addr selects the
record kind, the remaining 28 bits are kind-specific:

	0x0 special      code addr[27:24], payload addr[23:0]
	0x1 polarity OFF y addr[27:14], x addr[13:0]
	0x2 polarity ON  y addr[27:14], x addr[13:0]
	0x3 IMU part     field addr[27:24] (0..6 = accelX..temp, 15 = commit),
	                 raw 16-bit sample addr[15:0]
	0x4 frame start  lengthX addr[27:14], lengthY addr[13:0]
	0x5 frame pixels two 14-bit samples addr[27:14] and addr[13:0],
	                 row-major, shifted into the 16-bit range
	0x6 frame end    exposure-end marker

Transfers may split a record across buffer boundaries; the truncated tail is
carried over to the next completion.

The decoder owns packet assembly: one in-progress packet per event type, all
sharing the current overflow epoch. A container is closed out and emitted
when any packet reaches its configured maximum event count, when the device
time advances past the configured slice, and always at a timestamp wrap or
reset so no packet ever straddles an epoch boundary.
*/
const (
	rawRecordSize = 8

	rawTypeShift = 28
	rawTypeMask  = 0xF

	rawTypeSpecial     = 0x0
	rawTypePolarityOff = 0x1
	rawTypePolarityOn  = 0x2
	rawTypeIMU         = 0x3
	rawTypeFrameStart  = 0x4
	rawTypeFramePixels = 0x5
	rawTypeFrameEnd    = 0x6

	rawSpecialCodeShift = 24
	rawSpecialCodeMask  = 0xF
	rawSpecialDataMask  = 0x00FFFFFF

	rawHighShift = 14
	rawFieldMask = 0x3FFF

	rawIMUFieldShift  = 24
	rawIMUFieldMask   = 0xF
	rawIMUSampleMask  = 0xFFFF
	rawIMUFieldCommit = 15
	rawIMUFieldCount  = 7

	// 14-bit ADC samples are shifted into the full 16-bit pixel range.
	rawPixelShift = 2

	// Device-side special codes (distinct from the packet-level special
	// event types they translate to).
	rawSpecialCodeTimestampReset = 0x0
	rawSpecialCodeExtRising      = 0x1
	rawSpecialCodeExtFalling     = 0x2
	rawSpecialCodeExtPulse       = 0x3
	rawSpecialCodeRowOnly        = 0x4

	// IMU raw sample conversion, MPU-6x50 style: ±4g accelerometer and
	// ±500°/s gyroscope full-scale ranges, standard temperature formula.
	imuAccelScale = 8192.0
	imuGyroScale  = 65.5
	imuTempScale  = 340.0
	imuTempOffset = 35.0

	// Frame events are far larger than the others; their packets hold a
	// handful per capture interval.
	frameEventsPerPacket = 4

	// Number of leading records logged per session when debug is on.
	debugRecordLimit = 16
)

// frameDims pins the maximum frame geometry for packet allocation.
type frameDims struct {
	maxX, maxY, channels int32
}

// FrameEnhancer post-processes completed frame events in place. It is
// invoked only for frame-type events, after the pixels and timestamps are
// written.
type FrameEnhancer interface {
	EnhanceFrame(ev events.FrameEvent)
}

// streamDecoder turns raw transfer buffers into event packet containers.
// It is driven from the transfer-completion context only; the pipeline's
// mutex serializes access.
type streamDecoder struct {
	acq    config.Acquisition
	source int16
	dims   frameDims

	emit     func(*events.EventPacketContainer)
	enhancer FrameEnhancer

	// Timestamp wrap tracking. lastTS is the last device timestamp seen;
	// overflow is the current epoch, bumped exactly once per wrap.
	lastTS   int32
	overflow int32

	// In-progress packets for the current capture interval, allocated
	// lazily; all carry the current overflow epoch.
	polarity *events.PolarityPacket
	special  *events.SpecialPacket
	imu      *events.IMU6Packet
	frame    *events.FramePacket

	// sliceStart is the device time the current interval began, -1 when
	// no event has arrived yet.
	sliceStart int32

	// IMU multi-record accumulation.
	imuParts [rawIMUFieldCount]uint16
	imuSeen  uint8
	imuTS    int32

	// Frame assembly state.
	frameActive bool
	frameEvent  events.FrameEvent
	framePixels int32 // pixel samples written so far
	frameTotal  int32 // pixel samples expected

	// carry holds a record truncated at a transfer boundary.
	carry []byte

	records         uint64
	malformed       uint64
	abandonedFrames uint64
}

func newStreamDecoder(acq config.Acquisition, source int16, dims frameDims,
	enhancer FrameEnhancer, emit func(*events.EventPacketContainer)) *streamDecoder {
	return &streamDecoder{
		acq:        acq,
		source:     source,
		dims:       dims,
		emit:       emit,
		enhancer:   enhancer,
		sliceStart: -1,
	}
}

// Decode consumes one completed transfer buffer.
func (d *streamDecoder) Decode(data []byte) {
	if len(d.carry) > 0 {
		data = append(d.carry, data...)
		d.carry = nil
	}
	n := len(data) / rawRecordSize * rawRecordSize
	for off := 0; off < n; off += rawRecordSize {
		d.record(
			binary.LittleEndian.Uint32(data[off:]),
			binary.LittleEndian.Uint32(data[off+4:]),
		)
	}
	if n < len(data) {
		d.carry = append(d.carry, data[n:]...)
	}
}

func (d *streamDecoder) record(addr, tsRaw uint32) {
	d.records++
	if d.acq.Debug && d.records <= debugRecordLimit {
		log.Printf("acquire: record %d addr=%#08x ts=%d", d.records, addr, tsRaw)
	}
	if tsRaw&0x80000000 != 0 {
		d.malformed++
		return
	}
	ts := int32(tsRaw)
	kind := addr >> rawTypeShift & rawTypeMask

	// A clock reset restarts device time from zero; it must not read as a
	// wrap. Everything before the reset belongs to the old stream.
	if kind == rawTypeSpecial &&
		addr>>rawSpecialCodeShift&rawSpecialCodeMask == rawSpecialCodeTimestampReset {
		d.closeContainer()
		d.overflow = 0
		d.lastTS = 0
		d.appendSpecial(events.SpecialTimestampReset, 0, 0)
		return
	}

	// Monotonic decrease of the device clock means the 31-bit timestamp
	// wrapped. Close everything out on the old epoch, bump it, and mark
	// the wrap in the stream.
	if ts < d.lastTS {
		d.closeContainer()
		d.overflow++
		d.appendSpecial(events.SpecialTimestampWrap, 1, ts)
	}
	d.lastTS = ts

	// Device time slicing: close the interval once it spans the slice.
	if d.sliceStart >= 0 && ts-d.sliceStart >= d.acq.TimeSliceMicros {
		d.closeContainer()
	}

	switch kind {
	case rawTypeSpecial:
		d.decodeSpecial(addr, ts)
	case rawTypePolarityOff:
		d.appendPolarity(addr, false, ts)
	case rawTypePolarityOn:
		d.appendPolarity(addr, true, ts)
	case rawTypeIMU:
		d.decodeIMU(addr, ts)
	case rawTypeFrameStart:
		d.frameStart(addr, ts)
	case rawTypeFramePixels:
		d.framePixelPair(addr)
	case rawTypeFrameEnd:
		d.frameEnd(ts)
	default:
		d.malformed++
	}
}

func (d *streamDecoder) decodeSpecial(addr uint32, ts int32) {
	code := addr >> rawSpecialCodeShift & rawSpecialCodeMask
	data := addr & rawSpecialDataMask
	switch code {
	case rawSpecialCodeExtRising:
		d.appendSpecial(events.SpecialExternalInputRising, data, ts)
	case rawSpecialCodeExtFalling:
		d.appendSpecial(events.SpecialExternalInputFalling, data, ts)
	case rawSpecialCodeExtPulse:
		d.appendSpecial(events.SpecialExternalInputPulse, data, ts)
	case rawSpecialCodeRowOnly:
		d.appendSpecial(events.SpecialDVSRowOnly, data, ts)
	default:
		d.malformed++
	}
}

func (d *streamDecoder) noteEvent(ts int32) {
	if d.sliceStart < 0 {
		d.sliceStart = ts
	}
}

func (d *streamDecoder) appendSpecial(t events.SpecialEventType, data uint32, ts int32) {
	if d.special == nil {
		p, err := events.AllocateSpecialPacket(d.acq.MaxPacketEvents, d.source, d.overflow)
		if err != nil {
			d.malformed++
			return
		}
		d.special = p
	}
	ev, ok := d.special.Event(d.special.EventNumber())
	if !ok {
		return
	}
	ev.SetTimestamp(ts)
	ev.SetType(t)
	ev.SetData(data)
	ev.Validate()
	d.noteEvent(ts)
	if d.special.EventNumber() >= d.acq.MaxPacketEvents {
		d.closeContainer()
	}
}

func (d *streamDecoder) appendPolarity(addr uint32, on bool, ts int32) {
	if d.polarity == nil {
		p, err := events.AllocatePolarityPacket(d.acq.MaxPacketEvents, d.source, d.overflow)
		if err != nil {
			d.malformed++
			return
		}
		d.polarity = p
	}
	ev, ok := d.polarity.Event(d.polarity.EventNumber())
	if !ok {
		return
	}
	ev.SetTimestamp(ts)
	ev.SetX(uint16(addr & rawFieldMask))
	ev.SetY(uint16(addr >> rawHighShift & rawFieldMask))
	ev.SetPolarity(on)
	ev.Validate()
	d.noteEvent(ts)
	if d.polarity.EventNumber() >= d.acq.MaxPacketEvents {
		d.closeContainer()
	}
}

func (d *streamDecoder) decodeIMU(addr uint32, ts int32) {
	field := addr >> rawIMUFieldShift & rawIMUFieldMask
	if field == rawIMUFieldCommit {
		d.commitIMU()
		return
	}
	if field >= rawIMUFieldCount {
		d.malformed++
		return
	}
	if d.imuSeen == 0 {
		d.imuTS = ts
	}
	d.imuParts[field] = uint16(addr & rawIMUSampleMask)
	d.imuSeen |= 1 << field
}

func (d *streamDecoder) commitIMU() {
	if d.imuSeen != 1<<rawIMUFieldCount-1 {
		// Commit without all seven samples: drop the partial reading.
		d.imuSeen = 0
		d.malformed++
		return
	}
	if d.imu == nil {
		p, err := events.AllocateIMU6Packet(d.acq.MaxPacketEvents, d.source, d.overflow)
		if err != nil {
			d.imuSeen = 0
			d.malformed++
			return
		}
		d.imu = p
	}
	ev, ok := d.imu.Event(d.imu.EventNumber())
	if !ok {
		d.imuSeen = 0
		return
	}
	ev.SetTimestamp(d.imuTS)
	ev.SetAccelX(float32(int16(d.imuParts[0])) / imuAccelScale)
	ev.SetAccelY(float32(int16(d.imuParts[1])) / imuAccelScale)
	ev.SetAccelZ(float32(int16(d.imuParts[2])) / imuAccelScale)
	ev.SetGyroX(float32(int16(d.imuParts[3])) / imuGyroScale)
	ev.SetGyroY(float32(int16(d.imuParts[4])) / imuGyroScale)
	ev.SetGyroZ(float32(int16(d.imuParts[5])) / imuGyroScale)
	ev.SetTemp(float32(int16(d.imuParts[6]))/imuTempScale + imuTempOffset)
	ev.Validate()
	d.noteEvent(d.imuTS)
	d.imuSeen = 0
	if d.imu.EventNumber() >= d.acq.MaxPacketEvents {
		d.closeContainer()
	}
}

func (d *streamDecoder) frameStart(addr uint32, ts int32) {
	if d.frameActive {
		// A new frame before the previous one ended: the old readout
		// was truncated, drop it.
		d.abandonFrame()
	}
	lengthX := int32(addr >> rawHighShift & rawFieldMask)
	lengthY := int32(addr & rawFieldMask)
	if lengthX <= 0 || lengthY <= 0 || lengthX > d.dims.maxX || lengthY > d.dims.maxY {
		d.malformed++
		return
	}
	if d.frame == nil {
		p, err := events.AllocateFramePacket(frameEventsPerPacket, d.source, d.overflow,
			d.dims.maxX, d.dims.maxY, d.dims.channels)
		if err != nil {
			d.malformed++
			return
		}
		d.frame = p
	}
	ev, ok := d.frame.Event(d.frame.EventNumber())
	if !ok {
		return
	}
	ev.SetROI(lengthX, lengthY, d.dims.channels)
	ev.SetTSStartFrame(ts)
	ev.SetTSStartExposure(ts)
	d.frameEvent = ev
	d.frameActive = true
	d.framePixels = 0
	d.frameTotal = lengthX * lengthY * d.dims.channels
}

func (d *streamDecoder) framePixelPair(addr uint32) {
	if !d.frameActive {
		d.malformed++
		return
	}
	for _, sample := range [2]uint16{
		uint16(addr >> rawHighShift & rawFieldMask),
		uint16(addr & rawFieldMask),
	} {
		if d.framePixels >= d.frameTotal {
			break
		}
		lx := d.frameEvent.LengthX()
		ch := d.frameEvent.ColorChannels()
		idx := d.framePixels
		pix := idx / ch
		d.frameEvent.SetPixel(pix%lx, pix/lx, idx%ch, sample<<rawPixelShift)
		d.framePixels++
	}
}

func (d *streamDecoder) frameEnd(ts int32) {
	if !d.frameActive {
		d.malformed++
		return
	}
	if d.framePixels < d.frameTotal {
		d.abandonFrame()
		return
	}
	d.frameEvent.SetTSEndFrame(ts)
	d.frameEvent.SetTSEndExposure(ts)
	d.frameEvent.Validate()
	if d.enhancer != nil {
		d.enhancer.EnhanceFrame(d.frameEvent)
	}
	d.noteEvent(d.frameEvent.Timestamp())
	d.frameActive = false
	if d.frame.EventNumber() >= frameEventsPerPacket {
		d.closeContainer()
	}
}

func (d *streamDecoder) abandonFrame() {
	d.frameActive = false
	d.abandonedFrames++
	if d.acq.Debug {
		log.Printf("acquire: abandoned truncated frame (%d of %d pixel samples)", d.framePixels, d.frameTotal)
	}
}

// closeContainer freezes the in-progress packets into a container and emits
// it. An unterminated frame readout never crosses a container boundary; it is
// dropped.
func (d *streamDecoder) closeContainer() {
	if d.frameActive {
		d.abandonFrame()
	}
	if d.polarity == nil && d.special == nil && d.imu == nil && d.frame == nil {
		return
	}
	c := events.NewContainer()
	if d.polarity != nil {
		c.AddPacket(&d.polarity.Packet)
		d.polarity = nil
	}
	if d.special != nil {
		c.AddPacket(&d.special.Packet)
		d.special = nil
	}
	if d.imu != nil {
		c.AddPacket(&d.imu.Packet)
		d.imu = nil
	}
	if d.frame != nil {
		// Skip frame packets that ended up with no completed events.
		if d.frame.EventNumber() > 0 {
			c.AddPacket(&d.frame.Packet)
		}
		d.frame = nil
	}
	d.sliceStart = -1
	if c.PacketCount() > 0 {
		d.emit(c)
	}
}

// Flush closes out whatever interval is in progress; used at stream stop.
func (d *streamDecoder) Flush() {
	d.closeContainer()
}
