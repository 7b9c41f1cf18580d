package events

import (
	"fmt"
	"iter"
	"log"
)

// Frame event layout (36-byte event header + pixel array):
//
//	info:u32              bit 0 validity, bits 1-3 colour channels,
//	                      bits 4-7 colour filter, bits 8-14 ROI id
//	tsStartFrame:i32      readout start, microseconds
//	tsEndFrame:i32        readout end
//	tsStartExposure:i32   exposure start (the frame's representative time)
//	tsEndExposure:i32     exposure end
//	lengthX:i32           pixels per row actually used
//	lengthY:i32           rows actually used
//	positionX:i32         ROI origin column
//	positionY:i32         ROI origin row
//	pixels:[]u16          row-major, channel-interleaved, little-endian
//
// The event size is fixed at allocation from the maximum ROI geometry, so a
// frame packet remains a flat array of equal slots; individual events may use
// a smaller region via SetROI.
const (
	frameInfoOffset            = 0
	frameTSStartFrameOffset    = 4
	frameTSEndFrameOffset      = 8
	frameTSStartExposureOffset = 12
	frameTSEndExposureOffset   = 16
	frameLengthXOffset         = 20
	frameLengthYOffset         = 24
	framePositionXOffset       = 28
	framePositionYOffset       = 32
	framePixelsOffset          = 36

	frameColorChannelsShift = 1
	frameColorChannelsMask  = 0x00000007
	frameColorFilterShift   = 4
	frameColorFilterMask    = 0x0000000F
	frameROIIDShift         = 8
	frameROIIDMask          = 0x0000007F
)

// ColorFilter describes the sensor's colour filter mosaic.
type ColorFilter uint8

const (
	ColorFilterMono ColorFilter = 0
	ColorFilterRGBG ColorFilter = 1
	ColorFilterGRGB ColorFilter = 2
	ColorFilterGBGR ColorFilter = 3
	ColorFilterBGRG ColorFilter = 4
)

// FramePacket holds frame events with a common maximum ROI geometry.
type FramePacket struct {
	Packet
}

// AllocateFramePacket allocates a packet for capacity frame events, each able
// to hold up to maxLengthX × maxLengthY pixels in maxChannels colour
// channels. All events start invalid.
func AllocateFramePacket(capacity int32, source int16, tsOverflow int32, maxLengthX, maxLengthY, maxChannels int32) (*FramePacket, error) {
	if maxLengthX <= 0 || maxLengthY <= 0 || maxChannels <= 0 {
		return nil, fmt.Errorf("allocate frame packet: invalid maximum geometry %dx%dx%d", maxLengthX, maxLengthY, maxChannels)
	}
	eventSize := int64(framePixelsOffset) + int64(maxLengthX)*int64(maxLengthY)*int64(maxChannels)*2
	p, err := allocatePacket(TypeFrame, capacity, int32(eventSize), source, tsOverflow)
	if err != nil {
		return nil, err
	}
	return &FramePacket{Packet: *p}, nil
}

// AsFrame reinterprets a generic packet as a frame packet.
func (p *Packet) AsFrame() (*FramePacket, bool) {
	if p.EventType() != TypeFrame {
		return nil, false
	}
	return &FramePacket{Packet: *p}, true
}

// MaxPixelBytes is the per-event pixel budget implied by the event size.
func (p *FramePacket) MaxPixelBytes() int32 {
	return p.EventSize() - framePixelsOffset
}

// FrameEvent is a view over one frame slot; the zero value is the not-found
// sentinel.
type FrameEvent struct {
	pkt *Packet
	off int
}

// Event returns a bounds-checked view of slot n.
func (p *FramePacket) Event(n int32) (FrameEvent, bool) {
	if !p.checkBounds(n) {
		return FrameEvent{}, false
	}
	return p.at(n), true
}

func (p *FramePacket) at(n int32) FrameEvent {
	return FrameEvent{pkt: &p.Packet, off: p.eventOffset(n)}
}

func (p *FramePacket) All() iter.Seq2[int32, FrameEvent] {
	return forwardAll(p.EventNumber(), p.at)
}

func (p *FramePacket) Valid() iter.Seq2[int32, FrameEvent] {
	return forwardValid(p.EventNumber(), p.at, FrameEvent.IsValid)
}

func (p *FramePacket) ReverseAll() iter.Seq2[int32, FrameEvent] {
	return reverseAll(p.EventNumber(), p.at)
}

func (p *FramePacket) ReverseValid() iter.Seq2[int32, FrameEvent] {
	return reverseValid(p.EventNumber(), p.at, FrameEvent.IsValid)
}

func (p *FramePacket) FindFirst(pred func(FrameEvent) bool) (FrameEvent, bool) {
	_, ev, ok := findFirst(p.Valid(), pred)
	return ev, ok
}

func (e FrameEvent) info() uint32 {
	if e.pkt == nil {
		return 0
	}
	return e.pkt.word32(e.off + frameInfoOffset)
}

func (e FrameEvent) setInfo(w uint32) {
	if e.pkt == nil {
		return
	}
	e.pkt.setWord32(e.off+frameInfoOffset, w)
}

func (e FrameEvent) IsValid() bool {
	return getField32(e.info(), validMarkShift, validMarkMask) != 0
}

func (e FrameEvent) Validate() {
	if e.pkt != nil {
		e.pkt.validateAt(e.off)
	}
}

func (e FrameEvent) Invalidate() {
	if e.pkt != nil {
		e.pkt.invalidateAt(e.off)
	}
}

func (e FrameEvent) ts(off int) int32 {
	if e.pkt == nil {
		return 0
	}
	return e.pkt.timestampAt(e.off + off)
}

func (e FrameEvent) setTS(off int, v int32) {
	if e.pkt != nil {
		e.pkt.setTimestampAt(e.off+off, v)
	}
}

// Timestamp is the frame's representative time: the start of exposure.
func (e FrameEvent) Timestamp() int32 { return e.ts(frameTSStartExposureOffset) }

func (e FrameEvent) Timestamp64() int64 {
	if e.pkt == nil {
		return 0
	}
	return Timestamp64(e.pkt.TSOverflow(), e.Timestamp())
}

func (e FrameEvent) TSStartFrame() int32    { return e.ts(frameTSStartFrameOffset) }
func (e FrameEvent) TSEndFrame() int32      { return e.ts(frameTSEndFrameOffset) }
func (e FrameEvent) TSStartExposure() int32 { return e.ts(frameTSStartExposureOffset) }
func (e FrameEvent) TSEndExposure() int32   { return e.ts(frameTSEndExposureOffset) }

func (e FrameEvent) SetTSStartFrame(v int32)    { e.setTS(frameTSStartFrameOffset, v) }
func (e FrameEvent) SetTSEndFrame(v int32)      { e.setTS(frameTSEndFrameOffset, v) }
func (e FrameEvent) SetTSStartExposure(v int32) { e.setTS(frameTSStartExposureOffset, v) }
func (e FrameEvent) SetTSEndExposure(v int32)   { e.setTS(frameTSEndExposureOffset, v) }

// ExposureTime is the exposure duration in microseconds.
func (e FrameEvent) ExposureTime() int32 {
	return e.TSEndExposure() - e.TSStartExposure()
}

// ColorChannels is the number of colour channels in the pixel array.
func (e FrameEvent) ColorChannels() int32 {
	return int32(getField32(e.info(), frameColorChannelsShift, frameColorChannelsMask))
}

func (e FrameEvent) SetColorChannels(ch int32) {
	e.setInfo(setField32(e.info(), frameColorChannelsShift, frameColorChannelsMask, uint32(ch)))
}

func (e FrameEvent) ColorFilter() ColorFilter {
	return ColorFilter(getField32(e.info(), frameColorFilterShift, frameColorFilterMask))
}

func (e FrameEvent) SetColorFilter(f ColorFilter) {
	e.setInfo(setField32(e.info(), frameColorFilterShift, frameColorFilterMask, uint32(f)))
}

// ROIID identifies which region-of-interest readout produced this frame.
func (e FrameEvent) ROIID() int32 {
	return int32(getField32(e.info(), frameROIIDShift, frameROIIDMask))
}

func (e FrameEvent) SetROIID(id int32) {
	e.setInfo(setField32(e.info(), frameROIIDShift, frameROIIDMask, uint32(id)))
}

func (e FrameEvent) i32(off int) int32 {
	if e.pkt == nil {
		return 0
	}
	return int32(e.pkt.word32(e.off + off))
}

func (e FrameEvent) LengthX() int32   { return e.i32(frameLengthXOffset) }
func (e FrameEvent) LengthY() int32   { return e.i32(frameLengthYOffset) }
func (e FrameEvent) PositionX() int32 { return e.i32(framePositionXOffset) }
func (e FrameEvent) PositionY() int32 { return e.i32(framePositionYOffset) }

func (e FrameEvent) SetPositionX(v int32) {
	if e.pkt != nil {
		e.pkt.setWord32(e.off+framePositionXOffset, uint32(v))
	}
}

func (e FrameEvent) SetPositionY(v int32) {
	if e.pkt != nil {
		e.pkt.setWord32(e.off+framePositionYOffset, uint32(v))
	}
}

// SetROI sets the used frame geometry. The pixel area must fit the per-event
// budget fixed at allocation; an oversized request is logged and ignored.
func (e FrameEvent) SetROI(lengthX, lengthY, channels int32) {
	if e.pkt == nil {
		return
	}
	if lengthX < 0 || lengthY < 0 || channels < 1 {
		log.Printf("events: SetROI called with invalid geometry %dx%dx%d", lengthX, lengthY, channels)
		return
	}
	need := int64(lengthX) * int64(lengthY) * int64(channels) * 2
	budget := int64(e.pkt.EventSize() - framePixelsOffset)
	if need > budget {
		log.Printf("events: SetROI %dx%dx%d needs %d pixel bytes, event has %d", lengthX, lengthY, channels, need, budget)
		return
	}
	e.pkt.setWord32(e.off+frameLengthXOffset, uint32(lengthX))
	e.pkt.setWord32(e.off+frameLengthYOffset, uint32(lengthY))
	e.SetColorChannels(channels)
}

// pixelIndex maps (x, y, ch) to a byte offset, or -1 when out of range.
func (e FrameEvent) pixelIndex(x, y, ch int32) int {
	if e.pkt == nil {
		return -1
	}
	lx, ch0 := e.LengthX(), e.ColorChannels()
	if x < 0 || x >= lx || y < 0 || y >= e.LengthY() || ch < 0 || ch >= ch0 {
		log.Printf("events: frame pixel (%d,%d,%d) outside %dx%dx%d", x, y, ch, lx, e.LengthY(), ch0)
		return -1
	}
	return e.off + framePixelsOffset + int((y*lx+x)*ch0+ch)*2
}

// Pixel reads the 16-bit sample at (x, y) in channel ch. Out-of-range
// coordinates are logged and read as zero.
func (e FrameEvent) Pixel(x, y, ch int32) uint16 {
	idx := e.pixelIndex(x, y, ch)
	if idx < 0 {
		return 0
	}
	return uint16(e.pkt.buf[idx]) | uint16(e.pkt.buf[idx+1])<<8
}

// SetPixel writes the 16-bit sample at (x, y) in channel ch. Out-of-range
// coordinates are logged and dropped.
func (e FrameEvent) SetPixel(x, y, ch int32, v uint16) {
	idx := e.pixelIndex(x, y, ch)
	if idx < 0 {
		return
	}
	e.pkt.buf[idx] = byte(v)
	e.pkt.buf[idx+1] = byte(v >> 8)
}

// Pixels exposes the used pixel samples as raw bytes (lengthX × lengthY ×
// channels × 2), for bulk copy or enhancement.
func (e FrameEvent) Pixels() []byte {
	if e.pkt == nil {
		return nil
	}
	n := int(e.LengthX()*e.LengthY()*e.ColorChannels()) * 2
	start := e.off + framePixelsOffset
	return e.pkt.buf[start : start+n]
}
