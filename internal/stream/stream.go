// Package stream serializes event packet containers for network transport.
//
// A stream opens with a fixed 12-byte little-endian preamble:
//
//	┌────────────┬─────────────┬─────────────┬───────────────┐
//	│ magic:u32  │ format:i16  │ source:i16  │ tsOverflow:i32│
//	└────────────┴─────────────┴─────────────┴───────────────┘
//
// followed by container blocks, each an i32 packet count and the packets'
// raw bytes. Packets are self-sizing through the size field of their header,
// so the payload needs no extra framing, and forwarding is byte-identical to
// the packets the acquisition side produced.
package stream

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/banshee-data/eventcam/internal/device"
	"github.com/banshee-data/eventcam/internal/events"
)

const (
	// Magic spells "1CVE" in stream order.
	Magic uint32 = 0x45564331

	// FormatVersion is bumped on incompatible wire changes.
	FormatVersion int16 = 1

	preambleSize = 12

	// Sanity bounds on incoming data.
	maxPacketsPerContainer = 1 << 10
	maxPacketBytes         = 64 << 20
)

// Writer serializes containers onto one stream.
type Writer struct {
	w        io.Writer
	sourceID int16
}

// NewWriter emits the stream preamble and returns a container writer.
func NewWriter(w io.Writer, sourceID int16) (*Writer, error) {
	var pre [preambleSize]byte
	binary.LittleEndian.PutUint32(pre[0:], Magic)
	binary.LittleEndian.PutUint16(pre[4:], uint16(FormatVersion))
	binary.LittleEndian.PutUint16(pre[6:], uint16(sourceID))
	binary.LittleEndian.PutUint32(pre[8:], 0)
	if _, err := w.Write(pre[:]); err != nil {
		return nil, fmt.Errorf("write stream preamble: %w", err)
	}
	return &Writer{w: w, sourceID: sourceID}, nil
}

// WriteContainer emits one container block. Packet bytes go out exactly as
// they sit in memory.
func (sw *Writer) WriteContainer(c *events.EventPacketContainer) error {
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(c.PacketCount()))
	if _, err := sw.w.Write(count[:]); err != nil {
		return fmt.Errorf("write container header: %w", err)
	}
	for p := range c.Packets() {
		if _, err := sw.w.Write(p.Bytes()); err != nil {
			return fmt.Errorf("write packet: %w", err)
		}
	}
	return nil
}

// Reader deserializes containers from one stream.
type Reader struct {
	r        io.Reader
	sourceID int16
}

// NewReader consumes and validates the stream preamble. A wrong magic or an
// unknown format version reports ErrUnsupportedFormat.
func NewReader(r io.Reader) (*Reader, error) {
	var pre [preambleSize]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return nil, fmt.Errorf("read stream preamble: %w", err)
	}
	if m := binary.LittleEndian.Uint32(pre[0:]); m != Magic {
		return nil, fmt.Errorf("%w: bad magic %#08x", device.ErrUnsupportedFormat, m)
	}
	if v := int16(binary.LittleEndian.Uint16(pre[4:])); v != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d, expected %d",
			device.ErrUnsupportedFormat, v, FormatVersion)
	}
	return &Reader{
		r:        r,
		sourceID: int16(binary.LittleEndian.Uint16(pre[6:])),
	}, nil
}

// SourceID identifies the producing device, from the preamble.
func (sr *Reader) SourceID() int16 { return sr.sourceID }

// ReadContainer reads one container block. io.EOF marks a clean end of
// stream between containers.
func (sr *Reader) ReadContainer() (*events.EventPacketContainer, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(sr.r, countBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read container header: %w", err)
	}
	count := int32(binary.LittleEndian.Uint32(countBuf[:]))
	if count < 0 || count > maxPacketsPerContainer {
		return nil, fmt.Errorf("container packet count %d out of range", count)
	}

	c := events.NewContainer()
	for i := int32(0); i < count; i++ {
		p, err := sr.readPacket()
		if err != nil {
			return nil, fmt.Errorf("read packet %d of %d: %w", i, count, err)
		}
		c.AddPacket(p)
	}
	return c, nil
}

func (sr *Reader) readPacket() (*events.Packet, error) {
	header := make([]byte, events.HeaderSize)
	if _, err := io.ReadFull(sr.r, header); err != nil {
		return nil, err
	}
	size := int32(binary.LittleEndian.Uint32(header[4:]))
	if size < int32(events.HeaderSize) || size > maxPacketBytes {
		return nil, fmt.Errorf("packet size %d out of range", size)
	}
	buf := make([]byte, size)
	copy(buf, header)
	if _, err := io.ReadFull(sr.r, buf[events.HeaderSize:]); err != nil {
		return nil, err
	}
	return events.PacketFromBytes(buf)
}
