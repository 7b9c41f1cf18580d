package acquire

import (
	"encoding/binary"
	"testing"

	"github.com/banshee-data/eventcam/internal/config"
	"github.com/banshee-data/eventcam/internal/events"
)

// rawRecord encodes one 8-byte stream record.
func rawRecord(addr, ts uint32) []byte {
	b := make([]byte, rawRecordSize)
	binary.LittleEndian.PutUint32(b, addr)
	binary.LittleEndian.PutUint32(b[4:], ts)
	return b
}

func polarityAddr(x, y uint16, on bool) uint32 {
	kind := uint32(rawTypePolarityOff)
	if on {
		kind = rawTypePolarityOn
	}
	return kind<<rawTypeShift | uint32(y)<<rawHighShift | uint32(x)
}

func specialAddr(code, data uint32) uint32 {
	return rawTypeSpecial<<rawTypeShift | code<<rawSpecialCodeShift | data&rawSpecialDataMask
}

func imuAddr(field uint32, sample uint16) uint32 {
	return rawTypeIMU<<rawTypeShift | field<<rawIMUFieldShift | uint32(sample)
}

func frameStartAddr(lengthX, lengthY uint32) uint32 {
	return rawTypeFrameStart<<rawTypeShift | lengthX<<rawHighShift | lengthY
}

func framePixelAddr(first, second uint16) uint32 {
	return rawTypeFramePixels<<rawTypeShift | uint32(first)<<rawHighShift | uint32(second)
}

func testDecoder(t *testing.T, acq config.Acquisition) (*streamDecoder, *[]*events.EventPacketContainer) {
	t.Helper()
	var got []*events.EventPacketContainer
	d := newStreamDecoder(acq, 1, frameDims{maxX: 8, maxY: 8, channels: 1}, nil,
		func(c *events.EventPacketContainer) { got = append(got, c) })
	return d, &got
}

func polarityPacketOf(t *testing.T, c *events.EventPacketContainer) *events.PolarityPacket {
	t.Helper()
	pkt, ok := c.FindPacketByType(events.TypePolarity)
	if !ok {
		t.Fatal("container has no polarity packet")
	}
	pp, ok := pkt.AsPolarity()
	if !ok {
		t.Fatal("packet is not a polarity packet")
	}
	return pp
}

func TestDecodePolarityEvents(t *testing.T) {
	d, got := testDecoder(t, config.DefaultAcquisition())

	var buf []byte
	buf = append(buf, rawRecord(polarityAddr(10, 20, true), 100)...)
	buf = append(buf, rawRecord(polarityAddr(11, 21, false), 150)...)
	d.Decode(buf)
	d.Flush()

	if len(*got) != 1 {
		t.Fatalf("got %d containers, want 1", len(*got))
	}
	pp := polarityPacketOf(t, (*got)[0])
	if pp.EventValid() != 2 {
		t.Fatalf("valid events = %d, want 2", pp.EventValid())
	}

	ev, _ := pp.Event(0)
	if ev.X() != 10 || ev.Y() != 20 || !ev.Polarity() || ev.Timestamp() != 100 {
		t.Errorf("event 0 = (%d,%d,%v,%d), want (10,20,true,100)",
			ev.X(), ev.Y(), ev.Polarity(), ev.Timestamp())
	}
	ev, _ = pp.Event(1)
	if ev.X() != 11 || ev.Y() != 21 || ev.Polarity() || ev.Timestamp() != 150 {
		t.Errorf("event 1 = (%d,%d,%v,%d), want (11,21,false,150)",
			ev.X(), ev.Y(), ev.Polarity(), ev.Timestamp())
	}
}

func TestContainerClosesAtMaxEvents(t *testing.T) {
	acq := config.DefaultAcquisition()
	acq.MaxPacketEvents = 5
	d, got := testDecoder(t, acq)

	var buf []byte
	for i := 0; i < 12; i++ {
		buf = append(buf, rawRecord(polarityAddr(uint16(i), 0, true), uint32(i))...)
	}
	d.Decode(buf)
	if len(*got) != 2 {
		t.Fatalf("got %d containers before flush, want 2", len(*got))
	}
	d.Flush()
	if len(*got) != 3 {
		t.Fatalf("got %d containers after flush, want 3", len(*got))
	}
	for i, want := range []int32{5, 5, 2} {
		if n := polarityPacketOf(t, (*got)[i]).EventNumber(); n != want {
			t.Errorf("container %d has %d events, want %d", i, n, want)
		}
	}
}

func TestContainerClosesAtTimeSlice(t *testing.T) {
	acq := config.DefaultAcquisition()
	acq.TimeSliceMicros = 1000
	d, got := testDecoder(t, acq)

	var buf []byte
	for _, ts := range []uint32{0, 500, 1500, 1600} {
		buf = append(buf, rawRecord(polarityAddr(1, 1, true), ts)...)
	}
	d.Decode(buf)
	d.Flush()

	if len(*got) != 2 {
		t.Fatalf("got %d containers, want 2", len(*got))
	}
	if n := polarityPacketOf(t, (*got)[0]).EventNumber(); n != 2 {
		t.Errorf("first container has %d events, want 2", n)
	}
	if n := polarityPacketOf(t, (*got)[1]).EventNumber(); n != 2 {
		t.Errorf("second container has %d events, want 2", n)
	}
	if lo := (*got)[1].LowestTimestamp(); lo != 1500 {
		t.Errorf("second container lowest timestamp = %d, want 1500", lo)
	}
}

func TestTimestampWrap(t *testing.T) {
	d, got := testDecoder(t, config.DefaultAcquisition())

	var buf []byte
	buf = append(buf, rawRecord(polarityAddr(1, 1, true), 0x7FFFFF00)...)
	// Clock wrapped: small timestamp again.
	buf = append(buf, rawRecord(polarityAddr(2, 2, true), 50)...)
	d.Decode(buf)
	d.Flush()

	if len(*got) != 2 {
		t.Fatalf("got %d containers, want 2", len(*got))
	}

	before := (*got)[0].HighestTimestamp()
	after := (*got)[1].LowestTimestamp()
	if after < before {
		t.Errorf("64-bit time went backwards across wrap: %d then %d", before, after)
	}

	pp := polarityPacketOf(t, (*got)[1])
	if pp.TSOverflow() != 1 {
		t.Errorf("post-wrap overflow epoch = %d, want 1", pp.TSOverflow())
	}

	spkt, ok := (*got)[1].FindPacketByType(events.TypeSpecial)
	if !ok {
		t.Fatal("post-wrap container has no special packet")
	}
	sp, _ := spkt.AsSpecial()
	ev, _ := sp.Event(0)
	if ev.Type() != events.SpecialTimestampWrap {
		t.Errorf("special type = %v, want timestamp wrap", ev.Type())
	}
}

func TestTimestampReset(t *testing.T) {
	d, got := testDecoder(t, config.DefaultAcquisition())

	// Force an epoch bump, then a device-side clock reset.
	d.Decode(rawRecord(polarityAddr(1, 1, true), 5000))
	d.Decode(rawRecord(polarityAddr(2, 2, true), 40))
	if d.overflow != 1 {
		t.Fatalf("overflow = %d after wrap, want 1", d.overflow)
	}
	d.Decode(rawRecord(specialAddr(rawSpecialCodeTimestampReset, 0), 0))
	if d.overflow != 0 {
		t.Errorf("overflow = %d after reset, want 0", d.overflow)
	}

	d.Decode(rawRecord(polarityAddr(3, 3, true), 10))
	d.Flush()

	last := (*got)[len(*got)-1]
	if pp := polarityPacketOf(t, last); pp.TSOverflow() != 0 {
		t.Errorf("post-reset overflow epoch = %d, want 0", pp.TSOverflow())
	}
	spkt, ok := last.FindPacketByType(events.TypeSpecial)
	if !ok {
		t.Fatal("post-reset container has no special packet")
	}
	sp, _ := spkt.AsSpecial()
	ev, _ := sp.Event(0)
	if ev.Type() != events.SpecialTimestampReset {
		t.Errorf("special type = %v, want timestamp reset", ev.Type())
	}
}

func TestCarryOverAcrossTransfers(t *testing.T) {
	d, got := testDecoder(t, config.DefaultAcquisition())

	var buf []byte
	buf = append(buf, rawRecord(polarityAddr(7, 8, true), 100)...)
	buf = append(buf, rawRecord(polarityAddr(9, 10, false), 200)...)

	// Split mid-record; the tail must survive the transfer boundary.
	d.Decode(buf[:11])
	d.Decode(buf[11:])
	d.Flush()

	if len(*got) != 1 {
		t.Fatalf("got %d containers, want 1", len(*got))
	}
	pp := polarityPacketOf(t, (*got)[0])
	if pp.EventNumber() != 2 {
		t.Fatalf("event count = %d, want 2", pp.EventNumber())
	}
	ev, _ := pp.Event(1)
	if ev.X() != 9 || ev.Y() != 10 || ev.Timestamp() != 200 {
		t.Errorf("carried event = (%d,%d,%d), want (9,10,200)", ev.X(), ev.Y(), ev.Timestamp())
	}
}

func TestIMUAccumulation(t *testing.T) {
	d, got := testDecoder(t, config.DefaultAcquisition())

	samples := []uint16{8192, 4096, 2048, 655, 131, 1310, 340}
	var buf []byte
	for field, s := range samples {
		buf = append(buf, rawRecord(imuAddr(uint32(field), s), uint32(100+field))...)
	}
	buf = append(buf, rawRecord(imuAddr(rawIMUFieldCommit, 0), 110)...)
	d.Decode(buf)
	d.Flush()

	if len(*got) != 1 {
		t.Fatalf("got %d containers, want 1", len(*got))
	}
	pkt, ok := (*got)[0].FindPacketByType(events.TypeIMU6)
	if !ok {
		t.Fatal("container has no IMU packet")
	}
	ip, _ := pkt.AsIMU6()
	ev, _ := ip.Event(0)

	if ev.Timestamp() != 100 {
		t.Errorf("IMU timestamp = %d, want 100 (first sample)", ev.Timestamp())
	}
	if ev.AccelX() != 1.0 {
		t.Errorf("AccelX = %v, want 1.0", ev.AccelX())
	}
	if ev.AccelY() != 0.5 {
		t.Errorf("AccelY = %v, want 0.5", ev.AccelY())
	}
	if ev.GyroX() != 10.0 {
		t.Errorf("GyroX = %v, want 10.0", ev.GyroX())
	}
	if ev.Temp() != 36.0 {
		t.Errorf("Temp = %v, want 36.0", ev.Temp())
	}
}

func TestIMUPartialReadingDropped(t *testing.T) {
	d, got := testDecoder(t, config.DefaultAcquisition())

	// Only three of seven samples before the commit marker.
	var buf []byte
	for field := 0; field < 3; field++ {
		buf = append(buf, rawRecord(imuAddr(uint32(field), 100), 10)...)
	}
	buf = append(buf, rawRecord(imuAddr(rawIMUFieldCommit, 0), 20)...)
	d.Decode(buf)
	d.Flush()

	if len(*got) != 0 {
		t.Fatalf("got %d containers, want 0", len(*got))
	}
	if d.malformed != 1 {
		t.Errorf("malformed = %d, want 1", d.malformed)
	}
}

func TestFrameAssembly(t *testing.T) {
	d, got := testDecoder(t, config.DefaultAcquisition())

	var buf []byte
	buf = append(buf, rawRecord(frameStartAddr(4, 2), 1000)...)
	for i := 0; i < 8; i += 2 {
		buf = append(buf, rawRecord(framePixelAddr(uint16(i), uint16(i+1)), 1010)...)
	}
	buf = append(buf, rawRecord(0x6<<rawTypeShift, 1050)...)
	d.Decode(buf)
	d.Flush()

	if len(*got) != 1 {
		t.Fatalf("got %d containers, want 1", len(*got))
	}
	pkt, ok := (*got)[0].FindPacketByType(events.TypeFrame)
	if !ok {
		t.Fatal("container has no frame packet")
	}
	fp, _ := pkt.AsFrame()
	ev, _ := fp.Event(0)

	if !ev.IsValid() {
		t.Fatal("frame event not validated")
	}
	if ev.LengthX() != 4 || ev.LengthY() != 2 {
		t.Errorf("geometry = %dx%d, want 4x2", ev.LengthX(), ev.LengthY())
	}
	if ev.TSStartExposure() != 1000 || ev.TSEndExposure() != 1050 {
		t.Errorf("exposure window = [%d,%d], want [1000,1050]",
			ev.TSStartExposure(), ev.TSEndExposure())
	}
	for i := int32(0); i < 8; i++ {
		want := uint16(i) << rawPixelShift
		if v := ev.Pixel(i%4, i/4, 0); v != want {
			t.Errorf("pixel %d = %d, want %d", i, v, want)
		}
	}
}

func TestTruncatedFrameAbandoned(t *testing.T) {
	d, got := testDecoder(t, config.DefaultAcquisition())

	var buf []byte
	buf = append(buf, rawRecord(frameStartAddr(4, 2), 1000)...)
	buf = append(buf, rawRecord(framePixelAddr(1, 2), 1010)...)
	// New readout begins before the old one ended.
	buf = append(buf, rawRecord(frameStartAddr(2, 2), 2000)...)
	for i := 0; i < 4; i += 2 {
		buf = append(buf, rawRecord(framePixelAddr(uint16(i), uint16(i+1)), 2010)...)
	}
	buf = append(buf, rawRecord(0x6<<rawTypeShift, 2050)...)
	d.Decode(buf)
	d.Flush()

	if d.abandonedFrames != 1 {
		t.Errorf("abandonedFrames = %d, want 1", d.abandonedFrames)
	}
	if len(*got) != 1 {
		t.Fatalf("got %d containers, want 1", len(*got))
	}
	pkt, ok := (*got)[0].FindPacketByType(events.TypeFrame)
	if !ok {
		t.Fatal("container has no frame packet")
	}
	if n := pkt.EventValid(); n != 1 {
		t.Errorf("valid frames = %d, want 1", n)
	}
}

func TestMalformedRecordSkipped(t *testing.T) {
	d, got := testDecoder(t, config.DefaultAcquisition())

	var buf []byte
	// Timestamp with bit 31 set is corrupt.
	buf = append(buf, rawRecord(polarityAddr(1, 1, true), 0x80000010)...)
	buf = append(buf, rawRecord(polarityAddr(2, 2, true), 100)...)
	d.Decode(buf)
	d.Flush()

	if d.malformed != 1 {
		t.Errorf("malformed = %d, want 1", d.malformed)
	}
	if len(*got) != 1 {
		t.Fatalf("got %d containers, want 1", len(*got))
	}
	if n := polarityPacketOf(t, (*got)[0]).EventNumber(); n != 1 {
		t.Errorf("event count = %d, want 1", n)
	}
}
