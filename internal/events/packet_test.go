package events

import (
	"testing"
)

// TestAllocateRejectsNegativeCapacity verifies allocation fails cleanly for
// capacity < 0 across the packet types.
func TestAllocateRejectsNegativeCapacity(t *testing.T) {
	if _, err := AllocatePolarityPacket(-1, 1, 0); err == nil {
		t.Error("expected error allocating polarity packet with capacity -1")
	}
	if _, err := AllocateSpecialPacket(-5, 1, 0); err == nil {
		t.Error("expected error allocating special packet with capacity -5")
	}
	if _, err := AllocateIMU6Packet(-1, 1, 0); err == nil {
		t.Error("expected error allocating imu6 packet with capacity -1")
	}
	if _, err := AllocateFramePacket(-1, 1, 0, 4, 4, 1); err == nil {
		t.Error("expected error allocating frame packet with capacity -1")
	}
	if _, err := AllocateChipConfigPacket(-1, 1, 0); err == nil {
		t.Error("expected error allocating chipconfig packet with capacity -1")
	}
}

// TestAllocateZeroCapacity verifies an empty packet is legal and consistent.
func TestAllocateZeroCapacity(t *testing.T) {
	p, err := AllocatePolarityPacket(0, 3, 0)
	if err != nil {
		t.Fatalf("failed to allocate zero-capacity packet: %v", err)
	}
	if p.EventCapacity() != 0 || p.EventNumber() != 0 || p.EventValid() != 0 {
		t.Errorf("zero-capacity packet counters: capacity=%d number=%d valid=%d",
			p.EventCapacity(), p.EventNumber(), p.EventValid())
	}
	if int(p.PacketSize()) != HeaderSize {
		t.Errorf("zero-capacity packet size = %d, want %d", p.PacketSize(), HeaderSize)
	}
	if _, ok := p.Event(0); ok {
		t.Error("Event(0) on zero-capacity packet should return the sentinel")
	}
}

// TestHeaderFields verifies the allocated header round-trips its fields.
func TestHeaderFields(t *testing.T) {
	p, err := AllocatePolarityPacket(16, 7, 3)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if p.EventType() != TypePolarity {
		t.Errorf("EventType = %v, want polarity", p.EventType())
	}
	if p.EventSource() != 7 {
		t.Errorf("EventSource = %d, want 7", p.EventSource())
	}
	if p.TSOverflow() != 3 {
		t.Errorf("TSOverflow = %d, want 3", p.TSOverflow())
	}
	if p.EventSize() != 8 {
		t.Errorf("EventSize = %d, want 8", p.EventSize())
	}
	if p.TSOffset() != 0 {
		t.Errorf("TSOffset = %d, want 0", p.TSOffset())
	}
	if int(p.PacketSize()) != HeaderSize+16*8 {
		t.Errorf("PacketSize = %d, want %d", p.PacketSize(), HeaderSize+16*8)
	}
}

// TestGetEventOutOfRange verifies the not-found sentinel for every index
// outside [0, capacity), across several capacities.
func TestGetEventOutOfRange(t *testing.T) {
	for _, capacity := range []int32{0, 1, 4, 100} {
		p, err := AllocateSpecialPacket(capacity, 1, 0)
		if err != nil {
			t.Fatalf("allocate capacity %d: %v", capacity, err)
		}
		for _, n := range []int32{-1, -100, capacity, capacity + 1, capacity + 1000} {
			if _, ok := p.Event(n); ok {
				t.Errorf("capacity %d: Event(%d) should be out of range", capacity, n)
			}
		}
		if capacity > 0 {
			if _, ok := p.Event(0); !ok {
				t.Errorf("capacity %d: Event(0) should be in range", capacity)
			}
			if _, ok := p.Event(capacity - 1); !ok {
				t.Errorf("capacity %d: Event(capacity-1) should be in range", capacity)
			}
		}
	}
}

// TestValidateInvalidateCounters exercises the counter contract: Validate
// bumps number and valid, Invalidate only drops valid, and the double calls
// are ignored without corrupting counts.
func TestValidateInvalidateCounters(t *testing.T) {
	p, err := AllocatePolarityPacket(4, 1, 0)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	ev, ok := p.Event(0)
	if !ok {
		t.Fatal("Event(0) out of range")
	}

	ev.Validate()
	if p.EventNumber() != 1 || p.EventValid() != 1 {
		t.Fatalf("after Validate: number=%d valid=%d, want 1/1", p.EventNumber(), p.EventValid())
	}

	// Double-validate is a protocol violation: logged, counters untouched.
	ev.Validate()
	if p.EventNumber() != 1 || p.EventValid() != 1 {
		t.Errorf("after double Validate: number=%d valid=%d, want 1/1", p.EventNumber(), p.EventValid())
	}

	ev.Invalidate()
	if p.EventNumber() != 1 || p.EventValid() != 0 {
		t.Errorf("after Invalidate: number=%d valid=%d, want 1/0", p.EventNumber(), p.EventValid())
	}

	// Double-invalidate is also ignored.
	ev.Invalidate()
	if p.EventNumber() != 1 || p.EventValid() != 0 {
		t.Errorf("after double Invalidate: number=%d valid=%d, want 1/0", p.EventNumber(), p.EventValid())
	}

	checkInvariant(t, &p.Packet)
}

// TestValidateInvalidateRestoresValid confirms Validate-then-Invalidate
// restores the pre-Validate valid count while number keeps its new value.
func TestValidateInvalidateRestoresValid(t *testing.T) {
	p, err := AllocateSpecialPacket(8, 1, 0)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for n := int32(0); n < 3; n++ {
		ev, _ := p.Event(n)
		ev.Validate()
	}
	validBefore := p.EventValid()
	numberBefore := p.EventNumber()

	ev, _ := p.Event(3)
	ev.Validate()
	ev.Invalidate()

	if p.EventValid() != validBefore {
		t.Errorf("valid = %d, want restored %d", p.EventValid(), validBefore)
	}
	if p.EventNumber() != numberBefore+1 {
		t.Errorf("number = %d, want %d (Invalidate must not decrement it)", p.EventNumber(), numberBefore+1)
	}
	checkInvariant(t, &p.Packet)
}

// TestSetTimestampRejectsNegative verifies a negative timestamp write is
// dropped without mutation.
func TestSetTimestampRejectsNegative(t *testing.T) {
	p, err := AllocatePolarityPacket(1, 1, 0)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	ev, _ := p.Event(0)
	ev.SetTimestamp(12345)
	ev.SetTimestamp(-1)
	if ev.Timestamp() != 12345 {
		t.Errorf("timestamp = %d after negative set, want 12345 untouched", ev.Timestamp())
	}
}

// TestTimestamp64Reconstruction checks the 64-bit reconstruction is
// non-decreasing across overflow epochs for increasing 32-bit inputs.
func TestTimestamp64Reconstruction(t *testing.T) {
	const maxTS = int32(0x7FFFFFFF)
	var last int64 = -1
	for epoch := int32(0); epoch < 4; epoch++ {
		for _, ts := range []int32{0, 1, 1000, maxTS / 2, maxTS - 1, maxTS} {
			got := Timestamp64(epoch, ts)
			if got < last {
				t.Fatalf("Timestamp64(%d, %d) = %d, decreased from %d", epoch, ts, got, last)
			}
			if got < 0 {
				t.Fatalf("Timestamp64(%d, %d) = %d, negative", epoch, ts, got)
			}
			last = got
		}
	}
	if got := Timestamp64(1, 0); got != int64(1)<<TSOverflowShift {
		t.Errorf("Timestamp64(1, 0) = %d, want %d", got, int64(1)<<TSOverflowShift)
	}
}

// TestPacketFromBytes checks the serialized round trip and the header
// consistency checks.
func TestPacketFromBytes(t *testing.T) {
	p, err := AllocatePolarityPacket(4, 2, 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	ev, _ := p.Event(0)
	ev.SetX(10)
	ev.SetY(20)
	ev.SetPolarity(true)
	ev.SetTimestamp(999)
	ev.Validate()

	raw := make([]byte, len(p.Bytes()))
	copy(raw, p.Bytes())

	q, err := PacketFromBytes(raw)
	if err != nil {
		t.Fatalf("PacketFromBytes: %v", err)
	}
	qp, ok := q.AsPolarity()
	if !ok {
		t.Fatal("AsPolarity failed on a polarity packet")
	}
	qe, _ := qp.Event(0)
	if qe.X() != 10 || qe.Y() != 20 || !qe.Polarity() || qe.Timestamp() != 999 || !qe.IsValid() {
		t.Errorf("round-tripped event: x=%d y=%d pol=%v ts=%d valid=%v",
			qe.X(), qe.Y(), qe.Polarity(), qe.Timestamp(), qe.IsValid())
	}
	if qp.TSOverflow() != 1 {
		t.Errorf("round-tripped overflow = %d, want 1", qp.TSOverflow())
	}

	// Corrupt the size field: must be rejected.
	bad := make([]byte, len(raw))
	copy(bad, raw)
	bad[headerSizeOffset] ^= 0xFF
	if _, err := PacketFromBytes(bad); err == nil {
		t.Error("PacketFromBytes accepted a corrupted size field")
	}

	// Truncated buffer: must be rejected.
	if _, err := PacketFromBytes(raw[:HeaderSize-1]); err == nil {
		t.Error("PacketFromBytes accepted a truncated buffer")
	}
}

// checkInvariant asserts valid <= number <= capacity.
func checkInvariant(t *testing.T, p *Packet) {
	t.Helper()
	if !(p.EventValid() <= p.EventNumber() && p.EventNumber() <= p.EventCapacity()) {
		t.Errorf("invariant violated: valid=%d number=%d capacity=%d",
			p.EventValid(), p.EventNumber(), p.EventCapacity())
	}
}
