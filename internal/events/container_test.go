package events

import "testing"

// TestContainerTimestampBounds builds a container from two packet types and
// checks the lowest/highest 64-bit timestamps cover all valid events.
func TestContainerTimestampBounds(t *testing.T) {
	pol, err := AllocatePolarityPacket(4, 1, 0)
	if err != nil {
		t.Fatalf("allocate polarity: %v", err)
	}
	for i, ts := range []int32{500, 100, 900} {
		ev, _ := pol.Event(int32(i))
		ev.SetTimestamp(ts)
		ev.Validate()
	}

	spec, err := AllocateSpecialPacket(2, 1, 0)
	if err != nil {
		t.Fatalf("allocate special: %v", err)
	}
	se, _ := spec.Event(0)
	se.SetTimestamp(50)
	se.Validate()

	c := NewContainer()
	if c.LowestTimestamp() != -1 || c.HighestTimestamp() != -1 {
		t.Errorf("empty container timestamps = %d/%d, want -1/-1", c.LowestTimestamp(), c.HighestTimestamp())
	}

	c.AddPacket(&pol.Packet)
	c.AddPacket(&spec.Packet)

	if c.PacketCount() != 2 {
		t.Errorf("PacketCount = %d, want 2", c.PacketCount())
	}
	if c.LowestTimestamp() != 50 {
		t.Errorf("LowestTimestamp = %d, want 50", c.LowestTimestamp())
	}
	if c.HighestTimestamp() != 900 {
		t.Errorf("HighestTimestamp = %d, want 900", c.HighestTimestamp())
	}
	if c.EventCount() != 4 {
		t.Errorf("EventCount = %d, want 4", c.EventCount())
	}
	if c.ValidEventCount() != 4 {
		t.Errorf("ValidEventCount = %d, want 4", c.ValidEventCount())
	}
}

// TestContainerInvalidEventsExcluded checks invalidated events do not widen
// the timestamp bounds.
func TestContainerInvalidEventsExcluded(t *testing.T) {
	pol, err := AllocatePolarityPacket(2, 1, 0)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	ev0, _ := pol.Event(0)
	ev0.SetTimestamp(1000)
	ev0.Validate()
	ev1, _ := pol.Event(1)
	ev1.SetTimestamp(5)
	ev1.Validate()
	ev1.Invalidate()

	c := NewContainer()
	c.AddPacket(&pol.Packet)
	if c.LowestTimestamp() != 1000 || c.HighestTimestamp() != 1000 {
		t.Errorf("bounds = %d/%d, want 1000/1000 (invalidated event must not count)",
			c.LowestTimestamp(), c.HighestTimestamp())
	}
	if c.ValidEventCount() != 1 {
		t.Errorf("ValidEventCount = %d, want 1", c.ValidEventCount())
	}
}

// TestContainerFindByType checks type lookup and the overflow epoch in the
// reconstructed bounds.
func TestContainerFindByType(t *testing.T) {
	pol, err := AllocatePolarityPacket(1, 1, 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	ev, _ := pol.Event(0)
	ev.SetTimestamp(7)
	ev.Validate()

	c := NewContainer()
	c.AddPacket(&pol.Packet)

	p, ok := c.FindPacketByType(TypePolarity)
	if !ok || p.EventType() != TypePolarity {
		t.Fatal("FindPacketByType(polarity) failed")
	}
	if _, ok := c.FindPacketByType(TypeFrame); ok {
		t.Error("FindPacketByType(frame) matched a container without frames")
	}

	want := Timestamp64(2, 7)
	if c.LowestTimestamp() != want || c.HighestTimestamp() != want {
		t.Errorf("bounds = %d/%d, want %d (epoch 2)", c.LowestTimestamp(), c.HighestTimestamp(), want)
	}

	if c.PacketAt(0) == nil || c.PacketAt(1) != nil || c.PacketAt(-1) != nil {
		t.Error("PacketAt bounds handling wrong")
	}
}
