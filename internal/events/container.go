package events

import "iter"

// EventPacketContainer groups the packets captured in one acquisition
// interval, at most one per event type, all sharing a common overflow epoch.
// It tracks the lowest and highest 64-bit timestamp among the valid events it
// holds. Containers are frozen when published and released after consumption;
// buffers are never reused across containers.
type EventPacketContainer struct {
	packets   []*Packet
	lowestTS  int64
	highestTS int64
}

// NewContainer returns an empty container. Timestamps report -1 until a
// packet with at least one valid event is added.
func NewContainer() *EventPacketContainer {
	return &EventPacketContainer{lowestTS: -1, highestTS: -1}
}

// AddPacket appends a packet and folds its valid events into the container's
// timestamp bounds. Nil and empty packets are ignored.
func (c *EventPacketContainer) AddPacket(p *Packet) {
	if p == nil {
		return
	}
	c.packets = append(c.packets, p)

	tsOff, ok := p.tsFieldOffset()
	if !ok {
		return
	}
	for n := int32(0); n < p.EventNumber(); n++ {
		off := p.eventOffset(n)
		if !p.validAt(off) {
			continue
		}
		ts := Timestamp64(p.TSOverflow(), p.timestampAt(off+tsOff))
		if c.lowestTS < 0 || ts < c.lowestTS {
			c.lowestTS = ts
		}
		if ts > c.highestTS {
			c.highestTS = ts
		}
	}
}

// PacketCount is the number of packets held.
func (c *EventPacketContainer) PacketCount() int32 {
	return int32(len(c.packets))
}

// PacketAt returns the packet at index i, or nil when out of range.
func (c *EventPacketContainer) PacketAt(i int32) *Packet {
	if i < 0 || int(i) >= len(c.packets) {
		return nil
	}
	return c.packets[i]
}

// Packets iterates the held packets in insertion order.
func (c *EventPacketContainer) Packets() iter.Seq[*Packet] {
	return func(yield func(*Packet) bool) {
		for _, p := range c.packets {
			if !yield(p) {
				return
			}
		}
	}
}

// FindPacketByType returns the first packet carrying events of type t.
func (c *EventPacketContainer) FindPacketByType(t EventType) (*Packet, bool) {
	for _, p := range c.packets {
		if p.EventType() == t {
			return p, true
		}
	}
	return nil, false
}

// LowestTimestamp is the smallest 64-bit timestamp among valid events, or -1
// when the container holds none.
func (c *EventPacketContainer) LowestTimestamp() int64 { return c.lowestTS }

// HighestTimestamp is the largest 64-bit timestamp among valid events, or -1
// when the container holds none.
func (c *EventPacketContainer) HighestTimestamp() int64 { return c.highestTS }

// EventCount is the total number of written event slots across all packets.
func (c *EventPacketContainer) EventCount() int64 {
	var n int64
	for _, p := range c.packets {
		n += int64(p.EventNumber())
	}
	return n
}

// ValidEventCount is the total number of currently valid events across all
// packets.
func (c *EventPacketContainer) ValidEventCount() int64 {
	var n int64
	for _, p := range c.packets {
		n += int64(p.EventValid())
	}
	return n
}
