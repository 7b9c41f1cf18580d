// Package events implements the binary event-packet codec shared by the
// acquisition pipeline and the network stream format.
//
// PACKET STRUCTURE:
// Every packet is one contiguous little-endian byte buffer: a 32-byte header
// followed by eventCapacity fixed-size event slots. The header records the
// event type, the source (device) id, the total byte size, the per-event byte
// size, the timestamp-overflow epoch, and three counters:
//
//	┌────────┬────────┬──────┬───────────┬──────────┬────────────┬──────────┬────────┬───────┐
//	│ type   │ source │ size │ eventSize │ tsOffset │ tsOverflow │ capacity │ number │ valid │
//	│ i16    │ i16    │ i32  │ i32       │ i32      │ i32        │ i32      │ i32    │ i32   │
//	└────────┴────────┴──────┴───────────┴──────────┴────────────┴──────────┴────────┴───────┘
//
// COUNTER INVARIANTS:
// valid <= number <= capacity at all times. number counts slots that have been
// written (it only grows); valid counts events whose validity bit is set, and
// moves only through Validate/Invalidate. The overflow epoch is fixed at
// allocation: events in one packet never straddle a 31-bit timestamp wrap.
//
// EVENT STRUCTURE:
// Bit 0 of the first 32-bit word of every event is the validity mark. Events
// carry a signed 32-bit microsecond timestamp that wraps at 2^31; the 64-bit
// monotonic timestamp is (tsOverflow << 31) | timestamp. Payload fields are
// packed into shared words with fixed shift/mask pairs; every setter clears
// its field's bit range before writing so neighbouring fields are preserved.
//
// Because packets are plain byte buffers, the network stream codec can forward
// them without re-encoding.
package events
