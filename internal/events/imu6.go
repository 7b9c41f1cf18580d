package events

import (
	"iter"
	"math"
)

// IMU6 event layout (36 bytes):
//
//	info:u32       bit 0 validity, rest reserved
//	timestamp:i32  microseconds, 31-bit range
//	accelX/Y/Z:f32 acceleration in g
//	gyroX/Y/Z:f32  angular velocity in °/s
//	temp:f32       temperature in °C
//
// Floats are stored as their IEEE-754 bit pattern in little-endian words.
const (
	imu6EventSize = 36

	imu6TimestampOffset = 4
	imu6AccelXOffset    = 8
	imu6AccelYOffset    = 12
	imu6AccelZOffset    = 16
	imu6GyroXOffset     = 20
	imu6GyroYOffset     = 24
	imu6GyroZOffset     = 28
	imu6TempOffset      = 32
)

// IMU6Packet holds inertial measurement events.
type IMU6Packet struct {
	Packet
}

// AllocateIMU6Packet allocates a packet for capacity IMU6 events, all
// initially invalid.
func AllocateIMU6Packet(capacity int32, source int16, tsOverflow int32) (*IMU6Packet, error) {
	p, err := allocatePacket(TypeIMU6, capacity, imu6EventSize, source, tsOverflow)
	if err != nil {
		return nil, err
	}
	return &IMU6Packet{Packet: *p}, nil
}

// AsIMU6 reinterprets a generic packet as an IMU6 packet.
func (p *Packet) AsIMU6() (*IMU6Packet, bool) {
	if p.EventType() != TypeIMU6 {
		return nil, false
	}
	return &IMU6Packet{Packet: *p}, true
}

// IMU6Event is a view over one event slot; the zero value is the not-found
// sentinel.
type IMU6Event struct {
	pkt *Packet
	off int
}

// Event returns a bounds-checked view of slot n.
func (p *IMU6Packet) Event(n int32) (IMU6Event, bool) {
	if !p.checkBounds(n) {
		return IMU6Event{}, false
	}
	return p.at(n), true
}

func (p *IMU6Packet) at(n int32) IMU6Event {
	return IMU6Event{pkt: &p.Packet, off: p.eventOffset(n)}
}

func (p *IMU6Packet) All() iter.Seq2[int32, IMU6Event] {
	return forwardAll(p.EventNumber(), p.at)
}

func (p *IMU6Packet) Valid() iter.Seq2[int32, IMU6Event] {
	return forwardValid(p.EventNumber(), p.at, IMU6Event.IsValid)
}

func (p *IMU6Packet) ReverseAll() iter.Seq2[int32, IMU6Event] {
	return reverseAll(p.EventNumber(), p.at)
}

func (p *IMU6Packet) ReverseValid() iter.Seq2[int32, IMU6Event] {
	return reverseValid(p.EventNumber(), p.at, IMU6Event.IsValid)
}

func (p *IMU6Packet) FindFirst(pred func(IMU6Event) bool) (IMU6Event, bool) {
	_, ev, ok := findFirst(p.Valid(), pred)
	return ev, ok
}

func (e IMU6Event) IsValid() bool {
	if e.pkt == nil {
		return false
	}
	return e.pkt.validAt(e.off)
}

func (e IMU6Event) Validate() {
	if e.pkt != nil {
		e.pkt.validateAt(e.off)
	}
}

func (e IMU6Event) Invalidate() {
	if e.pkt != nil {
		e.pkt.invalidateAt(e.off)
	}
}

func (e IMU6Event) Timestamp() int32 {
	if e.pkt == nil {
		return 0
	}
	return e.pkt.timestampAt(e.off + imu6TimestampOffset)
}

func (e IMU6Event) Timestamp64() int64 {
	if e.pkt == nil {
		return 0
	}
	return Timestamp64(e.pkt.TSOverflow(), e.Timestamp())
}

func (e IMU6Event) SetTimestamp(ts int32) {
	if e.pkt != nil {
		e.pkt.setTimestampAt(e.off+imu6TimestampOffset, ts)
	}
}

func (e IMU6Event) float(off int) float32 {
	if e.pkt == nil {
		return 0
	}
	return math.Float32frombits(e.pkt.word32(e.off + off))
}

func (e IMU6Event) setFloat(off int, v float32) {
	if e.pkt == nil {
		return
	}
	e.pkt.setWord32(e.off+off, math.Float32bits(v))
}

// AccelX is acceleration along X in g.
func (e IMU6Event) AccelX() float32     { return e.float(imu6AccelXOffset) }
func (e IMU6Event) SetAccelX(v float32) { e.setFloat(imu6AccelXOffset, v) }

func (e IMU6Event) AccelY() float32     { return e.float(imu6AccelYOffset) }
func (e IMU6Event) SetAccelY(v float32) { e.setFloat(imu6AccelYOffset, v) }

func (e IMU6Event) AccelZ() float32     { return e.float(imu6AccelZOffset) }
func (e IMU6Event) SetAccelZ(v float32) { e.setFloat(imu6AccelZOffset, v) }

// GyroX is angular velocity around X in degrees per second.
func (e IMU6Event) GyroX() float32     { return e.float(imu6GyroXOffset) }
func (e IMU6Event) SetGyroX(v float32) { e.setFloat(imu6GyroXOffset, v) }

func (e IMU6Event) GyroY() float32     { return e.float(imu6GyroYOffset) }
func (e IMU6Event) SetGyroY(v float32) { e.setFloat(imu6GyroYOffset, v) }

func (e IMU6Event) GyroZ() float32     { return e.float(imu6GyroZOffset) }
func (e IMU6Event) SetGyroZ(v float32) { e.setFloat(imu6GyroZOffset, v) }

// Temp is the sensor die temperature in °C.
func (e IMU6Event) Temp() float32     { return e.float(imu6TempOffset) }
func (e IMU6Event) SetTemp(v float32) { e.setFloat(imu6TempOffset, v) }
