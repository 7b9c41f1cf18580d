package device

// Transport is the opaque capability the session drives: synchronous control
// transfers for configuration and asynchronous bulk transfers for data. A
// Transport is owned by exactly one session.
type Transport interface {
	// ControlGet performs a synchronous read of a 32-bit configuration
	// value at (module, param).
	ControlGet(module, param uint8) (uint32, error)

	// ControlSet performs a synchronous write of a 32-bit configuration
	// value at (module, param).
	ControlSet(module, param uint8, value uint32) error

	// SubmitTransfer hands buf to the transport for one asynchronous data
	// transfer. complete is invoked exactly once from the transport's own
	// context with the number of bytes filled, or an error. complete must
	// not block.
	SubmitTransfer(buf []byte, complete func(n int, err error)) error

	// CancelAll aborts in-flight transfers. Their completions still fire
	// (with an error) so the pipeline can quiesce deterministically.
	CancelAll() error

	// Close releases the underlying handle. No calls are legal afterwards.
	Close() error
}

// Descriptor selects a device to open.
type Descriptor struct {
	VendorID  uint16
	ProductID uint16
	// Serial restricts matching to one physical unit when several identical
	// devices are attached. Empty matches the first found.
	Serial string
}

// Info describes an opened device. Populated by the transport during Open.
type Info struct {
	Name         string
	Serial       string
	LogicVersion int32

	// DVS pixel array geometry.
	DVSSizeX int32
	DVSSizeY int32

	// APS (frame) array geometry; zero when the sensor has no frame
	// readout.
	APSSizeX int32
	APSSizeY int32

	// ColorFilter of the frame sensor, mono when absent.
	ColorFilter uint8

	// HasIMU reports an on-board inertial unit.
	HasIMU bool
}
