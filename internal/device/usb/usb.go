//go:build usb

// Package usb opens event cameras over libusb and adapts them to the
// device.Transport contract: vendor control transfers for the configuration
// address space, bulk IN transfers for the raw event stream.
package usb

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotmc/libusb"

	"github.com/banshee-data/eventcam/internal/device"
)

const (
	vendorRequestOut = byte(0x40)
	vendorRequestIn  = byte(0xC0)

	// Vendor request carrying one 32-bit configuration access; the
	// (module, param) address rides in wValue.
	requestConfig = byte(0xBF)

	// Bulk IN endpoint carrying the raw event stream.
	dataEndpoint = 0x82

	controlTimeout = 100 * time.Millisecond

	// Short bulk timeout so cancellation and shutdown stay responsive on
	// an idle device.
	bulkTimeout = 100 * time.Millisecond

	submitQueueDepth = 64
)

// chipGeometry maps the chip identification register to sensor layout.
var chipGeometry = map[uint32]device.Info{
	1: {Name: "EVK240", DVSSizeX: 240, DVSSizeY: 180, APSSizeX: 240, APSSizeY: 180, HasIMU: true},
	2: {Name: "EVK346", DVSSizeX: 346, DVSSizeY: 260, APSSizeX: 346, APSSizeY: 260, HasIMU: true},
	3: {Name: "EVK640", DVSSizeX: 640, DVSSizeY: 480},
}

type pendingTransfer struct {
	buf      []byte
	complete func(n int, err error)
	gen      uint64
}

// transport drives one opened libusb handle. Control transfers are
// serialized; bulk reads run on a single reader goroutine so buffers fill in
// submission order.
type transport struct {
	ctx    *libusb.Context
	handle *libusb.DeviceHandle

	controlMu sync.Mutex

	queue  chan pendingTransfer
	gen    atomic.Uint64
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// Open finds a device matching desc, claims it, and interrogates its
// identification registers.
func Open(desc device.Descriptor) (device.Transport, device.Info, error) {
	ctx, err := libusb.NewContext()
	if err != nil {
		return nil, device.Info{}, fmt.Errorf("usb context: %w", err)
	}
	_, handle, err := ctx.OpenDeviceWithVendorProduct(desc.VendorID, desc.ProductID)
	if err != nil {
		ctx.Close()
		return nil, device.Info{}, fmt.Errorf("%w: %04x:%04x: %v",
			device.ErrDeviceNotFound, desc.VendorID, desc.ProductID, err)
	}
	if err := handle.ClaimInterface(0); err != nil {
		handle.Close()
		ctx.Close()
		return nil, device.Info{}, fmt.Errorf("%w: claim interface: %v", device.ErrDeviceBusy, err)
	}

	t := &transport{
		ctx:    ctx,
		handle: handle,
		queue:  make(chan pendingTransfer, submitQueueDepth),
	}
	t.wg.Add(1)
	go t.readLoop()

	info, err := t.identify(desc)
	if err != nil {
		_ = t.Close()
		return nil, device.Info{}, err
	}
	return t, info, nil
}

// identify reads the chip id and logic version registers and fills in the
// static sensor description.
func (t *transport) identify(desc device.Descriptor) (device.Info, error) {
	chip, err := t.ControlGet(device.ModuleSystem, device.ParamSystemChipID)
	if err != nil {
		return device.Info{}, fmt.Errorf("read chip id: %w", err)
	}
	info, ok := chipGeometry[chip]
	if !ok {
		return device.Info{}, fmt.Errorf("%w: unknown chip id %d", device.ErrDeviceIO, chip)
	}
	logic, err := t.ControlGet(device.ModuleSystem, device.ParamSystemLogicVersion)
	if err != nil {
		return device.Info{}, fmt.Errorf("read logic version: %w", err)
	}
	info.LogicVersion = int32(logic)
	info.Serial = desc.Serial
	return info, nil
}

func configAddress(module, param uint8) uint16 {
	return uint16(module)<<8 | uint16(param)
}

func (t *transport) ControlGet(module, param uint8) (uint32, error) {
	t.controlMu.Lock()
	defer t.controlMu.Unlock()
	var buf [4]byte
	n, err := t.handle.ControlTransfer(vendorRequestIn, requestConfig,
		configAddress(module, param), 0, buf[:], len(buf),
		int(controlTimeout.Milliseconds()))
	if err != nil {
		return 0, fmt.Errorf("%w: control read (%d,%d): %v", device.ErrDeviceIO, module, param, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("%w: control read (%d,%d): short read %d", device.ErrDeviceIO, module, param, n)
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

func (t *transport) ControlSet(module, param uint8, value uint32) error {
	t.controlMu.Lock()
	defer t.controlMu.Unlock()
	buf := [4]byte{byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24)}
	_, err := t.handle.ControlTransfer(vendorRequestOut, requestConfig,
		configAddress(module, param), 0, buf[:], len(buf),
		int(controlTimeout.Milliseconds()))
	if err != nil {
		return fmt.Errorf("%w: control write (%d,%d): %v", device.ErrDeviceIO, module, param, err)
	}
	return nil
}

func (t *transport) SubmitTransfer(buf []byte, complete func(n int, err error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return device.ErrInvalidHandle
	}
	select {
	case t.queue <- pendingTransfer{buf: buf, complete: complete, gen: t.gen.Load()}:
		return nil
	default:
		return fmt.Errorf("%w: transfer queue full", device.ErrDeviceIO)
	}
}

// readLoop services submitted buffers in order. A bulk timeout on an idle
// device is not an error; the buffer completes empty and the pipeline
// resubmits it.
func (t *transport) readLoop() {
	defer t.wg.Done()
	for pt := range t.queue {
		if pt.gen != t.gen.Load() {
			pt.complete(0, device.ErrTimeout)
			continue
		}
		n, err := t.handle.BulkTransfer(dataEndpoint, pt.buf, len(pt.buf),
			int(bulkTimeout.Milliseconds()))
		if pt.gen != t.gen.Load() {
			pt.complete(0, device.ErrTimeout)
			continue
		}
		if err != nil && n == 0 && isTimeout(err) {
			pt.complete(0, nil)
			continue
		}
		pt.complete(n, err)
	}
}

func isTimeout(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// CancelAll invalidates every queued and in-flight transfer. Queued buffers
// complete with an error as the reader reaches them; the transport stays
// usable for a later stream.
func (t *transport) CancelAll() error {
	t.gen.Add(1)
	return nil
}

func (t *transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return device.ErrInvalidHandle
	}
	t.closed = true
	t.mu.Unlock()

	t.gen.Add(1)
	close(t.queue)
	t.wg.Wait()

	if err := t.handle.ReleaseInterface(0); err != nil {
		log.Printf("usb: release interface: %v", err)
	}
	t.handle.Close()
	t.ctx.Close()
	return nil
}
