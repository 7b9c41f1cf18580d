//go:build !usb

// Stub used when built without the usb tag, which needs cgo and libusb-1.0.
package usb

import (
	"errors"

	"github.com/banshee-data/eventcam/internal/device"
)

var errNoUSB = errors.New("built without usb support (rebuild with -tags usb)")

// Open always fails in this build.
func Open(desc device.Descriptor) (device.Transport, device.Info, error) {
	return nil, device.Info{}, errNoUSB
}
