// Package device manages the lifecycle of one event-sensor connection: a
// state machine over an opaque transport, a (module, parameter) configuration
// address space driven by synchronous control transfers, and start/stop of
// the asynchronous acquisition pipeline.
package device

import "errors"

// Session and transport error taxonomy. Codec-level contract violations are
// logged, never returned; everything callers must branch on is a sentinel
// wrapped with context via fmt.Errorf("...: %w", err).
var (
	// ErrDeviceNotFound means no attached device matched the descriptor.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDeviceBusy means the device is already claimed by another session
	// or process.
	ErrDeviceBusy = errors.New("device busy")
	// ErrPermissionDenied means the OS refused access to the device node.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidHandle is returned by every operation on a closed session.
	ErrInvalidHandle = errors.New("invalid handle: session is closed")
	// ErrAlreadyStreaming is returned by DataStart while streaming.
	ErrAlreadyStreaming = errors.New("already streaming")
	// ErrNotStreaming is returned by DataStop when no capture is running.
	ErrNotStreaming = errors.New("not streaming")

	// ErrTimeout means a control transfer did not complete in time; the
	// call may be retried.
	ErrTimeout = errors.New("control transfer timeout")
	// ErrUnsupportedParameter means the (module, parameter) pair is not in
	// the device's address space. Never retried.
	ErrUnsupportedParameter = errors.New("unsupported parameter")
	// ErrDeviceIO is a transport failure. Per-transfer retries happen
	// inside the pipeline; once escalated it is session-fatal.
	ErrDeviceIO = errors.New("device i/o error")
	// ErrShutdownTimeout means DataStop had to force-abort the pipeline.
	// Resources are still reclaimed; reported exactly once.
	ErrShutdownTimeout = errors.New("timeout waiting for acquisition shutdown")

	// ErrUnsupportedFormat means a network stream preamble did not carry a
	// recognized format id.
	ErrUnsupportedFormat = errors.New("unsupported stream format")
)
