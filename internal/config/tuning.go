// Package config holds acquisition tuning parameters. A JSON tuning file
// uses pointer-typed optional fields so partial configs are safe: omitted
// fields keep their defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Tuning is the JSON schema for acquisition tuning. All fields are optional.
type Tuning struct {
	// Transfer pool
	PoolSize      *int `json:"pool_size,omitempty"`      // buffers kept in flight
	TransferBytes *int `json:"transfer_bytes,omitempty"` // size of each raw buffer

	// Packet assembly
	MaxPacketEvents *int `json:"max_packet_events,omitempty"` // close a packet at this many events
	TimeSliceMicros *int `json:"time_slice_micros,omitempty"` // close a container after this device-time span

	// Publish queue
	QueueBound *int `json:"queue_bound,omitempty"` // containers buffered before drop-oldest kicks in

	// Shutdown
	ShutdownTimeout *string `json:"shutdown_timeout,omitempty"` // duration string like "500ms"

	// Frame post-processing
	EnhanceFrames *bool `json:"enhance_frames,omitempty"`

	Debug *bool `json:"debug,omitempty"`
}

// LoadTuning loads a Tuning from a JSON file. The path must end in .json and
// the file is size-capped for safety.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}
	var t Tuning
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse tuning file: %w", err)
	}
	return &t, nil
}

// Acquisition is the resolved tuning actually used by the pipeline.
type Acquisition struct {
	PoolSize        int
	TransferBytes   int
	MaxPacketEvents int32
	TimeSliceMicros int32
	QueueBound      int
	ShutdownTimeout time.Duration
	EnhanceFrames   bool
	Debug           bool
}

// DefaultAcquisition returns the baseline tuning: 8 transfers of 8 KiB in
// flight, 4096-event packets cut every 10 ms of device time, 64 buffered
// containers, and a 2 s shutdown budget.
func DefaultAcquisition() Acquisition {
	return Acquisition{
		PoolSize:        8,
		TransferBytes:   8192,
		MaxPacketEvents: 4096,
		TimeSliceMicros: 10000,
		QueueBound:      64,
		ShutdownTimeout: 2 * time.Second,
	}
}

// WithTuning overlays the non-nil fields of t and validates the result.
func (a Acquisition) WithTuning(t *Tuning) (Acquisition, error) {
	if t == nil {
		return a, nil
	}
	if t.PoolSize != nil {
		a.PoolSize = *t.PoolSize
	}
	if t.TransferBytes != nil {
		a.TransferBytes = *t.TransferBytes
	}
	if t.MaxPacketEvents != nil {
		a.MaxPacketEvents = int32(*t.MaxPacketEvents)
	}
	if t.TimeSliceMicros != nil {
		a.TimeSliceMicros = int32(*t.TimeSliceMicros)
	}
	if t.QueueBound != nil {
		a.QueueBound = *t.QueueBound
	}
	if t.ShutdownTimeout != nil {
		d, err := time.ParseDuration(*t.ShutdownTimeout)
		if err != nil {
			return a, fmt.Errorf("invalid shutdown_timeout %q: %w", *t.ShutdownTimeout, err)
		}
		a.ShutdownTimeout = d
	}
	if t.EnhanceFrames != nil {
		a.EnhanceFrames = *t.EnhanceFrames
	}
	if t.Debug != nil {
		a.Debug = *t.Debug
	}
	return a, a.validate()
}

func (a Acquisition) validate() error {
	if a.PoolSize < 1 {
		return fmt.Errorf("pool_size must be >= 1, got %d", a.PoolSize)
	}
	if a.TransferBytes < 8 {
		return fmt.Errorf("transfer_bytes must be >= 8, got %d", a.TransferBytes)
	}
	if a.MaxPacketEvents < 1 {
		return fmt.Errorf("max_packet_events must be >= 1, got %d", a.MaxPacketEvents)
	}
	if a.TimeSliceMicros < 1 {
		return fmt.Errorf("time_slice_micros must be >= 1, got %d", a.TimeSliceMicros)
	}
	if a.QueueBound < 1 {
		return fmt.Errorf("queue_bound must be >= 1, got %d", a.QueueBound)
	}
	if a.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %v", a.ShutdownTimeout)
	}
	return nil
}
