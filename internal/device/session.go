package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/eventcam/internal/acquire"
	"github.com/banshee-data/eventcam/internal/config"
	"github.com/banshee-data/eventcam/internal/events"
)

// SessionState tracks where a session is in its lifecycle.
type SessionState int

const (
	StateOpen SessionState = iota
	StateStreaming
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session owns one opened device: configuration access, the streaming
// lifecycle, and the acquisition pipeline while streaming.
//
// State machine: open ⇄ streaming, and either state → closed. Every
// operation on a closed session returns ErrInvalidHandle. A fatal transport
// failure during streaming tears the stream down asynchronously; the session
// drops back to open and records the failure.
type Session struct {
	id       string
	deviceID int16
	tr       Transport
	info     Info
	acq      config.Acquisition
	enhancer acquire.FrameEnhancer

	mu       sync.Mutex
	state    SessionState
	pipeline *acquire.Pipeline
	lastErr  error
}

// NewSession wraps an opened transport. deviceID tags every event packet the
// session produces, so multi-camera consumers can tell streams apart.
// enhancer may be nil; it runs on completed frame events only.
func NewSession(tr Transport, info Info, deviceID int16, acq config.Acquisition,
	enhancer acquire.FrameEnhancer) *Session {
	return &Session{
		id:       uuid.NewString(),
		deviceID: deviceID,
		tr:       tr,
		info:     info,
		acq:      acq,
		enhancer: enhancer,
		state:    StateOpen,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Info returns the device description captured at open.
func (s *Session) Info() Info { return s.info }

// State reports the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the failure that forced the most recent asynchronous
// stream teardown, nil if none.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ConfigSet writes one 32-bit configuration value. Unsupported (module,
// param) pairs are rejected before any control transfer, so the device is
// never touched by a bad address.
func (s *Session) ConfigSet(module, param uint8, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrInvalidHandle
	}
	key := paramKey{module, param}
	if !supportedParams[key] {
		return fmt.Errorf("config set %s: %w", key, ErrUnsupportedParameter)
	}
	if err := s.tr.ControlSet(module, param, value); err != nil {
		return fmt.Errorf("config set %s: %w", key, err)
	}
	return nil
}

// ConfigGet reads one 32-bit configuration value.
func (s *Session) ConfigGet(module, param uint8) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return 0, ErrInvalidHandle
	}
	key := paramKey{module, param}
	if !supportedParams[key] {
		return 0, fmt.Errorf("config get %s: %w", key, ErrUnsupportedParameter)
	}
	v, err := s.tr.ControlGet(module, param)
	if err != nil {
		return 0, fmt.Errorf("config get %s: %w", key, err)
	}
	return v, nil
}

// SendDefaultConfig writes the baseline register set and reports each write
// individually. A failed write does not roll back earlier ones; callers
// inspect the results and may retry single parameters.
func (s *Session) SendDefaultConfig() ([]SettingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, ErrInvalidHandle
	}
	results := make([]SettingResult, 0, len(defaultConfig))
	for _, set := range defaultConfig {
		err := s.tr.ControlSet(set.Module, set.Param, set.Value)
		if err != nil {
			log.Printf("device %s: default config %s: %v",
				s.id, paramKey{set.Module, set.Param}, err)
		}
		results = append(results, SettingResult{Setting: set, Err: err})
	}
	return results, nil
}

// DataStart builds the acquisition pipeline, puts the transfer pool in
// flight, and enables the device's transfer engine. On failure nothing is
// left running.
func (s *Session) DataStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrInvalidHandle
	case StateStreaming:
		return ErrAlreadyStreaming
	}

	maxX, maxY := s.info.APSSizeX, s.info.APSSizeY
	if maxX == 0 || maxY == 0 {
		// No frame readout: keep the decoder's frame path allocatable
		// but reject real geometry.
		maxX, maxY = 1, 1
	}
	p := acquire.NewPipeline(s.tr, s.acq, s.deviceID, maxX, maxY, 1,
		s.enhancer, s.streamFailed)
	if err := p.Start(); err != nil {
		return err
	}
	if err := s.tr.ControlSet(ModuleUSB, ParamUSBRun, 1); err != nil {
		if serr := p.Stop(); serr != nil {
			log.Printf("device %s: stop after failed start: %v", s.id, serr)
		}
		return fmt.Errorf("enable transfer engine: %w", err)
	}
	s.pipeline = p
	s.lastErr = nil
	s.state = StateStreaming
	return nil
}

// DataStop disables the transfer engine and quiesces the pipeline. Decoded
// containers already queued stay readable through NextContainer until the
// backlog drains.
func (s *Session) DataStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrInvalidHandle
	}
	if s.state != StateStreaming {
		return ErrNotStreaming
	}
	return s.stopStreamLocked(true)
}

// stopStreamLocked tears the stream down. disableEngine is false when the
// device is already unreachable.
func (s *Session) stopStreamLocked(disableEngine bool) error {
	if disableEngine {
		if err := s.tr.ControlSet(ModuleUSB, ParamUSBRun, 0); err != nil {
			log.Printf("device %s: disable transfer engine: %v", s.id, err)
		}
	}
	err := s.pipeline.Stop()
	s.state = StateOpen
	if errors.Is(err, acquire.ErrShutdownTimeout) {
		return fmt.Errorf("%w: %v", ErrShutdownTimeout, err)
	}
	return err
}

// streamFailed runs in the transfer-completion context and must not block;
// the actual teardown happens on its own goroutine because stopping the
// pipeline waits for that very completion to retire.
func (s *Session) streamFailed(cause error) {
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state != StateStreaming {
			return
		}
		s.lastErr = cause
		if err := s.stopStreamLocked(false); err != nil {
			log.Printf("device %s: teardown after stream failure: %v", s.id, err)
		}
	}()
}

// NextContainer blocks for the next event packet container. After DataStop
// it drains the remaining backlog, then reports ErrNotStreaming.
func (s *Session) NextContainer(ctx context.Context) (*events.EventPacketContainer, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil, ErrInvalidHandle
	}
	p := s.pipeline
	s.mu.Unlock()
	if p == nil {
		return nil, ErrNotStreaming
	}
	c, err := p.NextContainer(ctx)
	if errors.Is(err, acquire.ErrStopped) {
		return nil, ErrNotStreaming
	}
	return c, err
}

// Statistics snapshots the pipeline counters of the current or most recent
// stream. Zero before the first DataStart.
func (s *Session) Statistics() acquire.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline == nil {
		return acquire.Stats{}
	}
	return s.pipeline.Statistics()
}

// Close stops any active stream and releases the transport. Every later
// operation returns ErrInvalidHandle, Close included.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrInvalidHandle
	}
	if s.state == StateStreaming {
		if err := s.stopStreamLocked(true); err != nil {
			log.Printf("device %s: stop stream on close: %v", s.id, err)
		}
	}
	err := s.tr.Close()
	s.state = StateClosed
	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}
