package device

import (
	"errors"
	"sync"
)

// MockTransport is an in-memory Transport for tests and offline replay. It
// keeps a register file for control transfers and parks submitted data
// transfers until the test feeds bytes or fails them.
type MockTransport struct {
	mu     sync.Mutex
	regs   map[paramKey]uint32
	writes []Setting
	parked []parkedTransfer
	closed bool

	// ControlErr, when non-nil, fails every control transfer.
	ControlErr error
	// FailWritesAfter fails control writes once this many have succeeded.
	// Negative disables the limit.
	FailWritesAfter int
}

type parkedTransfer struct {
	buf      []byte
	complete func(n int, err error)
}

var errMockClosed = errors.New("mock transport closed")

func NewMockTransport() *MockTransport {
	return &MockTransport{
		regs:            make(map[paramKey]uint32),
		FailWritesAfter: -1,
	}
}

func (m *MockTransport) ControlGet(module, param uint8) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errMockClosed
	}
	if m.ControlErr != nil {
		return 0, m.ControlErr
	}
	return m.regs[paramKey{module, param}], nil
}

func (m *MockTransport) ControlSet(module, param uint8, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMockClosed
	}
	if m.ControlErr != nil {
		return m.ControlErr
	}
	if m.FailWritesAfter >= 0 && len(m.writes) >= m.FailWritesAfter {
		return errors.New("control write refused")
	}
	m.regs[paramKey{module, param}] = value
	m.writes = append(m.writes, Setting{Module: module, Param: param, Value: value})
	return nil
}

func (m *MockTransport) SubmitTransfer(buf []byte, complete func(n int, err error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMockClosed
	}
	m.parked = append(m.parked, parkedTransfer{buf: buf, complete: complete})
	return nil
}

func (m *MockTransport) CancelAll() error {
	m.mu.Lock()
	parked := m.parked
	m.parked = nil
	m.mu.Unlock()
	for _, t := range parked {
		t.complete(0, errors.New("transfer cancelled"))
	}
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMockClosed
	}
	m.closed = true
	return nil
}

// Feed completes the oldest parked transfer with data, reporting whether a
// transfer was waiting.
func (m *MockTransport) Feed(data []byte) bool {
	m.mu.Lock()
	if len(m.parked) == 0 {
		m.mu.Unlock()
		return false
	}
	t := m.parked[0]
	m.parked = m.parked[1:]
	m.mu.Unlock()
	t.complete(copy(t.buf, data), nil)
	return true
}

// FailTransfer completes the oldest parked transfer with err, reporting
// whether a transfer was waiting.
func (m *MockTransport) FailTransfer(err error) bool {
	m.mu.Lock()
	if len(m.parked) == 0 {
		m.mu.Unlock()
		return false
	}
	t := m.parked[0]
	m.parked = m.parked[1:]
	m.mu.Unlock()
	t.complete(0, err)
	return true
}

// Register reads back a register without going through the control path.
func (m *MockTransport) Register(module, param uint8) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.regs[paramKey{module, param}]
	return v, ok
}

// Writes returns the control writes seen so far, in order.
func (m *MockTransport) Writes() []Setting {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Setting, len(m.writes))
	copy(out, m.writes)
	return out
}
