package testutil

import (
	"errors"
	"sync"
	"time"
)

// MockClock implements Clock interface for testing with controllable time.
// This is used by pacing tests to avoid actual time delays.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, uses current time.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// ErrSimulated is returned by MockSource when configured to fail.
var ErrSimulated = errors.New("simulated error")

// Continue mirrors the positional "read where the last read ended" marker.
const Continue = -1

// MockSource is an in-memory random-access source that records every read
// request it receives.
type MockSource struct {
	mu         sync.Mutex
	data       []byte
	pos        int64
	maxRead    int
	errorOnNth int
	readCount  int
	closed     int
	offsets    []int64
	lengths    []int
}

// NewMockSource creates a MockSource over data.
func NewMockSource(data []byte) *MockSource {
	return &MockSource{data: data}
}

// Size returns the data length.
func (m *MockSource) Size() int64 {
	return int64(len(m.data))
}

// Read copies from offset, or from where the previous read ended when
// offset is Continue. Offsets are recorded as requested.
func (m *MockSource) Read(p []byte, offset int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCount++
	m.offsets = append(m.offsets, offset)
	m.lengths = append(m.lengths, len(p))

	if m.errorOnNth > 0 && m.readCount == m.errorOnNth {
		return 0, ErrSimulated
	}
	if offset != Continue {
		m.pos = offset
	}
	if m.pos < 0 || m.pos >= int64(len(m.data)) {
		return 0, nil
	}
	if m.maxRead > 0 && len(p) > m.maxRead {
		p = p[:m.maxRead]
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

// Close counts close calls.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// SetMaxRead caps the bytes returned by a single read.
func (m *MockSource) SetMaxRead(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxRead = n
}

// SetErrorOnNth makes the nth read fail with ErrSimulated.
func (m *MockSource) SetErrorOnNth(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorOnNth = n
}

// ReadCount returns the number of Read calls.
func (m *MockSource) ReadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCount
}

// Offsets returns the offsets passed to Read, in call order.
func (m *MockSource) Offsets() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.offsets...)
}

// Lengths returns the buffer lengths passed to Read, in call order.
func (m *MockSource) Lengths() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.lengths...)
}

// CloseCount returns the number of Close calls.
func (m *MockSource) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

