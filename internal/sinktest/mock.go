// ABOUTME: Scripted in-memory sink for exercising the playback pipeline
// ABOUTME: Implements the sink contract without touching real hardware
package sinktest

import (
	"sync"
	"time"

	"github.com/Playout-Project/playout-go/internal/sink"
	"github.com/Playout-Project/playout-go/pkg/audio"
)

// MockSink is a test double for the hardware sink. It accepts writes
// into an in-memory device buffer that tests drain explicitly with
// Consume. Supported rate/channel combinations and failure injection
// are scripted by the test.
type MockSink struct {
	mu sync.Mutex

	// SupportedRates and SupportedChannels script the Setup probe.
	// Empty means everything is accepted.
	SupportedRates    []uint
	SupportedChannels []uint

	// PeriodBytes is returned by Setup; defaults to 4096.
	PeriodBytes int

	// BufferBytes is the device buffer capacity; defaults to 65536.
	BufferBytes int

	// FailWrites makes the next Write calls report an underrun.
	FailWrites int

	open        bool
	passthrough bool
	format      audio.Format
	buffered    []byte
	written     []byte
	setups      []audio.Format
	dropped     int
	recovered   int
	volume      int
}

func (m *MockSink) Open(passthrough bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	m.passthrough = passthrough
	return nil
}

func (m *MockSink) Setup(rate, channels uint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, sink.ErrNotOpen
	}
	if !contains(m.SupportedRates, rate) || !contains(m.SupportedChannels, channels) {
		return 0, sink.ErrUnsupported
	}
	m.format = audio.Format{SampleRate: rate, Channels: channels}
	m.setups = append(m.setups, m.format)
	if m.PeriodBytes == 0 {
		m.PeriodBytes = 4096
	}
	return m.PeriodBytes, nil
}

func (m *MockSink) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, sink.ErrNotOpen
	}
	if m.FailWrites > 0 {
		m.FailWrites--
		return 0, sink.ErrUnderrun
	}
	free := m.cap() - len(m.buffered)
	n := len(p)
	if n > free {
		n = free
	}
	m.buffered = append(m.buffered, p[:n]...)
	m.written = append(m.written, p[:n]...)
	return n, nil
}

func (m *MockSink) Avail() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cap() - len(m.buffered), nil
}

func (m *MockSink) Wait(timeout time.Duration) (bool, error) {
	m.mu.Lock()
	free := m.cap() - len(m.buffered)
	m.mu.Unlock()
	if free > 0 {
		return true, nil
	}
	time.Sleep(timeout)
	return false, nil
}

func (m *MockSink) Drop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffered = nil
	m.dropped++
	return nil
}

func (m *MockSink) Recover() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recovered++
	return nil
}

func (m *MockSink) DelayFrames() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.format.Valid() {
		return 0, nil
	}
	return len(m.buffered) / m.format.FrameBytes(), nil
}

func (m *MockSink) SetVolume(permille int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = permille
	return nil
}

func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

// Consume drains up to n bytes from the device buffer, simulating
// hardware playback progress.
func (m *MockSink) Consume(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.buffered) {
		n = len(m.buffered)
	}
	m.buffered = m.buffered[n:]
}

// Written returns a copy of every byte the sink accepted.
func (m *MockSink) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written...)
}

// Buffered returns the bytes currently queued in the device.
func (m *MockSink) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffered)
}

// Setups returns the formats negotiated so far.
func (m *MockSink) Setups() []audio.Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audio.Format(nil), m.setups...)
}

// Dropped returns how many times the device buffer was discarded.
func (m *MockSink) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Volume returns the last mixer volume set on the device.
func (m *MockSink) Volume() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

func (m *MockSink) cap() int {
	if m.BufferBytes == 0 {
		return 65536
	}
	return m.BufferBytes
}

func contains(set []uint, v uint) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
