package channel

import (
	"context"
	"sync"
)

// MockChannel is an in-memory PhysicalChannel for tests and loopback use.
// Written frames are copied, so callers may reuse their buffers.
type MockChannel struct {
	readChan  chan []byte
	writeChan chan []byte
	closeChan chan struct{}
	closed    bool
	mu        sync.RWMutex
	stats     TransportStats

	stateNotifier
}

// NewMockChannel creates a new mock channel
func NewMockChannel() *MockChannel {
	return &MockChannel{
		readChan:  make(chan []byte, 64),
		writeChan: make(chan []byte, 64),
		closeChan: make(chan struct{}),
	}
}

// NewMockPair returns two mock channels wired back to back: frames written
// to one are read from the other.
func NewMockPair() (*MockChannel, *MockChannel) {
	a := NewMockChannel()
	b := &MockChannel{
		readChan:  a.writeChan,
		writeChan: a.readChan,
		closeChan: make(chan struct{}),
	}
	return a, b
}

// Read implements PhysicalChannel.Read
func (m *MockChannel) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closeChan:
		return nil, ErrChannelClosed
	case data := <-m.readChan:
		m.mu.Lock()
		m.stats.BytesReceived += uint64(len(data))
		m.mu.Unlock()
		return data, nil
	}
}

// Write implements PhysicalChannel.Write
func (m *MockChannel) Write(ctx context.Context, data []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrChannelClosed
	}
	m.mu.RUnlock()

	buf := append([]byte(nil), data...)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closeChan:
		return ErrChannelClosed
	case m.writeChan <- buf:
		m.mu.Lock()
		m.stats.BytesSent += uint64(len(data))
		m.mu.Unlock()
		return nil
	}
}

// Close implements PhysicalChannel.Close
func (m *MockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	close(m.closeChan)
	return nil
}

// Statistics implements PhysicalChannel.Statistics
func (m *MockChannel) Statistics() TransportStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// InjectRead simulates receiving data
func (m *MockChannel) InjectRead(data []byte) {
	m.readChan <- data
}

// GetWritten retrieves written data, nil if nothing is pending
func (m *MockChannel) GetWritten() []byte {
	select {
	case data := <-m.writeChan:
		return data
	default:
		return nil
	}
}
