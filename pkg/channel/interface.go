package channel

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrChannelClosed = errors.New("channel is closed")
	ErrChannelOpen   = errors.New("channel is already open")
	ErrNoConnection  = errors.New("no connection")
	ErrAddress       = errors.New("address is required")
	ErrFramingLost   = errors.New("stream lost frame alignment")
)

// ConnectionStateListener receives notifications about connection state changes
type ConnectionStateListener interface {
	// OnConnectionEstablished is called when a new connection is established
	OnConnectionEstablished()

	// OnConnectionLost is called when a connection is lost
	OnConnectionLost()
}

// PhysicalChannel carries raw Proximity-1 frames over some medium.
// Implementations exist for UDP, TCP, QUIC and serial radio modems; users
// can plug in their own.
type PhysicalChannel interface {
	// Read returns the next complete frame.
	// Blocks until a frame is available or ctx is cancelled.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one frame. It must not retain data after returning and must
	// be safe for concurrent use.
	Write(ctx context.Context, data []byte) error

	// Close releases the medium and unblocks pending Read/Write calls.
	Close() error

	// Statistics returns transport-level statistics
	// Optional - can return zero values if not tracked
	Statistics() TransportStats

	// SetConnectionStateListener sets a listener for connection state changes
	// Optional - channels that don't support connection state notifications can ignore this
	SetConnectionStateListener(listener ConnectionStateListener)
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesSent     uint64 // Total bytes sent
	BytesReceived uint64 // Total bytes received
	WriteErrors   uint64 // Number of write errors
	ReadErrors    uint64 // Number of read errors
	Connects      uint64 // Number of connections (for connection-oriented transports)
	Disconnects   uint64 // Number of disconnections
}

// ChannelState represents the state of a channel
type ChannelState int

const (
	ChannelStateOpen ChannelState = iota
	ChannelStateClosed
)

// String returns string representation of ChannelState
func (s ChannelState) String() string {
	switch s {
	case ChannelStateOpen:
		return "Open"
	case ChannelStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
