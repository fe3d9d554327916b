package iolayer

import "time"

// Config holds configuration for the receive side of the I/O sublayer
type Config struct {
	// ReassemblyTimeout is how long a partially received packet is kept
	// after its most recent fragment.
	// Default: 30 seconds
	ReassemblyTimeout time.Duration

	// CleanupInterval is the minimum time between sweeps of expired
	// reassemblies. Sweeps run while processing received frames.
	// Default: 5 seconds
	CleanupInterval time.Duration

	// MaxReassemblySize caps the bytes accumulated for one packet.
	// Default: 1024 bytes
	MaxReassemblySize int
}

// DefaultConfig returns default I/O sublayer configuration
func DefaultConfig() Config {
	return Config{
		ReassemblyTimeout: 30 * time.Second,
		CleanupInterval:   5 * time.Second,
		MaxReassemblySize: DefaultMaxReassemblySize,
	}
}
