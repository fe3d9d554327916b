package channel

import "sync/atomic"

// Statistics tracks channel-level statistics
type Statistics struct {
	numFramesTx       uint64
	numFramesRx       uint64
	numBadFrames      uint64
	numInvalid        uint64
	numUnrouted       uint64
	numWriteErrors    uint64
	numActiveSessions uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// FrameTx increments transmitted frames
func (s *Statistics) FrameTx() {
	atomic.AddUint64(&s.numFramesTx, 1)
}

// FrameRx increments received frames
func (s *Statistics) FrameRx() {
	atomic.AddUint64(&s.numFramesRx, 1)
}

// BadFrame increments frames that failed to parse
func (s *Statistics) BadFrame() {
	atomic.AddUint64(&s.numBadFrames, 1)
}

// InvalidFrame increments parsed frames rejected by validation
func (s *Statistics) InvalidFrame() {
	atomic.AddUint64(&s.numInvalid, 1)
}

// Unrouted increments frames with no matching session
func (s *Statistics) Unrouted() {
	atomic.AddUint64(&s.numUnrouted, 1)
}

// WriteError increments failed writes
func (s *Statistics) WriteError() {
	atomic.AddUint64(&s.numWriteErrors, 1)
}

// SetActiveSessions sets the number of active sessions
func (s *Statistics) SetActiveSessions(count uint64) {
	atomic.StoreUint64(&s.numActiveSessions, count)
}

// GetFramesTx returns transmitted frames
func (s *Statistics) GetFramesTx() uint64 {
	return atomic.LoadUint64(&s.numFramesTx)
}

// GetFramesRx returns received frames
func (s *Statistics) GetFramesRx() uint64 {
	return atomic.LoadUint64(&s.numFramesRx)
}

// GetBadFrames returns frames that failed to parse
func (s *Statistics) GetBadFrames() uint64 {
	return atomic.LoadUint64(&s.numBadFrames)
}

// GetInvalidFrames returns frames rejected by validation
func (s *Statistics) GetInvalidFrames() uint64 {
	return atomic.LoadUint64(&s.numInvalid)
}

// GetUnrouted returns frames with no matching session
func (s *Statistics) GetUnrouted() uint64 {
	return atomic.LoadUint64(&s.numUnrouted)
}

// GetWriteErrors returns failed writes
func (s *Statistics) GetWriteErrors() uint64 {
	return atomic.LoadUint64(&s.numWriteErrors)
}

// GetActiveSessions returns number of active sessions
func (s *Statistics) GetActiveSessions() uint64 {
	return atomic.LoadUint64(&s.numActiveSessions)
}

// Reset resets all statistics
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.numFramesTx, 0)
	atomic.StoreUint64(&s.numFramesRx, 0)
	atomic.StoreUint64(&s.numBadFrames, 0)
	atomic.StoreUint64(&s.numInvalid, 0)
	atomic.StoreUint64(&s.numUnrouted, 0)
	atomic.StoreUint64(&s.numWriteErrors, 0)
}
