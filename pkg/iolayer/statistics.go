package iolayer

import (
	"sync/atomic"
	"time"
)

// Statistics tracks I/O sublayer metrics
type Statistics struct {
	// Fragment counts
	TxFragments uint64
	RxFragments uint64

	// Packet counts
	PacketsSegmented uint64
	PacketsReleased  uint64
	PacketsHandedOff uint64
	PacketsReceived  uint64

	// Error counts
	SegmentErrors   uint64
	TimeoutErrors   uint64
	Discards        uint64
	BufferOverflows uint64

	// Timing (stored as Unix nano for atomic operations)
	lastTxTimeNano int64
	lastRxTimeNano int64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// AddTxFragments adds to the segmented frame count
func (s *Statistics) AddTxFragments(n int) {
	atomic.AddUint64(&s.TxFragments, uint64(n))
}

// IncrementRxFragments increments received fragment count
func (s *Statistics) IncrementRxFragments() {
	atomic.AddUint64(&s.RxFragments, 1)
}

// IncrementPacketsSegmented increments stored packet count
func (s *Statistics) IncrementPacketsSegmented() {
	atomic.AddUint64(&s.PacketsSegmented, 1)
	atomic.StoreInt64(&s.lastTxTimeNano, time.Now().UnixNano())
}

// IncrementPacketsReleased increments released packet count
func (s *Statistics) IncrementPacketsReleased() {
	atomic.AddUint64(&s.PacketsReleased, 1)
}

// IncrementPacketsHandedOff increments hand-off count
func (s *Statistics) IncrementPacketsHandedOff() {
	atomic.AddUint64(&s.PacketsHandedOff, 1)
}

// IncrementPacketsReceived increments reassembled packet count
func (s *Statistics) IncrementPacketsReceived() {
	atomic.AddUint64(&s.PacketsReceived, 1)
	atomic.StoreInt64(&s.lastRxTimeNano, time.Now().UnixNano())
}

// IncrementSegmentErrors increments failed segmentation count
func (s *Statistics) IncrementSegmentErrors() {
	atomic.AddUint64(&s.SegmentErrors, 1)
}

// IncrementTimeoutErrors increments expired reassembly count
func (s *Statistics) IncrementTimeoutErrors() {
	atomic.AddUint64(&s.TimeoutErrors, 1)
}

// IncrementDiscards increments discarded fragment count
func (s *Statistics) IncrementDiscards() {
	atomic.AddUint64(&s.Discards, 1)
}

// IncrementBufferOverflows increments accumulator overflow count
func (s *Statistics) IncrementBufferOverflows() {
	atomic.AddUint64(&s.BufferOverflows, 1)
}

// GetTxFragments returns segmented frame count
func (s *Statistics) GetTxFragments() uint64 {
	return atomic.LoadUint64(&s.TxFragments)
}

// GetRxFragments returns received fragment count
func (s *Statistics) GetRxFragments() uint64 {
	return atomic.LoadUint64(&s.RxFragments)
}

// GetPacketsSegmented returns stored packet count
func (s *Statistics) GetPacketsSegmented() uint64 {
	return atomic.LoadUint64(&s.PacketsSegmented)
}

// GetPacketsReleased returns released packet count
func (s *Statistics) GetPacketsReleased() uint64 {
	return atomic.LoadUint64(&s.PacketsReleased)
}

// GetPacketsHandedOff returns hand-off count
func (s *Statistics) GetPacketsHandedOff() uint64 {
	return atomic.LoadUint64(&s.PacketsHandedOff)
}

// GetPacketsReceived returns reassembled packet count
func (s *Statistics) GetPacketsReceived() uint64 {
	return atomic.LoadUint64(&s.PacketsReceived)
}

// GetSegmentErrors returns failed segmentation count
func (s *Statistics) GetSegmentErrors() uint64 {
	return atomic.LoadUint64(&s.SegmentErrors)
}

// GetTimeoutErrors returns expired reassembly count
func (s *Statistics) GetTimeoutErrors() uint64 {
	return atomic.LoadUint64(&s.TimeoutErrors)
}

// GetDiscards returns discarded fragment count
func (s *Statistics) GetDiscards() uint64 {
	return atomic.LoadUint64(&s.Discards)
}

// GetBufferOverflows returns accumulator overflow count
func (s *Statistics) GetBufferOverflows() uint64 {
	return atomic.LoadUint64(&s.BufferOverflows)
}

// GetLastTxTime returns the time the last packet was segmented
func (s *Statistics) GetLastTxTime() time.Time {
	nano := atomic.LoadInt64(&s.lastTxTimeNano)
	if nano == 0 {
		return time.Time{}
	}
	return time.Unix(0, nano)
}

// GetLastRxTime returns the time the last packet was reassembled
func (s *Statistics) GetLastRxTime() time.Time {
	nano := atomic.LoadInt64(&s.lastRxTimeNano)
	if nano == 0 {
		return time.Time{}
	}
	return time.Unix(0, nano)
}

// Reset resets all statistics to zero
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.TxFragments, 0)
	atomic.StoreUint64(&s.RxFragments, 0)
	atomic.StoreUint64(&s.PacketsSegmented, 0)
	atomic.StoreUint64(&s.PacketsReleased, 0)
	atomic.StoreUint64(&s.PacketsHandedOff, 0)
	atomic.StoreUint64(&s.PacketsReceived, 0)
	atomic.StoreUint64(&s.SegmentErrors, 0)
	atomic.StoreUint64(&s.TimeoutErrors, 0)
	atomic.StoreUint64(&s.Discards, 0)
	atomic.StoreUint64(&s.BufferOverflows, 0)
	atomic.StoreInt64(&s.lastTxTimeNano, 0)
	atomic.StoreInt64(&s.lastRxTimeNano, 0)
}
