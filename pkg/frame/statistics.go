package frame

import "sync/atomic"

// Statistics tracks frame sublayer metrics
type Statistics struct {
	enqueued uint64
	commands uint64
	drained  uint64
	dropped  uint64
	bytesTx  uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// IncrementEnqueued increments queued frame count
func (s *Statistics) IncrementEnqueued() {
	atomic.AddUint64(&s.enqueued, 1)
}

// IncrementCommands increments the count of unfragmented command frames
// queued ahead of data
func (s *Statistics) IncrementCommands() {
	atomic.AddUint64(&s.commands, 1)
}

// IncrementDrained increments serialized frame count
func (s *Statistics) IncrementDrained() {
	atomic.AddUint64(&s.drained, 1)
}

// IncrementDropped increments dropped frame count
func (s *Statistics) IncrementDropped() {
	atomic.AddUint64(&s.dropped, 1)
}

// AddBytes adds to the serialized byte count
func (s *Statistics) AddBytes(n uint64) {
	atomic.AddUint64(&s.bytesTx, n)
}

// GetEnqueued returns queued frame count
func (s *Statistics) GetEnqueued() uint64 {
	return atomic.LoadUint64(&s.enqueued)
}

// GetCommands returns the count of unfragmented command frames queued
// ahead of data
func (s *Statistics) GetCommands() uint64 {
	return atomic.LoadUint64(&s.commands)
}

// GetDrained returns serialized frame count
func (s *Statistics) GetDrained() uint64 {
	return atomic.LoadUint64(&s.drained)
}

// GetDropped returns dropped frame count
func (s *Statistics) GetDropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// GetBytes returns serialized byte count
func (s *Statistics) GetBytes() uint64 {
	return atomic.LoadUint64(&s.bytesTx)
}

// Reset resets all statistics to zero
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.enqueued, 0)
	atomic.StoreUint64(&s.commands, 0)
	atomic.StoreUint64(&s.drained, 0)
	atomic.StoreUint64(&s.dropped, 0)
	atomic.StoreUint64(&s.bytesTx, 0)
}
