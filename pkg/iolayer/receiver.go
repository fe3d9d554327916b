package iolayer

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"avaneesh/prox1-go/pkg/frame"
	"avaneesh/prox1-go/pkg/internal/logger"
)

// reassembly is one packet under construction.
type reassembly struct {
	acc  *Accumulator
	done bool
}

// Receiver rebuilds SDUs from received frames. Fragments are correlated by
// spacecraft id, port and pseudo packet id; a packet whose next fragment does
// not arrive within ReassemblyTimeout is dropped.
//
// Expired packets are swept by Process at most once per CleanupInterval, or
// on demand by Expire. The receiver starts no goroutines; every eviction
// runs on the caller's goroutine. Receiver performs no locking of its own
// beyond the cache.
type Receiver struct {
	pending   *cache.Cache
	config    Config
	lastSweep time.Time
	stats     *Statistics
	logger    logger.Logger
}

// NewReceiver creates a receiver.
func NewReceiver(cfg Config, log logger.Logger) *Receiver {
	def := DefaultConfig()
	if cfg.ReassemblyTimeout <= 0 {
		cfg.ReassemblyTimeout = def.ReassemblyTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.MaxReassemblySize <= 0 {
		cfg.MaxReassemblySize = def.MaxReassemblySize
	}

	// A zero cleanup interval keeps go-cache from starting its janitor.
	r := &Receiver{
		pending:   cache.New(cfg.ReassemblyTimeout, 0),
		config:    cfg,
		lastSweep: time.Now(),
		stats:     NewStatistics(),
		logger:    logger.OrNoOp(log),
	}
	r.pending.OnEvicted(r.evicted)
	return r
}

func reassemblyKey(h frame.PDUHeader, seg frame.SegmentationHeader) string {
	return fmt.Sprintf("%d/%d/%d", h.SpacecraftID, h.Port, seg.PseudoPacketID)
}

func (r *Receiver) evicted(key string, v interface{}) {
	if ra, ok := v.(*reassembly); ok && !ra.done {
		r.stats.IncrementTimeoutErrors()
		r.logger.Warn("Receiver: reassembly %s timed out with %d bytes", key, ra.acc.Len())
	}
}

// Expire drops every packet whose reassembly timeout has passed and counts
// each as a timeout.
func (r *Receiver) Expire() {
	r.lastSweep = time.Now()
	r.pending.DeleteExpired()
}

func (r *Receiver) maybeExpire() {
	if time.Since(r.lastSweep) >= r.config.CleanupInterval {
		r.Expire()
	}
}

// Process consumes f. When f completes a packet the filled accumulator is
// returned and the caller owns it; otherwise the result is nil.
//
// Middle and Last fragments with no packet in progress are discarded, as is
// a packet in progress when a new First fragment arrives for the same key.
func (r *Receiver) Process(f *frame.Frame) (*Accumulator, error) {
	if f == nil || f.Payload.Released() {
		return nil, frame.ErrNoPayload
	}
	r.stats.IncrementRxFragments()
	r.maybeExpire()

	if !f.IsFragmented() || f.Seg.Flag == frame.SegNone {
		acc := NewAccumulator(r.config.MaxReassemblySize)
		if err := acc.Accumulate(f); err != nil {
			r.stats.IncrementBufferOverflows()
			r.logger.Error("Receiver: %v", err)
			return nil, err
		}
		r.stats.IncrementPacketsReceived()
		return acc, nil
	}

	key := reassemblyKey(f.Header, f.Seg)
	var ra *reassembly

	if f.Seg.Flag == frame.SegFirst {
		if v, found := r.pending.Get(key); found {
			v.(*reassembly).done = true
			r.pending.Delete(key)
			r.stats.IncrementDiscards()
			r.logger.Warn("Receiver: restarting reassembly %s", key)
		}
		ra = &reassembly{acc: NewAccumulator(r.config.MaxReassemblySize)}
	} else {
		v, found := r.pending.Get(key)
		if !found {
			r.stats.IncrementDiscards()
			r.logger.Debug("Receiver: discarding %s fragment for %s, no packet in progress", f.Seg.Flag, key)
			return nil, nil
		}
		ra = v.(*reassembly)
	}

	if err := ra.acc.Accumulate(f); err != nil {
		ra.done = true
		r.pending.Delete(key)
		r.stats.IncrementBufferOverflows()
		r.logger.Error("Receiver: reassembly %s: %v", key, err)
		return nil, err
	}

	if NeedsMoreFragments(f) {
		r.pending.SetDefault(key, ra)
		return nil, nil
	}

	ra.done = true
	r.pending.Delete(key)
	r.stats.IncrementPacketsReceived()
	r.logger.Debug("Receiver: reassembled %s, %d bytes", key, ra.acc.Len())
	return ra.acc, nil
}

// Pending returns the number of packets under construction, including any
// expired ones not yet swept.
func (r *Receiver) Pending() int {
	return r.pending.ItemCount()
}

// Flush drops every packet under construction without counting timeouts.
func (r *Receiver) Flush() {
	r.pending.Flush()
}

// Close drops every packet under construction. The receiver must not be used
// afterwards.
func (r *Receiver) Close() {
	r.pending.OnEvicted(nil)
	r.pending.Flush()
}

// Statistics returns the receiver counters.
func (r *Receiver) Statistics() *Statistics {
	return r.stats
}
