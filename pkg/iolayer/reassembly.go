package iolayer

import (
	"github.com/pkg/errors"

	"avaneesh/prox1-go/pkg/frame"
)

// NeedsMoreFragments reports whether f leaves its packet incomplete.
func NeedsMoreFragments(f *frame.Frame) bool {
	if f == nil || f.Kind == frame.KindUnfragmented {
		return false
	}
	return f.Seg.Flag != frame.SegLast && f.Seg.Flag != frame.SegNone
}

// Accumulator collects frame payloads into one SDU, bounded by a maximum
// size. Callers feed the fragments of one packet in order; no reordering or
// duplicate detection happens here.
type Accumulator struct {
	buf []byte
	max int
}

// NewAccumulator creates an accumulator holding at most max bytes. A
// non-positive max selects DefaultMaxReassemblySize.
func NewAccumulator(max int) *Accumulator {
	if max <= 0 {
		max = DefaultMaxReassemblySize
	}
	return &Accumulator{max: max}
}

// Accumulate adds the payload of f. An unfragmented frame replaces the
// content, a fragment is appended. Content is unchanged on error.
func (a *Accumulator) Accumulate(f *frame.Frame) error {
	if f == nil || f.Payload.Released() {
		return frame.ErrNoPayload
	}
	data := f.Payload.Bytes()

	if f.Kind == frame.KindUnfragmented {
		if len(data) > a.max {
			return errors.Wrapf(ErrAccumulatorOverflow, "%d > %d", len(data), a.max)
		}
		a.buf = append(a.buf[:0], data...)
		return nil
	}

	if len(a.buf)+len(data) > a.max {
		return errors.Wrapf(ErrAccumulatorOverflow, "%d+%d > %d", len(a.buf), len(data), a.max)
	}
	a.buf = append(a.buf, data...)
	return nil
}

// Bytes returns the accumulated content without copying.
func (a *Accumulator) Bytes() []byte {
	return a.buf
}

// Len returns the accumulated length.
func (a *Accumulator) Len() int {
	return len(a.buf)
}

// Max returns the capacity limit.
func (a *Accumulator) Max() int {
	return a.max
}

// Take moves the content out and leaves the accumulator empty.
func (a *Accumulator) Take() []byte {
	out := a.buf
	a.buf = nil
	return out
}

// Reset discards the content.
func (a *Accumulator) Reset() {
	a.buf = a.buf[:0]
}

// BitSequence holds one element per bit, each 0 or 1, most significant bit
// of every source byte first.
type BitSequence []uint8

// ToBitSequence expands the accumulated bytes into bits and empties acc.
// Output beyond MaxBitSequence bits is dropped.
func ToBitSequence(acc *Accumulator) BitSequence {
	data := acc.Take()
	n := len(data) * 8
	if n > MaxBitSequence {
		n = MaxBitSequence
	}

	bits := make(BitSequence, n)
	for i := range bits {
		bits[i] = (data[i/8] >> (7 - uint(i%8))) & 1
	}
	return bits
}

// Pack folds the bits back into bytes; a trailing partial byte is padded
// with zero bits.
func (b BitSequence) Pack() []byte {
	out := make([]byte, (len(b)+7)/8)
	for i, bit := range b {
		if bit != 0 {
			out[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return out
}
