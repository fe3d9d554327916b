package frame

import (
	pool "github.com/libp2p/go-buffer-pool"
)

// Payload is a single-owner byte buffer drawn from the shared buffer pool.
//
// Exactly one Payload handle owns a given buffer. Take moves ownership to a
// new handle, Clone creates an independent owner, and Release returns the
// bytes to the pool. A released or moved-from handle is empty: Bytes returns
// nil and Released reports true. Payload is not safe for concurrent use.
type Payload struct {
	buf      []byte
	released bool
}

// NewPayload copies data into a pooled buffer owned by the returned Payload.
func NewPayload(data []byte) *Payload {
	buf := pool.Get(len(data))
	copy(buf, data)
	return &Payload{buf: buf}
}

// Bytes returns the owned bytes. The slice must not be retained past Release.
func (p *Payload) Bytes() []byte {
	if p == nil || p.released {
		return nil
	}
	return p.buf
}

// Len returns the payload length, 0 when released.
func (p *Payload) Len() int {
	if p == nil || p.released {
		return 0
	}
	return len(p.buf)
}

// Released reports whether the handle no longer owns a buffer.
func (p *Payload) Released() bool {
	return p == nil || p.released
}

// Clone returns an independent copy with its own buffer.
func (p *Payload) Clone() *Payload {
	if p.Released() {
		return nil
	}
	return NewPayload(p.buf)
}

// Take moves ownership into a new handle and leaves p empty.
func (p *Payload) Take() *Payload {
	if p.Released() {
		return nil
	}
	moved := &Payload{buf: p.buf}
	p.buf = nil
	p.released = true
	return moved
}

// Release returns the buffer to the pool. It reports false when the handle
// was already empty, so callers can detect a second release.
func (p *Payload) Release() bool {
	if p.Released() {
		return false
	}
	pool.Put(p.buf)
	p.buf = nil
	p.released = true
	return true
}
