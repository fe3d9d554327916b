package prox1

import "avaneesh/prox1-go/pkg/iolayer"

// Handler is the next sublayer above the I/O sublayer. A session calls
// exactly one of its methods for every completed SDU, from the channel's
// read goroutine. The handler owns the data it is given.
type Handler interface {
	// OnSDU delivers a reassembled SDU received on port.
	OnSDU(port uint8, sdu []byte)

	// OnBits delivers a reassembled SDU expanded to one element per bit.
	// Used when the session is configured with EmitBits.
	OnBits(port uint8, bits iolayer.BitSequence)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields drop the data.
type HandlerFuncs struct {
	SDU  func(port uint8, sdu []byte)
	Bits func(port uint8, bits iolayer.BitSequence)
}

// OnSDU implements Handler
func (h HandlerFuncs) OnSDU(port uint8, sdu []byte) {
	if h.SDU != nil {
		h.SDU(port, sdu)
	}
}

// OnBits implements Handler
func (h HandlerFuncs) OnBits(port uint8, bits iolayer.BitSequence) {
	if h.Bits != nil {
		h.Bits(port, bits)
	}
}
