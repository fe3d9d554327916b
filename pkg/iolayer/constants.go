package iolayer

import (
	"github.com/pkg/errors"

	"avaneesh/prox1-go/pkg/frame"
)

// PacketID indexes a packet held in the Buffer.
type PacketID uint8

// I/O sublayer limits
const (
	MaxPacketIDs                        = 255 // ids 0-254 can be tracked at once
	MaxFrames                           = 255 // frames held across all ids
	InvalidPacketID            PacketID = 255
	MaxBitSequence                      = 8192 // bits per expanded sequence
	DefaultMaxReassemblySize            = 1024 // accumulator cap in bytes
	pseudoIDModulus                     = 64
	maxFragmentPayload                  = frame.MaxFragmentPayload
)

var (
	ErrNoFreePacketID       = errors.New("iolayer: no free packet id")
	ErrInvalidPacketID      = errors.New("iolayer: packet id out of range")
	ErrPacketIDNotAllocated = errors.New("iolayer: packet id not allocated")
	ErrNoPendingPacket      = errors.New("iolayer: no pending packet")
	ErrBufferFull           = errors.New("iolayer: buffer momentarily full")
	ErrTooManyFragments     = errors.New("iolayer: fragment count exceeds buffer capacity")
	ErrEmptyPayload         = errors.New("iolayer: empty payload")
	ErrAccumulatorOverflow  = errors.New("iolayer: reassembly accumulator overflow")
)
