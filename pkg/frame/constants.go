package frame

import "github.com/pkg/errors"

// Proximity-1 Frame Sublayer constants

// Frame sizes
const (
	HeaderSize             = 5   // PDU header size
	SegmentationHeaderSize = 1   // Segmentation header size
	MaxFrameSize           = 255 // Maximum on-wire frame size
	MaxUnfragmentedPayload = MaxFrameSize - HeaderSize                          // 250
	MaxFragmentPayload     = MaxFrameSize - HeaderSize - SegmentationHeaderSize // 249
	MaxQueueDepth          = 255 // Upper bound for the transmit multiplexer
)

// Version3 is the only protocol version accepted by Validate.
const Version3 uint8 = 0b10

// QoS selects the delivery service.
type QoS uint8

const (
	QoSSequenceControlled QoS = 0
	QoSExpedited          QoS = 1
)

// PDUType distinguishes user data from protocol/supervisory commands.
type PDUType uint8

const (
	PDUData    PDUType = 0
	PDUCommand PDUType = 1
)

// String returns string representation of PDUType
func (t PDUType) String() string {
	if t == PDUCommand {
		return "Command"
	}
	return "Data"
}

// DFC is the Data Field Construction identifier.
type DFC uint8

const (
	DFCPackets    DFC = 0b00 // integer number of unsegmented packets
	DFCFragmented DFC = 0b01 // a complete or segmented packet
	DFCCCSDS      DFC = 0b10 // reserved for CCSDS
	DFCReserved   DFC = 0b11 // reserved for user definitions
)

// Physical channel identifiers
const (
	BackupChannel  uint8 = 0
	PrimaryChannel uint8 = 1
)

// SourceDest is the source/destination identifier bit.
type SourceDest uint8

const (
	Source      SourceDest = 0
	Destination SourceDest = 1
)

// SegFlag marks the position of a fragment within its packet.
type SegFlag uint8

const (
	SegMiddle SegFlag = 0b00
	SegFirst  SegFlag = 0b01
	SegLast   SegFlag = 0b10
	SegNone   SegFlag = 0b11 // complete packet, no segmentation
)

// String returns string representation of SegFlag
func (f SegFlag) String() string {
	switch f {
	case SegMiddle:
		return "Middle"
	case SegFirst:
		return "First"
	case SegLast:
		return "Last"
	case SegNone:
		return "None"
	default:
		return "Unknown"
	}
}

// Kind tags the frame variant.
type Kind uint8

const (
	KindUnfragmented Kind = iota
	KindFragmented
)

// String returns string representation of Kind
func (k Kind) String() string {
	if k == KindFragmented {
		return "Fragmented"
	}
	return "Unfragmented"
}

// Field masks
const (
	versionMask      = 0x03
	spacecraftIDMask = 0x03FF // 10 bits
	portMask         = 0x07
	dataLengthMask   = 0x07FF // 11 bits
	pseudoIDMask     = 0x3F
	segFlagMask      = 0x03
)

// Field ranges
const (
	MaxSpacecraftID   = spacecraftIDMask
	MaxPort           = portMask
	MaxPseudoPacketID = pseudoIDMask
)

// Errors
var (
	ErrFrameTooShort   = errors.New("frame: input shorter than declared frame")
	ErrFrameTooLarge   = errors.New("frame: exceeds maximum frame size")
	ErrPayloadTooLarge = errors.New("frame: payload exceeds variant maximum")
	ErrBufferTooSmall  = errors.New("frame: destination buffer too small")
	ErrNilFrame        = errors.New("frame: nil frame")
	ErrNoPayload       = errors.New("frame: payload absent or released")
	ErrLengthMismatch  = errors.New("frame: header data length does not match payload")
	ErrQueueEmpty      = errors.New("frame: transmit queue empty")
	ErrQueueFull       = errors.New("frame: transmit queue full")
)
