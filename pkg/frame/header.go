package frame

import "fmt"

// PDUHeader is the 5-byte Proximity-1 transfer frame header.
//
// Wire layout, MSB first within each byte:
//
//	byte 0: Version(2) QoS(1) PDUType(1) DFC(2) SpacecraftID[9:8](2)
//	byte 1: SpacecraftID[7:0]
//	byte 2: PhysicalChannel(1) Port(3) SourceDest(1) DataLength[10:8](3)
//	byte 3: DataLength[7:0]
//	byte 4: FSN
type PDUHeader struct {
	Version         uint8
	QoS             QoS
	PDUType         PDUType
	DFC             DFC
	SpacecraftID    uint16 // 10 bits
	PhysicalChannel uint8
	Port            uint8 // 3 bits
	SourceDest      SourceDest
	DataLength      uint16 // 11 bits on the wire, only the low 8 are honoured on receive
	FSN             uint8
}

// NewPDUHeader builds a header with every field masked to its wire width.
func NewPDUHeader(version uint8, qos QoS, pduType PDUType, dfc DFC, scid uint16,
	pcid uint8, port uint8, sd SourceDest, dataLength uint16, fsn uint8) PDUHeader {
	return PDUHeader{
		Version:         version & versionMask,
		QoS:             qos & 0x01,
		PDUType:         pduType & 0x01,
		DFC:             dfc & 0x03,
		SpacecraftID:    scid & spacecraftIDMask,
		PhysicalChannel: pcid & 0x01,
		Port:            port & portMask,
		SourceDest:      sd & 0x01,
		DataLength:      dataLength & dataLengthMask,
		FSN:             fsn,
	}
}

// Encode writes the header into dst, which must hold at least HeaderSize bytes.
func (h PDUHeader) Encode(dst []byte) {
	_ = dst[HeaderSize-1]
	dst[0] = (h.Version&versionMask)<<6 |
		uint8(h.QoS&0x01)<<5 |
		uint8(h.PDUType&0x01)<<4 |
		uint8(h.DFC&0x03)<<2 |
		uint8(h.SpacecraftID>>8)&0x03
	dst[1] = uint8(h.SpacecraftID)
	dst[2] = (h.PhysicalChannel&0x01)<<7 |
		(h.Port&portMask)<<4 |
		uint8(h.SourceDest&0x01)<<3 |
		uint8(h.DataLength>>8)&0x07
	dst[3] = uint8(h.DataLength)
	dst[4] = h.FSN
}

// DecodePDUHeader parses the first HeaderSize bytes of src.
func DecodePDUHeader(src []byte) (PDUHeader, error) {
	if len(src) < HeaderSize {
		return PDUHeader{}, ErrFrameTooShort
	}
	return PDUHeader{
		Version:         src[0] >> 6,
		QoS:             QoS(src[0]>>5) & 0x01,
		PDUType:         PDUType(src[0]>>4) & 0x01,
		DFC:             DFC(src[0]>>2) & 0x03,
		SpacecraftID:    uint16(src[0]&0x03)<<8 | uint16(src[1]),
		PhysicalChannel: src[2] >> 7,
		Port:            (src[2] >> 4) & portMask,
		SourceDest:      SourceDest(src[2]>>3) & 0x01,
		DataLength:      uint16(src[2]&0x07)<<8 | uint16(src[3]),
		FSN:             src[4],
	}, nil
}

// String returns a string representation of the header
func (h PDUHeader) String() string {
	return fmt.Sprintf("PDUHeader{Ver=%d, QoS=%d, Type=%s, DFC=%d, SCID=%d, PCID=%d, Port=%d, SD=%d, Len=%d, FSN=%d}",
		h.Version, h.QoS, h.PDUType, h.DFC, h.SpacecraftID, h.PhysicalChannel, h.Port, h.SourceDest, h.DataLength, h.FSN)
}

// SegmentationHeader is the 1-byte header carried by fragmented frames:
// SegFlag in bits 7-6, PseudoPacketID in bits 5-0.
type SegmentationHeader struct {
	Flag           SegFlag
	PseudoPacketID uint8 // 6 bits, wraps 0-63
}

// NewSegmentationHeader builds a segmentation header with masked fields.
func NewSegmentationHeader(flag SegFlag, pseudoID uint8) SegmentationHeader {
	return SegmentationHeader{
		Flag:           flag & segFlagMask,
		PseudoPacketID: pseudoID & pseudoIDMask,
	}
}

// Encode returns the wire byte.
func (s SegmentationHeader) Encode() byte {
	return uint8(s.Flag&segFlagMask)<<6 | s.PseudoPacketID&pseudoIDMask
}

// DecodeSegmentationHeader parses the wire byte.
func DecodeSegmentationHeader(b byte) SegmentationHeader {
	return SegmentationHeader{
		Flag:           SegFlag(b>>6) & segFlagMask,
		PseudoPacketID: b & pseudoIDMask,
	}
}

// FrameLength returns the on-wire length of the frame whose header starts hdr.
// Only the low 8 bits of the data length are used, matching Deserialize.
func FrameLength(hdr []byte) (int, error) {
	h, err := DecodePDUHeader(hdr)
	if err != nil {
		return 0, err
	}
	n := HeaderSize + int(h.DataLength&0xFF)
	if h.DFC == DFCFragmented {
		n += SegmentationHeaderSize
	}
	if n > MaxFrameSize {
		return 0, ErrFrameTooLarge
	}
	return n, nil
}
