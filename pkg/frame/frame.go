package frame

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// Frame is a single Proximity-1 protocol data unit, either unfragmented
// (PDUHeader || payload) or fragmented (PDUHeader || SegmentationHeader || payload).
//
// The frame exclusively owns its Payload until Release is called or the
// payload is moved out with Payload.Take.
type Frame struct {
	Kind    Kind
	Header  PDUHeader
	Seg     SegmentationHeader // valid only when Kind == KindFragmented
	Payload *Payload
}

// NewUnfragmented builds an unfragmented frame around a copy of data.
// DFC and DataLength are derived from the variant and payload.
func NewUnfragmented(h PDUHeader, data []byte) (*Frame, error) {
	if len(data) > MaxUnfragmentedPayload {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d > %d", len(data), MaxUnfragmentedPayload)
	}
	h.DFC = DFCPackets
	h.DataLength = uint16(len(data))
	return &Frame{
		Kind:    KindUnfragmented,
		Header:  h,
		Payload: NewPayload(data),
	}, nil
}

// NewFragmented builds a fragmented frame around a copy of data.
func NewFragmented(h PDUHeader, seg SegmentationHeader, data []byte) (*Frame, error) {
	if len(data) > MaxFragmentPayload {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d > %d", len(data), MaxFragmentPayload)
	}
	h.DFC = DFCFragmented
	h.DataLength = uint16(len(data))
	return &Frame{
		Kind:    KindFragmented,
		Header:  h,
		Seg:     NewSegmentationHeader(seg.Flag, seg.PseudoPacketID),
		Payload: NewPayload(data),
	}, nil
}

// IsFragmented reports whether the frame carries a segmentation header.
func (f *Frame) IsFragmented() bool {
	return f.Kind == KindFragmented
}

// Size returns the on-wire size of the frame.
func (f *Frame) Size() int {
	n := HeaderSize + int(f.Header.DataLength)
	if f.Kind == KindFragmented {
		n += SegmentationHeaderSize
	}
	return n
}

// Serialize converts frame to wire format in a newly allocated buffer
func Serialize(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, ErrNilFrame
	}
	out := make([]byte, f.Size())
	if _, err := SerializeInto(f, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SerializeInto writes the frame into buf and returns the number of bytes
// written. On any failure it writes nothing and returns 0.
func SerializeInto(f *Frame, buf []byte) (int, error) {
	if f == nil {
		return 0, ErrNilFrame
	}
	if f.Payload.Released() {
		return 0, ErrNoPayload
	}
	if int(f.Header.DataLength) != f.Payload.Len() {
		return 0, errors.Wrapf(ErrLengthMismatch, "header %d, payload %d", f.Header.DataLength, f.Payload.Len())
	}

	total := f.Size()
	if total > len(buf) {
		return 0, errors.Wrapf(ErrBufferTooSmall, "need %d, have %d", total, len(buf))
	}

	f.Header.Encode(buf)
	offset := HeaderSize
	if f.Kind == KindFragmented {
		buf[offset] = f.Seg.Encode()
		offset += SegmentationHeaderSize
	}
	copy(buf[offset:total], f.Payload.Bytes())

	return total, nil
}

// Deserialize parses wire format data into a Frame with a freshly allocated
// payload. The payload length is taken from the low 8 bits of DataLength.
func Deserialize(data []byte) (*Frame, error) {
	h, err := DecodePDUHeader(data)
	if err != nil {
		return nil, err
	}

	n := int(h.DataLength & 0xFF)
	f := &Frame{Header: h}
	offset := HeaderSize

	if h.DFC == DFCFragmented {
		if len(data) < HeaderSize+SegmentationHeaderSize {
			return nil, ErrFrameTooShort
		}
		f.Kind = KindFragmented
		f.Seg = DecodeSegmentationHeader(data[HeaderSize])
		offset += SegmentationHeaderSize
	} else {
		f.Kind = KindUnfragmented
	}

	if offset+n > MaxFrameSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "declared %d bytes", offset+n)
	}
	if len(data) < offset+n {
		return nil, errors.Wrapf(ErrFrameTooShort, "need %d, have %d", offset+n, len(data))
	}

	f.Payload = NewPayload(data[offset : offset+n])
	return f, nil
}

// Validate reports whether the frame has a payload and a supported version.
func Validate(f *Frame) bool {
	if f == nil || f.Payload.Released() {
		return false
	}
	return f.Header.Version == Version3
}

// Clone creates a deep copy of the frame with an independent payload
func (f *Frame) Clone() *Frame {
	return &Frame{
		Kind:    f.Kind,
		Header:  f.Header,
		Seg:     f.Seg,
		Payload: f.Payload.Clone(),
	}
}

// Release frees the owned payload. It reports false if there was nothing
// left to free.
func (f *Frame) Release() bool {
	if f == nil || f.Payload == nil {
		return false
	}
	ok := f.Payload.Release()
	f.Payload = nil
	return ok
}

// String returns a string representation of the frame
func (f *Frame) String() string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Frame{%s, ", f.Kind))
	buf.WriteString(fmt.Sprintf("Type=%s, SCID=%d, Port=%d, ", f.Header.PDUType, f.Header.SpacecraftID, f.Header.Port))
	if f.Kind == KindFragmented {
		buf.WriteString(fmt.Sprintf("Seg=%s, PPID=%d, FSN=%d, ", f.Seg.Flag, f.Seg.PseudoPacketID, f.Header.FSN))
	}
	buf.WriteString(fmt.Sprintf("DataLen=%d}", f.Payload.Len()))
	return buf.String()
}
