package frame

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// LayerTypeProx1 identifies a Proximity-1 transfer frame in gopacket.
var LayerTypeProx1 = gopacket.RegisterLayerType(2417, gopacket.LayerTypeMetadata{
	Name:    "Prox1",
	Decoder: gopacket.DecodeFunc(decodeProx1),
})

// Prox1 is the gopacket view of a frame: headers as contents, SDU bytes as
// payload. It decodes without copying, so it must not outlive the input.
type Prox1 struct {
	layers.BaseLayer
	Header     PDUHeader
	Fragmented bool
	Seg        SegmentationHeader
}

// LayerType returns LayerTypeProx1.
func (p *Prox1) LayerType() gopacket.LayerType { return LayerTypeProx1 }

// CanDecode returns LayerTypeProx1.
func (p *Prox1) CanDecode() gopacket.LayerClass { return LayerTypeProx1 }

// NextLayerType hands the SDU to the generic payload decoder.
func (p *Prox1) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// DecodeFromBytes implements gopacket.DecodingLayer.
func (p *Prox1) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	h, err := DecodePDUHeader(data)
	if err != nil {
		df.SetTruncated()
		return err
	}

	offset := HeaderSize
	p.Fragmented = h.DFC == DFCFragmented
	p.Seg = SegmentationHeader{}
	if p.Fragmented {
		if len(data) < HeaderSize+SegmentationHeaderSize {
			df.SetTruncated()
			return ErrFrameTooShort
		}
		p.Seg = DecodeSegmentationHeader(data[HeaderSize])
		offset += SegmentationHeaderSize
	}

	n := int(h.DataLength & 0xFF)
	if len(data) < offset+n {
		df.SetTruncated()
		return errors.Wrapf(ErrFrameTooShort, "need %d, have %d", offset+n, len(data))
	}

	p.Header = h
	p.Contents = data[:offset]
	p.Payload = data[offset : offset+n]
	return nil
}

// SerializeTo implements gopacket.SerializableLayer. With FixLengths the
// header data length is taken from the bytes already in the buffer.
func (p *Prox1) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if opts.FixLengths {
		p.Header.DataLength = uint16(len(b.Bytes()))
	}
	size := HeaderSize
	if p.Fragmented {
		size += SegmentationHeaderSize
		p.Header.DFC = DFCFragmented
	}
	if size+int(p.Header.DataLength) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	hdr, err := b.PrependBytes(size)
	if err != nil {
		return err
	}
	p.Header.Encode(hdr)
	if p.Fragmented {
		hdr[HeaderSize] = p.Seg.Encode()
	}
	return nil
}

// ToFrame copies the decoded layer into an owned Frame.
func (p *Prox1) ToFrame() *Frame {
	f := &Frame{
		Kind:    KindUnfragmented,
		Header:  p.Header,
		Payload: NewPayload(p.Payload),
	}
	if p.Fragmented {
		f.Kind = KindFragmented
		f.Seg = p.Seg
	}
	return f
}

func decodeProx1(data []byte, pb gopacket.PacketBuilder) error {
	p := &Prox1{}
	if err := p.DecodeFromBytes(data, pb); err != nil {
		return err
	}
	pb.AddLayer(p)
	return pb.NextDecoder(p.NextLayerType())
}
