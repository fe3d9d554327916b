package frame

import (
	"bytes"
	"testing"
)

// TestPDUHeader_Encode checks the exact wire bits of the header
func TestPDUHeader_Encode(t *testing.T) {
	tests := []struct {
		name string
		hdr  PDUHeader
		want []byte
	}{
		{
			name: "Version only",
			hdr:  NewPDUHeader(Version3, QoSSequenceControlled, PDUData, DFCPackets, 0, BackupChannel, 0, Source, 0, 0),
			want: []byte{0x80, 0x00, 0x00, 0x00, 0x00},
		},
		{
			name: "Every field set",
			hdr:  NewPDUHeader(Version3, QoSExpedited, PDUCommand, DFCFragmented, 0x2AB, PrimaryChannel, 5, Destination, 0x123, 0x7E),
			want: []byte{0xB6, 0xAB, 0xD9, 0x23, 0x7E},
		},
		{
			name: "Fields wider than wire are masked",
			hdr:  NewPDUHeader(0xFF, QoSSequenceControlled, PDUData, DFCPackets, 0xFFFF, BackupChannel, 0xFF, Source, 0xFFFF, 0),
			want: []byte{0xC3, 0xFF, 0x77, 0xFF, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make([]byte, HeaderSize)
			tt.hdr.Encode(got)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode = % X, want % X", got, tt.want)
			}

			decoded, err := DecodePDUHeader(got)
			if err != nil {
				t.Fatalf("DecodePDUHeader failed: %v", err)
			}
			if decoded != tt.hdr {
				t.Errorf("decoded %s, want %s", decoded, tt.hdr)
			}
		})
	}
}

// TestDecodePDUHeader_Short verifies short input is rejected without panicking
func TestDecodePDUHeader_Short(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		if _, err := DecodePDUHeader(make([]byte, n)); err != ErrFrameTooShort {
			t.Errorf("len %d: err = %v, want ErrFrameTooShort", n, err)
		}
	}
}

// TestSegmentationHeader tests the one-byte segmentation header
func TestSegmentationHeader(t *testing.T) {
	tests := []struct {
		flag SegFlag
		id   uint8
		want byte
	}{
		{SegFirst, 0x2A, 0x6A},
		{SegLast, 63, 0xBF},
		{SegNone, 0, 0xC0},
		{SegMiddle, 1, 0x01},
		{SegMiddle, 64, 0x00}, // pseudo id wraps at 6 bits
	}

	for _, tt := range tests {
		t.Run(tt.flag.String(), func(t *testing.T) {
			s := NewSegmentationHeader(tt.flag, tt.id)
			if got := s.Encode(); got != tt.want {
				t.Errorf("Encode = 0x%02X, want 0x%02X", got, tt.want)
			}
			if back := DecodeSegmentationHeader(tt.want); back != s {
				t.Errorf("Decode = %+v, want %+v", back, s)
			}
		})
	}
}

// TestFrameLength tests on-wire length derivation from a header
func TestFrameLength(t *testing.T) {
	tests := []struct {
		name string
		hdr  PDUHeader
		want int
		err  error
	}{
		{"Unfragmented", NewPDUHeader(Version3, 0, PDUData, DFCPackets, 1, 0, 0, 0, 10, 0), 15, nil},
		{"Fragmented", NewPDUHeader(Version3, 0, PDUData, DFCFragmented, 1, 0, 0, 0, 249, 0), 255, nil},
		{"High length bits ignored", NewPDUHeader(Version3, 0, PDUData, DFCPackets, 1, 0, 0, 0, 0x10A, 0), 15, nil},
		{"Too large", NewPDUHeader(Version3, 0, PDUData, DFCFragmented, 1, 0, 0, 0, 250, 0), 0, ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, HeaderSize)
			tt.hdr.Encode(buf)
			got, err := FrameLength(buf)
			if err != tt.err {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("FrameLength = %d, want %d", got, tt.want)
			}
		})
	}
}
