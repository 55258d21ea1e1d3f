package devmode

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"
)

// sampleBlock builds a synthetic DEVMODEW block the way a driver would hand
// it over: fixed part plus trailing driver-private bytes.
func sampleBlock(extra int) []byte {
	raw := make([]byte, minSize+extra)

	name := utf16.Encode([]rune("EPSON ET-3830 Series"))
	for i, u := range name {
		binary.LittleEndian.PutUint16(raw[i*2:], u)
	}

	binary.LittleEndian.PutUint16(raw[offSize:], uint16(minSize))
	binary.LittleEndian.PutUint16(raw[offDriverExtra:], uint16(extra))
	binary.LittleEndian.PutUint32(raw[offFields:], FieldCopies)
	binary.LittleEndian.PutUint16(raw[offCopies:], 1)
	binary.LittleEndian.PutUint16(raw[offPrintQuality:], uint16(0xFFFC)) // DMRES_HIGH
	binary.LittleEndian.PutUint16(raw[offYResolution:], 0)
	binary.LittleEndian.PutUint32(raw[offMediaType:], 1)

	// Driver-private tail gets a recognizable pattern.
	for i := 0; i < extra; i++ {
		raw[minSize+i] = byte(i % 251)
	}

	return raw
}

func TestDecodeTooShort(t *testing.T) {
	if _, err := Decode(make([]byte, minSize-1)); err != ErrTooShort {
		t.Fatalf("got %v, want ErrTooShort", err)
	}
}

func TestDecodeFields(t *testing.T) {
	p, err := Decode(sampleBlock(64))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if p.Copies != 1 {
		t.Errorf("copies = %d, want 1", p.Copies)
	}
	if p.MediaType != 1 {
		t.Errorf("media type = %d, want 1", p.MediaType)
	}
	if p.DeviceName() != "EPSON ET-3830 Series" {
		t.Errorf("device name = %q", p.DeviceName())
	}
	if p.Size() != minSize+64 {
		t.Errorf("size = %d, want %d", p.Size(), minSize+64)
	}
}

func TestEncodePreservesVendorBytes(t *testing.T) {
	raw := sampleBlock(128)
	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	p.ApplyQuality(600, MediaTypePremiumMatte, 3)
	out := p.Encode()

	if len(out) != len(raw) {
		t.Fatalf("encoded length = %d, want %d", len(out), len(raw))
	}
	if !bytes.Equal(out[minSize:], raw[minSize:]) {
		t.Error("driver-private tail was modified")
	}
	// Device name header must survive as well.
	if !bytes.Equal(out[:offSize], raw[:offSize]) {
		t.Error("device name bytes were modified")
	}
}

func TestApplyQuality(t *testing.T) {
	p, err := Decode(sampleBlock(0))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	p.ApplyQuality(600, MediaTypePremiumMatte, 3)

	if p.PrintQuality != 600 || p.YResolution != 600 {
		t.Errorf("resolution = %d/%d, want 600/600", p.PrintQuality, p.YResolution)
	}
	if p.MediaType != MediaTypePremiumMatte {
		t.Errorf("media type = %d, want %d", p.MediaType, MediaTypePremiumMatte)
	}
	if p.Copies != 3 {
		t.Errorf("copies = %d, want 3", p.Copies)
	}

	for _, bit := range []uint32{FieldCopies, FieldPrintQuality, FieldYResolution, FieldMediaType} {
		if p.Fields&bit == 0 {
			t.Errorf("field bit %#x not set", bit)
		}
	}
}

func TestMutationIdempotent(t *testing.T) {
	raw := sampleBlock(32)

	run := func() []byte {
		p, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		p.ApplyQuality(600, MediaTypePremiumMatte, 2)
		return p.Encode()
	}

	first := run()

	// Feeding the mutated block back through the codec must be a fixpoint.
	p, err := Decode(first)
	if err != nil {
		t.Fatalf("decode of mutated block failed: %v", err)
	}
	p.ApplyQuality(600, MediaTypePremiumMatte, 2)
	second := p.Encode()

	if !bytes.Equal(first, second) {
		t.Error("second mutation produced a different block")
	}
}
