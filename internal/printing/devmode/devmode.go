// Package devmode reads and writes the Windows DEVMODEW printer
// configuration block in its raw on-wire form. All byte-offset knowledge
// lives here; callers see named fields and get every vendor-private byte
// passed through untouched.
package devmode

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
)

// DEVMODEW layout (Unicode variant, fixed part). Offsets in bytes:
//
//	dmDeviceName    0   WCHAR[32]
//	dmSpecVersion   64  dmDriverVersion 66  dmSize 68  dmDriverExtra 70
//	dmFields        72  DWORD
//	dmOrientation   76  dmPaperSize 78  dmPaperLength 80  dmPaperWidth 82
//	dmScale         84  dmCopies 86  dmDefaultSource 88  dmPrintQuality 90
//	dmColor         92  dmDuplex 94  dmYResolution 96
//	dmFormName      102 WCHAR[32]
//	dmMediaType     196 DWORD
const (
	offDeviceName   = 0
	offSize         = 68
	offDriverExtra  = 70
	offFields       = 72
	offCopies       = 86
	offPrintQuality = 90
	offYResolution  = 96
	offMediaType    = 196

	// minSize covers every field this codec touches.
	minSize = offMediaType + 4
)

// dmFields bits for the settings this bridge drives.
const (
	FieldCopies       = 0x0100
	FieldPrintQuality = 0x0400
	FieldYResolution  = 0x2000
	FieldMediaType    = 0x08000000
)

// MediaTypePremiumMatte is the vendor media code for premium presentation
// matte paper on the inkjet family this bridge targets.
const MediaTypePremiumMatte uint32 = 258

var ErrTooShort = errors.New("devmode block too short")

// Profile is a decoded DEVMODEW block. The raw bytes are retained so that
// driver-private fields survive a decode/encode round trip.
type Profile struct {
	raw []byte

	Fields       uint32
	Copies       int16
	PrintQuality int16
	YResolution  int16
	MediaType    uint32
}

// Decode interprets a raw DEVMODEW block fetched from the driver. The input
// is copied; the caller may reuse its buffer.
func Decode(raw []byte) (*Profile, error) {
	if len(raw) < minSize {
		return nil, ErrTooShort
	}

	p := &Profile{raw: make([]byte, len(raw))}
	copy(p.raw, raw)

	p.Fields = binary.LittleEndian.Uint32(p.raw[offFields:])
	p.Copies = int16(binary.LittleEndian.Uint16(p.raw[offCopies:]))
	p.PrintQuality = int16(binary.LittleEndian.Uint16(p.raw[offPrintQuality:]))
	p.YResolution = int16(binary.LittleEndian.Uint16(p.raw[offYResolution:]))
	p.MediaType = binary.LittleEndian.Uint32(p.raw[offMediaType:])

	return p, nil
}

// Encode produces a fresh DEVMODEW block: the original bytes with the named
// fields written back at their offsets.
func (p *Profile) Encode() []byte {
	out := make([]byte, len(p.raw))
	copy(out, p.raw)

	binary.LittleEndian.PutUint32(out[offFields:], p.Fields)
	binary.LittleEndian.PutUint16(out[offCopies:], uint16(p.Copies))
	binary.LittleEndian.PutUint16(out[offPrintQuality:], uint16(p.PrintQuality))
	binary.LittleEndian.PutUint16(out[offYResolution:], uint16(p.YResolution))
	binary.LittleEndian.PutUint32(out[offMediaType:], p.MediaType)

	return out
}

// ApplyQuality mutates the profile to request a resolution, media type and
// copy count, and flags those fields as driver overrides. The driver merge
// step may still clamp values it cannot honor.
func (p *Profile) ApplyQuality(dpi int, mediaType uint32, copies int) {
	p.PrintQuality = int16(dpi)
	p.YResolution = int16(dpi)
	p.MediaType = mediaType
	p.Copies = int16(copies)
	p.Fields |= FieldPrintQuality | FieldYResolution | FieldMediaType | FieldCopies
}

// DeviceName returns the driver-reported device name from the fixed header.
func (p *Profile) DeviceName() string {
	units := make([]uint16, 0, 32)
	for i := 0; i < 32; i++ {
		u := binary.LittleEndian.Uint16(p.raw[offDeviceName+i*2:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// Size reports the total block length including driver-private extra bytes.
func (p *Profile) Size() int {
	return len(p.raw)
}
