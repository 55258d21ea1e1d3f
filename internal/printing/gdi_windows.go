//go:build windows

package printing

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"syscall"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/anymobile/print-helper/internal/printing/devmode"
)

var (
	modwinspool             = syscall.NewLazyDLL("winspool.drv")
	procOpenPrinterW        = modwinspool.NewProc("OpenPrinterW")
	procClosePrinter        = modwinspool.NewProc("ClosePrinter")
	procDocumentPropertiesW = modwinspool.NewProc("DocumentPropertiesW")

	modgdi32               = syscall.NewLazyDLL("gdi32.dll")
	procCreateDCW          = modgdi32.NewProc("CreateDCW")
	procDeleteDC           = modgdi32.NewProc("DeleteDC")
	procStartDocW          = modgdi32.NewProc("StartDocW")
	procEndDoc             = modgdi32.NewProc("EndDoc")
	procStartPage          = modgdi32.NewProc("StartPage")
	procEndPage            = modgdi32.NewProc("EndPage")
	procGetDeviceCaps      = modgdi32.NewProc("GetDeviceCaps")
	procSetStretchBltMode  = modgdi32.NewProc("SetStretchBltMode")
	procStretchDIBits      = modgdi32.NewProc("StretchDIBits")
)

const (
	dmOutBuffer = 2
	dmInBuffer  = 8

	capHorzRes    = 8
	capVertRes    = 10
	capLogPixelsX = 88
	capLogPixelsY = 90

	stretchHalftone = 4
	dibRGBColors    = 0
	rasterSrcCopy   = 0x00CC0020
)

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

type rgbQuad struct {
	Blue, Green, Red, Reserved byte
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	Colors [1]rgbQuad
}

type docInfoW struct {
	CbSize   int32
	DocName  *uint16
	Output   *uint16
	Datatype *uint16
	Type     uint32
}

// fetchProfile pulls the printer's DEVMODE block, mutates it for the raster
// resolution and premium media, and runs the driver merge. A nil return with
// no error means the driver exposes no usable profile; printing proceeds on
// driver defaults per the degradation policy.
func (b *windowsBackend) fetchProfile(printerName *uint16, copies int) []byte {
	var hPrinter windows.Handle
	ret, _, _ := procOpenPrinterW.Call(
		uintptr(unsafe.Pointer(printerName)),
		uintptr(unsafe.Pointer(&hPrinter)),
		0,
	)
	if ret == 0 {
		b.log.Warn("failed to open printer for device profile")
		return nil
	}
	defer procClosePrinter.Call(uintptr(hPrinter))

	size, _, _ := procDocumentPropertiesW.Call(
		0, uintptr(hPrinter), uintptr(unsafe.Pointer(printerName)), 0, 0, 0)
	if int32(size) <= 0 {
		b.log.Warn("driver reports no device profile")
		return nil
	}

	buf := make([]byte, int32(size))
	ret, _, _ = procDocumentPropertiesW.Call(
		0, uintptr(hPrinter), uintptr(unsafe.Pointer(printerName)),
		uintptr(unsafe.Pointer(&buf[0])), 0, dmOutBuffer)
	if int32(ret) < 0 {
		b.log.Warn("failed to fetch device profile")
		return nil
	}

	profile, err := devmode.Decode(buf)
	if err != nil {
		b.log.Warn("device profile block too short", zap.Error(err))
		return nil
	}

	profile.ApplyQuality(b.renderDPI, b.mediaType, copies)
	enc := profile.Encode()

	// Driver merge. Out-of-range values get clamped here; that is not a
	// failure, the driver simply knows better.
	ret, _, _ = procDocumentPropertiesW.Call(
		0, uintptr(hPrinter), uintptr(unsafe.Pointer(printerName)),
		uintptr(unsafe.Pointer(&enc[0])),
		uintptr(unsafe.Pointer(&enc[0])),
		dmInBuffer|dmOutBuffer)
	if int32(ret) < 0 {
		b.log.Warn("driver rejected mutated device profile, using driver defaults")
		return nil
	}

	b.log.Info("device profile prepared",
		zap.String("device", profile.DeviceName()),
		zap.Int("dpi", b.renderDPI),
		zap.Uint32("media_type", b.mediaType),
		zap.Int("copies", copies))

	return enc
}

// printImageWithProfile submits the rendered bitmap to the printer through a
// GDI device context created with the mutated DEVMODE, scaling disabled so
// the image lands at its true DPI-derived physical size, centered.
func (b *windowsBackend) printImageWithProfile(imagePath, printer string, copies int) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("failed to open rendered image: %w", err)
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode rendered image: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	width := bounds.Dx()
	height := bounds.Dy()

	printerName, err := windows.UTF16PtrFromString(printer)
	if err != nil {
		return fmt.Errorf("invalid printer name: %w", err)
	}

	profile := b.fetchProfile(printerName, copies)

	var profilePtr uintptr
	if profile != nil {
		profilePtr = uintptr(unsafe.Pointer(&profile[0]))
	}

	hdc, _, _ := procCreateDCW.Call(0, uintptr(unsafe.Pointer(printerName)), 0, profilePtr)
	if hdc == 0 {
		return fmt.Errorf("failed to create printer device context for %q", printer)
	}
	defer procDeleteDC.Call(hdc)

	docName, _ := windows.UTF16PtrFromString("AnyMobile Print Helper")
	info := docInfoW{
		CbSize:  int32(unsafe.Sizeof(docInfoW{})),
		DocName: docName,
	}

	jobID, _, _ := procStartDocW.Call(hdc, uintptr(unsafe.Pointer(&info)))
	if int32(jobID) <= 0 {
		return fmt.Errorf("failed to start print job on %q", printer)
	}
	defer procEndDoc.Call(hdc)

	if ret, _, _ := procStartPage.Call(hdc); int32(ret) <= 0 {
		return fmt.Errorf("failed to start page")
	}
	defer procEndPage.Call(hdc)

	pageWidth := deviceCap(hdc, capHorzRes)
	pageHeight := deviceCap(hdc, capVertRes)
	dpiX := deviceCap(hdc, capLogPixelsX)
	dpiY := deviceCap(hdc, capLogPixelsY)

	// Actual size: the bitmap was rendered at renderDPI, so its physical
	// extent in printer pixels is width*printerDPI/renderDPI.
	printWidth := width * dpiX / b.renderDPI
	printHeight := height * dpiY / b.renderDPI
	destX := (pageWidth - printWidth) / 2
	destY := (pageHeight - printHeight) / 2

	b.log.Info("printing bitmap",
		zap.String("printer", printer),
		zap.Int("page_width", pageWidth),
		zap.Int("page_height", pageHeight),
		zap.Int("print_width", printWidth),
		zap.Int("print_height", printHeight))

	// Top-down 24-bit BGR DIB with rows padded to 4 bytes.
	rowSize := (width*3 + 3) &^ 3
	pixels := make([]byte, rowSize*height)
	for y := 0; y < height; y++ {
		src := rgba.Pix[y*rgba.Stride:]
		dst := pixels[y*rowSize:]
		for x := 0; x < width; x++ {
			dst[x*3+0] = src[x*4+2]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+0]
		}
	}

	bmi := bitmapInfo{
		Header: bitmapInfoHeader{
			Size:     uint32(unsafe.Sizeof(bitmapInfoHeader{})),
			Width:    int32(width),
			Height:   -int32(height), // negative means top-down
			Planes:   1,
			BitCount: 24,
		},
	}

	procSetStretchBltMode.Call(hdc, stretchHalftone)

	ret, _, _ := procStretchDIBits.Call(
		hdc,
		uintptr(destX), uintptr(destY),
		uintptr(printWidth), uintptr(printHeight),
		0, 0,
		uintptr(width), uintptr(height),
		uintptr(unsafe.Pointer(&pixels[0])),
		uintptr(unsafe.Pointer(&bmi)),
		dibRGBColors,
		rasterSrcCopy,
	)
	if int32(ret) == 0 {
		return fmt.Errorf("bitmap transfer to printer failed")
	}

	return nil
}

func deviceCap(hdc uintptr, index int) int {
	ret, _, _ := procGetDeviceCaps.Call(hdc, uintptr(index))
	return int(int32(ret))
}
