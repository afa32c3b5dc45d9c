// Package fb paints a background image on a Linux framebuffer device while
// the console is locked. Everything here is cosmetic: callers ignore
// failures and lock fine without a background.
package fb

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"unsafe"

	// Register the decoders for the supported background formats.
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/sys/unix"
)

// FillMode says how the image is laid onto the screen.
type FillMode string

const (
	// FillCenter draws the image unscaled in the middle of the screen.
	FillCenter FillMode = "center"
	// FillStretch scales to the full screen, ignoring aspect ratio.
	FillStretch FillMode = "stretch"
	// FillFit scales preserving aspect ratio, centered.
	FillFit FillMode = "fit"
)

// ParseFillMode validates a configured fill mode. Empty means center.
func ParseFillMode(s string) (FillMode, error) {
	switch FillMode(s) {
	case "", FillCenter:
		return FillCenter, nil
	case FillStretch:
		return FillStretch, nil
	case FillFit:
		return FillFit, nil
	}
	return "", fmt.Errorf("unknown fill mode %q", s)
}

const (
	defaultDevice = "/dev/fb0"

	fbiogetVScreenInfo = 0x4600
	fbiogetFScreenInfo = 0x4602
)

type bitfield struct {
	Offset, Length, MsbRight uint32
}

// varScreenInfo mirrors struct fb_var_screeninfo.
type varScreenInfo struct {
	XRes, YRes               uint32
	XResVirtual, YResVirtual uint32
	XOffset, YOffset         uint32
	BitsPerPixel             uint32
	Grayscale                uint32
	Red, Green, Blue, Transp bitfield
	Nonstd                   uint32
	Activate                 uint32
	Height, Width            uint32
	AccelFlags               uint32
	Pixclock                 uint32
	LeftMargin, RightMargin  uint32
	UpperMargin, LowerMargin uint32
	HsyncLen, VsyncLen       uint32
	Sync, Vmode, Rotate      uint32
	Colorspace               uint32
	Reserved                 [4]uint32
}

// fixScreenInfo mirrors struct fb_fix_screeninfo.
type fixScreenInfo struct {
	ID           [16]byte
	SmemStart    uint64
	SmemLen      uint32
	Type         uint32
	TypeAux      uint32
	Visual       uint32
	XPanStep     uint16
	YPanStep     uint16
	YWrapStep    uint16
	_            uint16
	LineLength   uint32
	MmioStart    uint64
	MmioLen      uint32
	Accel        uint32
	Capabilities uint16
	Reserved     [2]uint16
}

// Background is an opened framebuffer with the image already composed at
// screen size.
type Background struct {
	dev    *os.File
	mem    []byte
	frame  *image.RGBA
	stride int
	bpp    int
}

// Open loads the image, queries the framebuffer geometry and prepares the
// screen-sized frame.
func Open(imagePath string, fill FillMode, device string) (*Background, error) {
	if device == "" {
		device = defaultDevice
	}

	img, err := loadImage(imagePath)
	if err != nil {
		return nil, err
	}

	dev, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}

	var vinfo varScreenInfo
	if err := fbIoctl(dev, fbiogetVScreenInfo, unsafe.Pointer(&vinfo)); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("screen info %s: %w", device, err)
	}
	var finfo fixScreenInfo
	if err := fbIoctl(dev, fbiogetFScreenInfo, unsafe.Pointer(&finfo)); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("screen info %s: %w", device, err)
	}

	mem, err := unix.Mmap(int(dev.Fd()), 0, int(finfo.SmemLen), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("mmap %s: %w", device, err)
	}

	return &Background{
		dev:    dev,
		mem:    mem,
		frame:  compose(img, int(vinfo.XRes), int(vinfo.YRes), fill),
		stride: int(finfo.LineLength),
		bpp:    int(vinfo.BitsPerPixel),
	}, nil
}

func fbIoctl(f *os.File, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// Paint blits the composed frame. Only 32 bpp displays are painted; anything
// else is a no-op rather than a corrupted screen.
func (b *Background) Paint() error {
	if b == nil || b.mem == nil || b.bpp != 32 {
		return nil
	}
	bounds := b.frame.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		// Panned or rotated virtual geometry can report a mapping shorter
		// than YRes rows; rows past it are skipped, not written.
		if (y+1)*b.stride > len(b.mem) {
			break
		}
		row := b.mem[y*b.stride:]
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if len(row) < (x+1)*4 {
				break
			}
			c := b.frame.RGBAAt(x, y)
			// Framebuffers are overwhelmingly BGRX at 32 bpp.
			row[x*4+0] = c.B
			row[x*4+1] = c.G
			row[x*4+2] = c.R
			row[x*4+3] = 0
		}
	}
	return nil
}

// Close unmaps and closes the device. Safe to call more than once.
func (b *Background) Close() error {
	if b == nil {
		return nil
	}
	var err error
	if b.mem != nil {
		err = unix.Munmap(b.mem)
		b.mem = nil
	}
	if b.dev != nil {
		if cerr := b.dev.Close(); err == nil {
			err = cerr
		}
		b.dev = nil
	}
	return err
}

// compose renders the source image into a screen-sized frame according to
// the fill mode. Uncovered screen area stays black.
func compose(src image.Image, width, height int, fill FillMode) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, width, height))
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()
	if srcW == 0 || srcH == 0 || width == 0 || height == 0 {
		return frame
	}

	var dst image.Rectangle
	switch fill {
	case FillStretch:
		dst = frame.Bounds()
	case FillFit:
		scale := float64(width) / float64(srcW)
		if s := float64(height) / float64(srcH); s < scale {
			scale = s
		}
		w := int(float64(srcW) * scale)
		h := int(float64(srcH) * scale)
		dst = centered(w, h, width, height)
	default: // FillCenter
		dst = centered(srcW, srcH, width, height)
	}

	drawNearest(frame, dst, src)
	return frame
}

func centered(w, h, screenW, screenH int) image.Rectangle {
	x := (screenW - w) / 2
	y := (screenH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// drawNearest samples the source with nearest-neighbor scaling into dst,
// clipped to the frame.
func drawNearest(frame *image.RGBA, dst image.Rectangle, src image.Image) {
	sb := src.Bounds()
	clipped := dst.Intersect(frame.Bounds())
	for y := clipped.Min.Y; y < clipped.Max.Y; y++ {
		sy := sb.Min.Y + (y-dst.Min.Y)*sb.Dy()/dst.Dy()
		for x := clipped.Min.X; x < clipped.Max.X; x++ {
			sx := sb.Min.X + (x-dst.Min.X)*sb.Dx()/dst.Dx()
			r, g, bl, _ := src.At(sx, sy).RGBA()
			frame.SetRGBA(x, y, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: 0xff})
		}
	}
}
