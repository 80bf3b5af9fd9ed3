package clip

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"
)

// PixelFormat describes how Frame.Data is encoded.
type PixelFormat uint8

const (
	// FormatGray8 is a tightly packed 8-bit luma plane, Width*Height bytes.
	FormatGray8 PixelFormat = iota + 1
	// FormatJPEG is a baseline JPEG image.
	FormatJPEG
)

func (f PixelFormat) String() string {
	switch f {
	case FormatGray8:
		return "gray8"
	case FormatJPEG:
		return "jpeg"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

var ErrBadFrame = errors.New("malformed frame")

// Frame is a single captured image. Frames are immutable once captured and
// are shared by reference between the rolling buffer and any clip holding them.
type Frame struct {
	// Seq is the monotonic sequence number within a stream
	Seq uint64 `msgpack:"seq"`
	// Timestamp is when the frame was captured
	Timestamp time.Time   `msgpack:"ts"`
	Width     int         `msgpack:"w"`
	Height    int         `msgpack:"h"`
	Format    PixelFormat `msgpack:"fmt"`
	Data      []byte      `msgpack:"data"`
}

// Luma returns the frame as a Width*Height luma plane. For gray frames the
// returned slice aliases Data and must not be modified.
func (f Frame) Luma() ([]byte, error) {
	switch f.Format {
	case FormatGray8:
		if f.Width <= 0 || f.Height <= 0 || len(f.Data) != f.Width*f.Height {
			return nil, fmt.Errorf("%w: gray8 %dx%d with %d bytes", ErrBadFrame, f.Width, f.Height, len(f.Data))
		}
		return f.Data, nil
	case FormatJPEG:
		img, err := jpeg.Decode(bytes.NewReader(f.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		if b := img.Bounds(); b.Dx() != f.Width || b.Dy() != f.Height {
			return nil, fmt.Errorf("%w: jpeg is %dx%d, frame says %dx%d", ErrBadFrame, b.Dx(), b.Dy(), f.Width, f.Height)
		}
		return lumaPlane(img), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %s", ErrBadFrame, f.Format)
	}
}

func lumaPlane(img image.Image) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h)

	switch m := img.(type) {
	case *image.YCbCr:
		for y := 0; y < h; y++ {
			copy(out[y*w:(y+1)*w], m.Y[y*m.YStride:y*m.YStride+w])
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			copy(out[y*w:(y+1)*w], m.Pix[y*m.Stride:y*m.Stride+w])
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				out[y*w+x] = g.Y
			}
		}
	}
	return out
}

// JPEG returns the frame encoded as JPEG. JPEG frames are returned as is.
func (f Frame) JPEG(quality int) ([]byte, error) {
	if f.Format == FormatJPEG {
		return f.Data, nil
	}
	luma, err := f.Luma()
	if err != nil {
		return nil, err
	}
	img := &image.Gray{Pix: luma, Stride: f.Width, Rect: image.Rect(0, 0, f.Width, f.Height)}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", f.Seq, err)
	}
	return buf.Bytes(), nil
}

// JPEGFrame wraps encoded JPEG bytes, reading the dimensions from the header.
func JPEGFrame(seq uint64, ts time.Time, data []byte) (Frame, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return Frame{Seq: seq, Timestamp: ts, Width: cfg.Width, Height: cfg.Height, Format: FormatJPEG, Data: data}, nil
}

// GrayFrame builds a raw luma frame.
func GrayFrame(seq uint64, ts time.Time, w, h int, luma []byte) Frame {
	return Frame{Seq: seq, Timestamp: ts, Width: w, Height: h, Format: FormatGray8, Data: luma}
}
