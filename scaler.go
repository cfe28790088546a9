package avplayer

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ScaleMode defines how scaling should handle aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeFit scales to fit within target dimensions, preserving aspect ratio (may letterbox).
	ScaleModeFit ScaleMode = iota
	// ScaleModeFill scales to fill target dimensions, preserving aspect ratio (may crop).
	ScaleModeFill
	// ScaleModeStretch scales to exactly match target dimensions (may distort).
	ScaleModeStretch
)

func (m ScaleMode) String() string {
	switch m {
	case ScaleModeFit:
		return "fit"
	case ScaleModeFill:
		return "fill"
	case ScaleModeStretch:
		return "stretch"
	default:
		return "unknown"
	}
}

// ParseScaleMode parses the names returned by ScaleMode.String.
func ParseScaleMode(s string) (ScaleMode, error) {
	switch s {
	case "fit":
		return ScaleModeFit, nil
	case "fill":
		return ScaleModeFill, nil
	case "stretch":
		return ScaleModeStretch, nil
	default:
		return 0, fmt.Errorf("unknown scale mode %q", s)
	}
}

// VideoScaler converts decoded pictures into packed RGBA at a fixed size.
type VideoScaler struct {
	dstWidth, dstHeight int
	mode                ScaleMode
	interp              draw.Interpolator
}

// NewVideoScaler creates a scaler producing dstWidth x dstHeight RGBA.
// A nil interpolator selects draw.ApproxBiLinear.
func NewVideoScaler(dstWidth, dstHeight int, mode ScaleMode, interp draw.Interpolator) *VideoScaler {
	if interp == nil {
		interp = draw.ApproxBiLinear
	}
	return &VideoScaler{
		dstWidth:  dstWidth,
		dstHeight: dstHeight,
		mode:      mode,
		interp:    interp,
	}
}

// Size returns the output dimensions.
func (s *VideoScaler) Size() (width, height int) { return s.dstWidth, s.dstHeight }

// Convert color-converts and scales an I420 frame. The returned buffer is
// newly allocated and owned by the caller.
func (s *VideoScaler) Convert(frame *RawFrame) ([]byte, error) {
	src, err := ycbcrImage(frame)
	if err != nil {
		return nil, err
	}
	return s.ScaleImage(src), nil
}

// ScaleImage draws any image into a new RGBA buffer of the target size.
func (s *VideoScaler) ScaleImage(src image.Image) []byte {
	dst := image.NewRGBA(image.Rect(0, 0, s.dstWidth, s.dstHeight))
	b := src.Bounds()

	sx, sy, sw, sh := s.calculateSourceRegion(b.Dx(), b.Dy())
	sr := image.Rect(b.Min.X+sx, b.Min.Y+sy, b.Min.X+sx+sw, b.Min.Y+sy+sh)

	dr := dst.Bounds()
	if s.mode == ScaleModeFit {
		w, h := CalculateScaledSize(b.Dx(), b.Dy(), s.dstWidth, s.dstHeight, ScaleModeFit)
		x := (s.dstWidth - w) / 2
		y := (s.dstHeight - h) / 2
		dr = image.Rect(x, y, x+w, y+h)
		if dr != dst.Bounds() {
			draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
		}
	}

	if sr.Dx() == dr.Dx() && sr.Dy() == dr.Dy() {
		draw.Draw(dst, dr, src, sr.Min, draw.Src)
	} else {
		s.interp.Scale(dst, dr, src, sr, draw.Src, nil)
	}
	return dst.Pix
}

// ycbcrImage wraps the planes of an I420 frame without copying.
func ycbcrImage(frame *RawFrame) (*image.YCbCr, error) {
	if frame.Format != PixelFormatI420 || len(frame.Data) < 3 || len(frame.Stride) < 3 {
		return nil, fmt.Errorf("unsupported frame format %s", frame.Format)
	}
	w, h := frame.Width, frame.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", w, h)
	}
	uvW, uvH := (w+1)/2, (h+1)/2
	if frame.Stride[0] < w || frame.Stride[1] < uvW || frame.Stride[2] != frame.Stride[1] {
		return nil, fmt.Errorf("invalid strides %v for %dx%d", frame.Stride, w, h)
	}
	if len(frame.Data[0]) < frame.Stride[0]*(h-1)+w ||
		len(frame.Data[1]) < frame.Stride[1]*(uvH-1)+uvW ||
		len(frame.Data[2]) < frame.Stride[2]*(uvH-1)+uvW {
		return nil, fmt.Errorf("%w: planes too short for %dx%d", ErrBufferTooSmall, w, h)
	}

	return &image.YCbCr{
		Y:              frame.Data[0],
		Cb:             frame.Data[1],
		Cr:             frame.Data[2],
		YStride:        frame.Stride[0],
		CStride:        frame.Stride[1],
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, w, h),
	}, nil
}

// calculateSourceRegion determines what region of the source to use based on scale mode.
func (s *VideoScaler) calculateSourceRegion(srcW, srcH int) (x, y, w, h int) {
	if s.mode != ScaleModeFill || srcW <= 0 || srcH <= 0 {
		return 0, 0, srcW, srcH
	}

	// Crop source to match target aspect ratio
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(s.dstWidth) / float64(s.dstHeight)

	if srcAspect > dstAspect {
		// Source is wider, crop horizontally
		newW := int(float64(srcH) * dstAspect)
		return (srcW - newW) / 2, 0, newW, srcH
	} else if srcAspect < dstAspect {
		// Source is taller, crop vertically
		newH := int(float64(srcW) / dstAspect)
		return 0, (srcH - newH) / 2, srcW, newH
	}
	return 0, 0, srcW, srcH
}

// CalculateScaledSize returns the output dimensions when scaling with a given mode.
// This is useful for determining letterbox dimensions in ScaleModeFit.
func CalculateScaledSize(srcW, srcH, maxW, maxH int, mode ScaleMode) (w, h int) {
	if mode != ScaleModeFit || srcW <= 0 || srcH <= 0 {
		return maxW, maxH
	}

	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(maxW) / float64(maxH)

	if srcAspect > dstAspect {
		// Source is wider, fit to width
		w = maxW
		h = int(float64(maxW)/srcAspect + 0.5)
	} else {
		// Source is taller, fit to height
		h = maxH
		w = int(float64(maxH)*srcAspect + 0.5)
	}
	return max(1, min(w, maxW)), max(1, min(h, maxH))
}
