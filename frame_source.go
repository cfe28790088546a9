package avplayer

import (
	"image"
	"image/color"
)

// FrameSource supplies the bytes to display right now: packed RGBA at the
// session's target size. Frame must not block.
type FrameSource interface {
	Frame() []byte
}

// StaticImageSource shows one still picture, pre-scaled at construction.
type StaticImageSource struct {
	pix []byte
}

// NewStaticImageSource scales img to width x height. A nil img yields an
// opaque black frame.
func NewStaticImageSource(img image.Image, width, height int, mode ScaleMode) *StaticImageSource {
	if img == nil {
		return &StaticImageSource{pix: solidFrame(width, height, color.RGBA{A: 0xff})}
	}
	scaler := NewVideoScaler(width, height, mode, nil)
	return &StaticImageSource{pix: scaler.ScaleImage(img)}
}

// Frame implements FrameSource.
func (s *StaticImageSource) Frame() []byte { return s.pix }

// solidFrame returns a width x height RGBA buffer filled with c.
func solidFrame(width, height int, c color.RGBA) []byte {
	pix := make([]byte, width*height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i] = c.R
		pix[i+1] = c.G
		pix[i+2] = c.B
		pix[i+3] = c.A
	}
	return pix
}
