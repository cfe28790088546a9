package avplayer

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
)

func TestStaticImageSource_NilIsBlack(t *testing.T) {
	pix := NewStaticImageSource(nil, 3, 2, ScaleModeFit).Frame()
	require.Len(t, pix, 3*2*4)
	for i := 0; i < len(pix); i += 4 {
		assert.Equal(t, []byte{0, 0, 0, 0xff}, pix[i:i+4], "pixel %d", i/4)
	}
}

func TestStaticImageSource_ScalesImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{0x20, 0x40, 0x80, 0xff}}, image.Point{}, draw.Src)

	src := NewStaticImageSource(img, 4, 4, ScaleModeStretch)
	pix := src.Frame()
	require.Len(t, pix, 4*4*4)
	for i := 0; i < len(pix); i += 4 {
		assert.Equal(t, []byte{0x20, 0x40, 0x80}, pix[i:i+3], "pixel %d", i/4)
	}

	assert.Same(t, &pix[0], &src.Frame()[0], "the buffer is built once")
}
