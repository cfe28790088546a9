//go:build astiav && cgo

package avplayer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/asticode/go-astiav"
)

// swrSlackFrames is extra room in each output frame for samples
// libswresample held back from earlier calls.
const swrSlackFrames = 256

// swrConverter converts packed float samples with libswresample. The
// context configures itself from the first pair of frames it converts.
type swrConverter struct {
	swr      *astiav.SoftwareResampleContext
	src, dst *astiav.Frame
	layout   astiav.ChannelLayout
	inRate   int
	outRate  int
	channels int
	scratch  []byte
}

func newRateConverter(inRate, outRate, channels int) (rateConverter, error) {
	var layout astiav.ChannelLayout
	switch channels {
	case 1:
		layout = astiav.ChannelLayoutMono
	case 2:
		layout = astiav.ChannelLayoutStereo
	default:
		// Interpolate layouts libswresample is not set up for here.
		return nil, nil
	}

	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return nil, errors.New("swresample: context allocation failed")
	}
	return &swrConverter{
		swr:      swr,
		src:      astiav.AllocFrame(),
		dst:      astiav.AllocFrame(),
		layout:   layout,
		inRate:   inRate,
		outRate:  outRate,
		channels: channels,
	}, nil
}

func (c *swrConverter) Convert(in []float32) ([]float32, error) {
	frames := len(in) / c.channels
	if frames == 0 {
		return nil, nil
	}

	c.src.Unref()
	c.src.SetChannelLayout(c.layout)
	c.src.SetSampleFormat(astiav.SampleFormatFlt)
	c.src.SetSampleRate(c.inRate)
	c.src.SetNbSamples(frames)
	if err := c.src.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("swresample: allocate input: %w", err)
	}

	if need := len(in) * 4; cap(c.scratch) < need {
		c.scratch = make([]byte, need)
	}
	b := c.scratch[:len(in)*4]
	encodeF32LE(b, in)
	if err := c.src.Data().SetBytes(b, 0); err != nil {
		return nil, fmt.Errorf("swresample: fill input: %w", err)
	}
	return c.convert(c.src, frames)
}

func (c *swrConverter) Flush() ([]float32, error) {
	return c.convert(nil, 0)
}

func (c *swrConverter) convert(src *astiav.Frame, frames int) ([]float32, error) {
	capacity := int(math.Ceil(float64(frames)*float64(c.outRate)/float64(c.inRate))) + swrSlackFrames

	c.dst.Unref()
	c.dst.SetChannelLayout(c.layout)
	c.dst.SetSampleFormat(astiav.SampleFormatFlt)
	c.dst.SetSampleRate(c.outRate)
	c.dst.SetNbSamples(capacity)
	if err := c.dst.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("swresample: allocate output: %w", err)
	}
	if err := c.swr.ConvertFrame(src, c.dst); err != nil {
		return nil, fmt.Errorf("swresample: convert: %w", err)
	}

	n := c.dst.NbSamples() * c.channels
	if n == 0 {
		return nil, nil
	}
	b, err := c.dst.Data().Bytes(0)
	if err != nil {
		return nil, fmt.Errorf("swresample: read output: %w", err)
	}
	if len(b) < n*4 {
		return nil, fmt.Errorf("swresample: short output: %d bytes for %d samples", len(b), n)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

func (c *swrConverter) Close() error {
	c.src.Free()
	c.dst.Free()
	c.swr.Free()
	return nil
}
