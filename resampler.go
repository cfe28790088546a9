package avplayer

import (
	"fmt"

	"github.com/go-audio/audio"
)

// Resampler converts decoded PCM to the output sample rate and channel count.
// Builds with the astiav tag and cgo convert rates with libswresample; other
// builds use linear interpolation. Input frames that the next output sample
// still needs are held between calls, so Flush must be called after the last
// buffer to drain them.
type Resampler struct {
	inRate, outRate         int
	inChannels, outChannels int
	step                    float64 // input frames per output frame

	buf     []float32 // pending input, already remixed to outChannels
	pos     float64   // read position in buf, in frames
	bufPTS  float64   // presentation time of buf[0], or of the first converted frame
	havePTS bool

	conv     rateConverter // nil when interpolating in Go
	produced int           // frames out of conv since bufPTS
}

// rateConverter is a native sample rate converter for interleaved float
// samples at a fixed channel count.
type rateConverter interface {
	Convert(in []float32) ([]float32, error)
	Flush() ([]float32, error)
	Close() error
}

// NewResampler creates a resampler from inRate/inChannels to outRate/outChannels.
func NewResampler(inRate, inChannels, outRate, outChannels int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 || inChannels <= 0 || outChannels <= 0 {
		return nil, fmt.Errorf("invalid resampler format: %d Hz/%d ch -> %d Hz/%d ch",
			inRate, inChannels, outRate, outChannels)
	}
	r := &Resampler{
		inRate:      inRate,
		outRate:     outRate,
		inChannels:  inChannels,
		outChannels: outChannels,
		step:        float64(inRate) / float64(outRate),
	}
	if err := r.resetConverter(); err != nil {
		return nil, err
	}
	return r, nil
}

// resetConverter replaces the native converter after a rate change.
func (r *Resampler) resetConverter() error {
	if r.conv != nil {
		if err := r.conv.Close(); err != nil {
			return err
		}
		r.conv = nil
	}
	if r.Passthrough() {
		return nil
	}
	conv, err := newRateConverter(r.inRate, r.outRate, r.outChannels)
	if err != nil {
		return fmt.Errorf("create rate converter %d -> %d Hz: %w", r.inRate, r.outRate, err)
	}
	r.conv = conv
	return nil
}

// Native reports whether a native converter does the rate conversion.
func (r *Resampler) Native() bool { return r.conv != nil }

// Close releases the native converter, if any.
func (r *Resampler) Close() error {
	if r.conv == nil {
		return nil
	}
	err := r.conv.Close()
	r.conv = nil
	return err
}

// Passthrough reports whether only channel remixing is performed.
func (r *Resampler) Passthrough() bool { return r.inRate == r.outRate }

// Delay returns the duration of input held back, in seconds. Input held by
// a native converter is not counted.
func (r *Resampler) Delay() float64 {
	pending := float64(len(r.buf)/r.outChannels) - r.pos
	if pending < 0 {
		return 0
	}
	return pending / float64(r.inRate)
}

// Process consumes one decoded buffer whose first sample plays at pts
// seconds. It returns the output samples completed so far and the
// presentation time of the first of them; out may be empty.
func (r *Resampler) Process(in *audio.Float32Buffer, pts float64) (out []float32, outPTS float64, err error) {
	if in == nil || in.Format == nil {
		return nil, 0, audio.ErrInvalidBuffer
	}
	rate, channels := in.Format.SampleRate, in.Format.NumChannels
	if rate <= 0 || channels <= 0 {
		return nil, 0, fmt.Errorf("invalid buffer format: %d Hz/%d ch", rate, channels)
	}
	if len(in.Data)%channels != 0 {
		return nil, 0, fmt.Errorf("buffer holds %d samples, not a multiple of %d channels", len(in.Data), channels)
	}

	// A decoder may report a different format than the container declared,
	// or change it mid-stream. Drain what was buffered at the old format.
	var pending []float32
	var pendingPTS float64
	if rate != r.inRate || channels != r.inChannels {
		pending, pendingPTS = r.Flush()
		rateChanged := rate != r.inRate
		r.inRate, r.inChannels = rate, channels
		r.step = float64(rate) / float64(r.outRate)
		if rateChanged {
			if err := r.resetConverter(); err != nil {
				return pending, pendingPTS, err
			}
		}
	}

	if r.conv != nil {
		out, outPTS, err = r.convert(in.Data, pts)
	} else {
		// Re-anchor on the packet clock whenever nothing is held back.
		if !r.havePTS || (len(r.buf) == 0 && r.pos == 0) {
			r.bufPTS = pts
			r.havePTS = true
		}
		r.buf = remix(r.buf, in.Data, r.inChannels, r.outChannels)
		out, outPTS = r.drain(false)
	}
	if err != nil {
		return pending, pendingPTS, err
	}
	if len(pending) > 0 {
		return append(pending, out...), pendingPTS, nil
	}
	return out, outPTS, nil
}

// Flush drains every held input frame.
func (r *Resampler) Flush() (out []float32, outPTS float64) {
	if r.conv != nil {
		outPTS = r.convertedPTS()
		// A failed flush leaves nothing to drain.
		out, _ = r.conv.Flush()
	} else {
		out, outPTS = r.drain(true)
	}
	r.buf = r.buf[:0]
	r.pos = 0
	r.havePTS = false
	r.produced = 0
	return out, outPTS
}

// convert runs one buffer through the native converter. Output time follows
// the first packet since the last flush plus the frames produced since.
func (r *Resampler) convert(samples []float32, pts float64) ([]float32, float64, error) {
	if !r.havePTS {
		r.bufPTS = pts
		r.havePTS = true
		r.produced = 0
	}
	out, err := r.conv.Convert(remix(nil, samples, r.inChannels, r.outChannels))
	if err != nil {
		return nil, 0, err
	}
	outPTS := r.convertedPTS()
	r.produced += len(out) / r.outChannels
	return out, outPTS, nil
}

func (r *Resampler) convertedPTS() float64 {
	return r.bufPTS + float64(r.produced)/float64(r.outRate)
}

func (r *Resampler) drain(final bool) ([]float32, float64) {
	ch := r.outChannels
	frames := len(r.buf) / ch
	outPTS := r.bufPTS + r.pos/float64(r.inRate)

	if r.Passthrough() {
		start := int(r.pos)
		if start >= frames {
			return nil, outPTS
		}
		out := make([]float32, (frames-start)*ch)
		copy(out, r.buf[start*ch:])
		r.consume(frames)
		return out, outPTS
	}

	var out []float32
	for {
		i := int(r.pos)
		if i >= frames || (!final && i+1 >= frames) {
			break
		}
		next := i + 1
		if next >= frames {
			next = i // hold the last frame while flushing
		}
		f := float32(r.pos - float64(i))
		for c := 0; c < ch; c++ {
			a := r.buf[i*ch+c]
			b := r.buf[next*ch+c]
			out = append(out, a+(b-a)*f)
		}
		r.pos += r.step
	}

	r.consume(min(int(r.pos), frames))
	return out, outPTS
}

// consume drops k input frames from the front of the buffer.
func (r *Resampler) consume(k int) {
	if k <= 0 {
		return
	}
	ch := r.outChannels
	n := copy(r.buf, r.buf[k*ch:])
	r.buf = r.buf[:n]
	r.pos -= float64(k)
	if r.pos < 0 {
		r.pos = 0
	}
	r.bufPTS += float64(k) / float64(r.inRate)
}

// remix appends src, interleaved with inCh channels, to dst with outCh
// channels. Mono is copied to every output channel; folding to fewer
// channels averages the inputs that map onto each output.
func remix(dst, src []float32, inCh, outCh int) []float32 {
	if inCh == outCh {
		return append(dst, src...)
	}

	frames := len(src) / inCh
	for f := 0; f < frames; f++ {
		frame := src[f*inCh : (f+1)*inCh]
		switch {
		case inCh == 1:
			for c := 0; c < outCh; c++ {
				dst = append(dst, frame[0])
			}
		case outCh > inCh:
			for c := 0; c < outCh; c++ {
				dst = append(dst, frame[c%inCh])
			}
		default:
			for c := 0; c < outCh; c++ {
				var sum float32
				var n int
				for j := c; j < inCh; j += outCh {
					sum += frame[j]
					n++
				}
				dst = append(dst, sum/float32(n))
			}
		}
	}
	return dst
}
