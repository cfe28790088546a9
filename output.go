package avplayer

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// SampleFormat is the numeric representation of samples sent to the device.
type SampleFormat int

const (
	SampleFormatF32LE SampleFormat = iota // 32-bit float, little endian
	SampleFormatS16LE                     // signed 16-bit, little endian
	SampleFormatU8                        // unsigned 8-bit, 128 is silence
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatF32LE:
		return "f32le"
	case SampleFormatS16LE:
		return "s16le"
	case SampleFormatU8:
		return "u8"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the encoded size of one sample.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatF32LE:
		return 4
	case SampleFormatS16LE:
		return 2
	case SampleFormatU8:
		return 1
	default:
		return 0
	}
}

// sampleEncoder writes len(src) samples into dst, which holds exactly
// len(src)*BytesPerSample bytes.
type sampleEncoder func(dst []byte, src []float32)

func newSampleEncoder(f SampleFormat) (sampleEncoder, error) {
	switch f {
	case SampleFormatF32LE:
		return encodeF32LE, nil
	case SampleFormatS16LE:
		return encodeS16LE, nil
	case SampleFormatU8:
		return encodeU8, nil
	default:
		return nil, fmt.Errorf("unsupported sample format %d", f)
	}
}

func encodeF32LE(dst []byte, src []float32) {
	for i, s := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}

func encodeS16LE(dst []byte, src []float32) {
	for i, s := range src {
		v := int16(math.Round(float64(clampSample(s)) * math.MaxInt16))
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(v))
	}
}

func encodeU8(dst []byte, src []float32) {
	for i, s := range src {
		dst[i] = uint8(math.Round(float64(clampSample(s))*127.5 + 127.5))
	}
}

func clampSample(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	case s != s: // NaN
		return 0
	}
	return s
}

// DeviceCapabilities is what an output device reports it can play.
type DeviceCapabilities struct {
	SampleRates       []int // nil means any rate
	DefaultSampleRate int
	Channels          []int
	Formats           []SampleFormat
}

// OutputConfig is the negotiated, session-fixed device configuration.
type OutputConfig struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
}

// FrameSize returns the encoded size of one frame in bytes.
func (c OutputConfig) FrameSize() int { return c.Channels * c.Format.BytesPerSample() }

func (c OutputConfig) String() string {
	return fmt.Sprintf("%d Hz %d ch %s", c.SampleRate, c.Channels, c.Format)
}

// OutputPreferences are the session's wishes for the device configuration.
type OutputPreferences struct {
	SampleRate int
	Channels   int
	Formats    []SampleFormat // in order of preference
}

// NegotiateOutput picks the device configuration once at session start.
// The preferred rate is used when the device supports it, otherwise the
// device's default. The preferred channel count wins, then stereo, then the
// first layout the device lists. The format is the first preference the
// device supports.
func NegotiateOutput(caps DeviceCapabilities, prefs OutputPreferences) (OutputConfig, error) {
	var cfg OutputConfig

	switch {
	case prefs.SampleRate > 0 && (caps.SampleRates == nil || slices.Contains(caps.SampleRates, prefs.SampleRate)):
		cfg.SampleRate = prefs.SampleRate
	case caps.DefaultSampleRate > 0:
		cfg.SampleRate = caps.DefaultSampleRate
	case len(caps.SampleRates) > 0:
		cfg.SampleRate = caps.SampleRates[0]
	default:
		return cfg, fmt.Errorf("%w: no sample rate", ErrUnsupportedDeviceConfig)
	}

	switch {
	case prefs.Channels > 0 && slices.Contains(caps.Channels, prefs.Channels):
		cfg.Channels = prefs.Channels
	case slices.Contains(caps.Channels, 2):
		cfg.Channels = 2
	case len(caps.Channels) > 0 && caps.Channels[0] > 0:
		cfg.Channels = caps.Channels[0]
	default:
		return cfg, fmt.Errorf("%w: no channel layout", ErrUnsupportedDeviceConfig)
	}

	formats := prefs.Formats
	if len(formats) == 0 {
		formats = defaultSampleFormats
	}
	for _, f := range formats {
		if slices.Contains(caps.Formats, f) {
			cfg.Format = f
			return cfg, nil
		}
	}
	return cfg, fmt.Errorf("%w: no common sample format in %v", ErrUnsupportedDeviceConfig, caps.Formats)
}

var defaultSampleFormats = []SampleFormat{SampleFormatF32LE, SampleFormatS16LE, SampleFormatU8}

// AudioSink is an audio output device. Open hands the device a reader it
// pulls encoded frames from on its own real-time goroutine.
type AudioSink interface {
	Name() string
	Capabilities() (DeviceCapabilities, error)
	Open(cfg OutputConfig, src io.Reader) (AudioStream, error)
}

// AudioStream is an opened device stream.
type AudioStream interface {
	Start() error
	Close() error
}

// BufferedStream is implemented by streams that keep their own buffer
// between the reader and the hardware. BufferedFrames reports how many
// frames already read are not yet audible.
type BufferedStream interface {
	BufferedFrames() int
}

// OutputStats counts device callback activity.
type OutputStats struct {
	FramesPlayed uint64 // real frames taken from the ring
	SilentFrames uint64 // frames of silence written
	Underruns    uint64 // callbacks that found the ring short
}

// underrunLogInterval limits underrun warnings to one per interval.
const underrunLogInterval = time.Second

// outputStream is the reader given to the sink. Every Read returns whole
// frames, never blocks and never fails: missing samples become silence.
type outputStream struct {
	ring     *AudioRingBuffer
	clock    *AudioClock
	encode   sampleEncoder
	cfg      OutputConfig
	timeSrc  clock.Clock
	log      logging.LeveledLogger
	scratch  []float32
	done     chan struct{}
	doneOnce sync.Once
	device   BufferedStream // nil when the sink reports no buffer

	lastWarn     time.Time
	framesPlayed atomic.Uint64
	silentFrames atomic.Uint64
	underruns    atomic.Uint64
}

func newOutputStream(ring *AudioRingBuffer, clk *AudioClock, cfg OutputConfig,
	timeSrc clock.Clock, log logging.LeveledLogger) (*outputStream, error) {
	enc, err := newSampleEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}
	if timeSrc == nil {
		timeSrc = clock.New()
	}
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("output")
	}
	return &outputStream{
		ring:    ring,
		clock:   clk,
		encode:  enc,
		cfg:     cfg,
		timeSrc: timeSrc,
		log:     log,
		done:    make(chan struct{}),
	}, nil
}

// Read implements io.Reader.
func (s *outputStream) Read(p []byte) (int, error) {
	frameSize := s.cfg.FrameSize()
	frames := len(p) / frameSize
	if frames == 0 {
		return 0, nil
	}

	need := frames * s.cfg.Channels
	if cap(s.scratch) < need {
		s.scratch = make([]float32, need)
	}
	buf := s.scratch[:need]
	n := s.ring.Read(buf)
	got := n / s.cfg.Channels

	s.encode(p[:need*s.cfg.Format.BytesPerSample()], buf)

	// Silence is played time as well; a starved ring must not stop video.
	buffered := 0
	if s.device != nil {
		buffered = s.device.BufferedFrames() + frames
	}
	s.clock.AdvanceBuffered(frames, buffered)
	if got > 0 {
		s.framesPlayed.Add(uint64(got))
	}
	if silent := frames - got; silent > 0 {
		s.silentFrames.Add(uint64(silent))
		if s.ring.Drained() {
			s.doneOnce.Do(func() {
				s.log.Debugf("audio drained at %.3fs", s.clock.Time())
				close(s.done)
			})
		} else {
			s.underrun(silent)
		}
	}
	return frames * frameSize, nil
}

func (s *outputStream) underrun(silent int) {
	s.underruns.Add(1)
	now := s.timeSrc.Now()
	if now.Sub(s.lastWarn) < underrunLogInterval {
		return
	}
	s.lastWarn = now
	s.log.Warnf("audio underrun: %d frames of silence (%d underruns so far)", silent, s.underruns.Load())
}

// Done is closed once the ring has been closed and fully played.
func (s *outputStream) Done() <-chan struct{} { return s.done }

// Stats returns a snapshot of the callback counters.
func (s *outputStream) Stats() OutputStats {
	return OutputStats{
		FramesPlayed: s.framesPlayed.Load(),
		SilentFrames: s.silentFrames.Load(),
		Underruns:    s.underruns.Load(),
	}
}
