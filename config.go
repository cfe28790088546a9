package avplayer

import (
	"fmt"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/pion/logging"
	"golang.org/x/image/draw"
)

// Options configures a playback session. They are fixed once Play returns.
type Options struct {
	Width     int       // Output frame width in pixels
	Height    int       // Output frame height in pixels
	ScaleMode ScaleMode // Aspect ratio handling when the source differs

	// Interpolator scales decoded pictures (nil = draw.ApproxBiLinear).
	Interpolator draw.Interpolator

	LookAhead         int     // Frames the presenter peeks ahead
	PacketQueueSize   int     // Capacity of each demuxed packet channel
	FrameQueueSize    int     // Capacity of the decoded frame channel
	ChunkQueueSize    int     // Capacity of the audio chunk channel
	RingBufferSeconds float64 // Audio ring buffer length

	PreferredSampleRate int            // Output rate to ask the device for
	PreferredChannels   int            // Output channel count to ask for
	SampleFormats       []SampleFormat // Output formats in preference order
	Balance             float64        // Stereo balance, -1 (left) to 1 (right)

	FillRetryInterval  time.Duration // Filler wait when the ring is full
	LateFrameThreshold time.Duration // Drop frames this late before converting (0 = never)

	Sink           AudioSink      // Output device (nil = default device via oto)
	Decoders       DecoderFactory // Decoder source (nil = Decoders())
	DecoderThreads int            // Video decoder threads (0 = auto)
	Placeholder    image.Image    // Shown before the first frame (nil = black)

	// PlaceholderSource replaces Placeholder when set, e.g. a TestPatternSource.
	PlaceholderSource FrameSource

	LoggerFactory logging.LoggerFactory // nil = logging.NewDefaultLoggerFactory()
	Clock         clock.Clock           // Time source for waits and pacing (nil = wall clock)
}

// DefaultOptions returns options for presenting at width x height.
func DefaultOptions(width, height int) Options {
	return Options{
		Width:               width,
		Height:              height,
		ScaleMode:           ScaleModeFit,
		LookAhead:           4,
		PacketQueueSize:     64,
		FrameQueueSize:      8,
		ChunkQueueSize:      16,
		RingBufferSeconds:   0.5,
		PreferredSampleRate: 48000,
		PreferredChannels:   2,
		SampleFormats:       []SampleFormat{SampleFormatF32LE, SampleFormatS16LE, SampleFormatU8},
		FillRetryInterval:   2 * time.Millisecond,
	}
}

// withDefaults fills zero-valued collaborators and sizes.
func (o Options) withDefaults() Options {
	d := DefaultOptions(o.Width, o.Height)
	if o.LookAhead == 0 {
		o.LookAhead = d.LookAhead
	}
	if o.PacketQueueSize == 0 {
		o.PacketQueueSize = d.PacketQueueSize
	}
	if o.FrameQueueSize == 0 {
		o.FrameQueueSize = d.FrameQueueSize
	}
	if o.ChunkQueueSize == 0 {
		o.ChunkQueueSize = d.ChunkQueueSize
	}
	if o.RingBufferSeconds == 0 {
		o.RingBufferSeconds = d.RingBufferSeconds
	}
	if o.PreferredSampleRate == 0 {
		o.PreferredSampleRate = d.PreferredSampleRate
	}
	if o.PreferredChannels == 0 {
		o.PreferredChannels = d.PreferredChannels
	}
	if len(o.SampleFormats) == 0 {
		o.SampleFormats = d.SampleFormats
	}
	if o.FillRetryInterval == 0 {
		o.FillRetryInterval = d.FillRetryInterval
	}
	if o.Interpolator == nil {
		o.Interpolator = draw.ApproxBiLinear
	}
	if o.Decoders == nil {
		o.Decoders = Decoders()
	}
	if o.LoggerFactory == nil {
		o.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// validate reports every invalid field at once.
func (o Options) validate() error {
	var result *multierror.Error
	bad := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if o.Width <= 0 || o.Height <= 0 {
		bad("target size %dx%d must be positive", o.Width, o.Height)
	}
	if o.ScaleMode < ScaleModeFit || o.ScaleMode > ScaleModeStretch {
		bad("unknown scale mode %d", o.ScaleMode)
	}
	if o.LookAhead < 1 {
		bad("look-ahead %d must be at least 1", o.LookAhead)
	}
	if o.PacketQueueSize < 1 || o.FrameQueueSize < 1 || o.ChunkQueueSize < 1 {
		bad("queue sizes must be at least 1")
	}
	if o.RingBufferSeconds <= 0 || o.RingBufferSeconds > 10 {
		bad("ring buffer length %.3fs out of range (0, 10]", o.RingBufferSeconds)
	}
	if o.PreferredSampleRate < 0 || o.PreferredChannels < 0 {
		bad("preferred output format must not be negative")
	}
	if o.Balance < -1 || o.Balance > 1 {
		bad("balance %.2f out of range [-1, 1]", o.Balance)
	}
	if o.FillRetryInterval < 0 || o.LateFrameThreshold < 0 {
		bad("durations must not be negative")
	}
	for _, f := range o.SampleFormats {
		if f.BytesPerSample() == 0 {
			bad("unknown sample format %d", f)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}
