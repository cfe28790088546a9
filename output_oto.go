package avplayer

import (
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/oto/v2"
)

// otoBufferFrames is the device-side buffer requested from oto, in frames.
// Smaller buffers keep the clock closer to what is audible.
const otoBufferFrames = 2048

// OtoSink plays through the operating system's default output device.
//
// oto allows one context per process; it is created on the first Open and
// reused while later sessions ask for the same configuration.
type OtoSink struct{}

// NewOtoSink returns the default device sink.
func NewOtoSink() *OtoSink { return &OtoSink{} }

var otoDevice struct {
	mu  sync.Mutex
	ctx *oto.Context
	cfg OutputConfig
}

// Name implements AudioSink.
func (*OtoSink) Name() string { return "oto" }

// Capabilities implements AudioSink. oto converts internally, so any rate is
// accepted and mono or stereo in each of its formats.
func (*OtoSink) Capabilities() (DeviceCapabilities, error) {
	return DeviceCapabilities{
		DefaultSampleRate: 48000,
		Channels:          []int{2, 1},
		Formats:           []SampleFormat{SampleFormatF32LE, SampleFormatS16LE, SampleFormatU8},
	}, nil
}

func otoFormat(f SampleFormat) (int, error) {
	switch f {
	case SampleFormatF32LE:
		return oto.FormatFloat32LE, nil
	case SampleFormatS16LE:
		return oto.FormatSignedInt16LE, nil
	case SampleFormatU8:
		return oto.FormatUnsignedInt8, nil
	default:
		return 0, fmt.Errorf("oto: unsupported sample format %s", f)
	}
}

// Open implements AudioSink.
func (*OtoSink) Open(cfg OutputConfig, src io.Reader) (AudioStream, error) {
	format, err := otoFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	otoDevice.mu.Lock()
	defer otoDevice.mu.Unlock()

	if otoDevice.ctx == nil {
		ctx, ready, err := oto.NewContext(cfg.SampleRate, cfg.Channels, format)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoAudioDevice, err)
		}
		<-ready
		otoDevice.ctx = ctx
		otoDevice.cfg = cfg
	} else if otoDevice.cfg != cfg {
		return nil, fmt.Errorf("%w: device already open as %s", ErrUnsupportedDeviceConfig, otoDevice.cfg)
	}

	player := otoDevice.ctx.NewPlayer(src)
	if bs, ok := player.(interface{ SetBufferSize(int) }); ok {
		bs.SetBufferSize(otoBufferFrames * cfg.FrameSize())
	}
	return &otoStream{player: player, frameSize: cfg.FrameSize()}, nil
}

type otoStream struct {
	player    oto.Player
	frameSize int
}

// BufferedFrames implements BufferedStream.
func (s *otoStream) BufferedFrames() int {
	return s.player.UnplayedBufferSize() / s.frameSize
}

func (s *otoStream) Start() error {
	s.player.Play()
	return s.player.Err()
}

func (s *otoStream) Close() error {
	return s.player.Close()
}
