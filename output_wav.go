package avplayer

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hashicorp/go-multierror"
)

// WAVSink records playback to a 16-bit PCM WAV file instead of a device.
// A ticker pulls one period of audio at a time so playback runs at real
// speed, which keeps the clock meaningful for video.
type WAVSink struct {
	path   string
	clock  clock.Clock
	period time.Duration
}

// WAVSinkOption configures a WAVSink.
type WAVSinkOption func(*WAVSink)

// WithWAVClock sets the time source used for pacing.
func WithWAVClock(c clock.Clock) WAVSinkOption {
	return func(s *WAVSink) { s.clock = c }
}

// WithWAVPeriod sets how much audio is pulled per tick.
func WithWAVPeriod(d time.Duration) WAVSinkOption {
	return func(s *WAVSink) {
		if d > 0 {
			s.period = d
		}
	}
}

// NewWAVSink creates a sink writing to path.
func NewWAVSink(path string, opts ...WAVSinkOption) *WAVSink {
	s := &WAVSink{
		path:   path,
		clock:  clock.New(),
		period: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements AudioSink.
func (s *WAVSink) Name() string { return "wav:" + s.path }

// Capabilities implements AudioSink.
func (s *WAVSink) Capabilities() (DeviceCapabilities, error) {
	return DeviceCapabilities{
		DefaultSampleRate: 48000,
		Channels:          []int{2, 1},
		Formats:           []SampleFormat{SampleFormatS16LE},
	}, nil
}

// Open implements AudioSink.
func (s *WAVSink) Open(cfg OutputConfig, src io.Reader) (AudioStream, error) {
	if cfg.Format != SampleFormatS16LE {
		return nil, fmt.Errorf("%w: wav sink writes s16le, got %s", ErrUnsupportedDeviceConfig, cfg.Format)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", s.path, err)
	}

	frames := int(int64(cfg.SampleRate) * int64(s.period) / int64(time.Second))
	return &wavStream{
		file:   f,
		enc:    wav.NewEncoder(f, cfg.SampleRate, 16, cfg.Channels, 1),
		src:    src,
		cfg:    cfg,
		clock:  s.clock,
		period: s.period,
		buf:    make([]byte, max(1, frames)*cfg.FrameSize()),
		stop:   make(chan struct{}),
	}, nil
}

type wavStream struct {
	file   *os.File
	enc    *wav.Encoder
	src    io.Reader
	cfg    OutputConfig
	clock  clock.Clock
	period time.Duration
	buf    []byte

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup

	mu       sync.Mutex
	writeErr error
}

func (s *wavStream) Start() error {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
	return nil
}

func (s *wavStream) run() {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.period)
	defer ticker.Stop()

	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: s.cfg.Channels, SampleRate: s.cfg.SampleRate},
		Data:           make([]int, len(s.buf)/2),
		SourceBitDepth: 16,
	}
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if _, err := io.ReadFull(s.src, s.buf); err != nil {
			s.setErr(err)
			return
		}
		for i := range ib.Data {
			ib.Data[i] = int(int16(binary.LittleEndian.Uint16(s.buf[i*2:])))
		}
		if err := s.enc.Write(ib); err != nil {
			s.setErr(err)
			return
		}
	}
}

func (s *wavStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr == nil {
		s.writeErr = err
	}
}

// Close stops pulling audio and finalizes the WAV header.
func (s *wavStream) Close() error {
	var result error
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()

		s.mu.Lock()
		if s.writeErr != nil {
			result = multierror.Append(result, s.writeErr)
		}
		s.mu.Unlock()
		if err := s.enc.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("finalize wav: %w", err))
		}
		if err := s.file.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	})
	return result
}
