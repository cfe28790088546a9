package avplayer

import (
	"errors"
	"io"
	"sync"

	"github.com/go-audio/audio"
	"github.com/pion/logging"
)

// testLoggerFactory discards everything.
var testLoggerFactory = &logging.DefaultLoggerFactory{
	Writer:          io.Discard,
	DefaultLogLevel: logging.LogLevelDisabled,
}

func testLogger(scope string) logging.LeveledLogger {
	return testLoggerFactory.NewLogger(scope)
}

var errFakeDecode = errors.New("fake decode failure")

// fakeContainer serves a fixed list of packets.
type fakeContainer struct {
	streams []StreamInfo
	packets []*Packet
	readErr error // returned instead of io.EOF once packets run out

	mu     sync.Mutex
	closed bool
}

func (c *fakeContainer) Format() string        { return "fake" }
func (c *fakeContainer) Streams() []StreamInfo { return c.streams }

func (c *fakeContainer) ReadPacket() (*Packet, error) {
	if len(c.packets) == 0 {
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, io.EOF
	}
	p := c.packets[0]
	c.packets = c.packets[1:]
	return p, nil
}

func (c *fakeContainer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeVideoDecoder returns one small I420 frame per packet. It holds back
// the last delay frames until Flush, like a decoder with reordering delay,
// and fails on the packets listed in failOn (0-based).
type fakeVideoDecoder struct {
	width, height int
	delay         int
	failOn        map[int]bool

	n       int
	pending []*RawFrame
	closed  bool
}

func (d *fakeVideoDecoder) Decode(pkt *Packet) ([]*RawFrame, error) {
	i := d.n
	d.n++
	if d.failOn[i] {
		return nil, errFakeDecode
	}
	f := NewI420Frame(max(2, d.width), max(2, d.height))
	f.PTS = pkt.PTS
	d.pending = append(d.pending, f)
	if len(d.pending) <= d.delay {
		return nil, nil
	}
	out := d.pending[:len(d.pending)-d.delay]
	d.pending = append([]*RawFrame(nil), d.pending[len(d.pending)-d.delay:]...)
	return out, nil
}

func (d *fakeVideoDecoder) Flush() ([]*RawFrame, error) {
	out := d.pending
	d.pending = nil
	return out, nil
}

func (d *fakeVideoDecoder) Codec() VideoCodec   { return VideoCodecRawI420 }
func (d *fakeVideoDecoder) Provider() Provider  { return ProviderGo }
func (d *fakeVideoDecoder) Stats() DecoderStats { return DecoderStats{FramesDecoded: uint64(d.n)} }
func (d *fakeVideoDecoder) Close() error        { d.closed = true; return nil }

// fakeAudioDecoder returns frames sample frames per packet filled with
// value, at the given rate and channel count.
type fakeAudioDecoder struct {
	rate, channels int
	frames         int
	value          float32
	delay          int // packets held back until Flush
	failOn         map[int]bool

	n       int
	pending []*RawAudio
	closed  bool
}

func (d *fakeAudioDecoder) Decode(pkt *Packet) ([]*RawAudio, error) {
	i := d.n
	d.n++
	if d.failOn[i] {
		return nil, errFakeDecode
	}
	data := make([]float32, d.frames*d.channels)
	for j := range data {
		data[j] = d.value
	}
	d.pending = append(d.pending, &RawAudio{
		PTS: pkt.PTS,
		Buffer: &audio.Float32Buffer{
			Format: &audio.Format{NumChannels: d.channels, SampleRate: d.rate},
			Data:   data,
		},
	})
	if len(d.pending) <= d.delay {
		return nil, nil
	}
	out := d.pending[:len(d.pending)-d.delay]
	d.pending = append([]*RawAudio(nil), d.pending[len(d.pending)-d.delay:]...)
	return out, nil
}

func (d *fakeAudioDecoder) Flush() ([]*RawAudio, error) {
	out := d.pending
	d.pending = nil
	return out, nil
}

func (d *fakeAudioDecoder) Codec() AudioCodec   { return AudioCodecPCMFloat }
func (d *fakeAudioDecoder) Provider() Provider  { return ProviderGo }
func (d *fakeAudioDecoder) Stats() DecoderStats { return DecoderStats{FramesDecoded: uint64(d.n)} }
func (d *fakeAudioDecoder) Close() error        { d.closed = true; return nil }

// fakeDecoders hands out prepared decoders.
type fakeDecoders struct {
	video *fakeVideoDecoder
	audio *fakeAudioDecoder
}

func (f *fakeDecoders) SupportsVideo(VideoCodec) bool { return f.video != nil }
func (f *fakeDecoders) SupportsAudio(AudioCodec) bool { return f.audio != nil }

func (f *fakeDecoders) NewVideoDecoder(VideoDecoderConfig) (VideoDecoder, error) {
	return f.video, nil
}

func (f *fakeDecoders) NewAudioDecoder(AudioDecoderConfig) (AudioDecoder, error) {
	return f.audio, nil
}

// fakeSink captures the reader so tests drive the device callback by hand.
type fakeSink struct {
	caps    DeviceCapabilities
	openErr error

	mu      sync.Mutex
	src     io.Reader
	cfg     OutputConfig
	started bool
	closed  bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{caps: DeviceCapabilities{
		DefaultSampleRate: 48000,
		Channels:          []int{2},
		Formats:           []SampleFormat{SampleFormatF32LE},
	}}
}

func (s *fakeSink) Name() string                              { return "fake" }
func (s *fakeSink) Capabilities() (DeviceCapabilities, error) { return s.caps, nil }

func (s *fakeSink) Open(cfg OutputConfig, src io.Reader) (AudioStream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg, s.src = cfg, src
	return s, nil
}

func (s *fakeSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// pull simulates one device callback asking for frames sample frames.
func (s *fakeSink) pull(frames int) []byte {
	s.mu.Lock()
	src, cfg := s.src, s.cfg
	s.mu.Unlock()
	buf := make([]byte, frames*cfg.FrameSize())
	n, _ := src.Read(buf)
	return buf[:n]
}
