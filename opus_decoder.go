//go:build (darwin || linux) && !noopus

// Opus decoding via libstream_opus (libopus).

package avplayer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/go-audio/audio"
)

// libstream_opus function pointers
var (
	streamOpusDecoderCreate      func(sampleRate, channels int32) uint64
	streamOpusDecoderDecodeFloat func(decoder uint64, data uintptr, dataLen int32, pcm uintptr, frameSize, decodeFEC int32) int32
	streamOpusDecoderDestroy     func(decoder uint64)
	streamOpusGetError           func() uintptr
)

var streamOpus = &nativeLib{
	name:   "stream_opus",
	envVar: "STREAM_OPUS_LIB_PATH",
	sdkEnv: "STREAM_SDK_LIB_PATH",
	bind: func(handle uintptr) error {
		return bindSymbols(handle, map[string]any{
			"stream_opus_decoder_create":       &streamOpusDecoderCreate,
			"stream_opus_decoder_decode_float": &streamOpusDecoderDecodeFloat,
			"stream_opus_decoder_destroy":      &streamOpusDecoderDestroy,
			"stream_opus_get_error":            &streamOpusGetError,
		})
	},
}

func getOpusError() string {
	ptr := streamOpusGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

// OpusDecoder implements AudioDecoder using libstream_opus via purego.
type OpusDecoder struct {
	handle   uint64
	channels int
	format   *audio.Format
	pcm      []float32

	// Samples per channel still to discard from the stream start (pre-skip).
	skip int

	stats   DecoderStats
	statsMu sync.Mutex
	mu      sync.Mutex
}

// NewOpusDecoder creates a new Opus decoder producing 48kHz float PCM.
func NewOpusDecoder(config AudioDecoderConfig) (*OpusDecoder, error) {
	if err := streamOpus.load(); err != nil {
		return nil, fmt.Errorf("Opus decoder not available: %w", err)
	}

	channels := config.Channels
	skip := 0
	if ch, preSkip, ok := parseOpusHead(config.CodecPrivate); ok {
		channels = ch
		skip = preSkip
	}
	if channels <= 0 {
		channels = 2
	}
	if channels > 2 {
		return nil, fmt.Errorf("Opus supports max 2 channels, got %d", channels)
	}

	handle := streamOpusDecoderCreate(opusSampleRate, int32(channels))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create Opus decoder: %s", getOpusError())
	}

	return &OpusDecoder{
		handle:   handle,
		channels: channels,
		format:   &audio.Format{NumChannels: channels, SampleRate: opusSampleRate},
		pcm:      make([]float32, opusMaxPacketSamples*channels),
		skip:     skip,
	}, nil
}

// Decode implements AudioDecoder.
func (d *OpusDecoder) Decode(pkt *Packet) ([]*RawAudio, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return nil, ErrDecoderClosed
	}
	if len(pkt.Data) == 0 {
		return nil, errors.New("empty Opus packet")
	}

	result := streamOpusDecoderDecodeFloat(
		d.handle,
		dataPtr(pkt.Data),
		int32(len(pkt.Data)),
		uintptr(unsafe.Pointer(&d.pcm[0])),
		opusMaxPacketSamples,
		0, // No FEC decoding
	)
	runtime.KeepAlive(pkt.Data)

	if result < 0 {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return nil, fmt.Errorf("decode failed: %s", getOpusError())
	}

	frames := int(result)
	start := 0
	if d.skip > 0 {
		start = min(d.skip, frames)
		d.skip -= start
	}

	d.statsMu.Lock()
	d.stats.FramesDecoded++
	d.stats.BytesDecoded += uint64(len(pkt.Data))
	d.statsMu.Unlock()

	if start == frames {
		return nil, nil
	}
	data := make([]float32, (frames-start)*d.channels)
	copy(data, d.pcm[start*d.channels:frames*d.channels])

	return []*RawAudio{{
		PTS:    pkt.PTS,
		Buffer: &audio.Float32Buffer{Format: d.format, Data: data, SourceBitDepth: 32},
	}}, nil
}

// Flush implements AudioDecoder. libopus keeps no output backlog.
func (d *OpusDecoder) Flush() ([]*RawAudio, error) { return nil, nil }

// Codec implements AudioDecoder.
func (d *OpusDecoder) Codec() AudioCodec { return AudioCodecOpus }

// Provider implements AudioDecoder.
func (d *OpusDecoder) Provider() Provider { return ProviderLibopus }

// Stats implements AudioDecoder.
func (d *OpusDecoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Close implements AudioDecoder.
func (d *OpusDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != 0 {
		streamOpusDecoderDestroy(d.handle)
		d.handle = 0
	}
	return nil
}

// IsOpusAvailable reports whether libstream_opus loaded.
func IsOpusAvailable() bool {
	return streamOpus.load() == nil
}

func init() {
	if IsOpusAvailable() {
		setProviderAvailable(ProviderLibopus)
		registerAudioDecoder(AudioCodecOpus, ProviderLibopus, func(config AudioDecoderConfig) (AudioDecoder, error) {
			return NewOpusDecoder(config)
		})
	}
}
