package avplayer

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/go-audio/audio"
)

// PCMDecoder converts linear PCM payloads to float samples.
type PCMDecoder struct {
	config   AudioDecoderConfig
	format   *audio.Format
	order    binary.ByteOrder
	sampleSz int

	stats   DecoderStats
	statsMu sync.Mutex
}

// NewPCMDecoder creates a decoder for integer (8/16/24/32-bit) or float
// (32/64-bit) PCM.
func NewPCMDecoder(config AudioDecoderConfig) (*PCMDecoder, error) {
	if config.SampleRate <= 0 || config.Channels <= 0 {
		return nil, fmt.Errorf("invalid PCM format: %d Hz, %d channels", config.SampleRate, config.Channels)
	}
	bits := config.BitDepth
	if bits == 0 {
		bits = 16
		if config.Codec == AudioCodecPCMFloat {
			bits = 32
		}
	}

	switch config.Codec {
	case AudioCodecPCMInt:
		if bits != 8 && bits != 16 && bits != 24 && bits != 32 {
			return nil, fmt.Errorf("unsupported PCM bit depth: %d", bits)
		}
	case AudioCodecPCMFloat:
		if bits != 32 && bits != 64 {
			return nil, fmt.Errorf("unsupported float PCM bit depth: %d", bits)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrCodecNotSupported, config.Codec)
	}
	config.BitDepth = bits

	var order binary.ByteOrder = binary.LittleEndian
	if config.BigEndian {
		order = binary.BigEndian
	}

	return &PCMDecoder{
		config:   config,
		format:   &audio.Format{NumChannels: config.Channels, SampleRate: config.SampleRate},
		order:    order,
		sampleSz: bits / 8,
	}, nil
}

// Decode implements AudioDecoder.
func (d *PCMDecoder) Decode(pkt *Packet) ([]*RawAudio, error) {
	frameSz := d.sampleSz * d.format.NumChannels
	if len(pkt.Data) == 0 || len(pkt.Data)%frameSz != 0 {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return nil, fmt.Errorf("PCM payload of %d bytes is not a whole number of %d-byte frames", len(pkt.Data), frameSz)
	}

	n := len(pkt.Data) / d.sampleSz
	out := make([]float32, n)
	for i := range out {
		out[i] = d.sample(pkt.Data[i*d.sampleSz:])
	}

	d.statsMu.Lock()
	d.stats.FramesDecoded++
	d.stats.BytesDecoded += uint64(len(pkt.Data))
	d.statsMu.Unlock()

	return []*RawAudio{{
		PTS: pkt.PTS,
		Buffer: &audio.Float32Buffer{
			Format:         d.format,
			Data:           out,
			SourceBitDepth: d.config.BitDepth,
		},
	}}, nil
}

func (d *PCMDecoder) sample(b []byte) float32 {
	if d.config.Codec == AudioCodecPCMFloat {
		if d.sampleSz == 8 {
			return float32(math.Float64frombits(d.order.Uint64(b)))
		}
		return math.Float32frombits(d.order.Uint32(b))
	}

	switch d.sampleSz {
	case 1:
		// 8-bit PCM is unsigned.
		return float32(int(b[0])-128) / 128
	case 2:
		return float32(int16(d.order.Uint16(b))) / 32768
	case 3:
		var v int32
		if d.config.BigEndian {
			v = int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
		} else {
			v = int32(b[2])<<16 | int32(b[1])<<8 | int32(b[0])
		}
		v = v << 8 >> 8 // sign-extend
		return float32(v) / 8388608
	default:
		return float32(float64(int32(d.order.Uint32(b))) / 2147483648)
	}
}

// Flush implements AudioDecoder. PCM holds no state between packets.
func (d *PCMDecoder) Flush() ([]*RawAudio, error) { return nil, nil }

// Codec implements AudioDecoder.
func (d *PCMDecoder) Codec() AudioCodec { return d.config.Codec }

// Provider implements AudioDecoder.
func (d *PCMDecoder) Provider() Provider { return ProviderGo }

// Stats implements AudioDecoder.
func (d *PCMDecoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Close implements AudioDecoder.
func (d *PCMDecoder) Close() error { return nil }

// RawVideoDecoder unpacks uncompressed I420 pictures.
type RawVideoDecoder struct {
	width, height int

	stats   DecoderStats
	statsMu sync.Mutex
}

// NewRawVideoDecoder creates a decoder for tightly packed I420 payloads of
// the declared size.
func NewRawVideoDecoder(config VideoDecoderConfig) (*RawVideoDecoder, error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("raw video needs declared dimensions, got %dx%d", config.Width, config.Height)
	}
	return &RawVideoDecoder{width: config.Width, height: config.Height}, nil
}

// Decode implements VideoDecoder.
func (d *RawVideoDecoder) Decode(pkt *Packet) ([]*RawFrame, error) {
	if len(pkt.Data) != I420Size(d.width, d.height) {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return nil, fmt.Errorf("raw frame is %d bytes, want %d for %dx%d",
			len(pkt.Data), I420Size(d.width, d.height), d.width, d.height)
	}

	frame := NewI420Frame(d.width, d.height)
	off := 0
	for _, plane := range frame.Data {
		off += copy(plane, pkt.Data[off:])
	}
	frame.PTS = pkt.PTS

	d.statsMu.Lock()
	d.stats.FramesDecoded++
	d.stats.KeyframesDecoded++
	d.stats.BytesDecoded += uint64(len(pkt.Data))
	d.statsMu.Unlock()

	return []*RawFrame{frame}, nil
}

// Flush implements VideoDecoder.
func (d *RawVideoDecoder) Flush() ([]*RawFrame, error) { return nil, nil }

// Codec implements VideoDecoder.
func (d *RawVideoDecoder) Codec() VideoCodec { return VideoCodecRawI420 }

// Provider implements VideoDecoder.
func (d *RawVideoDecoder) Provider() Provider { return ProviderGo }

// Stats implements VideoDecoder.
func (d *RawVideoDecoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Close implements VideoDecoder.
func (d *RawVideoDecoder) Close() error { return nil }

// Register pure Go decoders
func init() {
	setProviderAvailable(ProviderGo)
	registerAudioDecoder(AudioCodecPCMInt, ProviderGo, func(config AudioDecoderConfig) (AudioDecoder, error) {
		return NewPCMDecoder(config)
	})
	registerAudioDecoder(AudioCodecPCMFloat, ProviderGo, func(config AudioDecoderConfig) (AudioDecoder, error) {
		return NewPCMDecoder(config)
	})
	registerVideoDecoder(VideoCodecRawI420, ProviderGo, func(config VideoDecoderConfig) (VideoDecoder, error) {
		return NewRawVideoDecoder(config)
	})
}
