package avplayer

import (
	"fmt"
	"sync"
)

// VideoDecoderConfig configures a video decoder.
type VideoDecoderConfig struct {
	Codec    VideoCodec // Codec type
	Provider Provider   // Provider to use (ProviderAuto = library chooses)
	Threads  int        // Decoder threads (0 = auto)

	// Container-declared values; decoders may ignore them.
	Width        int
	Height       int
	CodecPrivate []byte
}

// AudioDecoderConfig configures an audio decoder.
type AudioDecoderConfig struct {
	Codec    AudioCodec
	Provider Provider

	SampleRate int
	Channels   int
	BitDepth   int  // LPCM only
	BigEndian  bool // LPCM only

	CodecPrivate []byte
}

// DecoderStats provides decoder statistics.
type DecoderStats struct {
	FramesDecoded    uint64
	KeyframesDecoded uint64
	BytesDecoded     uint64
	CorruptedFrames  uint64
}

// VideoDecoder turns compressed packets into raw pictures.
//
// Decode returns every frame the decoder has ready after consuming pkt,
// possibly none. Flush returns frames still buffered inside the decoder
// once input has ended. Frames carry the PTS of the packet they belong to.
type VideoDecoder interface {
	Decode(pkt *Packet) ([]*RawFrame, error)
	Flush() ([]*RawFrame, error)
	Codec() VideoCodec
	Provider() Provider
	Stats() DecoderStats
	Close() error
}

// AudioDecoder turns compressed packets into PCM.
type AudioDecoder interface {
	Decode(pkt *Packet) ([]*RawAudio, error)
	Flush() ([]*RawAudio, error)
	Codec() AudioCodec
	Provider() Provider
	Stats() DecoderStats
	Close() error
}

// DecoderFactory creates decoders for the streams a session plays.
type DecoderFactory interface {
	SupportsVideo(codec VideoCodec) bool
	SupportsAudio(codec AudioCodec) bool
	NewVideoDecoder(config VideoDecoderConfig) (VideoDecoder, error)
	NewAudioDecoder(config AudioDecoderConfig) (AudioDecoder, error)
}

type videoDecoderFactory func(VideoDecoderConfig) (VideoDecoder, error)
type audioDecoderFactory func(AudioDecoderConfig) (AudioDecoder, error)

type decoderRegistry struct {
	mu sync.RWMutex

	// Provider-aware registry: codec -> provider -> factory
	videoProviders map[VideoCodec]map[Provider]videoDecoderFactory
	audioProviders map[AudioCodec]map[Provider]audioDecoderFactory

	// Default provider per codec
	videoDefaults map[VideoCodec]Provider
	audioDefaults map[AudioCodec]Provider
}

func newDecoderRegistry() *decoderRegistry {
	return &decoderRegistry{
		videoProviders: make(map[VideoCodec]map[Provider]videoDecoderFactory),
		audioProviders: make(map[AudioCodec]map[Provider]audioDecoderFactory),
		videoDefaults:  make(map[VideoCodec]Provider),
		audioDefaults:  make(map[AudioCodec]Provider),
	}
}

var globalDecoderRegistry = newDecoderRegistry()

// Decoders returns the process-wide decoder registry. It is the default
// DecoderFactory for new sessions.
func Decoders() DecoderFactory { return globalDecoderRegistry }

// registerVideoDecoder registers a video decoder factory for a codec+provider.
func registerVideoDecoder(codec VideoCodec, provider Provider, factory videoDecoderFactory) {
	globalDecoderRegistry.registerVideo(codec, provider, factory)
}

// registerAudioDecoder registers an audio decoder factory for a codec+provider.
func registerAudioDecoder(codec AudioCodec, provider Provider, factory audioDecoderFactory) {
	globalDecoderRegistry.registerAudio(codec, provider, factory)
}

func (r *decoderRegistry) registerVideo(codec VideoCodec, provider Provider, factory videoDecoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.videoProviders[codec] == nil {
		r.videoProviders[codec] = make(map[Provider]videoDecoderFactory)
	}
	r.videoProviders[codec][provider] = factory

	// Set default: prefer BSD (permissive) license providers
	current, exists := r.videoDefaults[codec]
	if !exists || (provider.License().Permissive() && !current.License().Permissive()) {
		r.videoDefaults[codec] = provider
	}
}

func (r *decoderRegistry) registerAudio(codec AudioCodec, provider Provider, factory audioDecoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.audioProviders[codec] == nil {
		r.audioProviders[codec] = make(map[Provider]audioDecoderFactory)
	}
	r.audioProviders[codec][provider] = factory

	current, exists := r.audioDefaults[codec]
	if !exists || (provider.License().Permissive() && !current.License().Permissive()) {
		r.audioDefaults[codec] = provider
	}
}

// SetDefaultVideoDecoderProvider sets the default provider for a video codec.
func SetDefaultVideoDecoderProvider(codec VideoCodec, provider Provider) {
	globalDecoderRegistry.mu.Lock()
	defer globalDecoderRegistry.mu.Unlock()
	globalDecoderRegistry.videoDefaults[codec] = provider
}

// SetDefaultAudioDecoderProvider sets the default provider for an audio codec.
func SetDefaultAudioDecoderProvider(codec AudioCodec, provider Provider) {
	globalDecoderRegistry.mu.Lock()
	defer globalDecoderRegistry.mu.Unlock()
	globalDecoderRegistry.audioDefaults[codec] = provider
}

func (r *decoderRegistry) SupportsVideo(codec VideoCodec) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for p := range r.videoProviders[codec] {
		if p.Available() {
			return true
		}
	}
	return false
}

func (r *decoderRegistry) SupportsAudio(codec AudioCodec) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for p := range r.audioProviders[codec] {
		if p.Available() {
			return true
		}
	}
	return false
}

// NewVideoDecoder creates a video decoder.
func (r *decoderRegistry) NewVideoDecoder(config VideoDecoderConfig) (VideoDecoder, error) {
	r.mu.RLock()
	providers := r.videoProviders[config.Codec]
	p := config.Provider
	if p == ProviderAuto {
		p = r.videoDefaults[config.Codec]
	}
	factory, ok := providers[p]
	r.mu.RUnlock()

	if providers == nil {
		return nil, fmt.Errorf("%w: no providers for %s", ErrCodecNotSupported, config.Codec)
	}
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, config.Codec)
	}
	return factory(config)
}

// NewAudioDecoder creates an audio decoder.
func (r *decoderRegistry) NewAudioDecoder(config AudioDecoderConfig) (AudioDecoder, error) {
	r.mu.RLock()
	providers := r.audioProviders[config.Codec]
	p := config.Provider
	if p == ProviderAuto {
		p = r.audioDefaults[config.Codec]
	}
	factory, ok := providers[p]
	r.mu.RUnlock()

	if providers == nil {
		return nil, fmt.Errorf("%w: no providers for %s", ErrCodecNotSupported, config.Codec)
	}
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, config.Codec)
	}
	return factory(config)
}

// VideoDecoderProviders returns available providers for a video codec.
func VideoDecoderProviders(codec VideoCodec) []Provider {
	globalDecoderRegistry.mu.RLock()
	defer globalDecoderRegistry.mu.RUnlock()

	providers := globalDecoderRegistry.videoProviders[codec]
	result := make([]Provider, 0, len(providers))
	for p := range providers {
		if p.Available() {
			result = append(result, p)
		}
	}
	return result
}

// AudioDecoderProviders returns available providers for an audio codec.
func AudioDecoderProviders(codec AudioCodec) []Provider {
	globalDecoderRegistry.mu.RLock()
	defer globalDecoderRegistry.mu.RUnlock()

	providers := globalDecoderRegistry.audioProviders[codec]
	result := make([]Provider, 0, len(providers))
	for p := range providers {
		if p.Available() {
			result = append(result, p)
		}
	}
	return result
}
