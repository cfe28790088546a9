package avplayer

import "errors"

// Startup errors. These are returned from Play before any stage runs.
var (
	ErrUnsupportedContainer    = errors.New("unsupported container format")
	ErrNoVideoStream           = errors.New("no decodable video stream")
	ErrNoAudioStream           = errors.New("no decodable audio stream")
	ErrNoAudioDevice           = errors.New("no audio output device available")
	ErrUnsupportedDeviceConfig = errors.New("audio device reports no usable configuration")
	ErrInvalidOptions          = errors.New("invalid options")
)

// Codec and runtime errors.
var (
	ErrBufferTooSmall    = errors.New("buffer too small")
	ErrProviderNotFound  = errors.New("provider not available")
	ErrCodecNotSupported = errors.New("codec not supported by provider")
	ErrDecoderClosed     = errors.New("decoder closed")
	ErrSessionClosed     = errors.New("session closed")
)
