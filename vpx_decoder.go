//go:build (darwin || linux) && !novpx

// VP8/VP9 decoding via libmedia_vpx, a thin primitive-only wrapper around
// libvpx.
//
// Library locations checked (in order):
//   - MEDIA_VPX_LIB_PATH environment variable
//   - MEDIA_SDK_LIB_PATH environment variable (directory)
//   - next to the executable, then build/ under the module root
//   - System library paths

package avplayer

import (
	"unsafe"
)

// libmedia_vpx function pointers
var (
	mediaVPXDecoderCreate   func(codec, threads int32) uint64
	mediaVPXDecoderDecodeV2 func(decoder uint64, data uintptr, dataLen int32, resultOut uintptr) int32
	mediaVPXDecoderFlushV2  func(decoder uint64, resultOut uintptr) int32
	mediaVPXDecoderDestroy  func(decoder uint64)

	mediaVPXGetError       func() uintptr
	mediaVPXCodecAvailable func(codec int32) int32
)

// Constants from media_vpx.h
const (
	mediaVPXCodecVP8 = 0
	mediaVPXCodecVP9 = 1
)

var mediaVPX = &nativeLib{
	name:   "media_vpx",
	envVar: "MEDIA_VPX_LIB_PATH",
	sdkEnv: "MEDIA_SDK_LIB_PATH",
	bind: func(handle uintptr) error {
		if err := bindSymbols(handle, map[string]any{
			"media_vpx_decoder_create":    &mediaVPXDecoderCreate,
			"media_vpx_decoder_decode_v2": &mediaVPXDecoderDecodeV2,
			"media_vpx_decoder_destroy":   &mediaVPXDecoderDestroy,
			"media_vpx_get_error":         &mediaVPXGetError,
			"media_vpx_codec_available":   &mediaVPXCodecAvailable,
		}); err != nil {
			return err
		}
		// Optional; older wrappers have no flush entry point and leave it nil.
		_ = bindSymbol(handle, &mediaVPXDecoderFlushV2, "media_vpx_decoder_flush_v2")
		return nil
	},
}

func getVPXError() string {
	ptr := mediaVPXGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

func vpxAPI(codec VideoCodec, native int32) *nativeVideoAPI {
	api := &nativeVideoAPI{
		codec:    codec,
		provider: ProviderLibvpx,
		create: func(threads int32) uint64 {
			return mediaVPXDecoderCreate(native, threads)
		},
		decode: func(handle uint64, data []byte, pic *nativePicture) int32 {
			return mediaVPXDecoderDecodeV2(handle, dataPtr(data), int32(len(data)), uintptr(unsafe.Pointer(pic)))
		},
		destroy: func(handle uint64) { mediaVPXDecoderDestroy(handle) },
		lastErr: getVPXError,
	}
	if mediaVPXDecoderFlushV2 != nil {
		api.flush = func(handle uint64, pic *nativePicture) int32 {
			return mediaVPXDecoderFlushV2(handle, uintptr(unsafe.Pointer(pic)))
		}
	}
	return api
}

// IsVPXAvailable reports whether libmedia_vpx loaded and decodes codec.
func IsVPXAvailable(codec VideoCodec) bool {
	if mediaVPX.load() != nil {
		return false
	}
	switch codec {
	case VideoCodecVP8:
		return mediaVPXCodecAvailable(mediaVPXCodecVP8) != 0
	case VideoCodecVP9:
		return mediaVPXCodecAvailable(mediaVPXCodecVP9) != 0
	default:
		return false
	}
}

// NewVP8Decoder creates a new VP8 decoder.
func NewVP8Decoder(config VideoDecoderConfig) (*NativeVideoDecoder, error) {
	if err := mediaVPX.load(); err != nil {
		return nil, err
	}
	return newNativeVideoDecoder(vpxAPI(VideoCodecVP8, mediaVPXCodecVP8), config)
}

// NewVP9Decoder creates a new VP9 decoder.
func NewVP9Decoder(config VideoDecoderConfig) (*NativeVideoDecoder, error) {
	if err := mediaVPX.load(); err != nil {
		return nil, err
	}
	return newNativeVideoDecoder(vpxAPI(VideoCodecVP9, mediaVPXCodecVP9), config)
}

// Register VP8/VP9 decoders (libvpx)
func init() {
	if IsVPXAvailable(VideoCodecVP8) {
		setProviderAvailable(ProviderLibvpx)
		registerVideoDecoder(VideoCodecVP8, ProviderLibvpx, func(config VideoDecoderConfig) (VideoDecoder, error) {
			return NewVP8Decoder(config)
		})
	}
	if IsVPXAvailable(VideoCodecVP9) {
		setProviderAvailable(ProviderLibvpx)
		registerVideoDecoder(VideoCodecVP9, ProviderLibvpx, func(config VideoDecoderConfig) (VideoDecoder, error) {
			return NewVP9Decoder(config)
		})
	}
}
