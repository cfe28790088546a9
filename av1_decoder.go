//go:build (darwin || linux) && !noav1

// AV1 decoding via libmedia_av1 (libaom).

package avplayer

// libmedia_av1 function pointers
var (
	mediaAV1DecoderCreate    func(threads int32) uint64
	mediaAV1DecoderDecode    func(decoder uint64, data uintptr, dataLen int32, outY, outU, outV, outYStride, outUVStride, outWidth, outHeight uintptr) int32
	mediaAV1DecoderFlush     func(decoder uint64, outY, outU, outV, outYStride, outUVStride, outWidth, outHeight uintptr) int32
	mediaAV1DecoderDestroy   func(decoder uint64)
	mediaAV1GetError         func() uintptr
	mediaAV1DecoderAvailable func() int32
)

var mediaAV1 = &nativeLib{
	name:   "media_av1",
	envVar: "MEDIA_AV1_LIB_PATH",
	sdkEnv: "MEDIA_SDK_LIB_PATH",
	bind: func(handle uintptr) error {
		if err := bindSymbols(handle, map[string]any{
			"media_av1_decoder_create":    &mediaAV1DecoderCreate,
			"media_av1_decoder_decode":    &mediaAV1DecoderDecode,
			"media_av1_decoder_destroy":   &mediaAV1DecoderDestroy,
			"media_av1_get_error":         &mediaAV1GetError,
			"media_av1_decoder_available": &mediaAV1DecoderAvailable,
		}); err != nil {
			return err
		}
		_ = bindSymbol(handle, &mediaAV1DecoderFlush, "media_av1_decoder_flush")
		return nil
	},
}

func getAV1Error() string {
	ptr := mediaAV1GetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

func av1API() *nativeVideoAPI {
	api := &nativeVideoAPI{
		codec:    VideoCodecAV1,
		provider: ProviderAOM,
		create:   func(threads int32) uint64 { return mediaAV1DecoderCreate(threads) },
		decode: func(handle uint64, data []byte, pic *nativePicture) int32 {
			y, u, v, ys, uvs, w, h := pic.outParams()
			return mediaAV1DecoderDecode(handle, dataPtr(data), int32(len(data)), y, u, v, ys, uvs, w, h)
		},
		destroy: func(handle uint64) { mediaAV1DecoderDestroy(handle) },
		lastErr: getAV1Error,
	}
	if mediaAV1DecoderFlush != nil {
		api.flush = func(handle uint64, pic *nativePicture) int32 {
			y, u, v, ys, uvs, w, h := pic.outParams()
			return mediaAV1DecoderFlush(handle, y, u, v, ys, uvs, w, h)
		}
	}
	return api
}

// IsAV1DecoderAvailable reports whether libmedia_av1 loaded with a decoder.
func IsAV1DecoderAvailable() bool {
	if mediaAV1.load() != nil {
		return false
	}
	return mediaAV1DecoderAvailable() != 0
}

// NewAV1Decoder creates a new AV1 decoder.
func NewAV1Decoder(config VideoDecoderConfig) (*NativeVideoDecoder, error) {
	if err := mediaAV1.load(); err != nil {
		return nil, err
	}
	return newNativeVideoDecoder(av1API(), config)
}

func init() {
	if IsAV1DecoderAvailable() {
		setProviderAvailable(ProviderAOM)
		registerVideoDecoder(VideoCodecAV1, ProviderAOM, func(config VideoDecoderConfig) (VideoDecoder, error) {
			return NewAV1Decoder(config)
		})
	}
}
