//go:build (darwin || linux) && !noh264

// H.264 decoding via libmedia_h264 (OpenH264). Input is Annex-B; Matroska
// AVCC payloads are rewritten by the container before they get here.

package avplayer

// libmedia_h264 function pointers
var (
	mediaH264DecoderCreate    func(threads int32) uint64
	mediaH264DecoderDecode    func(decoder uint64, data uintptr, dataLen int32, outY, outU, outV, outYStride, outUVStride, outWidth, outHeight uintptr) int32
	mediaH264DecoderFlush     func(decoder uint64, outY, outU, outV, outYStride, outUVStride, outWidth, outHeight uintptr) int32
	mediaH264DecoderDestroy   func(decoder uint64)
	mediaH264GetError         func() uintptr
	mediaH264DecoderAvailable func() int32
)

var mediaH264 = &nativeLib{
	name:   "media_h264",
	envVar: "MEDIA_H264_LIB_PATH",
	sdkEnv: "MEDIA_SDK_LIB_PATH",
	bind: func(handle uintptr) error {
		if err := bindSymbols(handle, map[string]any{
			"media_h264_decoder_create":    &mediaH264DecoderCreate,
			"media_h264_decoder_decode":    &mediaH264DecoderDecode,
			"media_h264_decoder_destroy":   &mediaH264DecoderDestroy,
			"media_h264_get_error":         &mediaH264GetError,
			"media_h264_decoder_available": &mediaH264DecoderAvailable,
		}); err != nil {
			return err
		}
		_ = bindSymbol(handle, &mediaH264DecoderFlush, "media_h264_decoder_flush")
		return nil
	},
}

func getH264Error() string {
	ptr := mediaH264GetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

func h264API() *nativeVideoAPI {
	api := &nativeVideoAPI{
		codec:    VideoCodecH264,
		provider: ProviderOpenH264,
		create:   func(threads int32) uint64 { return mediaH264DecoderCreate(threads) },
		decode: func(handle uint64, data []byte, pic *nativePicture) int32 {
			y, u, v, ys, uvs, w, h := pic.outParams()
			return mediaH264DecoderDecode(handle, dataPtr(data), int32(len(data)), y, u, v, ys, uvs, w, h)
		},
		destroy: func(handle uint64) { mediaH264DecoderDestroy(handle) },
		lastErr: getH264Error,
	}
	if mediaH264DecoderFlush != nil {
		api.flush = func(handle uint64, pic *nativePicture) int32 {
			y, u, v, ys, uvs, w, h := pic.outParams()
			return mediaH264DecoderFlush(handle, y, u, v, ys, uvs, w, h)
		}
	}
	return api
}

// IsH264DecoderAvailable reports whether libmedia_h264 loaded with a decoder.
func IsH264DecoderAvailable() bool {
	if mediaH264.load() != nil {
		return false
	}
	return mediaH264DecoderAvailable() != 0
}

// NewH264Decoder creates a new H.264 decoder.
func NewH264Decoder(config VideoDecoderConfig) (*NativeVideoDecoder, error) {
	if err := mediaH264.load(); err != nil {
		return nil, err
	}
	return newNativeVideoDecoder(h264API(), config)
}

func init() {
	if IsH264DecoderAvailable() {
		setProviderAvailable(ProviderOpenH264)
		registerVideoDecoder(VideoCodecH264, ProviderOpenH264, func(config VideoDecoderConfig) (VideoDecoder, error) {
			return NewH264Decoder(config)
		})
	}
}
