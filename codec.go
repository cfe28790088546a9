package avplayer

import "github.com/pion/webrtc/v4"

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
	VideoCodecH264
	VideoCodecAV1
	VideoCodecRawI420 // uncompressed 8-bit 4:2:0 planar
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "VP8"
	case VideoCodecVP9:
		return "VP9"
	case VideoCodecH264:
		return "H264"
	case VideoCodecAV1:
		return "AV1"
	case VideoCodecRawI420:
		return "I420"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c VideoCodec) MimeType() string {
	switch c {
	case VideoCodecVP8:
		return webrtc.MimeTypeVP8
	case VideoCodecVP9:
		return webrtc.MimeTypeVP9
	case VideoCodecH264:
		return webrtc.MimeTypeH264
	case VideoCodecAV1:
		return webrtc.MimeTypeAV1
	case VideoCodecRawI420:
		return "video/raw"
	default:
		return ""
	}
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecOpus
	AudioCodecPCMInt   // linear PCM, signed integer (unsigned for 8-bit)
	AudioCodecPCMFloat // linear PCM, IEEE float
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecOpus:
		return "Opus"
	case AudioCodecPCMInt:
		return "PCM"
	case AudioCodecPCMFloat:
		return "PCM-F"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c AudioCodec) MimeType() string {
	switch c {
	case AudioCodecOpus:
		return webrtc.MimeTypeOpus
	case AudioCodecPCMInt:
		return "audio/L16"
	case AudioCodecPCMFloat:
		return "audio/x-float"
	default:
		return ""
	}
}

// ClockRate returns the native decode rate for this codec, or 0 when the
// rate is taken from the container.
func (c AudioCodec) ClockRate() uint32 {
	switch c {
	case AudioCodecOpus:
		return 48000
	default:
		return 0
	}
}

// Matroska codec identifiers.
const (
	mkvCodecVP8          = "V_VP8"
	mkvCodecVP9          = "V_VP9"
	mkvCodecAV1          = "V_AV1"
	mkvCodecH264         = "V_MPEG4/ISO/AVC"
	mkvCodecUncompressed = "V_UNCOMPRESSED"
	mkvCodecOpus         = "A_OPUS"
	mkvCodecPCMLittle    = "A_PCM/INT/LIT"
	mkvCodecPCMBig       = "A_PCM/INT/BIG"
	mkvCodecPCMFloat     = "A_PCM/FLOAT/IEEE"
)

// videoCodecFromMatroska maps a Matroska CodecID to a VideoCodec.
func videoCodecFromMatroska(id string) VideoCodec {
	switch id {
	case mkvCodecVP8:
		return VideoCodecVP8
	case mkvCodecVP9:
		return VideoCodecVP9
	case mkvCodecAV1:
		return VideoCodecAV1
	case mkvCodecH264:
		return VideoCodecH264
	case mkvCodecUncompressed:
		return VideoCodecRawI420
	default:
		return VideoCodecUnknown
	}
}

// audioCodecFromMatroska maps a Matroska CodecID to an AudioCodec and
// reports whether samples are big-endian.
func audioCodecFromMatroska(id string) (AudioCodec, bool) {
	switch id {
	case mkvCodecOpus:
		return AudioCodecOpus, false
	case mkvCodecPCMLittle:
		return AudioCodecPCMInt, false
	case mkvCodecPCMBig:
		return AudioCodecPCMInt, true
	case mkvCodecPCMFloat:
		return AudioCodecPCMFloat, false
	default:
		return AudioCodecUnknown, false
	}
}
