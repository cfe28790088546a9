// Package avplayer plays local media files with audio-master A/V sync,
// decoding through native codec wrappers (libmedia_*, libstream_opus) and
// pure-Go fallbacks.
//
// Key pieces include:
//   - Play/Session: the entry point and the running playback
//   - Containers: Matroska/WebM and MPEG-TS demuxing
//   - Video/Audio decoders behind a provider-aware registry
//   - AudioRingBuffer and AudioClock: the lock-free hand-off to the device
//   - FramePresenter: picks the frame due at the audio clock
//   - AudioSink implementations for the default device (oto) and WAV files
//
// # Architecture
//
//	Demuxer -> video packets -> VideoDecodeWorker -> frames -> FramePresenter <- CurrentFrame
//	        -> audio packets -> AudioDecodeWorker -> chunks -> AudioBufferFiller -> AudioRingBuffer
//	AudioSink callback: AudioRingBuffer -> sample encoder -> device, advancing AudioClock
//
// Every hand-off is a bounded channel, so a slow consumer stalls its
// producer instead of growing memory. Time comes only from the number of
// audio frames the device has consumed; video follows it.
//
// # Native Libraries
//
// Bindings load the wrapper libraries with purego (CGO_ENABLED=0). Set
// MEDIA_SDK_LIB_PATH to the directory containing them, or the per-library
// MEDIA_VPX_LIB_PATH, MEDIA_H264_LIB_PATH, MEDIA_AV1_LIB_PATH and
// STREAM_OPUS_LIB_PATH. LPCM audio and uncompressed I420 video decode
// without any native library.
//
// # Build Tags
//
// Optional tags disable features:
//   - novpx, noopus, noh264, noav1: disable specific codecs
//
// # Supported Codecs
//
// Video: VP8/VP9 (libvpx), H.264 (OpenH264), AV1 (libaom), raw I420
// Audio: Opus (libopus), LPCM (integer and float)
// Availability depends on which native libraries are present at runtime.
package avplayer
