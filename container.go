package avplayer

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// StreamInfo describes one elementary stream as declared by the container.
type StreamInfo struct {
	Index   int
	Kind    StreamKind
	CodecID string // container-level codec identifier

	VideoCodec VideoCodec
	AudioCodec AudioCodec

	TimeBase Rational

	// Video
	Width  int
	Height int

	// Audio
	SampleRate int
	Channels   int
	BitDepth   int
	BigEndian  bool

	CodecPrivate []byte
}

// MimeType returns the stream codec's MIME type, or "" when unknown.
func (s StreamInfo) MimeType() string {
	switch s.Kind {
	case StreamKindVideo:
		return s.VideoCodec.MimeType()
	case StreamKindAudio:
		return s.AudioCodec.MimeType()
	default:
		return ""
	}
}

func (s StreamInfo) String() string {
	switch s.Kind {
	case StreamKindVideo:
		return fmt.Sprintf("#%d video %s (%s) %dx%d", s.Index, s.VideoCodec, s.MimeType(), s.Width, s.Height)
	case StreamKindAudio:
		return fmt.Sprintf("#%d audio %s (%s) %d Hz %d ch", s.Index, s.AudioCodec, s.MimeType(), s.SampleRate, s.Channels)
	default:
		return fmt.Sprintf("#%d %s %s", s.Index, s.Kind, s.CodecID)
	}
}

// Container reads packets from a media file in container order.
type Container interface {
	// Format returns a short name of the container format.
	Format() string
	// Streams lists every stream in the file.
	Streams() []StreamInfo
	// ReadPacket returns the next packet, or io.EOF at end of input.
	ReadPacket() (*Packet, error)
	Close() error
}

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

const (
	tsPacketSize = 188
	tsSyncByte   = 0x47
)

// OpenContainer opens path and picks a demuxer from the file signature.
func OpenContainer(path string) (Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	head := make([]byte, tsPacketSize+1)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		f.Close()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	head = head[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	switch {
	case bytes.HasPrefix(head, ebmlMagic):
		c, err := newMatroskaContainer(f)
		if err != nil {
			return nil, err
		}
		return c, nil
	case len(head) > tsPacketSize && head[0] == tsSyncByte && head[tsPacketSize] == tsSyncByte:
		c, err := newMPEGTSContainer(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return c, nil
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContainer, path)
	}
}

// SelectStreams picks the best video and audio stream.
//
// Streams the decoders cannot handle are never chosen. Among the rest, video
// prefers the larger picture and audio prefers more channels, then the higher
// sample rate; the lower index wins ties.
func SelectStreams(streams []StreamInfo, decoders DecoderFactory) (video, audio StreamInfo, err error) {
	bestVideo, bestAudio := -1, -1
	for i, s := range streams {
		switch s.Kind {
		case StreamKindVideo:
			if s.VideoCodec == VideoCodecUnknown || !decoders.SupportsVideo(s.VideoCodec) {
				continue
			}
			if bestVideo < 0 || betterVideo(s, streams[bestVideo]) {
				bestVideo = i
			}
		case StreamKindAudio:
			if s.AudioCodec == AudioCodecUnknown || !decoders.SupportsAudio(s.AudioCodec) {
				continue
			}
			if bestAudio < 0 || betterAudio(s, streams[bestAudio]) {
				bestAudio = i
			}
		}
	}

	if bestVideo < 0 {
		return video, audio, ErrNoVideoStream
	}
	if bestAudio < 0 {
		return video, audio, ErrNoAudioStream
	}
	return streams[bestVideo], streams[bestAudio], nil
}

func betterVideo(a, b StreamInfo) bool {
	return a.Width*a.Height > b.Width*b.Height
}

func betterAudio(a, b StreamInfo) bool {
	if a.Channels != b.Channels {
		return a.Channels > b.Channels
	}
	return a.SampleRate > b.SampleRate
}
