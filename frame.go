// Core packet, frame and sample types used across the player.
package avplayer

import "github.com/go-audio/audio"

// StreamKind tells audio packets from video packets.
type StreamKind int

const (
	StreamKindUnknown StreamKind = iota
	StreamKindVideo
	StreamKindAudio
)

func (k StreamKind) String() string {
	switch k {
	case StreamKindVideo:
		return "video"
	case StreamKindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Rational is a time base: one tick lasts Num/Den seconds.
type Rational struct {
	Num int64
	Den int64
}

// Seconds converts ticks to seconds.
func (r Rational) Seconds(ticks int64) float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(ticks) * float64(r.Num) / float64(r.Den)
}

// Packet is one compressed unit read from the container.
// Packets are created by the Demuxer and dropped by the decode worker that
// consumes them.
type Packet struct {
	Stream      StreamKind
	StreamIndex int    // container stream index
	Data        []byte // compressed payload
	PTS         int64  // presentation timestamp in stream time base ticks
	DTS         int64  // decode timestamp in stream time base ticks
	Keyframe    bool
}

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatRGBA32:
		return "RGBA32"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3 // Y, U, V
	case PixelFormatRGBA32:
		return 1
	default:
		return 0
	}
}

// RawFrame is a decoded picture before conversion.
// Planes are owned by the frame; decoders copy out of native memory.
type RawFrame struct {
	Data   [][]byte    // Plane data
	Stride []int       // Stride for each plane in bytes
	Width  int         // Frame width in pixels
	Height int         // Frame height in pixels
	Format PixelFormat // Pixel format
	PTS    int64       // Presentation timestamp in stream ticks
}

// Clone creates a deep copy of the frame.
func (f *RawFrame) Clone() *RawFrame {
	clone := &RawFrame{
		Data:   make([][]byte, len(f.Data)),
		Stride: make([]int, len(f.Stride)),
		Width:  f.Width,
		Height: f.Height,
		Format: f.Format,
		PTS:    f.PTS,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// NewI420Frame allocates a tightly packed I420 frame.
func NewI420Frame(width, height int) *RawFrame {
	uvW := (width + 1) / 2
	uvH := (height + 1) / 2
	return &RawFrame{
		Data: [][]byte{
			make([]byte, width*height),
			make([]byte, uvW*uvH),
			make([]byte, uvW*uvH),
		},
		Stride: []int{width, uvW, uvW},
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
	}
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	uvSize := ((width + 1) / 2) * ((height + 1) / 2)
	return width*height + uvSize*2
}

// VideoFrame is a presentation-ready picture: packed RGBA at the session's
// target size, stamped with its presentation time in seconds.
type VideoFrame struct {
	PTS    float64
	Pix    []byte // row-major RGBA, 4 bytes per pixel
	Width  int
	Height int
}

// RawAudio is decoded PCM at the source rate and channel count.
type RawAudio struct {
	PTS    int64 // stream ticks of the first sample
	Buffer *audio.Float32Buffer
}

// Frames returns the number of sample frames (samples per channel).
func (a *RawAudio) Frames() int {
	if a.Buffer == nil || a.Buffer.Format == nil || a.Buffer.Format.NumChannels == 0 {
		return 0
	}
	return len(a.Buffer.Data) / a.Buffer.Format.NumChannels
}

// AudioChunk is output-ready audio: interleaved float samples at the
// negotiated output channel count and rate.
type AudioChunk struct {
	PTS     float64
	Samples []float32
}
