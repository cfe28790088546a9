package avplayer

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// doneCloser signals when the block writer releases the file.
type doneCloser struct {
	*os.File
	done chan struct{}
}

func (c *doneCloser) Close() error {
	defer close(c.done)
	return c.File.Close()
}

// testMedia describes a small uncompressed clip.
type testMedia struct {
	width, height int
	frameMs       []int64 // video block timestamps
	audioMs       []int64 // audio block timestamps, 20ms of audio each
	noAudio       bool
	sampleValue   int16
}

const (
	testAudioRate     = 48000
	testAudioChannels = 2
	testAudioBlockMs  = 20
)

// writeTestWebM muxes raw I420 video and 16-bit PCM audio into a WebM file.
// Video frame i has every luma sample set to i.
func writeTestWebM(t *testing.T, m testMedia) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.webm")
	f, err := os.Create(path)
	require.NoError(t, err)
	wc := &doneCloser{File: f, done: make(chan struct{})}

	tracks := []webm.TrackEntry{{
		Name:        "Video",
		TrackNumber: 1,
		TrackUID:    1,
		CodecID:     mkvCodecUncompressed,
		TrackType:   mkvTrackVideo,
		Video: &webm.Video{
			PixelWidth:  uint64(m.width),
			PixelHeight: uint64(m.height),
		},
	}}
	if !m.noAudio {
		tracks = append(tracks, webm.TrackEntry{
			Name:        "Audio",
			TrackNumber: 2,
			TrackUID:    2,
			CodecID:     mkvCodecPCMLittle,
			TrackType:   mkvTrackAudio,
			Audio: &webm.Audio{
				SamplingFrequency: testAudioRate,
				Channels:          testAudioChannels,
			},
		})
	}

	writers, err := webm.NewSimpleBlockWriter(wc, tracks, mkvcore.WithOnFatalHandler(func(err error) {
		t.Errorf("webm writer: %v", err)
	}))
	require.NoError(t, err)

	var block []byte
	if !m.noAudio {
		frames := testAudioRate * testAudioBlockMs / 1000
		block = make([]byte, frames*testAudioChannels*2)
		for j := 0; j < len(block); j += 2 {
			binary.LittleEndian.PutUint16(block[j:], uint16(m.sampleValue))
		}
	}

	// Interleave in timestamp order, as a muxer would.
	vi, ai := 0, 0
	for vi < len(m.frameMs) || (!m.noAudio && ai < len(m.audioMs)) {
		useVideo := m.noAudio || ai >= len(m.audioMs) ||
			(vi < len(m.frameMs) && m.frameMs[vi] <= m.audioMs[ai])
		if useVideo {
			frame := make([]byte, I420Size(m.width, m.height))
			for j := 0; j < m.width*m.height; j++ {
				frame[j] = byte(vi)
			}
			_, err := writers[0].Write(true, m.frameMs[vi], frame)
			require.NoError(t, err)
			vi++
			continue
		}
		_, err := writers[1].Write(true, m.audioMs[ai], block)
		require.NoError(t, err)
		ai++
	}

	for _, w := range writers {
		require.NoError(t, w.Close())
	}
	<-wc.done
	return path
}

func readAllPackets(t *testing.T, c Container) []*Packet {
	t.Helper()
	var pkts []*Packet
	for {
		p, err := c.ReadPacket()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return pkts
		}
		pkts = append(pkts, p)
	}
}

func TestMatroskaContainer_ReadsTracksAndBlocks(t *testing.T) {
	path := writeTestWebM(t, testMedia{
		width: 4, height: 4,
		frameMs:     []int64{0, 40, 80},
		audioMs:     []int64{0, 20, 40, 60, 80},
		sampleValue: 16384,
	})

	c, err := OpenContainer(path)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "webm", c.Format())
	streams := c.Streams()
	require.Len(t, streams, 2)

	v, a := streams[0], streams[1]
	assert.Equal(t, StreamKindVideo, v.Kind)
	assert.Equal(t, VideoCodecRawI420, v.VideoCodec)
	assert.Equal(t, 4, v.Width)
	assert.Equal(t, 4, v.Height)
	assert.Equal(t, Rational{Num: 1000000, Den: 1000000000}, v.TimeBase)

	assert.Equal(t, StreamKindAudio, a.Kind)
	assert.Equal(t, AudioCodecPCMInt, a.AudioCodec)
	assert.False(t, a.BigEndian)
	assert.Equal(t, testAudioRate, a.SampleRate)
	assert.Equal(t, testAudioChannels, a.Channels)
	assert.Equal(t, "video/raw", v.MimeType())
	assert.Equal(t, "audio/L16", a.MimeType())

	var vPTS, aPTS []int64
	for _, p := range readAllPackets(t, c) {
		switch p.StreamIndex {
		case 0:
			assert.Equal(t, StreamKindVideo, p.Stream)
			assert.Len(t, p.Data, I420Size(4, 4))
			assert.Equal(t, byte(len(vPTS)), p.Data[0])
			vPTS = append(vPTS, p.PTS)
		case 1:
			assert.Equal(t, StreamKindAudio, p.Stream)
			assert.True(t, p.Keyframe)
			aPTS = append(aPTS, p.PTS)
		default:
			t.Fatalf("unexpected stream %d", p.StreamIndex)
		}
	}
	assert.Equal(t, []int64{0, 40, 80}, vPTS)
	assert.Equal(t, []int64{0, 20, 40, 60, 80}, aPTS)
}

// countingFile counts bytes read from the underlying file.
type countingFile struct {
	*os.File
	n      atomic.Int64
	closed atomic.Bool
}

func (f *countingFile) Read(p []byte) (int, error) {
	n, err := f.File.Read(p)
	f.n.Add(int64(n))
	return n, err
}

func (f *countingFile) Close() error {
	f.closed.Store(true)
	return f.File.Close()
}

func TestMatroskaContainer_StreamsClusters(t *testing.T) {
	frameMs := make([]int64, 300)
	for i := range frameMs {
		frameMs[i] = int64(i * 40)
	}
	path := writeTestWebM(t, testMedia{width: 64, height: 64, frameMs: frameMs, noAudio: true})
	fi, err := os.Stat(path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	cf := &countingFile{File: f}

	c, err := newMatroskaContainer(cf)
	require.NoError(t, err)
	require.Len(t, c.Streams(), 1)

	for i := 0; i < 3; i++ {
		p, err := c.ReadPacket()
		require.NoError(t, err)
		assert.Equal(t, frameMs[i], p.PTS)
		assert.Equal(t, byte(i), p.Data[0])
	}
	assert.Less(t, cf.n.Load(), fi.Size()/4, "read %d of %d bytes for three frames", cf.n.Load(), fi.Size())
	assert.False(t, cf.closed.Load(), "file stays open while packets are read")

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("close blocked mid-stream")
	}
	assert.True(t, cf.closed.Load())
}

func TestOpenContainer_RejectsUnknownFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("definitely not media"), 0o644))

	_, err := OpenContainer(path)
	assert.ErrorIs(t, err, ErrUnsupportedContainer)

	_, err = OpenContainer(filepath.Join(t.TempDir(), "missing.webm"))
	assert.Error(t, err)
}

func TestSelectStreams(t *testing.T) {
	small := StreamInfo{Index: 0, Kind: StreamKindVideo, VideoCodec: VideoCodecRawI420, Width: 320, Height: 240}
	large := StreamInfo{Index: 1, Kind: StreamKindVideo, VideoCodec: VideoCodecRawI420, Width: 1280, Height: 720}
	unknownVideo := StreamInfo{Index: 2, Kind: StreamKindVideo, CodecID: "V_THEORA", Width: 3840, Height: 2160}
	mono := StreamInfo{Index: 3, Kind: StreamKindAudio, AudioCodec: AudioCodecPCMInt, SampleRate: 48000, Channels: 1}
	stereo := StreamInfo{Index: 4, Kind: StreamKindAudio, AudioCodec: AudioCodecPCMInt, SampleRate: 44100, Channels: 2}
	stereoHi := StreamInfo{Index: 5, Kind: StreamKindAudio, AudioCodec: AudioCodecPCMFloat, SampleRate: 96000, Channels: 2}

	decoders := Decoders()

	video, audio, err := SelectStreams([]StreamInfo{small, large, unknownVideo, mono, stereo, stereoHi}, decoders)
	require.NoError(t, err)
	assert.Equal(t, 1, video.Index)
	assert.Equal(t, 5, audio.Index)

	_, _, err = SelectStreams([]StreamInfo{unknownVideo, mono}, decoders)
	assert.ErrorIs(t, err, ErrNoVideoStream)

	_, _, err = SelectStreams([]StreamInfo{small}, decoders)
	assert.ErrorIs(t, err, ErrNoAudioStream)

	// Ties keep the first stream.
	twin := small
	twin.Index = 9
	video, _, err = SelectStreams([]StreamInfo{small, twin, mono}, decoders)
	require.NoError(t, err)
	assert.Equal(t, 0, video.Index)
}

func TestStreamInfo_String(t *testing.T) {
	vp8 := StreamInfo{Index: 0, Kind: StreamKindVideo, VideoCodec: VideoCodecVP8, Width: 640, Height: 360}
	opus := StreamInfo{Index: 1, Kind: StreamKindAudio, AudioCodec: AudioCodecOpus, SampleRate: 48000, Channels: 2}

	assert.Equal(t, "#0 video VP8 (video/VP8) 640x360", vp8.String())
	assert.Equal(t, "#1 audio Opus (audio/opus) 48000 Hz 2 ch", opus.String())
	assert.Empty(t, StreamInfo{Kind: StreamKindUnknown}.MimeType())
}
