package avplayer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStreams() (video, audio, data StreamInfo) {
	video = StreamInfo{Index: 0, Kind: StreamKindVideo, VideoCodec: VideoCodecRawI420, TimeBase: Rational{1, 1000}, Width: 4, Height: 4}
	audio = StreamInfo{Index: 1, Kind: StreamKindAudio, AudioCodec: AudioCodecPCMFloat, TimeBase: Rational{1, 48000}, SampleRate: 48000, Channels: 2}
	data = StreamInfo{Index: 2, Kind: StreamKindUnknown, CodecID: "S_TEXT/UTF8", TimeBase: Rational{1, 1000}}
	return
}

func TestDemuxer_RoutesAndNormalizes(t *testing.T) {
	video, audio, data := testStreams()
	c := &fakeContainer{
		streams: []StreamInfo{video, audio, data},
		packets: []*Packet{
			{StreamIndex: 1, PTS: 48000}, // 1.0s: first packet read
			{StreamIndex: 0, PTS: 1000},
			{StreamIndex: 2, PTS: 1000},
			{StreamIndex: 0, PTS: 1040},
			{StreamIndex: 1, PTS: 48960},
		},
	}

	vOut := make(chan *Packet, 8)
	aOut := make(chan *Packet, 8)
	d := NewDemuxer(c, video, audio, vOut, aOut, testLogger("demuxer"))
	require.NoError(t, d.Run(context.Background()))

	var vPTS, aPTS []int64
	for p := range vOut {
		assert.Equal(t, StreamKindVideo, p.Stream)
		vPTS = append(vPTS, p.PTS)
	}
	for p := range aOut {
		assert.Equal(t, StreamKindAudio, p.Stream)
		aPTS = append(aPTS, p.PTS)
	}
	assert.Equal(t, []int64{0, 40}, vPTS)
	assert.Equal(t, []int64{0, 960}, aPTS)

	st := d.Stats()
	assert.Equal(t, uint64(5), st.PacketsRead)
	assert.Equal(t, uint64(1), st.Discarded)
	assert.Equal(t, uint64(2), st.VideoPackets)
	assert.Equal(t, uint64(2), st.AudioPackets)
}

func TestDemuxer_ReadErrorEndsStream(t *testing.T) {
	video, audio, _ := testStreams()
	c := &fakeContainer{
		streams: []StreamInfo{video, audio},
		packets: []*Packet{{StreamIndex: 0}},
		readErr: errors.New("corrupt cluster"),
	}
	vOut := make(chan *Packet, 4)
	aOut := make(chan *Packet, 4)
	d := NewDemuxer(c, video, audio, vOut, aOut, testLogger("demuxer"))

	require.NoError(t, d.Run(context.Background()))
	assert.Len(t, vOut, 1)
	assert.Equal(t, uint64(1), d.Stats().ReadErrors)

	<-vOut
	_, ok := <-vOut
	assert.False(t, ok)
	_, ok = <-aOut
	assert.False(t, ok)
}

func TestDemuxer_StopsWhenReceiverIsGone(t *testing.T) {
	video, audio, _ := testStreams()
	c := &fakeContainer{streams: []StreamInfo{video, audio}}
	for i := 0; i < 10; i++ {
		c.packets = append(c.packets, &Packet{StreamIndex: 0, PTS: int64(i)})
	}

	vOut := make(chan *Packet) // unbuffered and never read
	aOut := make(chan *Packet, 1)
	d := NewDemuxer(c, video, audio, vOut, aOut, testLogger("demuxer"))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("demuxer did not stop")
	}
	_, ok := <-aOut
	assert.False(t, ok, "outputs closed on exit")
}
