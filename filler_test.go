package avplayer

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioBufferFiller_RetriesUntilEverythingIsWritten(t *testing.T) {
	ring := NewAudioRingBuffer(16)
	clk := NewAudioClock(48000)
	mock := clock.NewMock()

	chunks := make(chan *AudioChunk, 3)
	chunks <- &AudioChunk{PTS: 1.25, Samples: seq(0, 20)}
	chunks <- &AudioChunk{PTS: 1.30, Samples: seq(20, 20)}
	chunks <- &AudioChunk{PTS: 1.35, Samples: seq(40, 20)}
	close(chunks)

	f := NewAudioBufferFiller(ring, clk, 2, chunks, 2*time.Millisecond, mock, testLogger("filler"))
	errc := make(chan error, 1)
	go func() { errc <- f.Run(context.Background()) }()

	var got []float32
	buf := make([]float32, 5)
	deadline := time.After(5 * time.Second)
	for !ring.Drained() {
		select {
		case <-deadline:
			t.Fatalf("filler stalled after %d samples", len(got))
		default:
		}
		n := ring.Read(buf)
		got = append(got, buf[:n]...)
		mock.Add(2 * time.Millisecond)
	}

	require.NoError(t, <-errc)
	assert.Equal(t, seq(0, 60), got)
	assert.InDelta(t, 1.25, clk.Time(), 1e-9, "offset comes from the first chunk")

	st := f.Stats()
	assert.Equal(t, uint64(3), st.ChunksWritten)
	assert.Equal(t, uint64(60), st.SamplesWritten)
	assert.NotZero(t, st.Retries)
}

func TestAudioBufferFiller_CancelAbortsRetry(t *testing.T) {
	ring := NewAudioRingBuffer(4)
	chunks := make(chan *AudioChunk, 1)
	chunks <- &AudioChunk{Samples: seq(0, 10)}

	f := NewAudioBufferFiller(ring, NewAudioClock(48000), 2, chunks, time.Hour, clock.NewMock(), testLogger("filler"))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return ring.Free() == 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("filler did not stop")
	}
	assert.True(t, ring.Closed())
	assert.Equal(t, 4, ring.Len(), "nothing overwritten")
}

func TestAudioBufferFiller_SkipsAudioBehindTheClock(t *testing.T) {
	ring := NewAudioRingBuffer(1024)
	clk := NewAudioClock(1000)
	clk.Advance(300) // the device played 0.3s of silence while audio was starved

	chunks := make(chan *AudioChunk, 3)
	chunks <- &AudioChunk{PTS: 0, Samples: seq(0, 200)}      // entirely late
	chunks <- &AudioChunk{PTS: 0.2, Samples: seq(1000, 200)} // first half late
	chunks <- &AudioChunk{PTS: 0.4, Samples: seq(2000, 50)}  // on time
	close(chunks)

	f := NewAudioBufferFiller(ring, clk, 1, chunks, time.Millisecond, clock.NewMock(), testLogger("filler"))
	require.NoError(t, f.Run(context.Background()))

	got := make([]float32, ring.Len())
	ring.Read(got)
	assert.Equal(t, append(seq(1100, 100), seq(2000, 50)...), got)
	assert.InDelta(t, 0.3, clk.Time(), 1e-9, "skipping does not move the clock")

	st := f.Stats()
	assert.Equal(t, uint64(300), st.SamplesSkipped)
	assert.Equal(t, uint64(150), st.SamplesWritten)
	assert.Equal(t, uint64(2), st.ChunksWritten)
}

func TestAudioBufferFiller_LateStartMovesClockForward(t *testing.T) {
	ring := NewAudioRingBuffer(1024)
	clk := NewAudioClock(1000)
	clk.Advance(100)

	chunks := make(chan *AudioChunk, 2)
	chunks <- &AudioChunk{PTS: 0.5, Samples: seq(0, 100)}
	chunks <- &AudioChunk{PTS: 0.6, Samples: seq(100, 100)}
	close(chunks)

	f := NewAudioBufferFiller(ring, clk, 2, chunks, time.Millisecond, clock.NewMock(), testLogger("filler"))
	require.NoError(t, f.Run(context.Background()))

	assert.InDelta(t, 0.5, clk.Time(), 1e-9)
	assert.Equal(t, 200, ring.Len())
	assert.Zero(t, f.Stats().SamplesSkipped)
}
