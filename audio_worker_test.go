package avplayer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func audioPackets(n int, stepMs int64) chan *Packet {
	ch := make(chan *Packet, n)
	for i := 0; i < n; i++ {
		ch <- &Packet{Stream: StreamKindAudio, PTS: int64(i) * stepMs}
	}
	close(ch)
	return ch
}

func runAudioWorker(t *testing.T, dec *fakeAudioDecoder, outRate, outChannels int, balance float64, in chan *Packet) (*AudioDecodeWorker, []*AudioChunk) {
	t.Helper()
	rs, err := NewResampler(dec.rate, dec.channels, outRate, outChannels)
	require.NoError(t, err)

	out := make(chan *AudioChunk, 256)
	w := NewAudioDecodeWorker(AudioWorkerConfig{
		Decoder:   dec,
		Resampler: rs,
		TimeBase:  msTimeBase,
		Balance:   balance,
		Logger:    testLogger("audio"),
	}, in, out)
	require.NoError(t, w.Run(context.Background()))

	var chunks []*AudioChunk
	for c := range out {
		chunks = append(chunks, c)
	}
	return w, chunks
}

func totalSamples(chunks []*AudioChunk) int {
	n := 0
	for _, c := range chunks {
		n += len(c.Samples)
	}
	return n
}

func TestAudioDecodeWorker_Passthrough(t *testing.T) {
	dec := &fakeAudioDecoder{rate: 48000, channels: 2, frames: 960, value: 0.25}
	w, chunks := runAudioWorker(t, dec, 48000, 2, 0, audioPackets(5, 20))

	require.Len(t, chunks, 5)
	for i, c := range chunks {
		assert.InDelta(t, float64(i)*0.02, c.PTS, 1e-9)
		assert.Len(t, c.Samples, 1920)
	}
	assert.Equal(t, uint64(5*1920), w.Stats().SamplesOut)
}

func TestAudioDecodeWorker_DecodeErrorIsIsolated(t *testing.T) {
	dec := &fakeAudioDecoder{rate: 48000, channels: 1, frames: 480, failOn: map[int]bool{2: true}}
	w, chunks := runAudioWorker(t, dec, 48000, 2, 0, audioPackets(10, 10))

	assert.Len(t, chunks, 9)
	assert.Equal(t, uint64(1), w.Stats().DecodeErrors)
	assert.Equal(t, 9*480*2, totalSamples(chunks))
}

// TestAudioDecodeWorker_FlushDrainsDecoderAndResampler checks that nothing
// buffered in the decoder or the resampler is lost at end of stream.
func TestAudioDecodeWorker_FlushDrainsDecoderAndResampler(t *testing.T) {
	dec := &fakeAudioDecoder{rate: 24000, channels: 1, frames: 240, value: 0.5, delay: 2}
	_, chunks := runAudioWorker(t, dec, 48000, 2, 0, audioPackets(6, 10))

	// 6 x 240 input frames at half the output rate: 2880 stereo frames.
	assert.Equal(t, 6*240*2*2, totalSamples(chunks))
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i].PTS, chunks[i-1].PTS)
	}
	for _, c := range chunks {
		for _, s := range c.Samples {
			require.InDelta(t, 0.5, s, 1e-6)
		}
	}
}

func TestAudioDecodeWorker_Balance(t *testing.T) {
	dec := &fakeAudioDecoder{rate: 48000, channels: 2, frames: 4, value: 1}
	_, chunks := runAudioWorker(t, dec, 48000, 2, -1, audioPackets(1, 10))

	require.Len(t, chunks, 1)
	for i := 0; i < len(chunks[0].Samples); i += 2 {
		assert.InDelta(t, 1.0, chunks[0].Samples[i], 1e-6, "left kept")
		assert.InDelta(t, 0.0, chunks[0].Samples[i+1], 1e-6, "right muted")
	}
}
