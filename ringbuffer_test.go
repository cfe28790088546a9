package avplayer

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(start, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(start + i)
	}
	return s
}

func TestAudioRingBuffer_PartialWrite(t *testing.T) {
	r := NewAudioRingBuffer(1000)

	n := r.Write(seq(0, 1500))
	assert.Equal(t, 1000, n)
	assert.Equal(t, 1000, r.Len())
	assert.Equal(t, 0, r.Free())

	// Full ring accepts nothing until the reader makes room.
	assert.Zero(t, r.Write(seq(1000, 500)))

	out := make([]float32, 500)
	require.Equal(t, 500, r.Read(out))
	assert.Equal(t, seq(0, 500), out)

	assert.Equal(t, 500, r.Write(seq(1000, 500)))
	assert.Equal(t, 1000, r.Len())
}

func TestAudioRingBuffer_ReadZeroFills(t *testing.T) {
	r := NewAudioRingBuffer(64)
	r.Write(seq(1, 10))

	out := make([]float32, 32)
	for i := range out {
		out[i] = -1
	}
	n := r.Read(out)

	assert.Equal(t, 10, n)
	assert.Equal(t, seq(1, 10), out[:10])
	for i, v := range out[10:] {
		assert.Zerof(t, v, "sample %d not silent", 10+i)
	}

	// Empty ring yields pure silence.
	assert.Zero(t, r.Read(out))
	assert.Equal(t, make([]float32, 32), out)
}

func TestAudioRingBuffer_FIFOAcrossWrap(t *testing.T) {
	r := NewAudioRingBuffer(7)
	next := 0
	want := 0
	out := make([]float32, 3)

	for round := 0; round < 50; round++ {
		next += r.Write(seq(next, 5))
		n := r.Read(out)
		for i := 0; i < n; i++ {
			require.Equal(t, float32(want), out[i])
			want++
		}
		require.LessOrEqual(t, r.Len(), r.Cap())
	}
	assert.Greater(t, want, 100)
}

func TestAudioRingBuffer_CloseAndDrain(t *testing.T) {
	r := NewAudioRingBuffer(8)
	r.Write(seq(0, 4))
	r.CloseWrite()

	assert.True(t, r.Closed())
	assert.False(t, r.Drained())

	r.Read(make([]float32, 4))
	assert.True(t, r.Drained())
}

// TestAudioRingBuffer_SPSCStress runs one writer and one reader with random
// chunk sizes and checks that every sample arrives once, in order.
func TestAudioRingBuffer_SPSCStress(t *testing.T) {
	const total = 200_000
	r := NewAudioRingBuffer(509)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(1))
		next := 0
		for next < total {
			n := min(1+rng.Intn(300), total-next)
			next += r.Write(seq(next, n))
		}
		r.CloseWrite()
	}()

	var readErr error
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(2))
		want := 0
		buf := make([]float32, 400)
		for !r.Drained() {
			out := buf[:1+rng.Intn(len(buf))]
			n := r.Read(out)
			if n > r.Cap() {
				readErr = assert.AnError
				return
			}
			for i := 0; i < n; i++ {
				if !assert.Equal(t, float32(want), out[i], "sample %d", want) {
					return
				}
				want++
			}
			for _, v := range out[n:] {
				if !assert.Zero(t, v, "shortfall not zero-filled after sample %d", want) {
					return
				}
			}
		}
		assert.Equal(t, total, want, "samples read")
	}()

	wg.Wait()
	require.NoError(t, readErr)
}
