package avplayer

import "sync/atomic"

// AudioRingBuffer is a fixed-capacity circular buffer of interleaved float
// samples with exactly one writer (the filler) and one reader (the audio
// device callback).
//
// Positions are monotonically increasing sample counters; the writer owns
// writePos and the reader owns readPos. Each side only loads the other's
// counter, so no lock is needed and Read never waits on Write.
type AudioRingBuffer struct {
	buf      []float32
	capacity uint64

	readPos  atomic.Uint64
	writePos atomic.Uint64
	closed   atomic.Bool
}

// NewAudioRingBuffer creates a ring buffer holding capacity samples.
func NewAudioRingBuffer(capacity int) *AudioRingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &AudioRingBuffer{
		buf:      make([]float32, capacity),
		capacity: uint64(capacity),
	}
}

// Cap returns the capacity in samples.
func (r *AudioRingBuffer) Cap() int { return int(r.capacity) }

// Len returns the number of unread samples.
func (r *AudioRingBuffer) Len() int {
	return int(r.writePos.Load() - r.readPos.Load())
}

// Free returns the number of samples that can be written without
// overwriting unread data.
func (r *AudioRingBuffer) Free() int { return r.Cap() - r.Len() }

// Write copies as many samples as fit and returns how many were written.
// It never overwrites unread samples; the caller retries the remainder.
// Only the producer goroutine may call Write.
func (r *AudioRingBuffer) Write(samples []float32) int {
	w := r.writePos.Load()
	free := r.capacity - (w - r.readPos.Load())
	n := uint64(len(samples))
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	start := w % r.capacity
	first := min(n, r.capacity-start)
	copy(r.buf[start:start+first], samples[:first])
	copy(r.buf[:n-first], samples[first:n])

	// Publish after the copy so the reader never sees unwritten slots.
	r.writePos.Store(w + n)
	return int(n)
}

// Read fills out with buffered samples and zero-fills any shortfall.
// It returns the number of real samples copied; len(out) samples are always
// produced. Only the consumer goroutine may call Read. Read never blocks.
func (r *AudioRingBuffer) Read(out []float32) int {
	rp := r.readPos.Load()
	avail := r.writePos.Load() - rp
	n := uint64(len(out))
	if n > avail {
		n = avail
	}

	if n > 0 {
		start := rp % r.capacity
		first := min(n, r.capacity-start)
		copy(out[:first], r.buf[start:start+first])
		copy(out[first:n], r.buf[:n-first])
		r.readPos.Store(rp + n)
	}

	clear(out[n:])
	return int(n)
}

// CloseWrite marks that no more samples will be written.
func (r *AudioRingBuffer) CloseWrite() { r.closed.Store(true) }

// Closed reports whether CloseWrite has been called.
func (r *AudioRingBuffer) Closed() bool { return r.closed.Load() }

// Drained reports whether the writer is done and every sample has been read.
func (r *AudioRingBuffer) Drained() bool {
	return r.closed.Load() && r.Len() == 0
}
