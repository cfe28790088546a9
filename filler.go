package avplayer

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// FillerStats counts the filler's progress.
type FillerStats struct {
	ChunksWritten  uint64
	SamplesWritten uint64
	Retries        uint64 // short writes that waited for space
	SamplesSkipped uint64 // late samples dropped to catch up with the clock
}

// maxAudioLag is how far, in seconds, a chunk may start behind the clock
// before its late head is skipped.
const maxAudioLag = 0.05

// AudioBufferFiller moves decoded chunks into the ring buffer, waiting for
// space instead of dropping samples. The first chunk anchors the clock to
// its PTS. Samples that would reach the device after the clock has already
// passed them, because the device played silence while audio was starved,
// are skipped so audio and video stay in step.
type AudioBufferFiller struct {
	ring     *AudioRingBuffer
	clk      *AudioClock
	channels int
	in       <-chan *AudioChunk
	retry    time.Duration
	timeSrc  clock.Clock
	log      logging.LeveledLogger
	anchored bool

	chunksWritten  atomic.Uint64
	samplesWritten atomic.Uint64
	retries        atomic.Uint64
	samplesSkipped atomic.Uint64
}

// NewAudioBufferFiller creates a filler for interleaved chunks of the given
// channel count. A nil timeSrc uses the wall clock.
func NewAudioBufferFiller(ring *AudioRingBuffer, clk *AudioClock, channels int, in <-chan *AudioChunk,
	retry time.Duration, timeSrc clock.Clock, log logging.LeveledLogger) *AudioBufferFiller {
	if timeSrc == nil {
		timeSrc = clock.New()
	}
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("filler")
	}
	if retry <= 0 {
		retry = 2 * time.Millisecond
	}
	return &AudioBufferFiller{
		ring:     ring,
		clk:      clk,
		channels: max(1, channels),
		in:       in,
		retry:    retry,
		timeSrc:  timeSrc,
		log:      log,
	}
}

// Run copies chunks until the input closes, then marks the ring as closed
// for writing. The ring is closed on every return path.
func (f *AudioBufferFiller) Run(ctx context.Context) error {
	defer f.ring.CloseWrite()

	for {
		var chunk *AudioChunk
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok = <-f.in:
		}
		if !ok {
			f.log.Debugf("filler done: %d samples written", f.samplesWritten.Load())
			return nil
		}

		samples := f.align(chunk)
		if len(samples) == 0 {
			continue
		}
		if err := f.write(ctx, samples); err != nil {
			return err
		}
		f.chunksWritten.Add(1)
	}
}

// align returns the part of chunk that is still on time. The first chunk
// with samples left moves the clock forward to its PTS if audio starts
// later than the clock.
func (f *AudioBufferFiller) align(chunk *AudioChunk) []float32 {
	rate := float64(f.clk.SampleRate())
	samples := chunk.Samples
	if rate <= 0 {
		return samples
	}

	// Media time at which the chunk's first sample reaches the device.
	due := f.clk.writeHead() + float64(f.ring.Len()/f.channels)/rate
	lag := due - chunk.PTS
	if lag > maxAudioLag {
		skip := min(int(math.Round(lag*rate))*f.channels, len(samples))
		samples = samples[skip:]
		f.samplesSkipped.Add(uint64(skip))
		f.log.Debugf("skipped %d late samples at %.3fs (%.3fs behind)", skip, chunk.PTS, lag)
		lag = 0
	}
	if len(samples) == 0 {
		return nil
	}

	if !f.anchored {
		f.anchored = true
		if lag < 0 {
			f.clk.SetOffset(f.clk.Offset() - lag)
		}
		f.log.Debugf("audio starts at %.3fs, clock at %.3fs", chunk.PTS, f.clk.Time())
	}
	return samples
}

func (f *AudioBufferFiller) write(ctx context.Context, samples []float32) error {
	for len(samples) > 0 {
		n := f.ring.Write(samples)
		samples = samples[n:]
		f.samplesWritten.Add(uint64(n))
		if len(samples) == 0 {
			return nil
		}

		f.retries.Add(1)
		t := f.timeSrc.Timer(f.retry)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return nil
}

// Stats returns a snapshot of the filler's counters.
func (f *AudioBufferFiller) Stats() FillerStats {
	return FillerStats{
		ChunksWritten:  f.chunksWritten.Load(),
		SamplesWritten: f.samplesWritten.Load(),
		Retries:        f.retries.Load(),
		SamplesSkipped: f.samplesSkipped.Load(),
	}
}
