package avplayer

import (
	"math"
	"sync/atomic"
)

// AudioClock is the session's master clock. The audio output callback is its
// only writer; any goroutine may read it.
//
// Time is measured in sample frames consumed by the output device (one frame
// is one sample per channel, silence included), minus frames the device still
// holds in its own buffer, plus the presentation time of the first audio
// sample.
type AudioClock struct {
	sampleRate int
	played     atomic.Uint64 // frames handed to the device
	audible    atomic.Uint64 // frames that have left the device buffer
	offset     atomic.Uint64 // float64 bits
}

// NewAudioClock creates a clock for the given output sample rate.
func NewAudioClock(sampleRate int) *AudioClock {
	return &AudioClock{sampleRate: sampleRate}
}

// SampleRate returns the output sample rate.
func (c *AudioClock) SampleRate() int { return c.sampleRate }

// Advance records frames handed to a device without a buffer of its own.
func (c *AudioClock) Advance(frames int) {
	c.AdvanceBuffered(frames, 0)
}

// AdvanceBuffered records frames handed to the device while buffered frames,
// these included, are still waiting in the device buffer. Time never moves
// backwards when the buffer grows.
func (c *AudioClock) AdvanceBuffered(frames, buffered int) {
	played := c.played.Load()
	if frames > 0 {
		played = c.played.Add(uint64(frames))
	}
	audible := played
	if buffered > 0 {
		audible -= min(uint64(buffered), played)
	}
	if audible > c.audible.Load() {
		c.audible.Store(audible)
	}
}

// FramesPlayed returns the number of sample frames handed to the device.
func (c *AudioClock) FramesPlayed() uint64 { return c.played.Load() }

// SetOffset sets the presentation time of the first sample.
func (c *AudioClock) SetOffset(seconds float64) {
	c.offset.Store(math.Float64bits(seconds))
}

// Offset returns the presentation time of the first sample.
func (c *AudioClock) Offset() float64 {
	return math.Float64frombits(c.offset.Load())
}

// Time returns the current playback position in seconds.
func (c *AudioClock) Time() float64 {
	return c.at(c.audible.Load())
}

// writeHead returns the media time of the next frame the device will ask for.
func (c *AudioClock) writeHead() float64 {
	return c.at(c.played.Load())
}

func (c *AudioClock) at(frames uint64) float64 {
	if c.sampleRate <= 0 {
		return 0
	}
	return c.Offset() + float64(frames)/float64(c.sampleRate)
}
