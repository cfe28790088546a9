package avplayer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
)

func TestDefaultOptions_Valid(t *testing.T) {
	opts := DefaultOptions(640, 360).withDefaults()
	require.NoError(t, opts.validate())

	assert.Equal(t, ScaleModeFit, opts.ScaleMode)
	assert.Equal(t, draw.ApproxBiLinear, opts.Interpolator)
	assert.NotNil(t, opts.Decoders)
	assert.NotNil(t, opts.LoggerFactory)
	assert.NotNil(t, opts.Clock)
	assert.Nil(t, opts.Sink, "device chosen at play time")
}

func TestOptions_WithDefaultsKeepsExplicitValues(t *testing.T) {
	opts := Options{
		Width:             320,
		Height:            240,
		LookAhead:         2,
		FrameQueueSize:    3,
		RingBufferSeconds: 1.5,
		FillRetryInterval: time.Millisecond,
		Interpolator:      draw.NearestNeighbor,
	}.withDefaults()

	assert.Equal(t, 2, opts.LookAhead)
	assert.Equal(t, 3, opts.FrameQueueSize)
	assert.Equal(t, 64, opts.PacketQueueSize)
	assert.Equal(t, 1.5, opts.RingBufferSeconds)
	assert.Equal(t, time.Millisecond, opts.FillRetryInterval)
	assert.Equal(t, draw.NearestNeighbor, opts.Interpolator)
	assert.Equal(t, []SampleFormat{SampleFormatF32LE, SampleFormatS16LE, SampleFormatU8}, opts.SampleFormats)
}

func TestOptions_ValidateReportsEveryProblem(t *testing.T) {
	opts := DefaultOptions(0, 240).withDefaults()
	opts.Balance = 1.5
	opts.RingBufferSeconds = 20
	opts.SampleFormats = []SampleFormat{SampleFormat(9)}

	err := opts.validate()
	require.ErrorIs(t, err, ErrInvalidOptions)
	msg := err.Error()
	assert.Contains(t, msg, "target size 0x240")
	assert.Contains(t, msg, "balance 1.50")
	assert.Contains(t, msg, "ring buffer length")
	assert.Contains(t, msg, "unknown sample format")
}

func TestOptions_ValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"scale mode", func(o *Options) { o.ScaleMode = ScaleMode(7) }},
		{"look-ahead", func(o *Options) { o.LookAhead = -1 }},
		{"queue size", func(o *Options) { o.ChunkQueueSize = -2 }},
		{"negative rate", func(o *Options) { o.PreferredSampleRate = -1 }},
		{"negative retry", func(o *Options) { o.FillRetryInterval = -time.Second }},
		{"negative late threshold", func(o *Options) { o.LateFrameThreshold = -time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions(16, 16).withDefaults()
			tt.modify(&opts)
			assert.ErrorIs(t, opts.validate(), ErrInvalidOptions)
		})
	}
}
