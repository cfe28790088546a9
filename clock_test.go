package avplayer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAudioClock_Time(t *testing.T) {
	c := NewAudioClock(48000)
	assert.Zero(t, c.Time())

	c.SetOffset(1.5)
	assert.InDelta(t, 1.5, c.Time(), 1e-9)

	c.Advance(24000)
	assert.Equal(t, uint64(24000), c.FramesPlayed())
	assert.InDelta(t, 2.0, c.Time(), 1e-9)

	c.Advance(0)
	c.Advance(-5)
	assert.Equal(t, uint64(24000), c.FramesPlayed())
	assert.InDelta(t, 1.5, c.Offset(), 1e-9)
}

func TestAudioClock_AdvanceBuffered(t *testing.T) {
	c := NewAudioClock(1000)

	c.AdvanceBuffered(100, 150)
	assert.Equal(t, uint64(100), c.FramesPlayed())
	assert.Zero(t, c.Time(), "buffered beyond what was played")
	assert.InDelta(t, 0.1, c.writeHead(), 1e-9)

	c.AdvanceBuffered(100, 50)
	assert.InDelta(t, 0.15, c.Time(), 1e-9)

	c.AdvanceBuffered(0, 120)
	assert.InDelta(t, 0.15, c.Time(), 1e-9)
}

func TestAudioClock_ZeroRate(t *testing.T) {
	c := NewAudioClock(0)
	c.Advance(100)
	assert.Zero(t, c.Time())
}

func TestAudioClock_MonotonicUnderConcurrentReads(t *testing.T) {
	c := NewAudioClock(1000)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			c.Advance(1)
		}
	}()

	last := 0.0
	for i := 0; i < 10000; i++ {
		now := c.Time()
		if now < last {
			t.Fatalf("clock went backwards: %v after %v", now, last)
		}
		last = now
	}
	wg.Wait()
	assert.InDelta(t, 10.0, c.Time(), 1e-9)
}

func TestPTSQueue(t *testing.T) {
	var q ptsQueue
	for _, v := range []int64{30, 10, 40, 20} {
		q.push(v)
	}
	q.remove(40)

	var got []int64
	for {
		v, ok := q.popMin()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int64{10, 20, 30}, got)

	q.push(5)
	q.reset()
	assert.Zero(t, q.Len())
}
