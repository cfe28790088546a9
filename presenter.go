package avplayer

import (
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
)

// maxCatchUpRounds bounds how many times one tick refills the look-ahead
// queue while every queued frame is already due.
const maxCatchUpRounds = 4

// PresenterStats counts presentation decisions.
type PresenterStats struct {
	Ticks         uint64
	FramesShown   uint64 // distinct frames that became current
	FramesSkipped uint64 // due frames superseded within the same tick
	FramesStale   uint64 // frames older than the current one, discarded
}

// FramePresenter picks the video frame to display for the current audio
// clock time. Tick never blocks: it only takes frames that are already
// waiting on the channel.
type FramePresenter struct {
	mu          sync.Mutex
	in          <-chan *VideoFrame
	clock       *AudioClock
	lookAhead   int
	queue       []*VideoFrame
	current     *VideoFrame
	placeholder FrameSource
	closed      bool
	log         logging.LeveledLogger

	ticks   atomic.Uint64
	shown   atomic.Uint64
	skipped atomic.Uint64
	stale   atomic.Uint64
}

// NewFramePresenter creates a presenter. A nil placeholder shows opaque
// black at width x height until the first frame is due.
func NewFramePresenter(in <-chan *VideoFrame, clk *AudioClock, lookAhead int,
	placeholder FrameSource, width, height int, log logging.LeveledLogger) *FramePresenter {
	if lookAhead < 1 {
		lookAhead = 1
	}
	if placeholder == nil {
		placeholder = &StaticImageSource{pix: solidFrame(width, height, color.RGBA{A: 0xff})}
	}
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("presenter")
	}
	return &FramePresenter{
		in:          in,
		clock:       clk,
		lookAhead:   lookAhead,
		queue:       make([]*VideoFrame, 0, lookAhead),
		placeholder: placeholder,
		log:         log,
	}
}

// Tick advances presentation to the clock's current time and returns the
// RGBA bytes to display.
func (p *FramePresenter) Tick() []byte {
	if f := p.TickFrame(); f != nil {
		return f.Pix
	}
	return p.placeholder.Frame()
}

// Frame implements FrameSource.
func (p *FramePresenter) Frame() []byte { return p.Tick() }

// TickFrame is Tick returning the current frame itself, or nil before the
// first frame is due.
func (p *FramePresenter) TickFrame() *VideoFrame {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ticks.Add(1)
	t := p.clock.Time()

	var popped uint64
	for round := 0; round < maxCatchUpRounds; round++ {
		p.refill()

		due := false
		for len(p.queue) > 0 && p.queue[0].PTS <= t {
			f := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]

			if p.current != nil && f.PTS < p.current.PTS {
				p.stale.Add(1)
				continue
			}
			p.current = f
			popped++
			due = true
		}

		// Only keep pulling when everything queued was due and more may wait.
		if !due || len(p.queue) > 0 || p.closed {
			break
		}
	}

	if popped > 0 {
		p.shown.Add(1)
		p.skipped.Add(popped - 1)
		if popped > 1 {
			p.log.Tracef("tick at %.3fs skipped %d frames", t, popped-1)
		}
	}
	return p.current
}

// refill moves waiting frames into the queue without blocking.
func (p *FramePresenter) refill() {
	if p.closed {
		return
	}
	if len(p.queue) == 0 && cap(p.queue) > 4*p.lookAhead {
		p.queue = make([]*VideoFrame, 0, p.lookAhead)
	}
	for len(p.queue) < p.lookAhead {
		select {
		case f, ok := <-p.in:
			if !ok {
				p.closed = true
				return
			}
			p.queue = append(p.queue, f)
		default:
			return
		}
	}
}

// Current returns the frame shown by the last tick without advancing.
func (p *FramePresenter) Current() *VideoFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Exhausted reports whether the video stream has ended and its last frame
// is on screen.
func (p *FramePresenter) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed && len(p.queue) == 0
}

// Stats returns a snapshot of the presenter's counters.
func (p *FramePresenter) Stats() PresenterStats {
	return PresenterStats{
		Ticks:         p.ticks.Load(),
		FramesShown:   p.shown.Load(),
		FramesSkipped: p.skipped.Load(),
		FramesStale:   p.stale.Load(),
	}
}
