package avplayer

import (
	"context"
	"sync/atomic"

	"github.com/pion/logging"
)

// VideoWorkerStats counts what the video decode worker did.
type VideoWorkerStats struct {
	PacketsIn     uint64
	FramesDecoded uint64
	FramesOut     uint64
	FramesDropped uint64 // late frames skipped before conversion
	DecodeErrors  uint64
	ConvertErrors uint64
}

// VideoWorkerConfig configures a VideoDecodeWorker.
type VideoWorkerConfig struct {
	Decoder  VideoDecoder
	Scaler   *VideoScaler
	TimeBase Rational

	// Clock and LateThreshold enable dropping frames whose presentation
	// time is already more than LateThreshold seconds behind the clock.
	// A zero threshold never drops.
	Clock         *AudioClock
	LateThreshold float64

	Logger logging.LeveledLogger
}

// VideoDecodeWorker decodes video packets, converts each picture to RGBA at
// the target size and publishes it on a bounded channel. It owns neither the
// decoder nor the channels' producers; it closes its output when done.
type VideoDecodeWorker struct {
	decoder  VideoDecoder
	scaler   *VideoScaler
	timeBase Rational
	clock    *AudioClock
	late     float64
	log      logging.LeveledLogger

	in  <-chan *Packet
	out chan<- *VideoFrame

	lastPTS float64
	havePTS bool

	packetsIn     atomic.Uint64
	framesDecoded atomic.Uint64
	framesOut     atomic.Uint64
	framesDropped atomic.Uint64
	decodeErrors  atomic.Uint64
	convertErrors atomic.Uint64
}

// NewVideoDecodeWorker creates a worker reading from in and writing to out.
func NewVideoDecodeWorker(cfg VideoWorkerConfig, in <-chan *Packet, out chan<- *VideoFrame) *VideoDecodeWorker {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("video")
	}
	return &VideoDecodeWorker{
		decoder:  cfg.Decoder,
		scaler:   cfg.Scaler,
		timeBase: cfg.TimeBase,
		clock:    cfg.Clock,
		late:     cfg.LateThreshold,
		log:      log,
		in:       in,
		out:      out,
	}
}

// Run decodes until the input channel closes, then flushes the decoder and
// closes the output. It returns ctx.Err() when cancelled, nil otherwise.
func (w *VideoDecodeWorker) Run(ctx context.Context) error {
	defer close(w.out)

	for {
		var pkt *Packet
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok = <-w.in:
		}
		if !ok {
			break
		}

		w.packetsIn.Add(1)
		frames, err := w.decoder.Decode(pkt)
		if err != nil {
			w.decodeErrors.Add(1)
			w.log.Warnf("decode packet pts=%d: %v", pkt.PTS, err)
			// Frames returned alongside an error are still valid.
		}
		if err := w.publish(ctx, frames); err != nil {
			return err
		}
	}

	frames, err := w.decoder.Flush()
	if err != nil {
		w.decodeErrors.Add(1)
		w.log.Warnf("flush decoder: %v", err)
	}
	if err := w.publish(ctx, frames); err != nil {
		return err
	}
	w.log.Debugf("video done: %d packets, %d frames out", w.packetsIn.Load(), w.framesOut.Load())
	return nil
}

func (w *VideoDecodeWorker) publish(ctx context.Context, frames []*RawFrame) error {
	for _, f := range frames {
		if f == nil {
			continue
		}
		w.framesDecoded.Add(1)

		pts := w.timeBase.Seconds(f.PTS)
		if w.havePTS && pts < w.lastPTS {
			pts = w.lastPTS
		}

		if w.late > 0 && w.clock != nil && w.clock.Time()-pts > w.late {
			w.framesDropped.Add(1)
			w.log.Debugf("dropping late frame pts=%.3f clock=%.3f", pts, w.clock.Time())
			continue
		}

		pix, err := w.scaler.Convert(f)
		if err != nil {
			w.convertErrors.Add(1)
			w.log.Warnf("convert frame pts=%.3f: %v", pts, err)
			continue
		}

		width, height := w.scaler.Size()
		vf := &VideoFrame{PTS: pts, Pix: pix, Width: width, Height: height}
		select {
		case w.out <- vf:
		case <-ctx.Done():
			return ctx.Err()
		}
		w.lastPTS = pts
		w.havePTS = true
		w.framesOut.Add(1)
	}
	return nil
}

// Stats returns a snapshot of the worker's counters. Safe from any goroutine.
func (w *VideoDecodeWorker) Stats() VideoWorkerStats {
	return VideoWorkerStats{
		PacketsIn:     w.packetsIn.Load(),
		FramesDecoded: w.framesDecoded.Load(),
		FramesOut:     w.framesOut.Load(),
		FramesDropped: w.framesDropped.Load(),
		DecodeErrors:  w.decodeErrors.Load(),
		ConvertErrors: w.convertErrors.Load(),
	}
}
