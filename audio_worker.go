package avplayer

import (
	"context"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/transforms"
	"github.com/pion/logging"
)

// AudioWorkerStats counts what the audio decode worker did.
type AudioWorkerStats struct {
	PacketsIn      uint64
	ChunksOut      uint64
	SamplesOut     uint64
	DecodeErrors   uint64
	ResampleErrors uint64
}

// AudioWorkerConfig configures an AudioDecodeWorker.
type AudioWorkerConfig struct {
	Decoder   AudioDecoder
	Resampler *Resampler
	TimeBase  Rational

	// Balance pans stereo output: -1 is left only, 1 right only, 0 centered.
	Balance float64

	Logger logging.LeveledLogger
}

// AudioDecodeWorker decodes audio packets into interleaved float32 chunks at
// the output rate and channel count.
type AudioDecodeWorker struct {
	decoder   AudioDecoder
	resampler *Resampler
	timeBase  Rational
	pan       float64 // 0..1, 0.5 centered
	log       logging.LeveledLogger

	in  <-chan *Packet
	out chan<- *AudioChunk

	lastPTS float64
	havePTS bool

	packetsIn      atomic.Uint64
	chunksOut      atomic.Uint64
	samplesOut     atomic.Uint64
	decodeErrors   atomic.Uint64
	resampleErrors atomic.Uint64
}

// NewAudioDecodeWorker creates a worker reading from in and writing to out.
func NewAudioDecodeWorker(cfg AudioWorkerConfig, in <-chan *Packet, out chan<- *AudioChunk) *AudioDecodeWorker {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("audio")
	}
	return &AudioDecodeWorker{
		decoder:   cfg.Decoder,
		resampler: cfg.Resampler,
		timeBase:  cfg.TimeBase,
		pan:       (max(-1, min(1, cfg.Balance)) + 1) / 2,
		log:       log,
		in:        in,
		out:       out,
	}
}

// Run decodes until the input channel closes, drains the decoder and the
// resampler, then closes the output.
func (w *AudioDecodeWorker) Run(ctx context.Context) error {
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
		bufs, err := w.decoder.Decode(pkt)
		if err != nil {
			w.decodeErrors.Add(1)
			w.log.Warnf("decode packet pts=%d: %v", pkt.PTS, err)
		}
		if err := w.process(ctx, bufs); err != nil {
			return err
		}
	}

	bufs, err := w.decoder.Flush()
	if err != nil {
		w.decodeErrors.Add(1)
		w.log.Warnf("flush decoder: %v", err)
	}
	if err := w.process(ctx, bufs); err != nil {
		return err
	}

	samples, pts := w.resampler.Flush()
	if err := w.send(ctx, samples, pts); err != nil {
		return err
	}
	w.log.Debugf("audio done: %d packets, %d chunks out", w.packetsIn.Load(), w.chunksOut.Load())
	return nil
}

func (w *AudioDecodeWorker) process(ctx context.Context, bufs []*RawAudio) error {
	for _, b := range bufs {
		if b == nil || b.Buffer == nil {
			continue
		}
		samples, pts, err := w.resampler.Process(b.Buffer, w.timeBase.Seconds(b.PTS))
		if err != nil {
			w.resampleErrors.Add(1)
			w.log.Warnf("resample buffer pts=%d: %v", b.PTS, err)
			continue
		}
		if err := w.send(ctx, samples, pts); err != nil {
			return err
		}
	}
	return nil
}

func (w *AudioDecodeWorker) send(ctx context.Context, samples []float32, pts float64) error {
	if len(samples) == 0 {
		return nil
	}
	if w.havePTS && pts < w.lastPTS {
		pts = w.lastPTS
	}
	if w.pan != 0.5 {
		samples = w.applyBalance(samples)
	}

	select {
	case w.out <- &AudioChunk{PTS: pts, Samples: samples}:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.lastPTS = pts
	w.havePTS = true
	w.chunksOut.Add(1)
	w.samplesOut.Add(uint64(len(samples)))
	return nil
}

// applyBalance pans stereo samples. Other layouts pass through unchanged.
func (w *AudioDecodeWorker) applyBalance(samples []float32) []float32 {
	fb := &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: w.resampler.outChannels, SampleRate: w.resampler.outRate},
		Data:   make([]float64, len(samples)),
	}
	for i, s := range samples {
		fb.Data[i] = float64(s)
	}
	if err := transforms.StereoPan(fb, w.pan); err != nil {
		return samples
	}
	for i, s := range fb.Data {
		samples[i] = float32(s)
	}
	return samples
}

// Stats returns a snapshot of the worker's counters. Safe from any goroutine.
func (w *AudioDecodeWorker) Stats() AudioWorkerStats {
	return AudioWorkerStats{
		PacketsIn:      w.packetsIn.Load(),
		ChunksOut:      w.chunksOut.Load(),
		SamplesOut:     w.samplesOut.Load(),
		DecodeErrors:   w.decodeErrors.Load(),
		ResampleErrors: w.resampleErrors.Load(),
	}
}
