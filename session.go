package avplayer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"
)

// SessionState represents the state of a playback session.
type SessionState int32

const (
	SessionStatePlaying  SessionState = iota // Stages running or output still draining
	SessionStateFinished                     // All media played
	SessionStateFailed                       // A stage failed
	SessionStateClosed                       // Closed by the caller
)

func (s SessionState) String() string {
	switch s {
	case SessionStatePlaying:
		return "playing"
	case SessionStateFinished:
		return "finished"
	case SessionStateFailed:
		return "failed"
	case SessionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MediaInfo describes what a session is playing and how.
type MediaInfo struct {
	SessionID string
	Path      string
	Container string
	Video     StreamInfo
	Audio     StreamInfo
	Output    OutputConfig
	Sink      string
	Width     int
	Height    int
}

// Stats is a snapshot of every stage's counters.
type Stats struct {
	Time         float64 // audio clock, seconds
	RingFill     int     // samples buffered for the device
	Demuxer      DemuxerStats
	Video        VideoWorkerStats
	Audio        AudioWorkerStats
	VideoDecoder DecoderStats
	AudioDecoder DecoderStats
	Filler       FillerStats
	Presenter    PresenterStats
	Output       OutputStats
}

// Session is one running playback. Its methods are safe for concurrent use.
type Session struct {
	id   uuid.UUID
	opts Options
	info MediaInfo
	log  logging.LeveledLogger

	container Container
	videoDec  VideoDecoder
	audioDec  AudioDecoder

	clock     *AudioClock
	ring      *AudioRingBuffer
	resampler *Resampler
	demuxer   *Demuxer
	video     *VideoDecodeWorker
	audio     *AudioDecodeWorker
	filler    *AudioBufferFiller
	presenter *FramePresenter
	output    *outputStream
	stream    AudioStream

	cancel     context.CancelFunc
	group      *errgroup.Group
	stagesDone chan struct{}
	stageErr   error

	state     atomic.Int32
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// Play opens path and starts playback. Everything that can fail before
// media flows is checked here; on error nothing is left running.
func Play(ctx context.Context, path string, opts Options) (_ *Session, err error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:         uuid.New(),
		opts:       opts,
		stagesDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.log = opts.LoggerFactory.NewLogger("session")
	s.info = MediaInfo{SessionID: s.id.String(), Path: path, Width: opts.Width, Height: opts.Height}

	defer func() {
		if err != nil {
			if cerr := s.release(); cerr != nil {
				s.log.Warnf("[%s] cleanup after failed start: %v", s.id, cerr)
			}
		}
	}()

	if err := s.open(path); err != nil {
		return nil, err
	}
	if err := s.build(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.start(runCtx)

	if err := s.stream.Start(); err != nil {
		s.cancel()
		<-s.stagesDone
		return nil, fmt.Errorf("start audio output: %w", err)
	}

	s.log.Infof("[%s] playing %s: %s + %s -> %dx%d, %s on %s",
		s.id, path, s.info.Video, s.info.Audio, opts.Width, opts.Height, s.info.Output, s.info.Sink)
	return s, nil
}

// open opens the container, selects streams and creates decoders.
func (s *Session) open(path string) error {
	c, err := OpenContainer(path)
	if err != nil {
		return err
	}
	s.container = c
	s.info.Container = c.Format()

	video, audio, err := SelectStreams(c.Streams(), s.opts.Decoders)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s.info.Video, s.info.Audio = video, audio

	s.videoDec, err = s.opts.Decoders.NewVideoDecoder(VideoDecoderConfig{
		Codec:        video.VideoCodec,
		Threads:      s.opts.DecoderThreads,
		Width:        video.Width,
		Height:       video.Height,
		CodecPrivate: video.CodecPrivate,
	})
	if err != nil {
		return fmt.Errorf("create %s decoder: %w", video.VideoCodec, err)
	}

	s.audioDec, err = s.opts.Decoders.NewAudioDecoder(AudioDecoderConfig{
		Codec:        audio.AudioCodec,
		SampleRate:   audio.SampleRate,
		Channels:     audio.Channels,
		BitDepth:     audio.BitDepth,
		BigEndian:    audio.BigEndian,
		CodecPrivate: audio.CodecPrivate,
	})
	if err != nil {
		return fmt.Errorf("create %s decoder: %w", audio.AudioCodec, err)
	}
	return nil
}

// build negotiates the output and wires every stage together.
func (s *Session) build() error {
	opts := s.opts
	lf := opts.LoggerFactory

	sink := opts.Sink
	if sink == nil {
		sink = NewOtoSink()
	}
	s.info.Sink = sink.Name()

	caps, err := sink.Capabilities()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoAudioDevice, err)
	}
	cfg, err := NegotiateOutput(caps, OutputPreferences{
		SampleRate: opts.PreferredSampleRate,
		Channels:   opts.PreferredChannels,
		Formats:    opts.SampleFormats,
	})
	if err != nil {
		return err
	}
	s.info.Output = cfg

	inRate, inChannels := s.info.Audio.SampleRate, s.info.Audio.Channels
	if inRate <= 0 {
		inRate = cfg.SampleRate
	}
	if inChannels <= 0 {
		inChannels = cfg.Channels
	}
	s.resampler, err = NewResampler(inRate, inChannels, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return err
	}
	if s.resampler.Native() {
		s.log.Debugf("[%s] resampling %d -> %d Hz with libswresample", s.id, inRate, cfg.SampleRate)
	}

	ringFrames := int(math.Ceil(opts.RingBufferSeconds * float64(cfg.SampleRate)))
	s.clock = NewAudioClock(cfg.SampleRate)
	s.ring = NewAudioRingBuffer(ringFrames * cfg.Channels)

	videoPackets := make(chan *Packet, opts.PacketQueueSize)
	audioPackets := make(chan *Packet, opts.PacketQueueSize)
	frames := make(chan *VideoFrame, opts.FrameQueueSize)
	chunks := make(chan *AudioChunk, opts.ChunkQueueSize)

	s.demuxer = NewDemuxer(s.container, s.info.Video, s.info.Audio, videoPackets, audioPackets, lf.NewLogger("demuxer"))
	s.video = NewVideoDecodeWorker(VideoWorkerConfig{
		Decoder:       s.videoDec,
		Scaler:        NewVideoScaler(opts.Width, opts.Height, opts.ScaleMode, opts.Interpolator),
		TimeBase:      s.info.Video.TimeBase,
		Clock:         s.clock,
		LateThreshold: opts.LateFrameThreshold.Seconds(),
		Logger:        lf.NewLogger("video"),
	}, videoPackets, frames)
	s.audio = NewAudioDecodeWorker(AudioWorkerConfig{
		Decoder:   s.audioDec,
		Resampler: s.resampler,
		TimeBase:  s.info.Audio.TimeBase,
		Balance:   opts.Balance,
		Logger:    lf.NewLogger("audio"),
	}, audioPackets, chunks)
	s.filler = NewAudioBufferFiller(s.ring, s.clock, cfg.Channels, chunks, opts.FillRetryInterval, opts.Clock, lf.NewLogger("filler"))

	placeholder := opts.PlaceholderSource
	if placeholder == nil && opts.Placeholder != nil {
		placeholder = NewStaticImageSource(opts.Placeholder, opts.Width, opts.Height, opts.ScaleMode)
	}
	s.presenter = NewFramePresenter(frames, s.clock, opts.LookAhead, placeholder, opts.Width, opts.Height, lf.NewLogger("presenter"))

	s.output, err = newOutputStream(s.ring, s.clock, cfg, opts.Clock, lf.NewLogger("output"))
	if err != nil {
		return err
	}
	s.stream, err = sink.Open(cfg, s.output)
	if err != nil {
		return fmt.Errorf("open %s: %w", sink.Name(), err)
	}
	if bs, ok := s.stream.(BufferedStream); ok {
		s.output.device = bs
	}
	return nil
}

// start launches the stage goroutines and the supervisor.
func (s *Session) start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	g.Go(func() error { return s.demuxer.Run(gctx) })
	g.Go(func() error { return s.video.Run(gctx) })
	g.Go(func() error { return s.audio.Run(gctx) })
	g.Go(func() error { return s.filler.Run(gctx) })

	go func() {
		err := g.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.stageErr = err
		}
		close(s.stagesDone)

		if s.stageErr != nil {
			s.log.Errorf("[%s] playback failed: %v", s.id, s.stageErr)
			s.finish(SessionStateFailed)
			return
		}
		select {
		case <-s.output.Done():
			s.maybeFinish()
		case <-ctx.Done():
		}
	}()
}

// CurrentFrame returns the RGBA bytes to display now. It never blocks.
func (s *Session) CurrentFrame() []byte {
	pix := s.presenter.Tick()
	s.maybeFinish()
	return pix
}

// Frame is CurrentFrame with the frame's timestamp and size. It returns nil
// before the first frame is due.
func (s *Session) Frame() *VideoFrame {
	f := s.presenter.TickFrame()
	s.maybeFinish()
	return f
}

// Time returns the audio clock in seconds of media time.
func (s *Session) Time() float64 { return s.clock.Time() }

// ID returns the session's unique id, as used in its log lines.
func (s *Session) ID() string { return s.id.String() }

// Info describes the chosen streams and output configuration.
func (s *Session) Info() MediaInfo { return s.info }

// State returns the current session state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Done is closed when playback has finished, failed or been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until Done and returns the first stage error, if any.
func (s *Session) Wait() error {
	<-s.done
	return s.stageErr
}

// Stats returns a snapshot of all counters.
func (s *Session) Stats() Stats {
	return Stats{
		Time:         s.clock.Time(),
		RingFill:     s.ring.Len(),
		Demuxer:      s.demuxer.Stats(),
		Video:        s.video.Stats(),
		Audio:        s.audio.Stats(),
		VideoDecoder: s.videoDec.Stats(),
		AudioDecoder: s.audioDec.Stats(),
		Filler:       s.filler.Stats(),
		Presenter:    s.presenter.Stats(),
		Output:       s.output.Stats(),
	}
}

// maybeFinish marks the session finished once every stage has exited, the
// audio has drained and the last video frame is on screen.
func (s *Session) maybeFinish() {
	select {
	case <-s.stagesDone:
	default:
		return
	}
	select {
	case <-s.output.Done():
	default:
		return
	}
	if s.presenter.Exhausted() {
		s.finish(SessionStateFinished)
	}
}

func (s *Session) finish(state SessionState) {
	s.doneOnce.Do(func() {
		s.state.CompareAndSwap(int32(SessionStatePlaying), int32(state))
		if state == SessionStateFinished {
			s.log.Infof("[%s] playback finished at %.3fs", s.id, s.clock.Time())
		}
		close(s.done)
	})
}

// Close stops playback and releases the device, the file and the decoders.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.CompareAndSwap(int32(SessionStatePlaying), int32(SessionStateClosed))
		s.cancel()
		s.closeErr = s.release()
		s.finish(SessionStateClosed)
		s.log.Debugf("[%s] closed", s.id)
	})
	return s.closeErr
}

// release closes whatever has been opened. Stages must not be running, or
// must have been cancelled.
func (s *Session) release() error {
	var result *multierror.Error
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close audio output: %w", err))
		}
	}
	if s.group != nil {
		<-s.stagesDone
	}
	if s.container != nil {
		if err := s.container.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close container: %w", err))
		}
	}
	if s.videoDec != nil {
		if err := s.videoDec.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close video decoder: %w", err))
		}
	}
	if s.audioDec != nil {
		if err := s.audioDec.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close audio decoder: %w", err))
		}
	}
	if s.resampler != nil {
		if err := s.resampler.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close resampler: %w", err))
		}
	}
	return result.ErrorOrNil()
}
