package avplayer

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
)

// DemuxerStats counts packets routed by the demuxer.
type DemuxerStats struct {
	PacketsRead  uint64
	VideoPackets uint64
	AudioPackets uint64
	Discarded    uint64
	ReadErrors   uint64
}

// Demuxer reads packets from a container and routes the selected video and
// audio streams onto bounded channels. Closing both channels is the
// end-of-stream signal for the decode workers.
type Demuxer struct {
	container Container
	video     StreamInfo
	audio     StreamInfo
	log       logging.LeveledLogger

	videoOut chan<- *Packet
	audioOut chan<- *Packet
	closeOut sync.Once

	start     float64 // seconds of the first packet read
	haveStart bool
	offsets   map[int]int64

	packetsRead  atomic.Uint64
	videoPackets atomic.Uint64
	audioPackets atomic.Uint64
	discarded    atomic.Uint64
	readErrors   atomic.Uint64
}

// NewDemuxer creates a demuxer for the chosen streams of c.
func NewDemuxer(c Container, video, audio StreamInfo, videoOut, audioOut chan<- *Packet, log logging.LeveledLogger) *Demuxer {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("demuxer")
	}
	return &Demuxer{
		container: c,
		video:     video,
		audio:     audio,
		log:       log,
		videoOut:  videoOut,
		audioOut:  audioOut,
		offsets:   make(map[int]int64),
	}
}

// Run reads until end of input, a read error or cancellation. Both output
// channels are closed when it returns. A read error ends the stream like
// EOF so the pipeline can drain what was already read.
func (d *Demuxer) Run(ctx context.Context) error {
	defer d.closeOutputs()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pkt, err := d.container.ReadPacket()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.readErrors.Add(1)
				d.log.Errorf("read packet: %v; ending stream", err)
			}
			d.log.Debugf("demux done: %d packets read", d.packetsRead.Load())
			return nil
		}
		d.packetsRead.Add(1)

		var out chan<- *Packet
		var info StreamInfo
		switch pkt.StreamIndex {
		case d.video.Index:
			out, info = d.videoOut, d.video
			pkt.Stream = StreamKindVideo
		case d.audio.Index:
			out, info = d.audioOut, d.audio
			pkt.Stream = StreamKindAudio
		default:
			d.discarded.Add(1)
			continue
		}
		d.normalize(pkt, info)

		select {
		case out <- pkt:
		case <-ctx.Done():
			return ctx.Err()
		}
		if pkt.Stream == StreamKindVideo {
			d.videoPackets.Add(1)
		} else {
			d.audioPackets.Add(1)
		}
	}
}

// normalize shifts timestamps so the first packet read lands at zero.
func (d *Demuxer) normalize(pkt *Packet, info StreamInfo) {
	if !d.haveStart {
		d.start = info.TimeBase.Seconds(pkt.PTS)
		d.haveStart = true
	}
	off, ok := d.offsets[info.Index]
	if !ok {
		if info.TimeBase.Num != 0 {
			off = int64(math.Round(d.start * float64(info.TimeBase.Den) / float64(info.TimeBase.Num)))
		}
		d.offsets[info.Index] = off
	}
	pkt.PTS -= off
	pkt.DTS -= off
}

func (d *Demuxer) closeOutputs() {
	d.closeOut.Do(func() {
		close(d.videoOut)
		close(d.audioOut)
	})
}

// Stats returns a snapshot of the demuxer's counters.
func (d *Demuxer) Stats() DemuxerStats {
	return DemuxerStats{
		PacketsRead:  d.packetsRead.Load(),
		VideoPackets: d.videoPackets.Load(),
		AudioPackets: d.audioPackets.Load(),
		Discarded:    d.discarded.Load(),
		ReadErrors:   d.readErrors.Load(),
	}
}
