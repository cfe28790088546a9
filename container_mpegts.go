package avplayer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/asticode/go-astits"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
)

// mpegtsClockRate is the 90kHz PES timestamp clock.
const mpegtsClockRate = 90000

// tsTimestampUnwrapper extends 33-bit PES timestamps across wraparound.
type tsTimestampUnwrapper struct {
	last int64
	off  int64
	init bool
}

const tsTimestampWrap = int64(1) << 33

func (u *tsTimestampUnwrapper) unwrap(ts int64) int64 {
	if !u.init {
		u.init = true
		u.last = ts
		return ts
	}
	diff := ts - u.last
	switch {
	case diff < -tsTimestampWrap/2:
		u.off += tsTimestampWrap
	case diff > tsTimestampWrap/2:
		u.off -= tsTimestampWrap
	}
	u.last = ts
	return ts + u.off
}

// mpegtsContainer demuxes MPEG transport streams carrying H.264 video and
// Opus audio. Reading is pull-based: Read is called on the underlying reader
// until its callbacks have queued a packet.
type mpegtsContainer struct {
	file    *os.File
	reader  *mpegts.Reader
	streams []StreamInfo
	queue   []*Packet
	eof     bool
}

func newMPEGTSContainer(f *os.File) (*mpegtsContainer, error) {
	c := &mpegtsContainer{file: f}
	c.reader = &mpegts.Reader{R: bufio.NewReaderSize(f, tsPacketSize*1024)}
	if err := c.reader.Initialize(); err != nil {
		return nil, fmt.Errorf("parse mpeg-ts: %w", err)
	}
	// Corrupt PES payloads are skipped by the reader; nothing to report here.
	c.reader.OnDecodeError(func(error) {})

	timeBase := Rational{Num: 1, Den: mpegtsClockRate}
	for i, track := range c.reader.Tracks() {
		info := StreamInfo{Index: i, TimeBase: timeBase}
		unwrap := &tsTimestampUnwrapper{}

		switch codec := track.Codec.(type) {
		case *mpegts.CodecH264:
			info.Kind = StreamKindVideo
			info.VideoCodec = VideoCodecH264
			info.CodecID = "H264"
			index := i
			c.reader.OnDataH264(track, func(pts int64, dts int64, au [][]byte) error {
				data, err := h264.AnnexB(au).Marshal()
				if err != nil {
					return nil
				}
				raw := pts
				pts = unwrap.unwrap(raw)
				c.queue = append(c.queue, &Packet{
					Stream:      StreamKindVideo,
					StreamIndex: index,
					Data:        data,
					PTS:         pts,
					DTS:         pts - (raw - dts),
					Keyframe:    isRandomAccess(au),
				})
				return nil
			})

		case *mpegts.CodecOpus:
			info.Kind = StreamKindAudio
			info.AudioCodec = AudioCodecOpus
			info.CodecID = "Opus"
			info.SampleRate = opusSampleRate
			info.Channels = codec.ChannelCount
			index := i
			c.reader.OnDataOpus(track, func(pts int64, packets [][]byte) error {
				pts = unwrap.unwrap(pts)
				for _, p := range packets {
					c.queue = append(c.queue, &Packet{
						Stream:      StreamKindAudio,
						StreamIndex: index,
						Data:        p,
						PTS:         pts,
						DTS:         pts,
						Keyframe:    true,
					})
					pts += int64(opusPacketSamples(p)) * mpegtsClockRate / opusSampleRate
				}
				return nil
			})

		default:
			info.CodecID = fmt.Sprintf("%T", track.Codec)
		}
		c.streams = append(c.streams, info)
	}

	if len(c.streams) == 0 {
		return nil, errors.New("mpeg-ts file has no tracks")
	}
	return c, nil
}

func (c *mpegtsContainer) Format() string { return "mpegts" }

func (c *mpegtsContainer) Streams() []StreamInfo { return c.streams }

// ReadPacket implements Container.
func (c *mpegtsContainer) ReadPacket() (*Packet, error) {
	for len(c.queue) == 0 {
		if c.eof {
			return nil, io.EOF
		}
		if err := c.reader.Read(); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, astits.ErrNoMorePackets) {
				c.eof = true
				continue
			}
			return nil, err
		}
	}
	pkt := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return pkt, nil
}

func (c *mpegtsContainer) Close() error {
	c.queue = nil
	return c.file.Close()
}
