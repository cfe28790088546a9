package avplayer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/at-wat/ebml-go"
)

// Matroska element layout, limited to what playback reads. Channel fields
// are sent to by the parser as each element completes, so clusters stream
// through without the file being held in memory.
type mkvFile struct {
	Header  chan mkvHeader `ebml:"EBML"`
	Segment mkvSegment     `ebml:"Segment"`
}

type mkvHeader struct {
	DocType string `ebml:"EBMLDocType"`
}

type mkvSegment struct {
	Info    chan mkvInfo   `ebml:"Info"`
	Tracks  chan mkvTracks `ebml:"Tracks"`
	Cluster mkvCluster     `ebml:"Cluster"`
}

type mkvInfo struct {
	TimecodeScale uint64  `ebml:"TimecodeScale"`
	Duration      float64 `ebml:"Duration"`
}

type mkvTracks struct {
	TrackEntry []mkvTrackEntry `ebml:"TrackEntry"`
}

type mkvTrackEntry struct {
	TrackNumber     uint64    `ebml:"TrackNumber"`
	TrackType       uint64    `ebml:"TrackType"`
	CodecID         string    `ebml:"CodecID"`
	CodecPrivate    []byte    `ebml:"CodecPrivate"`
	DefaultDuration uint64    `ebml:"DefaultDuration"`
	Video           *mkvVideo `ebml:"Video"`
	Audio           *mkvAudio `ebml:"Audio"`
}

type mkvVideo struct {
	PixelWidth  uint64 `ebml:"PixelWidth"`
	PixelHeight uint64 `ebml:"PixelHeight"`
}

type mkvAudio struct {
	SamplingFrequency float64 `ebml:"SamplingFrequency"`
	Channels          uint64  `ebml:"Channels"`
	BitDepth          uint64  `ebml:"BitDepth"`
}

// mkvCluster is reused for every cluster; only its channels carry data.
type mkvCluster struct {
	Timecode    chan uint64        `ebml:"Timecode"`
	SimpleBlock chan ebml.Block    `ebml:"SimpleBlock"`
	BlockGroup  chan mkvBlockGroup `ebml:"BlockGroup"`
}

type mkvBlockGroup struct {
	Block          ebml.Block `ebml:"Block"`
	ReferenceBlock []int64    `ebml:"ReferenceBlock"`
}

// Matroska TrackType values.
const (
	mkvTrackVideo = 1
	mkvTrackAudio = 2
)

const mkvDefaultTimecodeScale = 1000000 // 1ms

type mkvTrack struct {
	stream          int
	kind            StreamKind
	defaultDuration int64 // ticks, 0 if unknown
	avcc            *avccConverter
}

// matroskaContainer demuxes Matroska and WebM. A parser goroutine walks the
// file and hands over one element at a time, so it never runs further ahead
// of ReadPacket than the block being parsed.
type matroskaContainer struct {
	rc      io.ReadCloser
	doc     mkvFile
	parsed  chan struct{}
	err     error // set before parsed is closed
	docType string
	scale   int64
	streams []StreamInfo
	tracks  map[uint64]*mkvTrack

	clusterTime uint64
	queue       []*Packet
	closeOnce   sync.Once
}

// newMatroskaContainer takes ownership of rc, closing it on failure.
func newMatroskaContainer(rc io.ReadCloser) (*matroskaContainer, error) {
	c := &matroskaContainer{
		rc: rc,
		doc: mkvFile{
			Header: make(chan mkvHeader),
			Segment: mkvSegment{
				Info:   make(chan mkvInfo),
				Tracks: make(chan mkvTracks),
				Cluster: mkvCluster{
					Timecode:    make(chan uint64),
					SimpleBlock: make(chan ebml.Block),
					BlockGroup:  make(chan mkvBlockGroup),
				},
			},
		},
		parsed: make(chan struct{}),
		scale:  mkvDefaultTimecodeScale,
		tracks: make(map[uint64]*mkvTrack),
	}
	go func() {
		defer close(c.parsed)
		c.err = ebml.Unmarshal(bufio.NewReaderSize(rc, 1<<16), &c.doc)
	}()

	tracks, err := c.readHeader()
	if err != nil {
		c.Close()
		return nil, err
	}
	if err := c.addTracks(tracks); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// readHeader consumes elements up to the track list.
func (c *matroskaContainer) readHeader() (mkvTracks, error) {
	seg := &c.doc.Segment
	for {
		select {
		case h := <-c.doc.Header:
			c.docType = h.DocType
		case info := <-seg.Info:
			if info.TimecodeScale != 0 {
				c.scale = int64(info.TimecodeScale)
			}
		case tracks := <-seg.Tracks:
			return tracks, nil
		case <-seg.Cluster.Timecode:
			return mkvTracks{}, errors.New("parse matroska: cluster before tracks")
		case <-seg.Cluster.SimpleBlock:
			return mkvTracks{}, errors.New("parse matroska: block before tracks")
		case <-seg.Cluster.BlockGroup:
			return mkvTracks{}, errors.New("parse matroska: block before tracks")
		case <-c.parsed:
			if c.err != nil {
				return mkvTracks{}, fmt.Errorf("parse matroska: %w", c.err)
			}
			return mkvTracks{}, errors.New("matroska file has no tracks")
		}
	}
}

func (c *matroskaContainer) addTracks(tracks mkvTracks) error {
	scale := c.scale
	timeBase := Rational{Num: scale, Den: 1000000000}

	for _, te := range tracks.TrackEntry {
		info := StreamInfo{
			Index:        len(c.streams),
			CodecID:      te.CodecID,
			TimeBase:     timeBase,
			CodecPrivate: te.CodecPrivate,
		}
		track := &mkvTrack{
			stream:          info.Index,
			defaultDuration: int64(te.DefaultDuration) / scale,
		}

		switch te.TrackType {
		case mkvTrackVideo:
			info.Kind = StreamKindVideo
			info.VideoCodec = videoCodecFromMatroska(te.CodecID)
			if te.Video != nil {
				info.Width = int(te.Video.PixelWidth)
				info.Height = int(te.Video.PixelHeight)
			}
			if info.VideoCodec == VideoCodecH264 && len(te.CodecPrivate) > 0 {
				conv, err := newAVCCConverter(te.CodecPrivate)
				if err != nil {
					return fmt.Errorf("track %d: %w", te.TrackNumber, err)
				}
				track.avcc = conv
			}
		case mkvTrackAudio:
			info.Kind = StreamKindAudio
			info.AudioCodec, info.BigEndian = audioCodecFromMatroska(te.CodecID)
			if te.Audio != nil {
				info.SampleRate = int(te.Audio.SamplingFrequency)
				info.Channels = int(te.Audio.Channels)
				info.BitDepth = int(te.Audio.BitDepth)
			}
			if info.SampleRate == 0 {
				info.SampleRate = 8000 // Matroska default
			}
			if info.Channels == 0 {
				info.Channels = 1
			}
		}

		track.kind = info.Kind
		c.streams = append(c.streams, info)
		c.tracks[te.TrackNumber] = track
	}

	if len(c.streams) == 0 {
		return errors.New("matroska file has no tracks")
	}
	return nil
}

func (c *matroskaContainer) Format() string {
	if c.docType == "" {
		return "matroska"
	}
	return c.docType
}

func (c *matroskaContainer) Streams() []StreamInfo { return c.streams }

// ReadPacket implements Container. Blocks come in file order; a truncated
// tail ends the stream like EOF.
func (c *matroskaContainer) ReadPacket() (*Packet, error) {
	seg := &c.doc.Segment
	for len(c.queue) == 0 {
		select {
		case tc := <-seg.Cluster.Timecode:
			c.clusterTime = tc
		case b := <-seg.Cluster.SimpleBlock:
			c.queue = c.appendBlock(c.queue, c.clusterTime, &b, b.Keyframe)
		case g := <-seg.Cluster.BlockGroup:
			c.queue = c.appendBlock(c.queue, c.clusterTime, &g.Block, len(g.ReferenceBlock) == 0)
		case <-c.doc.Header:
		case <-seg.Info:
		case <-seg.Tracks:
		case <-c.parsed:
			if c.err != nil && !errors.Is(c.err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("parse matroska: %w", c.err)
			}
			return nil, io.EOF
		}
	}
	pkt := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return pkt, nil
}

func (c *matroskaContainer) appendBlock(pkts []*Packet, clusterTime uint64, b *ebml.Block, keyframe bool) []*Packet {
	track, ok := c.tracks[b.TrackNumber]
	if !ok {
		return pkts
	}
	pts := int64(clusterTime) + int64(b.Timecode)
	for i, frame := range b.Data {
		if len(frame) == 0 {
			continue
		}
		data := frame
		key := keyframe
		if track.avcc != nil && !isAnnexB(frame) {
			converted, idr, err := track.avcc.toAnnexB(frame)
			if err != nil {
				// Undecodable payloads are left for the decoder to reject.
				converted = frame
			}
			data = converted
			key = key || idr
		}
		pkts = append(pkts, &Packet{
			Stream:      track.kind,
			StreamIndex: track.stream,
			Data:        data,
			PTS:         pts + int64(i)*track.defaultDuration,
			DTS:         pts + int64(i)*track.defaultDuration,
			Keyframe:    key,
		})
	}
	return pkts
}

// Close stops the parser. Closing the file makes its next read fail;
// elements it still hands over are discarded until it exits.
func (c *matroskaContainer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.rc.Close()
		seg := &c.doc.Segment
		for {
			select {
			case <-c.doc.Header:
			case <-seg.Info:
			case <-seg.Tracks:
			case <-seg.Cluster.Timecode:
			case <-seg.Cluster.SimpleBlock:
			case <-seg.Cluster.BlockGroup:
			case <-c.parsed:
				c.queue = nil
				return
			}
		}
	})
	return err
}
