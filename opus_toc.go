package avplayer

import "encoding/binary"

// opusPacketSamples returns the duration of an Opus packet in 48kHz samples
// per channel, read from its TOC byte (RFC 6716 section 3.1). It returns 0
// for a malformed packet.
func opusPacketSamples(pkt []byte) int {
	if len(pkt) == 0 {
		return 0
	}
	toc := pkt[0]
	config := toc >> 3

	var frame int
	switch {
	case config < 12: // SILK-only: 10, 20, 40, 60 ms
		frame = [4]int{480, 960, 1920, 2880}[config%4]
	case config < 16: // Hybrid: 10, 20 ms
		frame = [2]int{480, 960}[config%2]
	default: // CELT-only: 2.5, 5, 10, 20 ms
		frame = [4]int{120, 240, 480, 960}[config%4]
	}

	var count int
	switch toc & 0x3 {
	case 0:
		count = 1
	case 1, 2:
		count = 2
	default:
		if len(pkt) < 2 {
			return 0
		}
		count = int(pkt[1] & 0x3F)
	}

	total := frame * count
	if total > opusMaxPacketSamples {
		return 0
	}
	return total
}

const (
	// opusSampleRate is the rate Opus decodes and timestamps at.
	opusSampleRate = 48000
	// opusMaxPacketSamples is 120 ms at 48kHz.
	opusMaxPacketSamples = 5760
)

// parseOpusHead reads the channel count and pre-skip from an OpusHead
// identification header (Matroska CodecPrivate).
func parseOpusHead(b []byte) (channels, preSkip int, ok bool) {
	if len(b) < 19 || string(b[:8]) != "OpusHead" {
		return 0, 0, false
	}
	return int(b[9]), int(binary.LittleEndian.Uint16(b[10:12])), true
}
