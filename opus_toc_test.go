package avplayer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpusPacketSamples(t *testing.T) {
	tests := []struct {
		name string
		pkt  []byte
		want int
	}{
		{"silk 20ms single", []byte{1 << 3}, 960},
		{"silk 60ms single", []byte{3 << 3}, 2880},
		{"hybrid 10ms single", []byte{12 << 3}, 480},
		{"celt 20ms two frames", []byte{31<<3 | 1}, 1920},
		{"celt 2.5ms cbr pair", []byte{16<<3 | 2}, 240},
		{"celt 2.5ms code 3 x4", []byte{16<<3 | 3, 4}, 480},
		{"too long", []byte{3<<3 | 3, 3}, 0},
		{"code 3 without count", []byte{16<<3 | 3}, 0},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, opusPacketSamples(tt.pkt))
		})
	}
}

func TestParseOpusHead(t *testing.T) {
	head := []byte{'O', 'p', 'u', 's', 'H', 'e', 'a', 'd', 1, 2, 0x38, 0x01, 0x80, 0xbb, 0, 0, 0, 0, 0}
	channels, preSkip, ok := parseOpusHead(head)
	assert.True(t, ok)
	assert.Equal(t, 2, channels)
	assert.Equal(t, 312, preSkip)

	_, _, ok = parseOpusHead(head[:10])
	assert.False(t, ok, "short header accepted")
}
