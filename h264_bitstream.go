package avplayer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// avccConverter rewrites length-prefixed (AVCC) H.264 access units into
// Annex-B, re-inserting the parameter sets from the avcC record on every
// random access point.
type avccConverter struct {
	lengthSize int
	sps        [][]byte
	pps        [][]byte
}

// newAVCCConverter parses an AVCDecoderConfigurationRecord.
func newAVCCConverter(avcC []byte) (*avccConverter, error) {
	if len(avcC) < 7 || avcC[0] != 1 {
		return nil, errors.New("invalid avcC record")
	}
	c := &avccConverter{lengthSize: int(avcC[4]&0x03) + 1}
	if c.lengthSize == 3 {
		return nil, errors.New("invalid avcC NALU length size 3")
	}

	buf := avcC[5:]
	readSets := func(count int) ([][]byte, error) {
		var sets [][]byte
		for i := 0; i < count; i++ {
			if len(buf) < 2 {
				return nil, errors.New("truncated avcC parameter set")
			}
			n := int(binary.BigEndian.Uint16(buf))
			if len(buf) < 2+n {
				return nil, errors.New("truncated avcC parameter set")
			}
			sets = append(sets, buf[2:2+n])
			buf = buf[2+n:]
		}
		return sets, nil
	}

	var err error
	numSPS := int(buf[0] & 0x1F)
	buf = buf[1:]
	if c.sps, err = readSets(numSPS); err != nil {
		return nil, err
	}
	if len(buf) < 1 {
		return nil, errors.New("avcC has no PPS count")
	}
	numPPS := int(buf[0])
	buf = buf[1:]
	if c.pps, err = readSets(numPPS); err != nil {
		return nil, err
	}
	return c, nil
}

// splitNALUs splits a length-prefixed access unit.
func (c *avccConverter) splitNALUs(data []byte) ([][]byte, error) {
	if c.lengthSize == 4 {
		var au h264.AVCC
		if err := au.Unmarshal(data); err != nil {
			return nil, err
		}
		return au, nil
	}

	var au [][]byte
	for len(data) > 0 {
		if len(data) < c.lengthSize {
			return nil, errors.New("truncated NALU length")
		}
		var n int
		for i := 0; i < c.lengthSize; i++ {
			n = n<<8 | int(data[i])
		}
		data = data[c.lengthSize:]
		if n > len(data) {
			return nil, fmt.Errorf("NALU length %d exceeds remaining %d bytes", n, len(data))
		}
		if n > 0 {
			au = append(au, data[:n])
		}
		data = data[n:]
	}
	return au, nil
}

// toAnnexB converts one access unit.
func (c *avccConverter) toAnnexB(data []byte) ([]byte, bool, error) {
	au, err := c.splitNALUs(data)
	if err != nil {
		return nil, false, err
	}
	idr := isRandomAccess(au)
	if idr && !hasParameterSets(au) {
		withSets := make([][]byte, 0, len(c.sps)+len(c.pps)+len(au))
		withSets = append(withSets, c.sps...)
		withSets = append(withSets, c.pps...)
		au = append(withSets, au...)
	}

	out, err := h264.AnnexB(au).Marshal()
	if err != nil {
		return nil, false, err
	}
	return out, idr, nil
}

// isRandomAccess reports whether the access unit contains an IDR slice.
func isRandomAccess(au [][]byte) bool {
	for _, nalu := range au {
		if len(nalu) > 0 && h264.NALUType(nalu[0]&0x1F) == h264.NALUTypeIDR {
			return true
		}
	}
	return false
}

func hasParameterSets(au [][]byte) bool {
	for _, nalu := range au {
		if len(nalu) > 0 && h264.NALUType(nalu[0]&0x1F) == h264.NALUTypeSPS {
			return true
		}
	}
	return false
}

// isAnnexB reports whether data starts with a start code.
func isAnnexB(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0, 0, 0, 1}) || bytes.HasPrefix(data, []byte{0, 0, 1})
}
