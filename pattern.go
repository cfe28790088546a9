package avplayer

import (
	"fmt"
	"image/color"
	"math"
	"sync"
)

// PatternType selects a synthetic picture.
type PatternType int

const (
	PatternColorBars    PatternType = iota // 75% color bars
	PatternGradient                        // Horizontal gradient
	PatternCheckerboard                    // Checkerboard pattern
	PatternSolidColor                      // Solid color
	PatternNoise                           // Random noise (animated)
	PatternMovingBox                       // Moving box (animated)
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "bars"
	case PatternGradient:
		return "gradient"
	case PatternCheckerboard:
		return "checkerboard"
	case PatternSolidColor:
		return "solid"
	case PatternNoise:
		return "noise"
	case PatternMovingBox:
		return "box"
	default:
		return "unknown"
	}
}

// ParsePatternType parses the names returned by PatternType.String.
func ParsePatternType(s string) (PatternType, error) {
	for p := PatternColorBars; p <= PatternMovingBox; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown pattern %q", s)
}

// TestPatternConfig configures a TestPatternSource.
type TestPatternConfig struct {
	Width   int // Output width in pixels
	Height  int // Output height in pixels
	Pattern PatternType

	// For PatternSolidColor
	Color color.RGBA

	// For PatternCheckerboard (default: 32)
	CheckerSize int
}

// TestPatternSource renders a synthetic picture. Static patterns are drawn
// once; animated ones advance by one step per Frame call, so they move at
// the caller's tick rate.
type TestPatternSource struct {
	config TestPatternConfig
	scaler *VideoScaler

	mu       sync.Mutex
	frame    *RawFrame
	pix      []byte
	step     uint64
	rngState uint64
}

// NewTestPatternSource creates a pattern source.
func NewTestPatternSource(config TestPatternConfig) *TestPatternSource {
	if config.CheckerSize <= 0 {
		config.CheckerSize = 32
	}
	w, h := max(config.Width, 2), max(config.Height, 2)

	s := &TestPatternSource{
		config:   config,
		scaler:   NewVideoScaler(w, h, ScaleModeStretch, nil),
		frame:    NewI420Frame(w, h),
		rngState: 0x9E3779B97F4A7C15,
	}
	s.render()
	return s
}

// Frame implements FrameSource.
func (s *TestPatternSource) Frame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.animated() {
		s.step++
		s.render()
	}
	return s.pix
}

func (s *TestPatternSource) animated() bool {
	return s.config.Pattern == PatternNoise || s.config.Pattern == PatternMovingBox
}

func (s *TestPatternSource) render() {
	switch s.config.Pattern {
	case PatternGradient:
		s.drawGradient()
	case PatternCheckerboard:
		s.drawCheckerboard()
	case PatternSolidColor:
		c := s.config.Color
		s.fill(c.R, c.G, c.B)
	case PatternNoise:
		s.drawNoise()
	case PatternMovingBox:
		s.drawMovingBox()
	default:
		s.drawColorBars()
	}

	// Conversion of a well-formed I420 frame cannot fail.
	pix, _ := s.scaler.Convert(s.frame)
	s.pix = pix
}

var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{0, 0, 0},       // Black
}

func (s *TestPatternSource) drawColorBars() {
	f := s.frame
	barWidth := max(1, f.Width/len(colorBarsRGB))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			rgb := colorBarsRGB[min(x/barWidth, len(colorBarsRGB)-1)]
			yy, cb, cr := color.RGBToYCbCr(rgb[0], rgb[1], rgb[2])
			s.set(x, y, yy, cb, cr)
		}
	}
}

func (s *TestPatternSource) drawGradient() {
	f := s.frame
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			s.set(x, y, uint8(x*255/f.Width), 128, 128)
		}
	}
}

func (s *TestPatternSource) drawCheckerboard() {
	f := s.frame
	size := s.config.CheckerSize
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			var yy uint8
			if ((x/size)+(y/size))%2 == 0 {
				yy = 255
			}
			s.set(x, y, yy, 128, 128)
		}
	}
}

func (s *TestPatternSource) fill(r, g, b uint8) {
	yy, cb, cr := color.RGBToYCbCr(r, g, b)
	f := s.frame
	for i := range f.Data[0] {
		f.Data[0][i] = yy
	}
	for i := range f.Data[1] {
		f.Data[1][i] = cb
		f.Data[2][i] = cr
	}
}

func (s *TestPatternSource) drawNoise() {
	// xorshift64
	f := s.frame
	for i := range f.Data[0] {
		s.rngState ^= s.rngState << 13
		s.rngState ^= s.rngState >> 7
		s.rngState ^= s.rngState << 17
		f.Data[0][i] = uint8(s.rngState)
	}
	for i := range f.Data[1] {
		f.Data[1][i] = 128
		f.Data[2][i] = 128
	}
}

func (s *TestPatternSource) drawMovingBox() {
	s.fill(0, 0, 0)

	f := s.frame
	boxSize := max(1, min(f.Width, f.Height)/5)
	radius := float64(min(f.Width, f.Height)) / 4
	angle := float64(s.step) * 0.05 // radians per step
	boxX := f.Width/2 + int(radius*math.Cos(angle)) - boxSize/2
	boxY := f.Height/2 + int(radius*math.Sin(angle)) - boxSize/2

	for y := max(boxY, 0); y < min(boxY+boxSize, f.Height); y++ {
		for x := max(boxX, 0); x < min(boxX+boxSize, f.Width); x++ {
			s.set(x, y, 255, 128, 128)
		}
	}
}

// set writes one pixel; chroma is taken from the top-left pixel of each
// 2x2 block.
func (s *TestPatternSource) set(x, y int, yy, cb, cr uint8) {
	f := s.frame
	f.Data[0][y*f.Stride[0]+x] = yy
	if x%2 == 0 && y%2 == 0 {
		i := (y/2)*f.Stride[1] + x/2
		f.Data[1][i] = cb
		f.Data[2][i] = cr
	}
}
