//go:build !astiav || !cgo

package avplayer

// newRateConverter has no native backend in this build; the Resampler
// interpolates in Go.
func newRateConverter(inRate, outRate, channels int) (rateConverter, error) {
	return nil, nil
}
