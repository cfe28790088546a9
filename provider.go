package avplayer

import "sync/atomic"

// Provider identifies a decoder implementation.
type Provider uint8

const (
	ProviderAuto     Provider = iota // Let library choose best available
	ProviderOpenH264                 // BSD H.264 decoder
	ProviderLibvpx                   // BSD VP8/VP9
	ProviderAOM                      // BSD AV1 (libaom)
	ProviderLibopus                  // BSD Opus
	ProviderGo                       // pure Go (LPCM, raw video)
	providerCount
)

// License represents the software license of a provider.
type License uint8

const (
	LicenseGPL License = iota // Copyleft - requires source disclosure
	LicenseBSD                // Permissive - no copyleft obligations
)

// Permissive returns true if the license has no copyleft obligations.
func (l License) Permissive() bool { return l == LicenseBSD }

func (l License) String() string {
	switch l {
	case LicenseGPL:
		return "GPL"
	case LicenseBSD:
		return "BSD"
	default:
		return "unknown"
	}
}

// providerMeta contains static metadata about a provider.
type providerMeta struct {
	Name    string
	License License
	Native  bool // backed by a dynamically loaded library
}

// Static metadata table - indexed by Provider, zero allocations.
var providerInfo = [providerCount]providerMeta{
	ProviderAuto:     {"auto", LicenseBSD, false},
	ProviderOpenH264: {"openh264", LicenseBSD, true},
	ProviderLibvpx:   {"libvpx", LicenseBSD, true},
	ProviderAOM:      {"libaom", LicenseBSD, true},
	ProviderLibopus:  {"libopus", LicenseBSD, true},
	ProviderGo:       {"go", LicenseBSD, false},
}

// Runtime availability - set by init() in provider implementations.
var providerAvailable [providerCount]atomic.Bool

// String returns the provider name.
func (p Provider) String() string {
	if p >= providerCount {
		return "unknown"
	}
	return providerInfo[p].Name
}

// License returns the provider's license type.
func (p Provider) License() License {
	if p >= providerCount {
		return LicenseGPL
	}
	return providerInfo[p].License
}

// Native returns true if the provider loads a shared library at runtime.
func (p Provider) Native() bool {
	if p >= providerCount {
		return false
	}
	return providerInfo[p].Native
}

// Available returns true if the provider is usable at runtime.
func (p Provider) Available() bool {
	if p >= providerCount {
		return false
	}
	return providerAvailable[p].Load()
}

// setProviderAvailable marks a provider as available (called by implementations).
func setProviderAvailable(p Provider) {
	if p < providerCount {
		providerAvailable[p].Store(true)
	}
}
