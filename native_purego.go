//go:build darwin || linux

// Shared loader and decode loop for the libmedia_*/libstream_* wrappers,
// loaded at runtime with purego (no cgo).

package avplayer

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/hashicorp/go-multierror"
)

// nativeLib is one dynamically loaded wrapper library.
type nativeLib struct {
	name   string // file stem without "lib" prefix, e.g. "media_vpx"
	envVar string // full path override for this library
	sdkEnv string // directory override shared by the library family
	bind   func(handle uintptr) error

	once   sync.Once
	handle uintptr
	err    error
}

// load opens the library on first use and binds its symbols.
func (l *nativeLib) load() error {
	l.once.Do(func() {
		l.err = l.open()
	})
	return l.err
}

func (l *nativeLib) open() error {
	var lastErr error
	for _, path := range l.candidatePaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := l.bind(handle); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		l.handle = handle
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("failed to load lib%s: %w", l.name, lastErr)
	}
	return fmt.Errorf("lib%s not found in any standard location", l.name)
}

func (l *nativeLib) candidatePaths() []string {
	libName := "lib" + l.name + ".so"
	if runtime.GOOS == "darwin" {
		libName = "lib" + l.name + ".dylib"
	}

	var paths []string
	if envPath := os.Getenv(l.envVar); envPath != "" {
		paths = append(paths, envPath)
	}
	if dir := os.Getenv(l.sdkEnv); dir != "" {
		paths = append(paths, filepath.Join(dir, libName))
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, libName),
			filepath.Join(exeDir, "..", "lib", libName),
		)
	}

	if root := findModuleRoot(); root != "" {
		paths = append(paths,
			filepath.Join(root, "build", libName),
			filepath.Join(root, "build", "ffi", libName),
		)
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			libName,
			filepath.Join("/usr/local/lib", libName),
			filepath.Join("/opt/homebrew/lib", libName),
		)
	case "linux":
		paths = append(paths,
			libName,
			filepath.Join("/usr/local/lib", libName),
			filepath.Join("/usr/lib", libName),
			filepath.Join("/usr/lib/x86_64-linux-gnu", libName),
			filepath.Join("/usr/lib/aarch64-linux-gnu", libName),
		)
	}
	return paths
}

// bindSymbol looks up name and binds it to fptr. Unlike RegisterLibFunc it
// reports a missing symbol instead of panicking.
func bindSymbol(handle uintptr, fptr any, name string) error {
	sym, err := purego.Dlsym(handle, name)
	if err != nil {
		return fmt.Errorf("symbol %s: %w", name, err)
	}
	purego.RegisterFunc(fptr, sym)
	return nil
}

// bindSymbols binds a name -> function pointer table, reporting every
// missing symbol in name order.
func bindSymbols(handle uintptr, syms map[string]any) error {
	var result *multierror.Error
	for _, name := range slices.Sorted(maps.Keys(syms)) {
		if err := bindSymbol(handle, syms[name], name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// goStringFromPtr converts a C string pointer to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var length int
	for *(*byte)(unsafe.Add(p, length)) != 0 {
		length++
		if length > 1024 { // Safety limit
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}

// findModuleRoot walks up from the working directory to the directory
// containing go.mod.
func findModuleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// nativePicture matches media_vpx_decode_result_t; the out-parameter style
// wrappers write into its fields directly. It must be heap-allocated so the
// GC cannot move it during the call (arm64).
type nativePicture struct {
	YPtr     uint64
	UPtr     uint64
	VPtr     uint64
	YStride  int32
	UVStride int32
	Width    int32
	Height   int32
	Result   int32 // 1=decoded, 0=buffering, <0=error
	Reserved int32
}

// outParams returns the field addresses for out-parameter style decode calls.
func (p *nativePicture) outParams() (y, u, v, yStride, uvStride, width, height uintptr) {
	return uintptr(unsafe.Pointer(&p.YPtr)),
		uintptr(unsafe.Pointer(&p.UPtr)),
		uintptr(unsafe.Pointer(&p.VPtr)),
		uintptr(unsafe.Pointer(&p.YStride)),
		uintptr(unsafe.Pointer(&p.UVStride)),
		uintptr(unsafe.Pointer(&p.Width)),
		uintptr(unsafe.Pointer(&p.Height))
}

// toFrame copies the native planes into Go memory.
func (p *nativePicture) toFrame() (*RawFrame, error) {
	w, h := int(p.Width), int(p.Height)
	if w <= 0 || h <= 0 || p.YPtr == 0 || p.UPtr == 0 || p.VPtr == 0 || p.YStride <= 0 || p.UVStride <= 0 {
		return nil, fmt.Errorf("invalid decoder output: stride=%d/%d, size=%dx%d",
			p.YStride, p.UVStride, w, h)
	}

	frame := NewI420Frame(w, h)
	uvW, uvH := (w+1)/2, (h+1)/2
	copyPlane(frame.Data[0], frame.Stride[0], p.YPtr, int(p.YStride), w, h)
	copyPlane(frame.Data[1], frame.Stride[1], p.UPtr, int(p.UVStride), uvW, uvH)
	copyPlane(frame.Data[2], frame.Stride[2], p.VPtr, int(p.UVStride), uvW, uvH)
	return frame, nil
}

func copyPlane(dst []byte, dstStride int, src uint64, srcStride, width, rows int) {
	for row := 0; row < rows; row++ {
		line := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(src)+uintptr(row*srcStride))), width)
		copy(dst[row*dstStride:row*dstStride+width], line)
	}
}

// nativeVideoAPI adapts one wrapper library to the shared decode loop.
type nativeVideoAPI struct {
	codec    VideoCodec
	provider Provider
	create   func(threads int32) uint64
	decode   func(handle uint64, data []byte, pic *nativePicture) int32
	flush    func(handle uint64, pic *nativePicture) int32 // nil when the wrapper has no flush entry point
	destroy  func(handle uint64)
	lastErr  func() string
}

// maxFlushFrames bounds the drain loop in Flush.
const maxFlushFrames = 64

// NativeVideoDecoder implements VideoDecoder over a libmedia_* wrapper.
type NativeVideoDecoder struct {
	api    *nativeVideoAPI
	handle uint64
	pic    *nativePicture

	pending ptsQueue
	lastPTS int64

	stats   DecoderStats
	statsMu sync.Mutex
	mu      sync.Mutex
}

func newNativeVideoDecoder(api *nativeVideoAPI, config VideoDecoderConfig) (*NativeVideoDecoder, error) {
	threads := int32(4)
	if config.Threads > 0 {
		threads = int32(config.Threads)
	}

	handle := api.create(threads)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create %s decoder: %s", api.codec, api.lastErr())
	}
	return &NativeVideoDecoder{
		api:    api,
		handle: handle,
		pic:    &nativePicture{},
	}, nil
}

// Decode implements VideoDecoder.
func (d *NativeVideoDecoder) Decode(pkt *Packet) ([]*RawFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return nil, ErrDecoderClosed
	}
	if len(pkt.Data) == 0 {
		return nil, errors.New("empty encoded data")
	}

	d.pending.push(pkt.PTS)
	*d.pic = nativePicture{}
	result := d.api.decode(d.handle, pkt.Data, d.pic)
	runtime.KeepAlive(pkt.Data)
	runtime.KeepAlive(d.pic)

	if result < 0 {
		d.pending.remove(pkt.PTS)
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return nil, fmt.Errorf("decode failed: %s", d.api.lastErr())
	}

	d.statsMu.Lock()
	d.stats.BytesDecoded += uint64(len(pkt.Data))
	if pkt.Keyframe {
		d.stats.KeyframesDecoded++
	}
	d.statsMu.Unlock()

	if result == 0 {
		return nil, nil // Buffering, no frame yet
	}

	frame, err := d.takeFrame()
	if err != nil {
		return nil, err
	}
	return []*RawFrame{frame}, nil
}

func (d *NativeVideoDecoder) takeFrame() (*RawFrame, error) {
	frame, err := d.pic.toFrame()
	if err != nil {
		d.pending.popMin()
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return nil, err
	}

	if pts, ok := d.pending.popMin(); ok {
		d.lastPTS = pts
	}
	frame.PTS = d.lastPTS

	d.statsMu.Lock()
	d.stats.FramesDecoded++
	d.statsMu.Unlock()
	return frame, nil
}

// Flush implements VideoDecoder.
func (d *NativeVideoDecoder) Flush() ([]*RawFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	defer d.pending.reset()
	if d.handle == 0 || d.api.flush == nil {
		return nil, nil
	}

	var frames []*RawFrame
	for i := 0; i < maxFlushFrames; i++ {
		*d.pic = nativePicture{}
		result := d.api.flush(d.handle, d.pic)
		runtime.KeepAlive(d.pic)
		if result < 0 {
			return frames, fmt.Errorf("flush failed: %s", d.api.lastErr())
		}
		if result == 0 {
			break
		}
		frame, err := d.takeFrame()
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// Codec implements VideoDecoder.
func (d *NativeVideoDecoder) Codec() VideoCodec { return d.api.codec }

// Provider implements VideoDecoder.
func (d *NativeVideoDecoder) Provider() Provider { return d.api.provider }

// Stats implements VideoDecoder.
func (d *NativeVideoDecoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Close implements VideoDecoder.
func (d *NativeVideoDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != 0 {
		d.api.destroy(d.handle)
		d.handle = 0
	}
	return nil
}

// dataPtr returns the address of the first byte of b.
func dataPtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
