package video

import (
	"bytes"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"

	"github.com/user/gopseek/pkg/mocks"
	"github.com/user/gopseek/pkg/ports"
)

func openSynthetic(t *testing.T, spec mocks.StreamSpec) (*Handle, *mocks.Backend) {
	t.Helper()
	backend := mocks.NewBackend(spec)
	h, err := Open("synthetic.mp4", Options{Backend: backend})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	backend.ResetCounters()
	return h, backend
}

func TestOpen_FatalErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*mocks.StreamSpec)
		want   error
		kind   Kind
	}{
		{"no video", func(s *mocks.StreamSpec) { s.NoVideo = true }, ErrNoVideo, KindNoVideo},
		{"bad frame rate", func(s *mocks.StreamSpec) { s.FrameRate = ports.Rational{} }, ErrBadFrameRate, KindBadFrameRate},
		{"open gop", func(s *mocks.StreamSpec) { s.OpenGOPFrames = []int{60} }, ErrOpenGOP, KindOpenGOP},
		{"misaligned", func(s *mocks.StreamSpec) {
			s.TimeBase = ports.Rational{Num: 1, Den: 600}
			s.MisalignedFrames = []int{7}
		}, ErrMisalignedTiming, KindMisalignedTiming},
		{"gap", func(s *mocks.StreamSpec) { s.DropFrames = []int{12} }, ErrMissingPTS, KindMissingPTS},
		{"duplicate", func(s *mocks.StreamSpec) { s.DuplicateFrames = []int{12} }, ErrDuplicatePTS, KindDuplicatePTS},
		{"no frames", func(s *mocks.StreamSpec) { s.Frames = 0 }, ErrNoFrames, KindNoFrames},
		{"hardware decoder", func(s *mocks.StreamSpec) { s.HardwareDecoder = true }, ErrHardwareDecoder, KindHardwareDecoder},
		{"unreadable container", nil, ErrOpenFailed, KindOpenFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := mocks.DefaultStream()
			if tt.mutate != nil {
				tt.mutate(&spec)
			}
			backend := mocks.NewBackend(spec)
			if tt.mutate == nil {
				backend.ReadPacketErr = errors.New("truncated sample table")
				backend.ReadPacketErrAt = 10
			}
			h, err := Open("synthetic.mp4", Options{Backend: backend})
			if h != nil {
				t.Error("no handle expected on failure")
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if got := KindOf(err); got != tt.kind {
				t.Errorf("KindOf = %s, want %s", got, tt.kind)
			}
			if !KindOf(err).Fatal() {
				t.Errorf("%s should be fatal", tt.kind)
			}
			if c := backend.Counters(); c.DemuxersOpen != 0 || c.DecodersOpen != 0 {
				t.Errorf("leaked resources: %+v", c)
			}
		})
	}
}

func TestOpen_ContainerFailure(t *testing.T) {
	backend := mocks.NewBackend(mocks.DefaultStream())
	backend.OpenContainerFunc = func(path string) (ports.Demuxer, error) {
		return nil, errors.New("moov box missing")
	}
	_, err := Open("broken.mp4", Options{Backend: backend})
	if !errors.Is(err, ErrOpenFailed) || KindOf(err) != KindOpenFailed {
		t.Errorf("expected open-failed, got %v (%s)", err, KindOf(err))
	}

	if _, err := Open("x.mp4", Options{}); KindOf(err) != KindOpenFailed {
		t.Errorf("missing backend: got %v", err)
	}
}

func TestOpen_DecoderFailureReleasesDemuxer(t *testing.T) {
	backend := mocks.NewBackend(mocks.DefaultStream())
	backend.NewDecoderFunc = func(ports.StreamInfo) (ports.Decoder, error) {
		return nil, errors.New("decoder not found")
	}
	_, err := Open("synthetic.mp4", Options{Backend: backend})
	if !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("expected ErrOpenFailed, got %v", err)
	}
	if backend.Counters().DemuxersOpen != 0 {
		t.Error("demuxer not released")
	}
}

func TestHandle_NinetyFrameScenario(t *testing.T) {
	spec := mocks.DefaultStream()
	h, backend := openSynthetic(t, spec)

	if h.FrameCount() != 90 {
		t.Fatalf("FrameCount = %d", h.FrameCount())
	}

	steps := []struct {
		frame     int
		seeks     int
		hits      int
		fills     int
		wantStart int
	}{
		{45, 1, 0, 1, 30},
		{50, 1, 1, 1, 30},
		{65, 2, 1, 2, 60},
	}
	for _, s := range steps {
		got, err := h.ReadFrame(s.frame, ports.LayoutGray)
		if err != nil {
			t.Fatalf("ReadFrame(%d) failed: %v", s.frame, err)
		}
		if !bytes.Equal(got, mocks.ExpectedFrame(ports.LayoutGray, spec.Width, spec.Height, s.frame)) {
			t.Errorf("frame %d content mismatch", s.frame)
		}
		if n := backend.Counters().Seeks; n != s.seeks {
			t.Errorf("after ReadFrame(%d): seeks = %d, want %d", s.frame, n, s.seeks)
		}
		st := h.CacheStats()
		if st.Hits != s.hits || st.Fills != s.fills {
			t.Errorf("after ReadFrame(%d): stats = %+v", s.frame, st)
		}
		if start, count, _ := h.cache.Window(); start != s.wantStart || count != 30 {
			t.Errorf("after ReadFrame(%d): window = %d+%d", s.frame, start, count)
		}
	}
}

func TestHandle_SeekDeterminism(t *testing.T) {
	spec := mocks.DefaultStream()
	spec.BFrames = true
	spec.TimeBase = ports.Rational{Num: 1, Den: 90000}
	h, _ := openSynthetic(t, spec)

	for _, i := range []int{0, 1, 29, 30, 31, 44, 59, 60, 88, 89} {
		single, err := h.ReadFrame(i, ports.LayoutRGB)
		if err != nil {
			t.Fatalf("ReadFrame(%d) failed: %v", i, err)
		}
		ranged, err := h.ReadFrameRange(i, i, ports.LayoutRGB)
		if err != nil {
			t.Fatalf("ReadFrameRange(%d,%d) failed: %v", i, i, err)
		}
		if !bytes.Equal(single, ranged) {
			t.Errorf("frame %d: ReadFrame and ReadFrameRange differ", i)
		}
	}
}

func TestHandle_CacheTransparency(t *testing.T) {
	spec := mocks.DefaultStream()
	spec.Keyframes = []int{0, 17, 50}
	h, _ := openSynthetic(t, spec)

	order := []int{20, 3, 49, 17, 16, 0, 89, 50, 51, 18, 18}
	for _, i := range order {
		cached, err := h.ReadFrame(i, ports.LayoutGray)
		if err != nil {
			t.Fatalf("ReadFrame(%d) failed: %v", i, err)
		}
		if !bytes.Equal(cached, mocks.ExpectedFrame(ports.LayoutGray, spec.Width, spec.Height, i)) {
			t.Errorf("frame %d differs from a cold decode", i)
		}
	}
	if h.CacheStats().Hits == 0 {
		t.Error("expected some cache hits")
	}
}

func TestHandle_RangeEqualsSingles(t *testing.T) {
	spec := mocks.DefaultStream()
	spec.BFrames = true
	spec.AudioStream = true
	spec.TimeBase = ports.Rational{Num: 1, Den: 90000}
	h, backend := openSynthetic(t, spec)

	a, b := 25, 64
	got, err := h.ReadFrameRange(a, b, ports.LayoutGray)
	if err != nil {
		t.Fatalf("ReadFrameRange failed: %v", err)
	}
	if backend.Counters().Seeks != 1 {
		t.Errorf("range read used %d seeks", backend.Counters().Seeks)
	}
	size := h.FrameSize(ports.LayoutGray)
	if len(got) != (b-a+1)*size {
		t.Fatalf("len = %d", len(got))
	}
	for i := a; i <= b; i++ {
		single, err := h.ReadFrame(i, ports.LayoutGray)
		if err != nil {
			t.Fatalf("ReadFrame(%d) failed: %v", i, err)
		}
		off := (i - a) * size
		if !bytes.Equal(got[off:off+size], single) {
			t.Errorf("frame %d differs between range and single read", i)
		}
	}
}

func TestHandle_ReadErrors(t *testing.T) {
	h, _ := openSynthetic(t, mocks.DefaultStream())

	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"negative", func() error { _, err := h.ReadFrame(-1, ports.LayoutGray); return err }(), KindIndexOutOfRange},
		{"past end", func() error { _, err := h.ReadFrame(90, ports.LayoutGray); return err }(), KindIndexOutOfRange},
		{"reversed", func() error { _, err := h.ReadFrameRange(10, 9, ports.LayoutGray); return err }(), KindInvalidRange},
		{"range past end", func() error { _, err := h.ReadFrameRange(80, 90, ports.LayoutGray); return err }(), KindIndexOutOfRange},
		{"buffer", h.ReadFrameRangeInto(0, 1, ports.LayoutGray, make([]byte, 3)), KindBufferSize},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.kind {
			t.Errorf("%s: KindOf(%v) = %s, want %s", tt.name, tt.err, got, tt.kind)
		}
		if KindOf(tt.err).Fatal() {
			t.Errorf("%s: read errors must not be fatal", tt.name)
		}
	}

	// handle stays usable
	if _, err := h.ReadFrame(10, ports.LayoutGray); err != nil {
		t.Errorf("ReadFrame after errors failed: %v", err)
	}
}

func TestHandle_DecodeFailureKeepsHandle(t *testing.T) {
	h, backend := openSynthetic(t, mocks.DefaultStream())
	backend.SubmitErrFrames = []int{40}

	_, err := h.ReadFrame(45, ports.LayoutGray)
	if KindOf(err) != KindDecodeFailed {
		t.Fatalf("expected decode-failed, got %v", err)
	}
	var verr *Error
	if !errors.As(err, &verr) || verr.Frame != 45 {
		t.Errorf("error should carry the frame: %v", err)
	}
	if _, err := h.ReadFrame(10, ports.LayoutGray); err != nil {
		t.Errorf("handle should remain valid: %v", err)
	}
}

func TestHandle_NotFoundContext(t *testing.T) {
	h, backend := openSynthetic(t, mocks.DefaultStream())
	backend.PTSShift = func(pts int64) int64 { return pts - 1 }

	err := h.ReadFrameRangeInto(85, 89, ports.LayoutGray, make([]byte, 5*h.FrameSize(ports.LayoutGray)))
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if verr.Start != 85 || verr.End != 89 || verr.Frame != 89 {
		t.Errorf("unexpected context: %+v", verr)
	}
	if verr.DTSFrom != 60 || verr.DTSTo != 89 || verr.Packets != 30 {
		t.Errorf("scanned dts %d-%d over %d packets, want 60-89 over 30", verr.DTSFrom, verr.DTSTo, verr.Packets)
	}
	if !strings.Contains(err.Error(), "(30 packets) dts 60-89") {
		t.Errorf("error text lacks the scanned span: %v", err)
	}
}

func TestHandle_Close(t *testing.T) {
	backend := mocks.NewBackend(mocks.DefaultStream())
	h, err := Open("synthetic.mp4", Options{Backend: backend})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.ReadFrame(3, ports.LayoutGray); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	c := backend.Counters()
	if c.DemuxersOpen != 0 || c.DecodersOpen != 0 || c.ConvertersOpen != 0 {
		t.Errorf("resources not released: %+v", c)
	}
	if err := h.Close(); !IsClosed(err) {
		t.Errorf("second Close: expected ErrClosed, got %v", err)
	}
	if _, err := h.ReadFrame(3, ports.LayoutGray); KindOf(err) != KindClosed {
		t.Errorf("read after Close: got %v", err)
	}
	if _, err := h.ReadFrameRange(1, 2, ports.LayoutGray); KindOf(err) != KindClosed {
		t.Errorf("range after Close: got %v", err)
	}
}

func TestDefaultLayout(t *testing.T) {
	tests := []struct {
		name   string
		stream ports.StreamInfo
		want   ports.PixelLayout
	}{
		{"plain", ports.StreamInfo{}, ports.LayoutRGB},
		{"gray pixels", ports.StreamInfo{GrayPixels: true}, ports.LayoutGray},
		{"tag true", ports.StreamInfo{Metadata: map[string]string{GrayscaleTag: "1"}}, ports.LayoutGray},
		{"tag false overrides pixels", ports.StreamInfo{GrayPixels: true, Metadata: map[string]string{GrayscaleTag: "false"}}, ports.LayoutRGB},
		{"tag garbage", ports.StreamInfo{Metadata: map[string]string{GrayscaleTag: "maybe"}}, ports.LayoutRGB},
	}
	for _, tt := range tests {
		if got := DefaultLayout(tt.stream); got != tt.want {
			t.Errorf("%s: DefaultLayout = %s, want %s", tt.name, got, tt.want)
		}
	}

	spec := mocks.DefaultStream()
	spec.Metadata = map[string]string{GrayscaleTag: "true"}
	h, _ := openSynthetic(t, spec)
	if h.Layout() != ports.LayoutGray {
		t.Errorf("Layout = %s, want gray", h.Layout())
	}
}

func TestReadImage(t *testing.T) {
	spec := mocks.DefaultStream()
	h, _ := openSynthetic(t, spec)

	img, err := h.ReadImage(7, ports.LayoutRGB)
	if err != nil {
		t.Fatalf("ReadImage failed: %v", err)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok {
		t.Fatalf("expected *image.RGBA, got %T", img)
	}
	if rgba.Bounds().Dx() != spec.Width || rgba.Bounds().Dy() != spec.Height {
		t.Errorf("bounds = %v", rgba.Bounds())
	}
	r, g, b, a := rgba.At(2, 1).RGBA()
	if byte(r>>8) != mocks.PixelValue(7, 2, 1, 0) || byte(g>>8) != mocks.PixelValue(7, 2, 1, 1) ||
		byte(b>>8) != mocks.PixelValue(7, 2, 1, 2) || a != 0xffff {
		t.Errorf("pixel mismatch: %d %d %d %d", r>>8, g>>8, b>>8, a>>8)
	}

	gray, err := h.ReadImage(7, ports.LayoutGray)
	if err != nil {
		t.Fatal(err)
	}
	if g, ok := gray.(*image.Gray); !ok || g.GrayAt(3, 2).Y != mocks.PixelValue(7, 3, 2, 0) {
		t.Errorf("gray image mismatch")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	var tokens []Token
	for i := 0; i < 3; i++ {
		h, err := Open("synthetic.mp4", Options{Backend: mocks.NewBackend(mocks.DefaultStream())})
		if err != nil {
			t.Fatal(err)
		}
		tokens = append(tokens, reg.Put(h))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for _, tok := range tokens {
		for j := 0; j < 10; j++ {
			wg.Add(1)
			go func(tok Token, frame int) {
				defer wg.Done()
				errs <- reg.Do(tok, func(h *Handle) error {
					_, err := h.ReadFrame(frame, ports.LayoutGray)
					return err
				})
			}(tok, j*9)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent read failed: %v", err)
		}
	}

	if err := reg.Close(tokens[0]); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := reg.Close(tokens[0]); !IsClosed(err) {
		t.Errorf("double Close: expected ErrClosed, got %v", err)
	}
	if err := reg.Do(tokens[0], func(*Handle) error { return nil }); !IsClosed(err) {
		t.Errorf("Do on closed token: got %v", err)
	}
	if err := reg.CloseAll(); err != nil {
		t.Errorf("CloseAll failed: %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len = %d after CloseAll", reg.Len())
	}
}
