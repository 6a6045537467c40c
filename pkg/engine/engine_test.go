package engine

import (
	"bytes"
	"errors"
	"testing"

	"github.com/user/gopseek/pkg/adapters/logger"
	"github.com/user/gopseek/pkg/frameindex"
	"github.com/user/gopseek/pkg/mocks"
	"github.com/user/gopseek/pkg/ports"
)

func newEngine(t *testing.T, backend *mocks.Backend) *Engine {
	t.Helper()
	demux, err := backend.OpenContainer("synthetic.mp4")
	if err != nil {
		t.Fatalf("OpenContainer failed: %v", err)
	}
	t.Cleanup(func() { demux.Close() })
	stream, err := demux.VideoStream()
	if err != nil {
		t.Fatalf("VideoStream failed: %v", err)
	}
	ix, err := frameindex.Build(demux, stream, logger.NewNoop())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	dec, err := backend.NewDecoder(stream)
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	t.Cleanup(func() { dec.Close() })
	backend.ResetCounters()
	return New(backend, demux, dec, stream, ix, logger.NewNoop())
}

func checkFrames(t *testing.T, got []byte, layout ports.PixelLayout, w, h, start, end int) {
	t.Helper()
	size := layout.FrameSize(w, h)
	for f := start; f <= end; f++ {
		off := (f - start) * size
		want := mocks.ExpectedFrame(layout, w, h, f)
		if !bytes.Equal(got[off:off+size], want) {
			t.Errorf("frame %d content mismatch", f)
		}
	}
}

func TestReadRange_SingleSeek(t *testing.T) {
	spec := mocks.DefaultStream()
	backend := mocks.NewBackend(spec)
	e := newEngine(t, backend)

	dst := make([]byte, e.RangeSize(40, 70, ports.LayoutRGB))
	if err := e.ReadRange(40, 70, ports.LayoutRGB, dst); err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	checkFrames(t, dst, ports.LayoutRGB, spec.Width, spec.Height, 40, 70)

	c := backend.Counters()
	if c.Seeks != 1 {
		t.Errorf("Seeks = %d, want 1", c.Seeks)
	}
	// decode starts at keyframe 30 and stops once frame 70 is captured
	if len(c.Submitted) == 0 || c.Submitted[0] != 30 || c.Submitted[len(c.Submitted)-1] != 70 {
		t.Errorf("Submitted = %v", c.Submitted)
	}
	if c.ConvertersOpen != 0 {
		t.Errorf("converter leaked: %d open", c.ConvertersOpen)
	}
}

func TestReadRange_ReorderedStream(t *testing.T) {
	spec := mocks.DefaultStream()
	spec.BFrames = true
	spec.AudioStream = true
	spec.TimeBase = ports.Rational{Num: 1, Den: 90000}
	backend := mocks.NewBackend(spec)
	e := newEngine(t, backend)

	for _, r := range [][2]int{{0, 0}, {1, 1}, {29, 31}, {58, 89}, {0, 89}} {
		dst := make([]byte, e.RangeSize(r[0], r[1], ports.LayoutGray))
		if err := e.ReadRange(r[0], r[1], ports.LayoutGray, dst); err != nil {
			t.Fatalf("ReadRange(%d,%d) failed: %v", r[0], r[1], err)
		}
		checkFrames(t, dst, ports.LayoutGray, spec.Width, spec.Height, r[0], r[1])
	}
}

func TestReadRange_StartFallback(t *testing.T) {
	backend := mocks.NewBackend(mocks.DefaultStream())
	backend.SeekBackwardErr = errors.New("index seek unsupported")
	e := newEngine(t, backend)

	dst := make([]byte, e.RangeSize(65, 66, ports.LayoutGray))
	if err := e.ReadRange(65, 66, ports.LayoutGray, dst); err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	c := backend.Counters()
	if c.Seeks != 1 || c.SeekStarts != 1 {
		t.Errorf("Seeks = %d, SeekStarts = %d; want one attempt and one fallback", c.Seeks, c.SeekStarts)
	}
	if c.Submitted[0] != 0 {
		t.Errorf("fallback should decode from frame 0, got %d", c.Submitted[0])
	}
	if e.Stats().StartFallbacks != 1 {
		t.Errorf("StartFallbacks = %d", e.Stats().StartFallbacks)
	}
}

func TestReadRange_BufferSize(t *testing.T) {
	e := newEngine(t, mocks.NewBackend(mocks.DefaultStream()))
	err := e.ReadRange(0, 1, ports.LayoutRGB, make([]byte, 10))
	if !errors.Is(err, ErrBufferSize) {
		t.Errorf("expected ErrBufferSize, got %v", err)
	}
}

func TestReadRange_OutOfRange(t *testing.T) {
	e := newEngine(t, mocks.NewBackend(mocks.DefaultStream()))
	for _, r := range [][2]int{{-1, 0}, {0, 90}, {5, 4}} {
		err := e.ReadRange(r[0], r[1], ports.LayoutGray, nil)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("ReadRange(%d,%d): expected ErrOutOfRange, got %v", r[0], r[1], err)
		}
	}
}

func TestReadRange_DecodeFailure(t *testing.T) {
	backend := mocks.NewBackend(mocks.DefaultStream())
	backend.SubmitErrFrames = []int{33}
	e := newEngine(t, backend)

	dst := make([]byte, e.RangeSize(31, 35, ports.LayoutGray))
	err := e.ReadRange(31, 35, ports.LayoutGray, dst)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("expected ErrDecodeFailed, got %v", err)
	}
	if backend.Counters().ConvertersOpen != 0 {
		t.Error("workspace must be released on failure")
	}

	// the engine stays usable for frames that decode
	dst = make([]byte, e.RangeSize(60, 61, ports.LayoutGray))
	if err := e.ReadRange(60, 61, ports.LayoutGray, dst); err != nil {
		t.Errorf("subsequent ReadRange failed: %v", err)
	}
}

func TestReadRange_TimingDrift(t *testing.T) {
	spec := mocks.DefaultStream()
	spec.TimeBase = ports.Rational{Num: 1, Den: 90000}
	backend := mocks.NewBackend(spec)
	e := newEngine(t, backend)
	backend.PTSShift = func(pts int64) int64 { return pts + 7 }

	dst := make([]byte, e.RangeSize(10, 10, ports.LayoutGray))
	err := e.ReadRange(10, 10, ports.LayoutGray, dst)
	if !errors.Is(err, frameindex.ErrTimingDrift) {
		t.Errorf("expected ErrTimingDrift, got %v", err)
	}
}

func TestReadRange_NotFound(t *testing.T) {
	backend := mocks.NewBackend(mocks.DefaultStream())
	e := newEngine(t, backend)
	// pictures come back one frame late, so the last requested frame never appears
	backend.PTSShift = func(pts int64) int64 { return pts - 1 }

	dst := make([]byte, e.RangeSize(80, 89, ports.LayoutGray))
	err := e.ReadRange(80, 89, ports.LayoutGray, dst)
	if !errors.Is(err, ErrFrameNotFound) {
		t.Fatalf("expected ErrFrameNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
	if nf.Frame != 89 || nf.Start != 80 || nf.End != 89 || nf.Captured != 9 {
		t.Errorf("unexpected context: %+v", nf)
	}
	// the pass starts at the keyframe of frame 60 and runs to the end
	if nf.DTSFrom != 60 || nf.DTSTo != 89 || nf.Packets != 30 {
		t.Errorf("scanned dts %d-%d over %d packets, want 60-89 over 30", nf.DTSFrom, nf.DTSTo, nf.Packets)
	}
	if pass := e.LastPass(); pass.Packets != 30 {
		t.Errorf("LastPass = %+v", pass)
	}
}

func TestRun_PlanStopsBeforeSubmit(t *testing.T) {
	backend := mocks.NewBackend(mocks.DefaultStream())
	e := newEngine(t, backend)

	p := &stopAt{limit: 3}
	if err := e.Run(p, 0, ports.LayoutGray); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := backend.Counters().Submitted; len(got) != 3 {
		t.Errorf("Submitted = %v, want 3 packets", got)
	}
	if p.captured != 3 {
		t.Errorf("captured = %d, want 3 after end-of-stream drain", p.captured)
	}
}

type stopAt struct {
	limit    int
	packets  int
	captured int
	buf      []byte
}

func (p *stopAt) Packet(ports.Packet) bool {
	p.packets++
	return p.packets <= p.limit
}

func (p *stopAt) Slot(int) ([]byte, error) {
	p.captured++
	if p.buf == nil {
		p.buf = make([]byte, 32)
	}
	return p.buf, nil
}

func (p *stopAt) Done() bool {
	return false
}
