package report

import (
	"testing"
	"time"

	"github.com/user/gopseek/pkg/engine"
	"github.com/user/gopseek/pkg/frameindex"
	"github.com/user/gopseek/pkg/gopcache"
	"github.com/user/gopseek/pkg/ports"
)

func testIndex() *frameindex.Index {
	return &frameindex.Index{
		DecodePosition: make([]int64, 100),
		PTSIncrement:   3000,
		Keyframes:      []int{0, 30, 60, 90},
		Packets:        100,
	}
}

func TestNewReport(t *testing.T) {
	before := time.Now()
	r := NewReport()
	after := time.Now()

	if r.GeneratedAt.Before(before) || r.GeneratedAt.After(after) {
		t.Errorf("GeneratedAt should be between %v and %v, got %v", before, after, r.GeneratedAt)
	}
}

func TestSummarizeIndex(t *testing.T) {
	info := SummarizeIndex(testIndex())

	if info.Frames != 100 || info.Packets != 100 || info.Keyframes != 4 {
		t.Errorf("unexpected counts: %+v", info)
	}
	if info.GOPMin != 10 {
		t.Errorf("expected GOPMin 10, got %d", info.GOPMin)
	}
	if info.GOPMax != 30 {
		t.Errorf("expected GOPMax 30, got %d", info.GOPMax)
	}
	if info.GOPAvg != 25 {
		t.Errorf("expected GOPAvg 25, got %f", info.GOPAvg)
	}
}

func TestSummarizeIndex_NoKeyframes(t *testing.T) {
	info := SummarizeIndex(&frameindex.Index{DecodePosition: make([]int64, 5), PTSIncrement: 1})
	if info.Keyframes != 0 || info.GOPMax != 0 || info.GOPAvg != 0 {
		t.Errorf("expected empty GOP stats, got %+v", info)
	}
}

func TestBuilder_FullChain(t *testing.T) {
	stream := ports.StreamInfo{
		Codec:       ports.CodecH264,
		Width:       1920,
		Height:      1080,
		TimeBase:    ports.Rational{Num: 1, Den: 90000},
		FrameRate:   ports.Rational{Num: 30, Den: 1},
		DecoderName: "h264",
	}
	r := NewBuilder().
		WithFile("clip.mp4", 4096, "libav").
		WithStream(stream, ports.LayoutRGB).
		WithIndex(testIndex()).
		WithStats(gopcache.Stats{Hits: 3, Misses: 2, Fills: 2}, engine.Stats{Passes: 2, Seeks: 2}).
		WithTiming(1500*time.Millisecond, 250*time.Millisecond).
		Build()

	if r.File.Path != "clip.mp4" || r.File.Size != 4096 || r.File.Backend != "libav" {
		t.Errorf("unexpected file info: %+v", r.File)
	}
	if r.Stream.Codec != "h264" || r.Stream.Layout != "rgb" || r.Stream.Decoder != "h264" {
		t.Errorf("unexpected stream info: %+v", r.Stream)
	}
	if r.Stream.PTSIncrement != 3000 {
		t.Errorf("expected PTSIncrement 3000, got %d", r.Stream.PTSIncrement)
	}
	if r.Index.Frames != 100 {
		t.Errorf("expected 100 frames, got %d", r.Index.Frames)
	}
	if r.Cache.Hits != 3 || r.Engine.Passes != 2 {
		t.Errorf("unexpected stats: %+v %+v", r.Cache, r.Engine)
	}
	if r.Timing.OpenMs != 1500 || r.Timing.ReadMs != 250 {
		t.Errorf("unexpected timing: %+v", r.Timing)
	}
}
