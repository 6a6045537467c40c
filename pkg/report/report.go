// Package report summarizes an opened video: stream parameters, frame index
// statistics and the decode work done while serving requests.
package report

import (
	"time"

	"github.com/user/gopseek/pkg/engine"
	"github.com/user/gopseek/pkg/frameindex"
	"github.com/user/gopseek/pkg/gopcache"
	"github.com/user/gopseek/pkg/ports"
)

// Report contains everything known about one opened video.
type Report struct {
	GeneratedAt time.Time

	File   FileInfo
	Stream StreamInfo
	Index  IndexInfo

	// Cache and Engine are zero when no frames were read.
	Cache  gopcache.Stats
	Engine engine.Stats

	Timing TimingInfo
}

// FileInfo describes the input file.
type FileInfo struct {
	Path    string
	Size    int64
	Backend string
}

// StreamInfo describes the selected video stream.
type StreamInfo struct {
	Codec        string
	Width        int
	Height       int
	TimeBase     ports.Rational
	FrameRate    ports.Rational
	PTSIncrement int64
	Decoder      string
	Layout       string
	Metadata     map[string]string
}

// IndexInfo summarizes the frame index.
type IndexInfo struct {
	Frames    int
	Packets   int
	Keyframes int
	GOPMin    int
	GOPMax    int
	GOPAvg    float64
}

// TimingInfo contains wall clock measurements.
type TimingInfo struct {
	OpenMs int64
	ReadMs int64
}

// NewReport creates a new Report with the current timestamp.
func NewReport() *Report {
	return &Report{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Report.
type Builder struct {
	report *Report
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		report: NewReport(),
	}
}

// WithFile sets file information.
func (b *Builder) WithFile(path string, size int64, backend string) *Builder {
	b.report.File = FileInfo{Path: path, Size: size, Backend: backend}
	return b
}

// WithStream sets stream information.
func (b *Builder) WithStream(info ports.StreamInfo, layout ports.PixelLayout) *Builder {
	b.report.Stream = StreamInfo{
		Codec:     string(info.Codec),
		Width:     info.Width,
		Height:    info.Height,
		TimeBase:  info.TimeBase,
		FrameRate: info.FrameRate,
		Decoder:   info.DecoderName,
		Layout:    layout.String(),
		Metadata:  info.Metadata,
	}
	return b
}

// WithIndex sets index statistics and the pts increment.
func (b *Builder) WithIndex(ix *frameindex.Index) *Builder {
	b.report.Stream.PTSIncrement = ix.PTSIncrement
	b.report.Index = SummarizeIndex(ix)
	return b
}

// WithStats sets cache and engine activity.
func (b *Builder) WithStats(cache gopcache.Stats, eng engine.Stats) *Builder {
	b.report.Cache = cache
	b.report.Engine = eng
	return b
}

// WithTiming sets timing information.
func (b *Builder) WithTiming(open, read time.Duration) *Builder {
	b.report.Timing = TimingInfo{
		OpenMs: open.Milliseconds(),
		ReadMs: read.Milliseconds(),
	}
	return b
}

// Build returns the constructed Report.
func (b *Builder) Build() *Report {
	return b.report
}

// SummarizeIndex computes GOP statistics for ix.
func SummarizeIndex(ix *frameindex.Index) IndexInfo {
	info := IndexInfo{
		Frames:    ix.FrameCount(),
		Packets:   ix.Packets,
		Keyframes: len(ix.Keyframes),
	}
	sizes := ix.GOPSizes()
	if len(sizes) == 0 {
		return info
	}
	total := 0
	info.GOPMin = sizes[0]
	for _, s := range sizes {
		total += s
		if s < info.GOPMin {
			info.GOPMin = s
		}
		if s > info.GOPMax {
			info.GOPMax = s
		}
	}
	info.GOPAvg = float64(total) / float64(len(sizes))
	return info
}
