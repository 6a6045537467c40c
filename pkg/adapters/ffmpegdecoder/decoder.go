// Package ffmpegdecoder decodes H.264 and HEVC packets with an ffmpeg
// subprocess. Packets are streamed to ffmpeg as an Annex B elementary
// stream and decoded frames come back as raw rgb24.
package ffmpegdecoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/user/gopseek/pkg/nalu"
	"github.com/user/gopseek/pkg/ports"
)

var (
	// ErrFFmpegNotFound is returned when no ffmpeg binary can be found.
	ErrFFmpegNotFound = errors.New("ffmpegdecoder: ffmpeg not found")

	// ErrUnsupportedCodec is returned for codecs without an Annex B form.
	ErrUnsupportedCodec = errors.New("ffmpegdecoder: unsupported codec")

	// ErrDecodeFailed is returned when the ffmpeg process fails.
	ErrDecodeFailed = errors.New("ffmpegdecoder: decode failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("ffmpegdecoder: decoder closed")
)

// reorderBound is the number of packets ffmpeg may hold before output is
// expected: a full H.264/HEVC reorder buffer plus the parser's one frame.
const reorderBound = 17

// reorderWait limits how long ReceivePicture waits for ffmpeg once more
// than reorderBound packets are in flight.
var reorderWait = time.Second

const (
	noWait      time.Duration = 0
	waitForExit time.Duration = -1
)

// Picture is one decoded rgb24 frame.
type Picture struct {
	pts    int64
	Width  int
	Height int
	Pix    []byte
}

// PTS returns the presentation timestamp assigned on output.
func (p *Picture) PTS() int64 {
	return p.pts
}

// Decoder implements ports.Decoder on top of one ffmpeg process per
// decode run. Flush ends the process; the next keyframe starts a new one.
type Decoder struct {
	ffmpegPath string
	stream     ports.StreamInfo
	format     string
	frameSize  int

	proc    *process
	pending []int64 // submitted pts not yet matched to an output frame
	needKey bool
	eof     bool
	closed  bool
}

// New creates a decoder for stream.
func New(stream ports.StreamInfo) (*Decoder, error) {
	var format string
	switch stream.Codec {
	case ports.CodecH264:
		format = "h264"
	case ports.CodecHEVC:
		format = "hevc"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, stream.Codec)
	}
	if stream.Width <= 0 || stream.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrDecodeFailed, stream.Width, stream.Height)
	}
	ffmpegPath, err := FindFFmpeg()
	if err != nil {
		return nil, err
	}
	return &Decoder{
		ffmpegPath: ffmpegPath,
		stream:     stream,
		format:     format,
		frameSize:  ports.LayoutRGB.FrameSize(stream.Width, stream.Height),
		needKey:    true,
	}, nil
}

// Name returns the decoder description.
func (d *Decoder) Name() string {
	return "ffmpeg/" + d.format
}

// SubmitPacket writes one packet to ffmpeg. Packets before the first
// keyframe after a Flush are dropped.
func (d *Decoder) SubmitPacket(pkt ports.Packet) error {
	if d.closed {
		return ErrClosed
	}
	if d.eof {
		return fmt.Errorf("%w: packet after end of stream", ErrDecodeFailed)
	}
	if d.needKey {
		if !pkt.Keyframe {
			return nil
		}
		d.needKey = false
	}
	if d.proc == nil {
		proc, err := startProcess(d.ffmpegPath, d.format, d.frameSize)
		if err != nil {
			return err
		}
		d.proc = proc
	}

	var data []byte
	if pkt.Keyframe && len(d.stream.ParameterSets) > 0 {
		data = nalu.AnnexB(d.stream.ParameterSets...)
	}
	es, err := nalu.ToAnnexB(pkt.Data, d.stream.LengthSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	data = append(data, es...)

	if err := d.proc.write(data); err != nil {
		return err
	}

	i := sort.Search(len(d.pending), func(i int) bool { return d.pending[i] > pkt.PTS })
	d.pending = append(d.pending, 0)
	copy(d.pending[i+1:], d.pending[i:])
	d.pending[i] = pkt.PTS
	return nil
}

// SubmitEOF closes ffmpeg's input so it emits its remaining frames.
func (d *Decoder) SubmitEOF() error {
	if d.closed {
		return ErrClosed
	}
	d.eof = true
	if d.proc == nil {
		return nil
	}
	return d.proc.closeInput()
}

// ReceivePicture returns the next decoded frame. Before SubmitEOF it only
// blocks once more than reorderBound packets await output, so the caller
// sees each frame before feeding ffmpeg further. After SubmitEOF it waits
// for a frame or for ffmpeg to exit.
func (d *Decoder) ReceivePicture() (ports.Picture, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.proc == nil {
		if d.eof {
			return nil, io.EOF
		}
		return nil, ports.ErrWouldBlock
	}

	wait := noWait
	switch {
	case d.eof:
		wait = waitForExit
	case len(d.pending) > reorderBound:
		wait = reorderWait
	}
	pix, err := d.proc.next(wait)
	if err != nil {
		return nil, err
	}
	if pix == nil {
		return nil, ports.ErrWouldBlock
	}
	if len(d.pending) == 0 {
		return nil, fmt.Errorf("%w: more frames than packets", ErrDecodeFailed)
	}
	pts := d.pending[0]
	d.pending = d.pending[1:]
	return &Picture{pts: pts, Width: d.stream.Width, Height: d.stream.Height, Pix: pix}, nil
}

// Flush stops the current ffmpeg process and drops every pending frame.
func (d *Decoder) Flush() {
	if d.proc != nil {
		d.proc.kill()
		d.proc = nil
	}
	d.pending = d.pending[:0]
	d.needKey = true
	d.eof = false
}

// Close stops ffmpeg.
func (d *Decoder) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.Flush()
	d.closed = true
	return nil
}

// process is one running ffmpeg with a goroutine collecting its output.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer

	mu      sync.Mutex
	frames  [][]byte
	done    bool
	readErr error
	ready   chan struct{} // signalled after each frame and on exit
	exited  chan struct{}
}

func startProcess(ffmpegPath, format string, frameSize int) (*process, error) {
	p := &process{
		ready:  make(chan struct{}, 1),
		exited: make(chan struct{}),
	}
	p.cmd = exec.Command(ffmpegPath, ffmpegArgs(format)...)
	p.cmd.Stderr = &p.stderr

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := p.cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrDecodeFailed, err)
	}
	p.stdin = stdin

	go p.collect(stdout, frameSize)
	return p, nil
}

// ffmpegArgs decodes an elementary stream from stdin to raw rgb24 on
// stdout. Probing is cut to the minimum and frame threading is off so
// each frame leaves ffmpeg as soon as its reorder delay allows.
func ffmpegArgs(format string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-probesize", "32",
		"-analyzeduration", "0",
		"-fflags", "nobuffer",
		"-thread_type", "slice",
		"-f", format,
		"-i", "pipe:0",
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-flush_packets", "1",
		"pipe:1",
	}
}

func (p *process) collect(stdout io.Reader, frameSize int) {
	var err error
	for {
		buf := make([]byte, frameSize)
		if _, err = io.ReadFull(stdout, buf); err != nil {
			break
		}
		p.mu.Lock()
		p.frames = append(p.frames, buf)
		p.mu.Unlock()
		p.signal()
	}
	if err == io.EOF {
		err = nil
	}
	waitErr := p.cmd.Wait()

	p.mu.Lock()
	switch {
	case err != nil:
		p.readErr = fmt.Errorf("%w: read frame: %v", ErrDecodeFailed, err)
	case waitErr != nil:
		p.readErr = fmt.Errorf("%w: %v: %s", ErrDecodeFailed, waitErr, p.stderr.String())
	}
	p.done = true
	p.mu.Unlock()
	close(p.exited)
	p.signal()
}

func (p *process) signal() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

func (p *process) write(data []byte) error {
	if _, err := p.stdin.Write(data); err != nil {
		return fmt.Errorf("%w: write packet: %v", ErrDecodeFailed, err)
	}
	return nil
}

func (p *process) closeInput() error {
	if err := p.stdin.Close(); err != nil {
		return fmt.Errorf("%w: close input: %v", ErrDecodeFailed, err)
	}
	return nil
}

// next pops a frame. With noWait it returns nil when none is ready. A
// positive wait blocks up to that long for a frame. With waitForExit it
// blocks until a frame arrives or the process exits, and returns io.EOF
// once the process has exited cleanly with nothing left.
func (p *process) next(wait time.Duration) ([]byte, error) {
	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}
	for {
		p.mu.Lock()
		if len(p.frames) > 0 {
			f := p.frames[0]
			p.frames = p.frames[1:]
			p.mu.Unlock()
			return f, nil
		}
		done, readErr := p.done, p.readErr
		p.mu.Unlock()

		if done {
			if readErr != nil {
				return nil, readErr
			}
			if wait == waitForExit {
				return nil, io.EOF
			}
			return nil, nil
		}
		if wait == noWait {
			return nil, nil
		}
		select {
		case <-p.ready:
		case <-timeout:
			return nil, nil
		}
	}
}

func (p *process) kill() {
	p.stdin.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	<-p.exited
}

var _ ports.Decoder = (*Decoder)(nil)
