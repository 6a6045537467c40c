//go:build libav

package libav

import (
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/hashicorp/go-multierror"
	"github.com/user/gopseek/pkg/ports"
)

// picture holds a decoded frame owned by the receiver until the next
// ReceivePicture.
type picture struct {
	frame *astiav.Frame
}

func (p *picture) PTS() int64 {
	return p.frame.Pts()
}

// decoder wraps a libavcodec software decoding context.
type decoder struct {
	*astikit.Closer
	codec  *astiav.Codec
	stream ports.StreamInfo
	cc     *astiav.CodecContext
	pkt    *astiav.Packet
	frame  *astiav.Frame
	err    error // set when a reopen failed
	closed bool
}

func newDecoder(stream ports.StreamInfo) (_ *decoder, _err error) {
	d := &decoder{Closer: astikit.NewCloser(), stream: stream}
	defer func() {
		if _err != nil {
			d.Closer.Close()
		}
	}()

	id, ok := codecID(stream.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDecoder, stream.Codec)
	}
	d.codec = astiav.FindDecoder(id)
	if d.codec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDecoder, stream.Codec)
	}
	if isHardwareDecoder(d.codec.Name()) {
		return nil, fmt.Errorf("%w: %s is a hardware decoder", ErrNoDecoder, d.codec.Name())
	}

	d.pkt = astiav.AllocPacket()
	d.Closer.Add(d.pkt.Free)
	d.frame = astiav.AllocFrame()
	d.Closer.Add(d.frame.Free)

	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

func codecID(c ports.Codec) (astiav.CodecID, bool) {
	switch c {
	case ports.CodecH264:
		return astiav.CodecIDH264, true
	case ports.CodecHEVC:
		return astiav.CodecIDHevc, true
	case ports.CodecAV1:
		return astiav.CodecIDAv1, true
	default:
		return 0, false
	}
}

// open allocates a fresh codec context. Packets keep their container
// framing, so the configuration record goes back in as extradata.
func (d *decoder) open() error {
	cc := astiav.AllocCodecContext(d.codec)
	if cc == nil {
		return fmt.Errorf("unable to allocate codec context")
	}
	cc.SetWidth(d.stream.Width)
	cc.SetHeight(d.stream.Height)
	cc.SetTimeBase(astiav.NewRational(int(d.stream.TimeBase.Num), int(d.stream.TimeBase.Den)))
	if len(d.stream.CodecConfig) > 0 {
		if err := cc.SetExtraData(d.stream.CodecConfig); err != nil {
			cc.Free()
			return fmt.Errorf("unable to set extradata: %w", err)
		}
	}
	if err := cc.Open(d.codec, nil); err != nil {
		cc.Free()
		return fmt.Errorf("unable to open codec context: %w", err)
	}
	d.cc = cc
	return nil
}

func (d *decoder) SubmitPacket(pkt ports.Packet) error {
	if d.closed {
		return ErrClosed
	}
	if d.err != nil {
		return d.err
	}
	d.pkt.Unref()
	if err := d.pkt.FromData(pkt.Data); err != nil {
		return fmt.Errorf("unable to wrap packet: %w", err)
	}
	d.pkt.SetDts(pkt.DTS)
	if pkt.HasPTS {
		d.pkt.SetPts(pkt.PTS)
	} else {
		d.pkt.SetPts(astiav.NoPtsValue)
	}
	if pkt.Keyframe {
		d.pkt.SetFlags(astiav.NewPacketFlags(astiav.PacketFlagKey))
	}
	if err := d.cc.SendPacket(d.pkt); err != nil {
		return fmt.Errorf("unable to send packet to the decoder: %w", err)
	}
	return nil
}

func (d *decoder) SubmitEOF() error {
	if d.closed {
		return ErrClosed
	}
	if d.err != nil {
		return d.err
	}
	if err := d.cc.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("unable to signal end of stream: %w", err)
	}
	return nil
}

func (d *decoder) ReceivePicture() (ports.Picture, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.err != nil {
		return nil, d.err
	}
	d.frame.Unref()
	err := d.cc.ReceiveFrame(d.frame)
	switch {
	case err == nil:
		return &picture{frame: d.frame}, nil
	case errors.Is(err, astiav.ErrEagain):
		return nil, ports.ErrWouldBlock
	case errors.Is(err, astiav.ErrEof):
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("unable to receive a frame: %w", err)
	}
}

// Flush reopens the codec context, which drops buffered packets and
// reference pictures and clears the end-of-stream state.
func (d *decoder) Flush() {
	if d.closed {
		return
	}
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	d.err = d.open()
}

func (d *decoder) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	var result *multierror.Error
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	if err := d.Closer.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if d.err != nil {
		result = multierror.Append(result, fmt.Errorf("reopen: %w", d.err))
	}
	return result.ErrorOrNil()
}

var _ ports.Decoder = (*decoder)(nil)
