//go:build libav

package libav

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/user/gopseek/pkg/nalu"
	"github.com/user/gopseek/pkg/ports"
)

// demuxer is an open libavformat input.
type demuxer struct {
	*astikit.Closer
	fc     *astiav.FormatContext
	pkt    *astiav.Packet
	stream *astiav.Stream
	info   ports.StreamInfo
	closed bool
	log    ports.Logger
}

func openDemuxer(path string, log ports.Logger) (_ *demuxer, _err error) {
	d := &demuxer{Closer: astikit.NewCloser(), log: log}
	defer func() {
		if _err != nil {
			d.Closer.Close()
		}
	}()

	d.fc = astiav.AllocFormatContext()
	if d.fc == nil {
		return nil, fmt.Errorf("unable to allocate a format context")
	}
	d.Closer.Add(d.fc.Free)

	if err := d.fc.OpenInput(path, nil, nil); err != nil {
		return nil, fmt.Errorf("unable to open input '%s': %w", path, err)
	}
	d.Closer.Add(d.fc.CloseInput)

	if err := d.fc.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("unable to get stream info: %w", err)
	}

	d.pkt = astiav.AllocPacket()
	d.Closer.Add(d.pkt.Free)

	for _, s := range d.fc.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			d.stream = s
			break
		}
	}
	if d.stream != nil {
		d.info = d.streamInfo()
		log.Debug("Stream %d: %s %dx%d, time base %s, frame rate %s",
			d.info.Index, d.info.Codec, d.info.Width, d.info.Height, d.info.TimeBase, d.info.FrameRate)
	}
	return d, nil
}

func (d *demuxer) streamInfo() ports.StreamInfo {
	cp := d.stream.CodecParameters()
	tb := d.stream.TimeBase()
	fr := d.stream.AvgFrameRate()
	if fr.Num() == 0 || fr.Den() == 0 {
		fr = d.fc.GuessFrameRate(d.stream, nil)
	}

	info := ports.StreamInfo{
		Index:      d.stream.Index(),
		Codec:      codecOf(cp.CodecID()),
		Width:      cp.Width(),
		Height:     cp.Height(),
		TimeBase:   ports.Rational{Num: int64(tb.Num()), Den: int64(tb.Den())},
		FrameRate:  ports.Rational{Num: int64(fr.Num()), Den: int64(fr.Den())},
		GrayPixels: strings.HasPrefix(cp.PixelFormat().String(), "gray"),
		Metadata:   metadata(d.fc.Metadata()),
		LengthSize: nalu.AnnexBStream,
	}

	extradata := cp.ExtraData()
	info.CodecConfig = append([]byte(nil), extradata...)
	switch info.Codec {
	case ports.CodecH264:
		if cfg, err := nalu.ParseAVCC(extradata); err == nil {
			info.LengthSize = cfg.LengthSize
			info.ParameterSets = cfg.ParameterSets
		}
	case ports.CodecHEVC:
		if cfg, err := nalu.ParseHVCC(extradata); err == nil {
			info.LengthSize = cfg.LengthSize
			info.ParameterSets = cfg.ParameterSets
		}
	}

	if codec := astiav.FindDecoder(cp.CodecID()); codec != nil {
		info.DecoderName = codec.Name()
		info.HardwareDecoder = isHardwareDecoder(codec.Name())
	}
	return info
}

func codecOf(id astiav.CodecID) ports.Codec {
	switch id {
	case astiav.CodecIDH264:
		return ports.CodecH264
	case astiav.CodecIDHevc:
		return ports.CodecHEVC
	case astiav.CodecIDAv1:
		return ports.CodecAV1
	default:
		return ports.CodecUnknown
	}
}

func metadata(dict *astiav.Dictionary) map[string]string {
	out := map[string]string{}
	if dict == nil {
		return out
	}
	flags := astiav.NewDictionaryFlags(astiav.DictionaryFlagIgnoreSuffix)
	var prev *astiav.DictionaryEntry
	for {
		e := dict.Get("", prev, flags)
		if e == nil {
			return out
		}
		out[e.Key()] = e.Value()
		prev = e
	}
}

func (d *demuxer) VideoStream() (ports.StreamInfo, error) {
	if d.stream == nil {
		return ports.StreamInfo{}, ports.ErrNoVideoStream
	}
	return d.info, nil
}

func (d *demuxer) ReadPacket() (ports.Packet, error) {
	if d.closed {
		return ports.Packet{}, ErrClosed
	}
	if err := d.fc.ReadFrame(d.pkt); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			return ports.Packet{}, io.EOF
		}
		return ports.Packet{}, fmt.Errorf("unable to read a packet: %w", err)
	}
	defer d.pkt.Unref()

	pkt := ports.Packet{StreamIndex: d.pkt.StreamIndex()}
	if d.stream == nil || pkt.StreamIndex != d.stream.Index() {
		return pkt, nil
	}
	pkt.DTS = d.pkt.Dts()
	pkt.PTS = d.pkt.Pts()
	pkt.HasPTS = pkt.PTS != astiav.NoPtsValue
	pkt.Keyframe = d.pkt.Flags().Has(astiav.PacketFlagKey)
	pkt.Data = append([]byte(nil), d.pkt.Data()...)

	units, err := nalu.Units(d.info.Codec, pkt.Data, d.info.LengthSize)
	if err != nil {
		return ports.Packet{}, fmt.Errorf("packet at dts %d: %w", pkt.DTS, err)
	}
	pkt.Units = units
	return pkt, nil
}

func (d *demuxer) SeekBackward(dts int64) error {
	if d.closed {
		return ErrClosed
	}
	if d.stream == nil {
		return ports.ErrNoVideoStream
	}
	flags := astiav.NewSeekFlags(astiav.SeekFlagBackward)
	if err := d.fc.SeekFrame(d.stream.Index(), dts, flags); err != nil {
		return fmt.Errorf("unable to seek to dts %d: %w", dts, err)
	}
	return nil
}

func (d *demuxer) SeekStart() error {
	if d.closed {
		return ErrClosed
	}
	index := -1
	if d.stream != nil {
		index = d.stream.Index()
	}
	flags := astiav.NewSeekFlags(astiav.SeekFlagBackward)
	if err := d.fc.SeekFrame(index, 0, flags); err != nil {
		// some containers start above zero; seek by byte as a last resort
		if err := d.fc.SeekFrame(-1, 0, astiav.NewSeekFlags(astiav.SeekFlagByte)); err != nil {
			return fmt.Errorf("unable to seek to start: %w", err)
		}
	}
	return nil
}

func (d *demuxer) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return d.Closer.Close()
}

var _ ports.Demuxer = (*demuxer)(nil)
