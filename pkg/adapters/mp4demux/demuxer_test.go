package mp4demux

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/gopseek/pkg/adapters/logger"
	"github.com/user/gopseek/pkg/frameindex"
	"github.com/user/gopseek/pkg/ports"
)

type fixture struct {
	frames  int
	gop     int
	openGOP int // frame carrying a recovery point SEI, -1 for none
}

// avccSample builds a length-prefixed H.264 sample whose slice payload
// carries the frame number.
func avccSample(frame int, key, recovery bool) []byte {
	var units [][]byte
	if recovery {
		units = append(units, []byte{0x06, 0x06, 0x01, 0x84, 0x80})
	}
	header := byte(0x41)
	if key {
		header = 0x65
	}
	units = append(units, []byte{header, byte(frame), byte(frame >> 8)})

	var out []byte
	for _, u := range units {
		n := len(u)
		out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		out = append(out, u...)
	}
	return out
}

func writeFragmented(t *testing.T, fx fixture) string {
	t.Helper()
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(90000, "video", "en")
	trak := init.Moov.Trak
	trak.Mdia.Minf.Stbl.Stsd.AddChild(mp4.CreateVisualSampleEntryBox("avc1", 64, 48, nil))

	frag, err := mp4.CreateFragment(1, 1)
	if err != nil {
		t.Fatalf("CreateFragment failed: %v", err)
	}
	for i := 0; i < fx.frames; i++ {
		key := i%fx.gop == 0
		flags := mp4.NonSyncSampleFlags
		if key {
			flags = mp4.SyncSampleFlags
		}
		data := avccSample(i, key, i == fx.openGOP)
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: flags,
				Size:  uint32(len(data)),
				Dur:   3000,
			},
			DecodeTime: uint64(i) * 3000,
			Data:       data,
		})
	}

	var buf bytes.Buffer
	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "avc1", "mp41"})
	if err := ftyp.Encode(&buf); err != nil {
		t.Fatalf("encode ftyp: %v", err)
	}
	if err := init.Moov.Encode(&buf); err != nil {
		t.Fatalf("encode moov: %v", err)
	}
	if err := frag.Encode(&buf); err != nil {
		t.Fatalf("encode fragment: %v", err)
	}

	path := filepath.Join(t.TempDir(), "fixture.mp4")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestOpen_StreamInfo(t *testing.T) {
	path := writeFragmented(t, fixture{frames: 90, gop: 30, openGOP: -1})
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	info, err := d.VideoStream()
	if err != nil {
		t.Fatalf("VideoStream failed: %v", err)
	}
	if info.Codec != ports.CodecH264 {
		t.Errorf("Codec = %s, want h264", info.Codec)
	}
	if info.Width != 64 || info.Height != 48 {
		t.Errorf("size = %dx%d", info.Width, info.Height)
	}
	if info.TimeBase != (ports.Rational{Num: 1, Den: 90000}) {
		t.Errorf("TimeBase = %s", info.TimeBase)
	}
	if info.FrameRate != (ports.Rational{Num: 30, Den: 1}) {
		t.Errorf("FrameRate = %s", info.FrameRate)
	}
	if d.SampleCount() != 90 {
		t.Errorf("SampleCount = %d", d.SampleCount())
	}
}

func TestReadPacket_Units(t *testing.T) {
	path := writeFragmented(t, fixture{frames: 4, gop: 2, openGOP: -1})
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	var got []ports.Packet
	for {
		pkt, err := d.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadPacket failed: %v", err)
		}
		got = append(got, pkt)
	}
	if len(got) != 4 {
		t.Fatalf("read %d packets, want 4", len(got))
	}
	for i, pkt := range got {
		if pkt.DTS != int64(i)*3000 || pkt.PTS != pkt.DTS || !pkt.HasPTS {
			t.Errorf("packet %d timing: dts=%d pts=%d", i, pkt.DTS, pkt.PTS)
		}
		if pkt.Keyframe != (i%2 == 0) {
			t.Errorf("packet %d keyframe = %v", i, pkt.Keyframe)
		}
		if len(pkt.Units) != 1 {
			t.Fatalf("packet %d units = %d", i, len(pkt.Units))
		}
		wantType := uint8(1)
		if pkt.Keyframe {
			wantType = 5
		}
		if pkt.Units[0].Type != wantType {
			t.Errorf("packet %d unit type = %d, want %d", i, pkt.Units[0].Type, wantType)
		}
	}
}

func TestSeekBackward(t *testing.T) {
	path := writeFragmented(t, fixture{frames: 90, gop: 30, openGOP: -1})
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	tests := []struct {
		dts  int64
		want int64
	}{
		{45 * 3000, 30 * 3000},
		{30 * 3000, 30 * 3000},
		{29 * 3000, 0},
		{89 * 3000, 60 * 3000},
		{1 << 40, 60 * 3000},
	}
	for _, tt := range tests {
		if err := d.SeekBackward(tt.dts); err != nil {
			t.Fatalf("SeekBackward(%d) failed: %v", tt.dts, err)
		}
		pkt, err := d.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket failed: %v", err)
		}
		if pkt.DTS != tt.want || !pkt.Keyframe {
			t.Errorf("SeekBackward(%d) landed on dts %d (key=%v), want %d", tt.dts, pkt.DTS, pkt.Keyframe, tt.want)
		}
	}

	if err := d.SeekBackward(-1); !errors.Is(err, ErrNoKeyframe) {
		t.Errorf("expected ErrNoKeyframe, got %v", err)
	}
}

func TestFrameIndexOverMP4(t *testing.T) {
	path := writeFragmented(t, fixture{frames: 90, gop: 30, openGOP: -1})
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	info, _ := d.VideoStream()
	ix, err := frameindex.Build(d, info, logger.NewNoop())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if ix.FrameCount() != 90 || ix.PTSIncrement != 3000 {
		t.Errorf("FrameCount = %d, PTSIncrement = %d", ix.FrameCount(), ix.PTSIncrement)
	}
	if len(ix.Keyframes) != 3 || ix.Keyframes[1] != 30 {
		t.Errorf("Keyframes = %v", ix.Keyframes)
	}
	if ix.DecodePosition[45] != 45*3000 {
		t.Errorf("DecodePosition[45] = %d", ix.DecodePosition[45])
	}
}

func TestFrameIndexRejectsRecoveryPoint(t *testing.T) {
	path := writeFragmented(t, fixture{frames: 60, gop: 30, openGOP: 30})
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	info, _ := d.VideoStream()
	_, err = frameindex.Build(d, info, logger.NewNoop())
	if !errors.Is(err, frameindex.ErrOpenGOP) {
		t.Errorf("expected ErrOpenGOP, got %v", err)
	}
}

func TestClose(t *testing.T) {
	path := writeFragmented(t, fixture{frames: 2, gop: 1, openGOP: -1})
	d, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := d.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close: got %v", err)
	}
	if _, err := d.ReadPacket(); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadPacket after Close: got %v", err)
	}
}

func TestOpen_NotMP4(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.mp4")
	os.WriteFile(path, []byte("definitely not an mp4"), 0o644)
	if _, err := Open(path); err == nil {
		t.Error("expected error for junk input")
	}
}
