package transport

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/algo-mixer/controller"
	"github.com/cwbudde/algo-mixer/fixedpoint"
	"github.com/cwbudde/algo-mixer/mixer"
	"github.com/cwbudde/algo-mixer/topology"
)

// fakeLink records what the host writes and serves canned meter replies.
type fakeLink struct {
	sent    bytes.Buffer
	replies bytes.Buffer
}

func (l *fakeLink) Write(p []byte) (int, error) { return l.sent.Write(p) }
func (l *fakeLink) Read(p []byte) (int, error) { return l.replies.Read(p) }

type frame struct {
	op, core, addr int
	words          []uint32 // logical order
}

func parseFrames(t *testing.T, b []byte, f fixedpoint.Format) []frame {
	t.Helper()
	bpw := bytesPerWord(f)
	next := func() uint32 {
		if len(b) < bpw {
			t.Fatalf("truncated frame stream")
		}
		w := readWord(b[:bpw])
		b = b[bpw:]
		return w
	}
	var frames []frame
	for len(b) > 0 {
		var hdr [headerWords]uint32
		for i := range hdr {
			hdr[i] = next()
		}
		fr := frame{op: int(hdr[0] >> 8), core: int(hdr[0] & 0xff), addr: int(hdr[1])}
		if fr.op == opWrite {
			fr.words = make([]uint32, hdr[2])
			for i := len(fr.words) - 1; i >= 0; i-- {
				fr.words[i] = next()
			}
		}
		frames = append(frames, fr)
	}
	return frames
}

func newController(t *testing.T) *controller.Controller {
	t.Helper()
	c, err := controller.New(topology.Default(), fixedpoint.Param)
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	if err := c.DumpStateToMixer(); err != nil {
		t.Fatalf("DumpStateToMixer: %v", err)
	}
	return c
}

func TestDiffSpans(t *testing.T) {
	prev := []uint32{0, 0, 0, 0, 0, 0, 0}
	cur := []uint32{0, 1, 1, 0, 1, 1, 1}
	got := DiffSpans(prev, cur, 2)
	want := []Span{{1, 2}, {4, 2}, {6, 1}}
	if len(got) != len(want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got=%v want=%v", got, want)
		}
	}
	if all := DiffSpans(nil, cur, 100); len(all) != 1 || all[0] != (Span{0, 7}) {
		t.Fatalf("nil prev got=%v", all)
	}
	if none := DiffSpans(cur, cur, 100); len(none) != 0 {
		t.Fatalf("identical got=%v", none)
	}
}

func TestDeviceFlushSendsImageThenDeltas(t *testing.T) {
	c := newController(t)
	im := c.Image()
	link := &fakeLink{}
	d := NewDevice(link, im, c, time.Second)

	if err := d.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got := make([][]uint32, im.NumCores())
	for i := range got {
		got[i] = make([]uint32, im.WordsPerCore())
	}
	for _, fr := range parseFrames(t, link.sent.Bytes(), im.Format()) {
		if fr.op != opWrite || len(fr.words) > MaxFrameWords {
			t.Fatalf("unexpected frame op=%d len=%d", fr.op, len(fr.words))
		}
		copy(got[fr.core][fr.addr:], fr.words)
	}
	for core := range got {
		want := im.CopyCore(core, nil)
		for addr := range want {
			if got[core][addr] != want[addr] {
				t.Fatalf("core %d addr %#x got=%s want=%s", core, addr,
					im.Format().Hex(got[core][addr]), im.Format().Hex(want[addr]))
			}
		}
	}

	// Unchanged image: nothing to send.
	link.sent.Reset()
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if link.sent.Len() != 0 {
		t.Fatalf("idle flush sent %d bytes", link.sent.Len())
	}

	if err := c.ApplyUpdate(mixer.ChannelUpdate{Channel: 12, Param: mixer.ParamPFL, To: mixer.Flag(true)}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	frames := parseFrames(t, link.sent.Bytes(), im.Format())
	topo := c.Topology()
	wantCore, wantAddr := topo.GainAddr(topo.PhysicalBusses(topo.SoloBus())[0], 12)
	if len(frames) != 1 || frames[0].core != wantCore || frames[0].addr != wantAddr || len(frames[0].words) != 1 {
		t.Fatalf("delta frames got=%+v want one word at core %d addr %#x", frames, wantCore, wantAddr)
	}
	if v := im.Format().Decode(frames[0].words[0]); v != 1 {
		t.Fatalf("solo gain got=%v want=1", v)
	}
}

func TestDeviceReadMeter(t *testing.T) {
	c := newController(t)
	link := &fakeLink{}
	d := NewDevice(link, c.Image(), c, time.Second)

	powers := make([]float64, c.MeterSize())
	powers[0] = 0.5
	powers[len(powers)-1] = 0.005
	packet, err := EncodeMeterPacket(c.Image().Format(), powers)
	if err != nil {
		t.Fatalf("EncodeMeterPacket: %v", err)
	}
	link.replies.Write(packet)

	if err := d.ReadMeter(); err != nil {
		t.Fatalf("ReadMeter: %v", err)
	}
	m := c.Meter()
	if math.Abs(m.Channels[0]) > 1e-3 {
		t.Fatalf("channel 0 got=%v dB want=0", m.Channels[0])
	}
	if last := m.Busses[len(m.Busses)-1]; math.Abs(last+20) > 0.05 {
		t.Fatalf("last bus got=%v dB want=-20", last)
	}

	req := parseFrames(t, link.sent.Bytes(), c.Image().Format())
	if len(req) != 1 || req[0].op != opMeter {
		t.Fatalf("meter request got=%+v", req)
	}

	link.replies.Write(packet[:len(packet)-2])
	if err := d.ReadMeter(); !errors.Is(err, ErrShortPacket) {
		t.Fatalf("err=%v want ErrShortPacket", err)
	}
}

func TestDecodeMeterPacketLength(t *testing.T) {
	if _, err := DecodeMeterPacket(fixedpoint.Param, make([]byte, 5), 2); !errors.Is(err, ErrShortPacket) {
		t.Fatalf("err=%v want ErrShortPacket", err)
	}
}

func TestDummyReflectsMasterGain(t *testing.T) {
	c := newController(t)
	if err := c.Set("c0/mute", "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set("b0/c0/lvl", "0"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	d := NewDummy(c.Image(), c.Topology(), c, time.Second)
	if err := d.Step(d.start); err != nil {
		t.Fatalf("Step: %v", err)
	}
	m := c.Meter()
	// Centered on the stereo master: 3 dB below unity, no wobble at t=0.
	if math.Abs(m.Channels[0]+3) > 0.05 {
		t.Fatalf("channel 0 got=%v dB want=-3", m.Channels[0])
	}
	if m.Channels[1] > -100 {
		t.Fatalf("muted channel got=%v dB", m.Channels[1])
	}
	if math.Abs(m.Busses[0]-m.Busses[1]) > 1e-9 {
		t.Fatalf("centered master sides differ: %v vs %v", m.Busses[0], m.Busses[1])
	}

	// Ballistics: after the source disappears the meter decays, not drops.
	if err := c.Set("c0/mute", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := d.Step(d.start.Add(100 * time.Millisecond)); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if got := c.Meter().Channels[0]; got < -20 || got > -3 {
		t.Fatalf("decayed reading got=%v dB", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c := newController(t)
	d := NewDummy(c.Image(), c.Topology(), c, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestOpenSelectsByKind(t *testing.T) {
	c := newController(t)
	tr, err := Open(Config{Kind: KindDummy}, c.Image(), c.Topology(), c)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := tr.(*Dummy); !ok {
		t.Fatalf("got %T want *Dummy", tr)
	}
	if _, err := Open(Config{Kind: KindDevice}, c.Image(), c.Topology(), c); err == nil {
		t.Fatalf("device without path accepted")
	}
	if _, err := Open(Config{Kind: "spi"}, c.Image(), c.Topology(), c); err == nil {
		t.Fatalf("unknown kind accepted")
	}
}
