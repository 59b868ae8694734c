package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cwbudde/algo-mixer/fixedpoint"
)

// Frame opcodes, carried in bits 8 and up of a frame's first header word; the
// low byte is the core.
const (
	opWrite = 0x1
	opMeter = 0x2

	headerWords = 3

	// MaxFrameWords bounds the payload of one write frame.
	MaxFrameWords = 256
)

// Span is a contiguous range of image words.
type Span struct {
	Addr, Count int
}

// DiffSpans returns the ranges where cur differs from prev, split so that no
// span exceeds limit words. A prev of a different length marks everything
// dirty.
func DiffSpans(prev, cur []uint32, limit int) []Span {
	dirty := func(i int) bool { return len(prev) != len(cur) || prev[i] != cur[i] }
	var spans []Span
	for i := 0; i < len(cur); {
		if !dirty(i) {
			i++
			continue
		}
		start := i
		for i < len(cur) && dirty(i) && i-start < limit {
			i++
		}
		spans = append(spans, Span{Addr: start, Count: i - start})
	}
	return spans
}

// Device streams the image over a byte link. Each word travels as
// ceil(bits/8) big-endian bytes. A write frame is the header
// [opWrite<<8|core, addr, count] followed by count words, last word first. A
// meter request is the header [opMeter<<8, 0, n]; the device answers with n
// words, again last word first.
type Device struct {
	link     io.ReadWriter
	closer   io.Closer
	mem      Memory
	sink     MeterSink
	interval time.Duration

	shadow  [][]uint32
	cur     []uint32
	lastGen uint64
	synced  bool
	buf     []byte
}

func NewDevice(link io.ReadWriter, mem Memory, sink MeterSink, interval time.Duration) *Device {
	return &Device{
		link:     link,
		mem:      mem,
		sink:     sink,
		interval: interval,
		shadow:   make([][]uint32, mem.NumCores()),
	}
}

// Run syncs the image and reads meters every poll interval.
func (d *Device) Run(ctx context.Context) error {
	if d.closer != nil {
		defer d.closer.Close()
	}
	return poll(ctx, d.interval, func(time.Time) error { return d.Step() })
}

// Step sends pending image changes and then reads one metering packet.
func (d *Device) Step() error {
	if err := d.Flush(); err != nil {
		return err
	}
	return d.ReadMeter()
}

// Flush sends every word that changed since the last flush. The first flush
// sends the whole image.
func (d *Device) Flush() error {
	gen := d.mem.Generation()
	if d.synced && gen == d.lastGen {
		return nil
	}
	for core := range d.shadow {
		d.cur = d.mem.CopyCore(core, d.cur)
		for _, sp := range DiffSpans(d.shadow[core], d.cur, MaxFrameWords) {
			if err := d.writeFrame(core, sp.Addr, d.cur[sp.Addr:sp.Addr+sp.Count]); err != nil {
				return err
			}
		}
		if len(d.shadow[core]) != len(d.cur) {
			d.shadow[core] = make([]uint32, len(d.cur))
		}
		copy(d.shadow[core], d.cur)
	}
	d.lastGen = gen
	d.synced = true
	return nil
}

func (d *Device) writeFrame(core, addr int, words []uint32) error {
	f := d.mem.Format()
	d.buf = d.buf[:0]
	d.buf = appendWord(d.buf, f, uint32(opWrite<<8|core))
	d.buf = appendWord(d.buf, f, uint32(addr))
	d.buf = appendWord(d.buf, f, uint32(len(words)))
	for i := len(words) - 1; i >= 0; i-- {
		d.buf = appendWord(d.buf, f, words[i])
	}
	if _, err := d.link.Write(d.buf); err != nil {
		return fmt.Errorf("write frame core %d addr %#x: %w", core, addr, err)
	}
	return nil
}

// ReadMeter requests one metering packet and publishes it.
func (d *Device) ReadMeter() error {
	f := d.mem.Format()
	n := d.sink.MeterSize()
	d.buf = d.buf[:0]
	d.buf = appendWord(d.buf, f, uint32(opMeter<<8))
	d.buf = appendWord(d.buf, f, 0)
	d.buf = appendWord(d.buf, f, uint32(n))
	if _, err := d.link.Write(d.buf); err != nil {
		return fmt.Errorf("request meter: %w", err)
	}

	packet := make([]byte, n*bytesPerWord(f))
	if _, err := io.ReadFull(d.link, packet); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %v", ErrShortPacket, err)
		}
		return fmt.Errorf("read meter: %w", err)
	}
	powers, err := DecodeMeterPacket(f, packet, n)
	if err != nil {
		return err
	}
	return d.sink.PublishMeter(powers)
}

// DecodeMeterPacket decodes n meter words from b and restores logical order.
func DecodeMeterPacket(f fixedpoint.Format, b []byte, n int) ([]float64, error) {
	bpw := bytesPerWord(f)
	if len(b) != n*bpw {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortPacket, len(b), n*bpw)
	}
	words := make([]uint32, n)
	for i := range words {
		words[i] = readWord(b[i*bpw:(i+1)*bpw])
	}
	return f.DecodePayload(words), nil
}

// EncodeMeterPacket is the device side of DecodeMeterPacket.
func EncodeMeterPacket(f fixedpoint.Format, powers []float64) ([]byte, error) {
	words, err := f.EncodePayload(powers)
	if err != nil {
		return nil, err
	}
	var b []byte
	for _, w := range words {
		b = appendWord(b, f, w)
	}
	return b, nil
}

func bytesPerWord(f fixedpoint.Format) int { return (f.Bits + 7) / 8 }

func appendWord(b []byte, f fixedpoint.Format, w uint32) []byte {
	for shift := (bytesPerWord(f) - 1) * 8; shift >= 0; shift -= 8 {
		b = append(b, byte(w>>shift))
	}
	return b
}

func readWord(b []byte) uint32 {
	var w uint32
	for _, c := range b {
		w = w<<8 | uint32(c)
	}
	return w
}
