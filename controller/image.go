package controller

import (
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/fixedpoint"
)

// Image is the per-core parameter memory as encoded words. The controller is
// its only writer; transports read it concurrently. Every word is stored
// atomically, so a reader never sees a torn word.
type Image struct {
	format fixedpoint.Format
	cores  [][]atomic.Uint32
	gen    atomic.Uint64

	saturated atomic.Int64
}

// NewImage allocates a zeroed image.
func NewImage(numCores, wordsPerCore int, f fixedpoint.Format) (*Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if numCores <= 0 || wordsPerCore <= 0 {
		return nil, fmt.Errorf("image needs positive sizes, got %d cores x %d words", numCores, wordsPerCore)
	}
	im := &Image{format: f, cores: make([][]atomic.Uint32, numCores)}
	for i := range im.cores {
		im.cores[i] = make([]atomic.Uint32, wordsPerCore)
	}
	return im, nil
}

func (im *Image) Format() fixedpoint.Format { return im.format }

func (im *Image) NumCores() int { return len(im.cores) }

func (im *Image) WordsPerCore() int { return len(im.cores[0]) }

// Generation counts committed translations. It changes after the words of a
// commit are visible.
func (im *Image) Generation() uint64 { return im.gen.Load() }

// Saturated is the number of words the last commit clamped to the format's
// range.
func (im *Image) Saturated() int { return int(im.saturated.Load()) }

// Load returns the raw word at addr of core.
func (im *Image) Load(core, addr int) uint32 {
	return im.cores[core][addr].Load()
}

// Value decodes the word at addr of core.
func (im *Image) Value(core, addr int) float64 {
	return im.format.Decode(im.Load(core, addr))
}

// CopyCore copies the words of core into dst, growing it as needed.
func (im *Image) CopyCore(core int, dst []uint32) []uint32 {
	words := im.cores[core]
	if cap(dst) < len(words) {
		dst = make([]uint32, len(words))
	}
	dst = dst[:len(words)]
	for i := range words {
		dst[i] = words[i].Load()
	}
	return dst
}

type pendingWrite struct {
	core, addr int
	words      []uint32
}

// staging collects encoded writes of one translation so that a failed
// translation leaves the image untouched.
type staging struct {
	im        *Image
	writes    []pendingWrite
	saturated int
}

func (s *staging) set(core, addr int, data []float64) error {
	if core < 0 || core >= len(s.im.cores) {
		return fmt.Errorf("core %d out of range [0,%d)", core, len(s.im.cores))
	}
	if addr < 0 || addr+len(data) > len(s.im.cores[core]) {
		return fmt.Errorf("core %d: write of %d words at %#x exceeds memory", core, len(data), addr)
	}
	words := make([]uint32, len(data))
	for i, v := range data {
		w, clamped, err := s.im.format.EncodeSaturated(v)
		if err != nil {
			return fmt.Errorf("core %d addr %#x: %w", core, addr+i, err)
		}
		if clamped {
			s.saturated++
		}
		words[i] = w
	}
	s.writes = append(s.writes, pendingWrite{core: core, addr: addr, words: words})
	return nil
}

func (s *staging) commit() {
	for _, w := range s.writes {
		mem := s.im.cores[w.core]
		for i, word := range w.words {
			mem[w.addr+i].Store(word)
		}
	}
	s.im.saturated.Store(int64(s.saturated))
	s.im.gen.Add(1)
}
