// Package audioio moves mixer audio through WAV files: channel inputs into
// offline renders and rendered busses back out.
package audioio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

const bitDepth = 16

// Levels summarizes the samples of a written file. Clipped counts samples
// beyond full scale, which the 16-bit encoder cannot represent.
type Levels struct {
	Peak    float64
	RMS     float64
	Clipped int
}

func (l Levels) PeakDBFS() float64 { return DBFS(l.Peak) }

func (l Levels) RMSDBFS() float64 { return DBFS(l.RMS) }

// DBFS converts a linear level to dB relative to full scale. Silence is -Inf.
func DBFS(x float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(x)
}

// ReadInputs loads the input file of every channel in paths as mono at
// sampleRate. The result is indexed by channel up to the highest one given;
// channels without a file stay nil.
func ReadInputs(paths map[int]string, sampleRate int) ([][]float64, error) {
	channels := make([]int, 0, len(paths))
	for ch := range paths {
		if ch < 0 {
			return nil, fmt.Errorf("input for negative channel %d", ch)
		}
		channels = append(channels, ch)
	}
	if len(channels) == 0 {
		return nil, nil
	}
	sort.Ints(channels)

	inputs := make([][]float64, channels[len(channels)-1]+1)
	for _, ch := range channels {
		in, err := ReadMonoAt(paths[ch], sampleRate)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		inputs[ch] = in
	}
	return inputs, nil
}

// ReadMonoAt decodes path, averages its channels and converts it to
// sampleRate.
func ReadMonoAt(path string, sampleRate int) ([]float64, error) {
	in, rate, err := ReadMono(path)
	if err != nil {
		return nil, err
	}
	if rate == sampleRate {
		return in, nil
	}
	r, err := dspresample.NewForRates(float64(rate), float64(sampleRate),
		dspresample.WithQuality(dspresample.QualityBest))
	if err != nil {
		return nil, fmt.Errorf("resample %s from %d Hz: %w", path, rate, err)
	}
	return r.Process(in), nil
}

// ReadMono decodes path and averages its channels. It also returns the
// file's sample rate.
func ReadMono(path string) ([]float64, int, error) {
	buf, err := decode(path)
	if err != nil {
		return nil, 0, err
	}
	return downmix(buf.Data, buf.Format.NumChannels), buf.Format.SampleRate, nil
}

func decode(path string) (*audio.Float32Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("%s: no audio format", path)
	}
	return buf, nil
}

func downmix(interleaved []float32, channels int) []float64 {
	out := make([]float64, len(interleaved)/channels)
	scale := 1 / float64(channels)
	for i := range out {
		var sum float64
		for _, v := range interleaved[i*channels : (i+1)*channels] {
			sum += float64(v)
		}
		out[i] = sum * scale
	}
	return out
}

// WriteStereo writes a rendered stereo bus, creating parent directories.
func WriteStereo(path string, left, right []float64, sampleRate int) (Levels, error) {
	return write(path, sampleRate, left, right)
}

// WriteMono writes a single rendered bus, creating parent directories.
func WriteMono(path string, bus []float64, sampleRate int) (Levels, error) {
	return write(path, sampleRate, bus)
}

func write(path string, sampleRate int, sides ...[]float64) (Levels, error) {
	frames := len(sides[0])
	for _, s := range sides[1:] {
		if len(s) != frames {
			return Levels{}, fmt.Errorf("%s: sides differ in length (%d and %d)", path, frames, len(s))
		}
	}

	var lv Levels
	var sum float64
	data := make([]float32, frames*len(sides))
	for i := 0; i < frames; i++ {
		for c, s := range sides {
			v := s[i]
			a := math.Abs(v)
			lv.Peak = math.Max(lv.Peak, a)
			if a > 1 {
				lv.Clipped++
			}
			sum += v * v
			data[i*len(sides)+c] = float32(v)
		}
	}
	if len(data) > 0 {
		lv.RMS = math.Sqrt(sum / float64(len(data)))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Levels{}, err
	}
	f, err := os.Create(path)
	if err != nil {
		return Levels{}, err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, bitDepth, len(sides), 1)
	buf := &audio.Float32Buffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: len(sides)},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return Levels{}, fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return Levels{}, fmt.Errorf("finish %s: %w", path, err)
	}
	return lv, nil
}

// RMS is the root mean square of x; zero for an empty slice.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}
