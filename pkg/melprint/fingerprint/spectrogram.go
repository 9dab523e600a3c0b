package fingerprint

import (
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
)

// amin keeps log10 away from zero power.
const amin = 1e-10

// SampleBuffer is a mono buffer of amplitude samples.
type SampleBuffer struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the playing time of the buffer.
func (b SampleBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// Slice returns the sub-buffer covering samples [from, to).
func (b SampleBuffer) Slice(from, to int) SampleBuffer {
	return SampleBuffer{Samples: b.Samples[from:to], SampleRate: b.SampleRate}
}

// Grid is a time-major mel spectrogram in decibels: Frames[timeFrame][frequencyBin].
// Every frame has exactly Bins values. Read-only once returned by Analyze.
type Grid struct {
	Frames     [][]float64
	Bins       int
	SampleRate int
	HopSize    int
}

func (g *Grid) NumFrames() int { return len(g.Frames) }

// At returns the magnitude of a cell addressed as (frequencyBin, timeFrame).
func (g *Grid) At(bin, frame int) float64 { return g.Frames[frame][bin] }

// FrameTime converts a time frame index to its start time in the buffer.
func (g *Grid) FrameTime(frame int) time.Duration {
	if g.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(frame*g.HopSize) / float64(g.SampleRate) * float64(time.Second))
}

// FrameCount is the number of full windows that fit in n samples.
func FrameCount(n, windowSize, hopSize int) int {
	if n < windowSize {
		return 0
	}
	return (n-windowSize)/hopSize + 1
}

// Analyzer turns sample buffers into mel spectrogram grids. It is safe for
// concurrent use; mel banks are cached per sample rate.
type Analyzer struct {
	windowSize int
	hopSize    int
	melBands   int
	floorDB    float64
	workers    int
	window     []float64

	mu    sync.Mutex
	banks map[int][][]float64
}

func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{
		windowSize: cfg.WindowSize,
		hopSize:    cfg.HopSize,
		melBands:   cfg.MelBands,
		floorDB:    cfg.FloorDB,
		workers:    cfg.analyzerWorkers(),
		window:     window.Hann(cfg.WindowSize),
		banks:      make(map[int][][]float64),
	}, nil
}

// ComputeSpectrogram analyzes buf with the default mel settings and the given
// window and hop sizes. Non-positive sizes are rejected.
func ComputeSpectrogram(buf SampleBuffer, windowSize, hopSize int) (*Grid, error) {
	cfg := DefaultConfig()
	cfg.WindowSize = windowSize
	cfg.HopSize = hopSize
	if cfg.WindowSize > 0 && cfg.MelBands > cfg.WindowSize/2+1 {
		cfg.MelBands = cfg.WindowSize/2 + 1
	}
	a, err := NewAnalyzer(cfg)
	if err != nil {
		return nil, err
	}
	return a.Analyze(buf)
}

// Analyze windows the buffer, transforms each frame, folds the power spectrum
// onto the mel bank and converts it to dB relative to the loudest cell.
// Frames are computed in parallel and stored by index, so the result does not
// depend on scheduling.
func (a *Analyzer) Analyze(buf SampleBuffer) (*Grid, error) {
	if len(buf.Samples) == 0 {
		return nil, &ConfigError{Field: "samples", Reason: "must not be empty"}
	}
	if buf.SampleRate <= 0 {
		return nil, &ConfigError{Field: "sample_rate", Reason: "must be positive"}
	}

	bank := a.melBank(buf.SampleRate)
	nFrames := FrameCount(len(buf.Samples), a.windowSize, a.hopSize)
	frames := make([][]float64, nFrames)

	workers := a.workers
	if workers > nFrames {
		workers = nFrames
	}
	if workers > 0 {
		chunk := (nFrames + workers - 1) / workers
		var wg sync.WaitGroup
		for start := 0; start < nFrames; start += chunk {
			end := min(start+chunk, nFrames)
			wg.Add(1)
			go func() {
				defer wg.Done()
				scratch := make([]float64, a.windowSize)
				for t := start; t < end; t++ {
					frames[t] = a.melFrame(buf.Samples[t*a.hopSize:t*a.hopSize+a.windowSize], scratch, bank)
				}
			}()
		}
		wg.Wait()
	}

	a.toDecibels(frames)

	return &Grid{
		Frames:     frames,
		Bins:       a.melBands,
		SampleRate: buf.SampleRate,
		HopSize:    a.hopSize,
	}, nil
}

// melFrame returns the mel-band power of one windowed frame.
func (a *Analyzer) melFrame(samples, scratch []float64, bank [][]float64) []float64 {
	copy(scratch, samples)
	for i := range scratch {
		scratch[i] *= a.window[i]
	}
	spectrum := fft.FFTReal(scratch)
	power := PowerSpectrum(spectrum)

	mel := make([]float64, len(bank))
	for m, weights := range bank {
		mel[m] = floats.Dot(weights, power)
	}
	return mel
}

// toDecibels rewrites power values in place as 10*log10(p/max), clamped to the floor.
// A silent buffer has no reference level and maps entirely to the floor.
func (a *Analyzer) toDecibels(frames [][]float64) {
	maxPower := 0.0
	for _, f := range frames {
		if m := floats.Max(f); m > maxPower {
			maxPower = m
		}
	}
	for _, f := range frames {
		for i, p := range f {
			if maxPower <= amin {
				f[i] = a.floorDB
				continue
			}
			db := 10 * math.Log10(math.Max(p, amin)/maxPower)
			f[i] = math.Max(db, a.floorDB)
		}
	}
}

func (a *Analyzer) melBank(sampleRate int) [][]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	bank, ok := a.banks[sampleRate]
	if !ok {
		bank = melFilterBank(a.melBands, a.windowSize, sampleRate)
		a.banks[sampleRate] = bank
	}
	return bank
}

// PowerSpectrum returns |X[k]|^2 for the non-negative frequencies 0..N/2.
func PowerSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum)/2 + 1
	if half > len(spectrum) {
		half = len(spectrum)
	}
	power := make([]float64, half)
	for i := 0; i < half; i++ {
		m := cmplx.Abs(spectrum[i])
		power[i] = m * m
	}
	return power
}
