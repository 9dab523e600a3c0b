package fingerprint

import (
	"math"
	"testing"
)

// sineSweep returns a linear chirp from f0 to f1 Hz.
func sineSweep(sampleRate int, seconds, f0, f1 float64) SampleBuffer {
	n := int(float64(sampleRate) * seconds)
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		phase := 2 * math.Pi * (f0*t + (f1-f0)/(2*seconds)*t*t)
		samples[i] = 0.5 * math.Sin(phase)
	}
	return SampleBuffer{Samples: samples, SampleRate: sampleRate}
}

func sineTone(sampleRate int, seconds, freq float64) SampleBuffer {
	n := int(float64(sampleRate) * seconds)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return SampleBuffer{Samples: samples, SampleRate: sampleRate}
}

func silence(sampleRate int, seconds float64) SampleBuffer {
	return SampleBuffer{Samples: make([]float64, int(float64(sampleRate)*seconds)), SampleRate: sampleRate}
}

// smallConfig keeps tests fast: 11025 Hz material, 1024/256 STFT, 64 mel bands.
func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.WindowSize = 1024
	cfg.HopSize = 256
	cfg.MelBands = 64
	return cfg
}

func newTestAnalyzer(t *testing.T, cfg Config) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(cfg)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	return a
}
