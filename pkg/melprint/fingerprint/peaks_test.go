package fingerprint

import (
	"reflect"
	"testing"
)

func gridOf(frames ...[]float64) *Grid {
	bins := 0
	if len(frames) > 0 {
		bins = len(frames[0])
	}
	return &Grid{Frames: frames, Bins: bins, SampleRate: 11025, HopSize: 256}
}

func coords(peaks []Peak) [][2]int {
	out := make([][2]int, len(peaks))
	for i, p := range peaks {
		out[i] = [2]int{p.TimeFrame, p.FreqBin}
	}
	return out
}

func TestFlatThresholdScanOrder(t *testing.T) {
	g := gridOf(
		[]float64{-10, -50, -30},
		[]float64{-60, -40, -5},
		[]float64{-80, -80, -80},
		[]float64{-39.9, -20, -41},
	)

	peaks := ExtractPeaks(g, -40)

	// -40 itself is not strictly above the threshold
	expected := [][2]int{{0, 0}, {0, 2}, {1, 2}, {3, 0}, {3, 1}}
	if got := coords(peaks); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected peaks %v, got %v", expected, got)
	}
	if peaks[0].MagDB != -10 {
		t.Errorf("Expected MagDB -10, got %f", peaks[0].MagDB)
	}
}

func TestExtractPeaksEmpty(t *testing.T) {
	strategies := []PeakStrategy{
		FlatThreshold{Threshold: -40},
		LocalMaximum{Threshold: -40, FreqNeighbour: 3, TimeNeighbour: 1},
		AdaptiveThreshold{Threshold: -40, OffsetDB: 3},
	}
	grids := []*Grid{
		gridOf(),
		gridOf([]float64{-80, -80}, []float64{-80, -80}),
	}

	for _, s := range strategies {
		for _, g := range grids {
			peaks := s.Extract(g)
			if peaks == nil || len(peaks) != 0 {
				t.Errorf("%s: expected empty non-nil slice, got %v", s, peaks)
			}
		}
	}
}

func TestThresholdMonotonicity(t *testing.T) {
	grid, err := newTestAnalyzer(t, smallConfig()).Analyze(sineSweep(11025, 2, 300, 3000))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	thresholds := []float64{-85, -80, -70, -60, -50, -40, -30, -20, -10, -1, 0}
	for name, build := range map[string]func(float64) PeakStrategy{
		"flat":     func(th float64) PeakStrategy { return FlatThreshold{Threshold: th} },
		"local":    func(th float64) PeakStrategy { return LocalMaximum{Threshold: th, FreqNeighbour: 3, TimeNeighbour: 1} },
		"adaptive": func(th float64) PeakStrategy { return AdaptiveThreshold{Threshold: th, OffsetDB: 3} },
	} {
		prev := -1
		for _, th := range thresholds {
			n := len(build(th).Extract(grid))
			if prev >= 0 && n > prev {
				t.Errorf("%s: raising threshold to %.0f increased peaks from %d to %d", name, th, prev, n)
			}
			prev = n
		}
	}
}

func TestLocalMaximum(t *testing.T) {
	g := gridOf(
		[]float64{-30, -10, -30, -30},
		[]float64{-30, -20, -30, -5},
		[]float64{-30, -30, -30, -30},
	)

	peaks := LocalMaximum{Threshold: -40, FreqNeighbour: 1, TimeNeighbour: 1}.Extract(g)

	expected := [][2]int{{0, 1}, {1, 3}}
	if got := coords(peaks); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected peaks %v, got %v", expected, got)
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	g := gridOf(
		[]float64{-20, -20, -20, -20},
		[]float64{-60, -60, -60, -10},
	)

	peaks := AdaptiveThreshold{Threshold: -50, OffsetDB: 3}.Extract(g)

	// frame 0 is flat so nothing rises above its mean; frame 1 mean is -47.5
	expected := [][2]int{{1, 3}}
	if got := coords(peaks); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected peaks %v, got %v", expected, got)
	}
}

func TestParsePeakStrategy(t *testing.T) {
	tests := []struct {
		name     string
		expected PeakStrategy
		wantErr  bool
	}{
		{"", FlatThreshold{Threshold: -40}, false},
		{"flat", FlatThreshold{Threshold: -40}, false},
		{"LOCAL", LocalMaximum{Threshold: -40, FreqNeighbour: 3, TimeNeighbour: 1}, false},
		{"adaptive", AdaptiveThreshold{Threshold: -40, OffsetDB: 3}, false},
		{"wavelet", nil, true},
	}

	for _, tt := range tests {
		got, err := ParsePeakStrategy(tt.name, -40)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePeakStrategy(%q): expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePeakStrategy(%q) failed: %v", tt.name, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParsePeakStrategy(%q) = %v, expected %v", tt.name, got, tt.expected)
		}
	}
}
