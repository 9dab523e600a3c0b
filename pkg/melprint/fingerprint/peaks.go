package fingerprint

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Peak is a salient (timeFrame, frequencyBin) cell of the grid.
type Peak struct {
	TimeFrame int
	FreqBin   int
	MagDB     float64 // useful when tuning thresholds
}

// PeakStrategy selects the landmarks of a grid. Implementations must return
// peaks ordered by ascending TimeFrame, then ascending FreqBin, and must return
// a non-nil empty slice when nothing qualifies.
type PeakStrategy interface {
	Extract(g *Grid) []Peak
	String() string
}

// ExtractPeaks applies the flat threshold strategy.
func ExtractPeaks(g *Grid, threshold float64) []Peak {
	return FlatThreshold{Threshold: threshold}.Extract(g)
}

// FlatThreshold keeps every cell strictly above a global threshold.
type FlatThreshold struct {
	Threshold float64
}

func (s FlatThreshold) Extract(g *Grid) []Peak {
	peaks := make([]Peak, 0)
	for t, frame := range g.Frames {
		for f, mag := range frame {
			if mag > s.Threshold {
				peaks = append(peaks, Peak{TimeFrame: t, FreqBin: f, MagDB: mag})
			}
		}
	}
	return peaks
}

func (s FlatThreshold) String() string { return fmt.Sprintf("flat(%.1fdB)", s.Threshold) }

// LocalMaximum keeps cells above Threshold that no neighbour within
// +/-TimeNeighbour frames and +/-FreqNeighbour bins exceeds.
type LocalMaximum struct {
	Threshold     float64
	FreqNeighbour int
	TimeNeighbour int
}

func (s LocalMaximum) Extract(g *Grid) []Peak {
	peaks := make([]Peak, 0)
	nFrames := len(g.Frames)
	for t, frame := range g.Frames {
		for f, mag := range frame {
			if mag <= s.Threshold {
				continue
			}
			if s.isLocalMax(g, t, f, mag, nFrames) {
				peaks = append(peaks, Peak{TimeFrame: t, FreqBin: f, MagDB: mag})
			}
		}
	}
	return peaks
}

func (s LocalMaximum) isLocalMax(g *Grid, t, f int, mag float64, nFrames int) bool {
	for dt := -s.TimeNeighbour; dt <= s.TimeNeighbour; dt++ {
		tIdx := t + dt
		if tIdx < 0 || tIdx >= nFrames {
			continue
		}
		for df := -s.FreqNeighbour; df <= s.FreqNeighbour; df++ {
			fIdx := f + df
			if fIdx < 0 || fIdx >= g.Bins || (dt == 0 && df == 0) {
				continue
			}
			if g.Frames[tIdx][fIdx] > mag {
				return false
			}
		}
	}
	return true
}

func (s LocalMaximum) String() string {
	return fmt.Sprintf("local(%.1fdB,±%dt,±%df)", s.Threshold, s.TimeNeighbour, s.FreqNeighbour)
}

// AdaptiveThreshold keeps cells above Threshold that also exceed their
// frame's mean level by OffsetDB.
type AdaptiveThreshold struct {
	Threshold float64
	OffsetDB  float64
}

func (s AdaptiveThreshold) Extract(g *Grid) []Peak {
	peaks := make([]Peak, 0)
	for t, frame := range g.Frames {
		if len(frame) == 0 {
			continue
		}
		local := floats.Sum(frame)/float64(len(frame)) + s.OffsetDB
		for f, mag := range frame {
			if mag > s.Threshold && mag > local {
				peaks = append(peaks, Peak{TimeFrame: t, FreqBin: f, MagDB: mag})
			}
		}
	}
	return peaks
}

func (s AdaptiveThreshold) String() string {
	return fmt.Sprintf("adaptive(%.1fdB,+%.1fdB)", s.Threshold, s.OffsetDB)
}

// ParsePeakStrategy maps a strategy name ("flat", "local", "adaptive") to a
// strategy using threshold and the package's neighbourhood defaults.
func ParsePeakStrategy(name string, threshold float64) (PeakStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "flat":
		return FlatThreshold{Threshold: threshold}, nil
	case "local":
		return LocalMaximum{Threshold: threshold, FreqNeighbour: 3, TimeNeighbour: 1}, nil
	case "adaptive":
		return AdaptiveThreshold{Threshold: threshold, OffsetDB: 3}, nil
	default:
		return nil, &ConfigError{Field: "peaks", Reason: fmt.Sprintf("unknown strategy %q", name)}
	}
}
