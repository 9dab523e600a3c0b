package fingerprint

import (
	"fmt"

	"github.com/himanishpuri/melprint/pkg/models"
)

// PairStrategy enumerates the (anchor, target) peak pairs to hash, in a
// deterministic order derived from the peak scan order.
type PairStrategy interface {
	Pairs(peaks []Peak, emit func(anchor, target Peak))
	String() string
}

// AdjacentPairs pairs every peak with its successor in scan order, producing
// max(0, len(peaks)-1) pairs.
type AdjacentPairs struct{}

func (AdjacentPairs) Pairs(peaks []Peak, emit func(anchor, target Peak)) {
	for i := 0; i+1 < len(peaks); i++ {
		emit(peaks[i], peaks[i+1])
	}
}

func (AdjacentPairs) String() string { return "adjacent" }

// WindowedPairs pairs each anchor with up to FanOut later peaks whose time
// frame is 1..MaxDeltaFrames ahead.
type WindowedPairs struct {
	FanOut         int
	MaxDeltaFrames int
}

func (w WindowedPairs) Pairs(peaks []Peak, emit func(anchor, target Peak)) {
	for i := 0; i < len(peaks); i++ {
		anchor := peaks[i]
		paired := 0
		for j := i + 1; j < len(peaks) && paired < w.FanOut; j++ {
			dt := peaks[j].TimeFrame - anchor.TimeFrame
			if dt == 0 {
				continue
			}
			if dt > w.MaxDeltaFrames {
				break
			}
			emit(anchor, peaks[j])
			paired++
		}
	}
}

func (w WindowedPairs) String() string {
	return fmt.Sprintf("windowed(fanout=%d,maxdt=%d)", w.FanOut, w.MaxDeltaFrames)
}

// Generator turns ordered peaks into fingerprints.
type Generator struct {
	hasher  Hasher
	pairing PairStrategy
}

func NewGenerator(hasher Hasher, pairing PairStrategy) *Generator {
	if pairing == nil {
		pairing = AdjacentPairs{}
	}
	return &Generator{hasher: hasher, pairing: pairing}
}

// Generate hashes (anchor.FreqBin, target.FreqBin, target.TimeFrame-anchor.TimeFrame)
// for every pair the strategy emits. The fingerprint offset is the anchor's time frame.
func (g *Generator) Generate(peaks []Peak) []models.Fingerprint {
	fps := make([]models.Fingerprint, 0, max(0, len(peaks)-1))
	g.pairing.Pairs(peaks, func(anchor, target Peak) {
		fps = append(fps, models.Fingerprint{
			Token:  g.hasher.Hash(anchor.FreqBin, target.FreqBin, target.TimeFrame-anchor.TimeFrame),
			Offset: anchor.TimeFrame,
		})
	})
	return fps
}

// GenerateTokens is Generate without offsets.
func (g *Generator) GenerateTokens(peaks []Peak) []models.Token {
	return models.Tokens(g.Generate(peaks))
}
