package melprint

import (
	"flag"

	"github.com/himanishpuri/melprint/pkg/melprint/fingerprint"
)

// PipelineFlags are the command line settings that change which tokens a
// recording produces. Every command that reads or writes an index registers
// the same set, so enrollment and identification agree.
type PipelineFlags struct {
	SampleRate  int
	Threshold   float64
	Peaks       string
	Hash        string
	TokenLength int
	TieBreak    string
}

// Register binds the flags to fs with the package defaults.
func (p *PipelineFlags) Register(fs *flag.FlagSet) {
	fs.IntVar(&p.SampleRate, "rate", defaultSampleRate, "Sample rate ffmpeg converts to for non WAV/MP3 input")
	fs.Float64Var(&p.Threshold, "threshold", fingerprint.DefaultThreshold, "Peak threshold in dB relative to the loudest cell")
	fs.StringVar(&p.Peaks, "peaks", "flat", "Peak strategy: flat, local or adaptive")
	fs.StringVar(&p.Hash, "hash", fingerprint.HashSHA256, "Token hash: sha256 or xxhash")
	fs.IntVar(&p.TokenLength, "token-len", fingerprint.DefaultTokenLength, "Hex characters kept per token")
	fs.StringVar(&p.TieBreak, "tie", fingerprint.TieFirstSeen.String(), "Tie-break rule: first-seen, first-to-reach or lexical")
}

// Options converts the parsed flags into service options.
func (p *PipelineFlags) Options() ([]Option, error) {
	peaks, err := fingerprint.ParsePeakStrategy(p.Peaks, p.Threshold)
	if err != nil {
		return nil, err
	}
	tie, err := fingerprint.ParseTieBreak(p.TieBreak)
	if err != nil {
		return nil, err
	}
	return []Option{
		WithSampleRate(p.SampleRate),
		WithPeakStrategy(peaks),
		WithHasher(p.Hash, p.TokenLength),
		WithTieBreak(tie),
	}, nil
}
