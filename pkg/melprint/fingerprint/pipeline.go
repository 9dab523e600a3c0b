package fingerprint

import "github.com/himanishpuri/melprint/pkg/models"

// Pipeline chains analysis, peak extraction and token generation under one
// configuration.
type Pipeline struct {
	cfg       Config
	analyzer  *Analyzer
	peaks     PeakStrategy
	generator *Generator
}

// Stats reports intermediate sizes of one pipeline run.
type Stats struct {
	Frames int
	Bins   int
	Peaks  int
	Tokens int
}

func NewPipeline(cfg Config) (*Pipeline, error) {
	analyzer, err := NewAnalyzer(cfg)
	if err != nil {
		return nil, err
	}
	hasher, err := NewHasher(cfg.Hash, cfg.TokenLength)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:       cfg,
		analyzer:  analyzer,
		peaks:     cfg.Peaks,
		generator: NewGenerator(hasher, cfg.Pairing),
	}, nil
}

func (p *Pipeline) Config() Config { return p.cfg }

// Fingerprint runs the full pipeline over buf.
func (p *Pipeline) Fingerprint(buf SampleBuffer) ([]models.Fingerprint, Stats, error) {
	grid, err := p.analyzer.Analyze(buf)
	if err != nil {
		return nil, Stats{}, err
	}
	peaks := p.peaks.Extract(grid)
	fps := p.generator.Generate(peaks)
	return fps, Stats{
		Frames: grid.NumFrames(),
		Bins:   grid.Bins,
		Peaks:  len(peaks),
		Tokens: len(fps),
	}, nil
}
