package main

import (
	"fmt"

	"github.com/himanishpuri/melprint/pkg/melprint/fingerprint"
	"github.com/himanishpuri/melprint/pkg/models"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorInvalidConfig
	ErrorProcessing
	ErrorNoTokens
)

// pipelineOptions mirrors the CLI and server pipeline flags. Zero values keep
// the defaults, so a browser client and the server agree out of the box.
type pipelineOptions struct {
	Peaks       string
	Threshold   *float64
	Hash        string
	TokenLength int
}

func (o pipelineOptions) config() (fingerprint.Config, error) {
	cfg := fingerprint.DefaultConfig()
	threshold := fingerprint.DefaultThreshold
	if o.Threshold != nil {
		threshold = *o.Threshold
	}
	peaks, err := fingerprint.ParsePeakStrategy(o.Peaks, threshold)
	if err != nil {
		return cfg, err
	}
	cfg.Peaks = peaks
	if o.Hash != "" {
		cfg.Hash = o.Hash
	}
	if o.TokenLength != 0 {
		cfg.TokenLength = o.TokenLength
	}
	return cfg, cfg.Validate()
}

// fingerprintError carries the code reported to JavaScript.
type fingerprintError struct {
	code int
	msg  string
}

func (e *fingerprintError) Error() string { return e.msg }

// generate fingerprints interleaved samples and returns them in the shape the
// server's token endpoints accept.
func generate(samples []float64, sampleRate, channels int, opts pipelineOptions) (models.TokenFile, error) {
	if sampleRate <= 0 {
		return models.TokenFile{}, &fingerprintError{ErrorInvalidArgs, fmt.Sprintf("Invalid sample rate: %d", sampleRate)}
	}
	if channels < 1 || channels > 2 {
		return models.TokenFile{}, &fingerprintError{ErrorInvalidArgs, fmt.Sprintf("Channels must be 1 (mono) or 2 (stereo), got: %d", channels)}
	}
	if len(samples) == 0 {
		return models.TokenFile{}, &fingerprintError{ErrorInvalidArgs, "audioArray is empty"}
	}

	cfg, err := opts.config()
	if err != nil {
		return models.TokenFile{}, &fingerprintError{ErrorInvalidConfig, err.Error()}
	}
	pipeline, err := fingerprint.NewPipeline(cfg)
	if err != nil {
		return models.TokenFile{}, &fingerprintError{ErrorInvalidConfig, err.Error()}
	}

	if channels == 2 {
		samples = stereoToMono(samples)
	}
	fps, _, err := pipeline.Fingerprint(fingerprint.SampleBuffer{Samples: samples, SampleRate: sampleRate})
	if err != nil {
		return models.TokenFile{}, &fingerprintError{ErrorProcessing, fmt.Sprintf("Failed to fingerprint audio: %v", err)}
	}
	if len(fps) == 0 {
		return models.TokenFile{}, &fingerprintError{ErrorNoTokens, "No tokens generated (audio may be silent or too short)"}
	}
	return models.NewTokenFile(fps), nil
}

func stereoToMono(stereo []float64) []float64 {
	if len(stereo)%2 != 0 {
		stereo = stereo[:len(stereo)-1]
	}

	mono := make([]float64, len(stereo)/2)
	for i := range mono {
		mono[i] = (stereo[i*2] + stereo[i*2+1]) / 2.0
	}
	return mono
}
