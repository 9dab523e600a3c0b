package fingerprint

import (
	"errors"
	"fmt"
	"runtime"
)

// ------------------------ TUNABLES ------------------------
const (
	// STFT window and hop in samples. A trailing partial window is dropped,
	// so a buffer of N samples yields floor((N-WindowSize)/HopSize)+1 frames.
	DefaultWindowSize = 2048
	DefaultHopSize    = 512

	// Number of mel filters, i.e. frequency bins of the grid.
	DefaultMelBands = 128

	// Lowest representable level relative to the loudest cell.
	DefaultFloorDB = -80.0

	// Flat peak threshold in dB.
	DefaultThreshold = -40.0

	// Hex characters kept from the token digest. 10 chars = 40 bits.
	DefaultTokenLength = 10

	DefaultLookupWorkers   = 4
	DefaultLookupBatchSize = 500
)

var (
	// ErrInvalidConfig is the ConfigurationError kind. It is fatal and never retried.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrIndexUnavailable marks any failure to reach the fingerprint index.
	ErrIndexUnavailable = errors.New("fingerprint index unavailable")
)

// ConfigError describes a rejected parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// Config carries every tunable of the pipeline. Enrollment and identification
// must use identical values or tokens will not line up.
type Config struct {
	WindowSize int
	HopSize    int
	MelBands   int
	FloorDB    float64

	Peaks       PeakStrategy
	Hash        string // "sha256" or "xxhash"
	TokenLength int
	Pairing     PairStrategy
	TieBreak    TieBreak

	AnalyzerWorkers int
	LookupWorkers   int
	LookupBatchSize int
}

func DefaultConfig() Config {
	return Config{
		WindowSize:      DefaultWindowSize,
		HopSize:         DefaultHopSize,
		MelBands:        DefaultMelBands,
		FloorDB:         DefaultFloorDB,
		Peaks:           FlatThreshold{Threshold: DefaultThreshold},
		Hash:            HashSHA256,
		TokenLength:     DefaultTokenLength,
		Pairing:         AdjacentPairs{},
		TieBreak:        TieFirstSeen,
		AnalyzerWorkers: runtime.GOMAXPROCS(0),
		LookupWorkers:   DefaultLookupWorkers,
		LookupBatchSize: DefaultLookupBatchSize,
	}
}

// Validate reports the first invalid field as a *ConfigError.
func (c Config) Validate() error {
	switch {
	case c.WindowSize <= 0:
		return &ConfigError{Field: "window_size", Reason: "must be positive"}
	case c.HopSize <= 0:
		return &ConfigError{Field: "hop_size", Reason: "must be positive"}
	case c.MelBands <= 0:
		return &ConfigError{Field: "mel_bands", Reason: "must be positive"}
	case c.MelBands > c.WindowSize/2+1:
		return &ConfigError{Field: "mel_bands", Reason: "exceeds the number of FFT bins"}
	case c.FloorDB >= 0:
		return &ConfigError{Field: "floor_db", Reason: "must be negative"}
	case c.Peaks == nil:
		return &ConfigError{Field: "peaks", Reason: "strategy is required"}
	case c.Pairing == nil:
		return &ConfigError{Field: "pairing", Reason: "strategy is required"}
	case c.AnalyzerWorkers < 0 || c.LookupWorkers < 0:
		return &ConfigError{Field: "workers", Reason: "must not be negative"}
	case c.LookupBatchSize < 0:
		return &ConfigError{Field: "lookup_batch_size", Reason: "must not be negative"}
	}
	if _, err := NewHasher(c.Hash, c.TokenLength); err != nil {
		return err
	}
	if w, ok := c.Pairing.(WindowedPairs); ok && (w.FanOut <= 0 || w.MaxDeltaFrames <= 0) {
		return &ConfigError{Field: "pairing", Reason: "windowed pairing needs positive fan-out and max delta"}
	}
	switch c.TieBreak {
	case TieFirstSeen, TieFirstToReach, TieLexical:
	default:
		return &ConfigError{Field: "tie_break", Reason: fmt.Sprintf("unknown rule %d", c.TieBreak)}
	}
	return nil
}

func (c Config) analyzerWorkers() int {
	if c.AnalyzerWorkers == 0 {
		return 1
	}
	return c.AnalyzerWorkers
}

func (c Config) lookupWorkers() int {
	if c.LookupWorkers == 0 {
		return DefaultLookupWorkers
	}
	return c.LookupWorkers
}

func (c Config) lookupBatchSize() int {
	if c.LookupBatchSize == 0 {
		return DefaultLookupBatchSize
	}
	return c.LookupBatchSize
}
