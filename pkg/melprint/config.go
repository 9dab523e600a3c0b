package melprint

import (
	"os"
	"strings"

	"github.com/himanishpuri/melprint/pkg/melprint/fingerprint"
	"github.com/himanishpuri/melprint/pkg/melprint/storage"
)

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// defaultSampleRate is the rate ffmpeg resamples to unless overridden.
const defaultSampleRate = 44100

// Environment variables read by OptionsFromEnv.
const (
	EnvDBPath  = "MELPRINT_DB_PATH"
	EnvBackend = "MELPRINT_BACKEND"
	EnvTempDir = "MELPRINT_TEMP_DIR"
)

type Config struct {
	DBPath     string
	Backend    string
	TempDir    string
	SampleRate int
	Logger     Logger
	Index      Index
	Pipeline   fingerprint.Config
}

type Option func(*Config)

// WithDBPath sets the SQLite file, or the Badger directory.
func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithBackend(name string) Option {
	return func(c *Config) {
		c.Backend = strings.ToLower(strings.TrimSpace(name))
	}
}

// WithIndex injects an already opened index. The service will not close it.
func WithIndex(idx Index) Option {
	return func(c *Config) {
		c.Index = idx
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithSampleRate sets the rate ffmpeg resamples to for formats that are not
// decoded natively.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithPipeline replaces every pipeline tunable at once.
func WithPipeline(cfg fingerprint.Config) Option {
	return func(c *Config) {
		c.Pipeline = cfg
	}
}

// WithThreshold changes the dB threshold of the current peak strategy.
func WithThreshold(db float64) Option {
	return func(c *Config) {
		switch s := c.Pipeline.Peaks.(type) {
		case fingerprint.LocalMaximum:
			s.Threshold = db
			c.Pipeline.Peaks = s
		case fingerprint.AdaptiveThreshold:
			s.Threshold = db
			c.Pipeline.Peaks = s
		default:
			c.Pipeline.Peaks = fingerprint.FlatThreshold{Threshold: db}
		}
	}
}

func WithPeakStrategy(s fingerprint.PeakStrategy) Option {
	return func(c *Config) {
		c.Pipeline.Peaks = s
	}
}

// WithHasher selects the token hash and how many hex characters to keep.
func WithHasher(name string, length int) Option {
	return func(c *Config) {
		c.Pipeline.Hash = name
		c.Pipeline.TokenLength = length
	}
}

func WithPairing(p fingerprint.PairStrategy) Option {
	return func(c *Config) {
		c.Pipeline.Pairing = p
	}
}

func WithTieBreak(t fingerprint.TieBreak) Option {
	return func(c *Config) {
		c.Pipeline.TieBreak = t
	}
}

// OptionsFromEnv returns options for every MELPRINT_* variable that is set.
func OptionsFromEnv() []Option {
	var opts []Option
	if v := os.Getenv(EnvDBPath); v != "" {
		opts = append(opts, WithDBPath(v))
	}
	if v := os.Getenv(EnvBackend); v != "" {
		opts = append(opts, WithBackend(v))
	}
	if v := os.Getenv(EnvTempDir); v != "" {
		opts = append(opts, WithTempDir(v))
	}
	return opts
}

func defaultConfig() *Config {
	return &Config{
		DBPath:     storage.DefaultDBFile,
		Backend:    BackendSQLite,
		TempDir:    os.TempDir(),
		SampleRate: defaultSampleRate,
		Logger:     nil,
		Pipeline:   fingerprint.DefaultConfig(),
	}
}
