package melprint

import (
	"errors"
	"flag"
	"io"
	"testing"

	"github.com/himanishpuri/melprint/pkg/melprint/fingerprint"
)

func parsePipelineFlags(t *testing.T, args ...string) PipelineFlags {
	t.Helper()
	var p PipelineFlags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	p.Register(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%q): %v", args, err)
	}
	return p
}

func TestPipelineFlagsDefaults(t *testing.T) {
	p := parsePipelineFlags(t)
	opts, err := p.Options()
	if err != nil {
		t.Fatal(err)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	def := fingerprint.DefaultConfig()
	if cfg.Pipeline.Hash != def.Hash || cfg.Pipeline.TokenLength != def.TokenLength || cfg.Pipeline.TieBreak != def.TieBreak {
		t.Errorf("pipeline = %+v, want defaults", cfg.Pipeline)
	}
	if cfg.SampleRate != defaultSampleRate {
		t.Errorf("SampleRate = %d, want %d", cfg.SampleRate, defaultSampleRate)
	}
}

func TestPipelineFlagsChangeTokens(t *testing.T) {
	p := parsePipelineFlags(t, "-hash", "xxhash", "-token-len", "12", "-tie", "lexical", "-peaks", "local", "-threshold", "-30")
	opts, err := p.Options()
	if err != nil {
		t.Fatal(err)
	}
	svc, _ := setupTestService(t, opts...)

	fps, _, err := svc.Fingerprint(sweep(11025, 2, 300, 3000))
	if err != nil {
		t.Fatal(err)
	}
	if len(fps) == 0 {
		t.Fatal("expected tokens")
	}
	for _, fp := range fps {
		if len(fp.Token) != 12 {
			t.Fatalf("token %q has length %d, want 12", fp.Token, len(fp.Token))
		}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if lm, ok := cfg.Pipeline.Peaks.(fingerprint.LocalMaximum); !ok || lm.Threshold != -30 {
		t.Errorf("Peaks = %#v, want LocalMaximum at -30 dB", cfg.Pipeline.Peaks)
	}
	if cfg.Pipeline.TieBreak != fingerprint.TieLexical {
		t.Errorf("TieBreak = %v, want lexical", cfg.Pipeline.TieBreak)
	}
}

func TestPipelineFlagsRejectUnknownNames(t *testing.T) {
	for _, args := range [][]string{
		{"-peaks", "spiky"},
		{"-tie", "random"},
	} {
		p := parsePipelineFlags(t, args...)
		if _, err := p.Options(); !errors.Is(err, fingerprint.ErrInvalidConfig) {
			t.Errorf("Options(%q) err = %v, want ErrInvalidConfig", args, err)
		}
	}
}
