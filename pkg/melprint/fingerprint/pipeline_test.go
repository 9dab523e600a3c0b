package fingerprint

import (
	"errors"
	"reflect"
	"testing"
)

func TestPipelineDeterminism(t *testing.T) {
	p, err := NewPipeline(smallConfig())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	buf := sineSweep(11025, 2, 300, 3000)

	first, stats, err := p.Fingerprint(buf)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	second, _, err := p.Fingerprint(buf)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Two runs over the same buffer produced different fingerprints")
	}
	if stats.Tokens != max(0, stats.Peaks-1) {
		t.Errorf("Expected %d tokens for %d peaks, got %d", max(0, stats.Peaks-1), stats.Peaks, stats.Tokens)
	}
	if stats.Peaks == 0 {
		t.Error("Expected peaks for a sine sweep")
	}

	t.Logf("%d frames, %d peaks, %d tokens", stats.Frames, stats.Peaks, stats.Tokens)
}

func TestPipelineSilenceProducesNoTokens(t *testing.T) {
	p, err := NewPipeline(smallConfig())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	fps, stats, err := p.Fingerprint(silence(11025, 1))
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if len(fps) != 0 || stats.Peaks != 0 {
		t.Errorf("Expected no peaks or tokens for silence, got %d peaks, %d tokens", stats.Peaks, len(fps))
	}
}

func TestNewPipelineRejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Hash = "crc32"
	if _, err := NewPipeline(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}

	cfg = smallConfig()
	cfg.Pairing = WindowedPairs{FanOut: 0, MaxDeltaFrames: 10}
	if _, err := NewPipeline(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for windowed pairing without fan-out, got %v", err)
	}
}
