package fingerprint

import (
	"errors"
	"reflect"
	"testing"

	"github.com/himanishpuri/melprint/pkg/models"
)

func TestSHA256HasherKnownValues(t *testing.T) {
	h := SHA256Hasher{Length: DefaultTokenLength}

	tests := []struct {
		f1, f2, dt int
		expected   models.Token
	}{
		{3, 5, 2, "109afbc5b4"},
		{10, 12, 0, "2f1696bce2"},
		{0, 0, 0, "f173fccbd9"},
	}

	for _, tt := range tests {
		if got := h.Hash(tt.f1, tt.f2, tt.dt); got != tt.expected {
			t.Errorf("Hash(%d, %d, %d) = %s, expected %s", tt.f1, tt.f2, tt.dt, got, tt.expected)
		}
	}
}

func TestXXHasherLength(t *testing.T) {
	for _, length := range []int{1, 8, 16} {
		h, err := NewHasher(HashXX, length)
		if err != nil {
			t.Fatalf("NewHasher failed: %v", err)
		}
		tok := h.Hash(12, 40, 3)
		if len(tok) != length {
			t.Errorf("Expected token length %d, got %d (%s)", length, len(tok), tok)
		}
		if tok != h.Hash(12, 40, 3) {
			t.Error("xxhash tokens are not deterministic")
		}
	}
	if h, _ := NewHasher(HashXX, 16); h.Hash(1, 2, 3) == h.Hash(2, 1, 3) {
		t.Error("Swapped frequency bins should yield different tokens")
	}
}

func TestNewHasherBounds(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{HashSHA256, 10, false},
		{HashSHA256, 64, false},
		{HashSHA256, 65, true},
		{HashSHA256, 0, true},
		{HashXX, 17, true},
		{"md5", 10, true},
	}

	for _, tt := range tests {
		_, err := NewHasher(tt.name, tt.length)
		if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewHasher(%q, %d): expected ErrInvalidConfig, got %v", tt.name, tt.length, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("NewHasher(%q, %d) failed: %v", tt.name, tt.length, err)
		}
	}
}

func TestGenerateTokenCount(t *testing.T) {
	g := NewGenerator(SHA256Hasher{Length: 10}, AdjacentPairs{})

	for _, n := range []int{0, 1, 2, 5, 100} {
		peaks := make([]Peak, n)
		for i := range peaks {
			peaks[i] = Peak{TimeFrame: i / 3, FreqBin: (i * 7) % 64}
		}
		fps := g.Generate(peaks)
		if want := max(0, n-1); len(fps) != want {
			t.Errorf("%d peaks: expected %d tokens, got %d", n, want, len(fps))
		}
	}
}

func TestGenerateAdjacentKeys(t *testing.T) {
	h := SHA256Hasher{Length: 10}
	g := NewGenerator(h, AdjacentPairs{})
	peaks := []Peak{
		{TimeFrame: 1, FreqBin: 3},
		{TimeFrame: 3, FreqBin: 5},
		{TimeFrame: 3, FreqBin: 9},
	}

	fps := g.Generate(peaks)

	expected := []models.Fingerprint{
		{Token: h.Hash(3, 5, 2), Offset: 1},
		{Token: h.Hash(5, 9, 0), Offset: 3},
	}
	if !reflect.DeepEqual(fps, expected) {
		t.Errorf("Expected %v, got %v", expected, fps)
	}
	if fps[0].Token != "109afbc5b4" {
		t.Errorf("Unexpected first token %s", fps[0].Token)
	}
}

func TestWindowedPairs(t *testing.T) {
	peaks := []Peak{
		{TimeFrame: 0, FreqBin: 1},
		{TimeFrame: 0, FreqBin: 2},
		{TimeFrame: 1, FreqBin: 3},
		{TimeFrame: 2, FreqBin: 4},
		{TimeFrame: 9, FreqBin: 5},
	}

	var pairs [][2]int
	WindowedPairs{FanOut: 2, MaxDeltaFrames: 3}.Pairs(peaks, func(a, b Peak) {
		pairs = append(pairs, [2]int{a.FreqBin, b.FreqBin})
	})

	expected := [][2]int{{1, 3}, {1, 4}, {2, 3}, {2, 4}, {3, 4}}
	if !reflect.DeepEqual(pairs, expected) {
		t.Errorf("Expected pairs %v, got %v", expected, pairs)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	grid, err := newTestAnalyzer(t, smallConfig()).Analyze(sineSweep(11025, 2, 300, 3000))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	peaks := ExtractPeaks(grid, DefaultThreshold)
	g := NewGenerator(SHA256Hasher{Length: 10}, nil)

	first := g.GenerateTokens(peaks)
	second := g.GenerateTokens(peaks)

	if !reflect.DeepEqual(first, second) {
		t.Error("Identical peaks produced different token sequences")
	}
	if len(first) != len(peaks)-1 {
		t.Errorf("Expected %d tokens, got %d", len(peaks)-1, len(first))
	}
}
