package melprint

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/himanishpuri/melprint/pkg/logger"
	"github.com/himanishpuri/melprint/pkg/melprint/audio"
	"github.com/himanishpuri/melprint/pkg/melprint/fingerprint"
	"github.com/himanishpuri/melprint/pkg/melprint/storage"
	"github.com/himanishpuri/melprint/pkg/models"
)

func quietLogger() Logger {
	return logger.New(logger.Config{Level: logger.DEBUG, Output: io.Discard})
}

func sweep(sampleRate int, seconds, f0, f1 float64) fingerprint.SampleBuffer {
	n := int(float64(sampleRate) * seconds)
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = 0.5 * math.Sin(2*math.Pi*(f0*t+(f1-f0)/(2*seconds)*t*t))
	}
	return fingerprint.SampleBuffer{Samples: samples, SampleRate: sampleRate}
}

func tone(sampleRate int, seconds, freq float64) fingerprint.SampleBuffer {
	n := int(float64(sampleRate) * seconds)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return fingerprint.SampleBuffer{Samples: samples, SampleRate: sampleRate}
}

// setupTestService creates a service over a fresh in-memory index.
func setupTestService(t *testing.T, opts ...Option) (Service, *storage.Memory) {
	t.Helper()
	idx := storage.NewMemory()
	opts = append([]Option{WithIndex(idx), WithLogger(quietLogger())}, opts...)
	svc, err := NewService(opts...)
	if err != nil {
		t.Fatalf("Failed to create test service: %v", err)
	}
	t.Cleanup(func() {
		svc.Close()
		idx.Close()
	})
	return svc, idx
}

func TestSelfMatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t)

	a := sweep(44100, 3, 200, 4000)
	n, err := svc.Enroll(ctx, "track-A", a)
	if err != nil {
		t.Fatalf("Enroll track-A: %v", err)
	}
	if n == 0 {
		t.Fatal("sweep produced no tokens")
	}
	if _, err := svc.Enroll(ctx, "track-B", tone(44100, 3, 440)); err != nil {
		t.Fatalf("Enroll track-B: %v", err)
	}

	res, err := svc.Identify(ctx, a)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res == nil {
		t.Fatal("expected a match, got none")
	}
	if res.TrackID != "track-A" {
		t.Errorf("TrackID = %q, want track-A", res.TrackID)
	}
	if res.Confidence != n {
		t.Errorf("Confidence = %d, want %d (every token self-matches)", res.Confidence, n)
	}
	if res.QueryTokens != n {
		t.Errorf("QueryTokens = %d, want %d", res.QueryTokens, n)
	}
}

func TestPartialClipMatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t)

	a := sweep(44100, 3, 200, 4000)
	n, err := svc.Enroll(ctx, "track-A", a)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Enroll(ctx, "track-B", tone(44100, 3, 440)); err != nil {
		t.Fatal(err)
	}

	third := len(a.Samples) / 3
	res, err := svc.Identify(ctx, a.Slice(third, 2*third))
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res == nil || res.TrackID != "track-A" {
		t.Fatalf("Identify(clip) = %+v, want track-A", res)
	}
	if res.Confidence <= 0 || res.Confidence >= n {
		t.Errorf("Confidence = %d, want within (0, %d)", res.Confidence, n)
	}
}

func TestSilenceIsNoMatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t)

	if _, err := svc.Enroll(ctx, "track-A", sweep(44100, 3, 200, 4000)); err != nil {
		t.Fatal(err)
	}
	silent := fingerprint.SampleBuffer{Samples: make([]float64, 44100*3), SampleRate: 44100}
	res, err := svc.Identify(ctx, silent)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res != nil {
		t.Errorf("Identify(silence) = %+v, want no match", res)
	}
}

func TestEmptyIndexIsNoMatch(t *testing.T) {
	svc, _ := setupTestService(t)
	res, err := svc.Identify(context.Background(), sweep(11025, 2, 300, 3000))
	if err != nil || res != nil {
		t.Errorf("Identify on empty index = %+v, %v; want nil, nil", res, err)
	}
}

type failingIndex struct {
	*storage.Memory
	err error
}

func (f failingIndex) Lookup(context.Context, []models.Token) (map[models.Token][]string, error) {
	return nil, f.err
}

func (f failingIndex) Insert(context.Context, string, []models.Fingerprint) error {
	return f.err
}

func TestIndexFailureIsNotNoMatch(t *testing.T) {
	down := errors.New("connection refused")
	svc, err := NewService(
		WithIndex(failingIndex{Memory: storage.NewMemory(), err: down}),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	res, err := svc.Identify(context.Background(), sweep(11025, 2, 300, 3000))
	if res != nil {
		t.Errorf("expected nil result on failure, got %+v", res)
	}
	if !errors.Is(err, fingerprint.ErrIndexUnavailable) || !errors.Is(err, down) {
		t.Errorf("Identify err = %v, want ErrIndexUnavailable wrapping the cause", err)
	}

	if _, err := svc.Enroll(context.Background(), "x", sweep(11025, 2, 300, 3000)); !errors.Is(err, fingerprint.ErrIndexUnavailable) {
		t.Errorf("Enroll err = %v, want ErrIndexUnavailable", err)
	}
}

func TestExpiredContextIsNotIndexFailure(t *testing.T) {
	svc, err := NewService(
		WithIndex(failingIndex{Memory: storage.NewMemory(), err: errors.New("interrupted")}),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	if _, err := svc.Identify(ctx, sweep(11025, 2, 300, 3000)); !errors.Is(err, context.DeadlineExceeded) || errors.Is(err, fingerprint.ErrIndexUnavailable) {
		t.Errorf("Identify err = %v, want context.DeadlineExceeded only", err)
	}
	if _, err := svc.EnrollTokens(ctx, "x", []models.Fingerprint{{Token: "abc", Offset: 0}}); !errors.Is(err, context.DeadlineExceeded) || errors.Is(err, fingerprint.ErrIndexUnavailable) {
		t.Errorf("EnrollTokens err = %v, want context.DeadlineExceeded only", err)
	}
}

func TestInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t)

	_, err := svc.Enroll(ctx, "empty", fingerprint.SampleBuffer{SampleRate: 44100})
	if !errors.Is(err, fingerprint.ErrInvalidConfig) {
		t.Errorf("Enroll(empty buffer) err = %v, want ErrInvalidConfig", err)
	}
	_, err = svc.Enroll(ctx, " ", sweep(11025, 1, 300, 3000))
	if !errors.Is(err, storage.ErrInvalidTrackID) {
		t.Errorf("Enroll(blank id) err = %v, want ErrInvalidTrackID", err)
	}
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	cfg := fingerprint.DefaultConfig()
	cfg.HopSize = 0
	if _, err := NewService(WithIndex(storage.NewMemory()), WithPipeline(cfg)); !errors.Is(err, fingerprint.ErrInvalidConfig) {
		t.Errorf("HopSize 0: err = %v, want ErrInvalidConfig", err)
	}

	_, err := NewService(WithBackend("postgres"), WithLogger(quietLogger()))
	var cfgErr *fingerprint.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "backend" {
		t.Errorf("unknown backend: err = %v, want ConfigError on backend", err)
	}
}

func TestDeterministicFingerprint(t *testing.T) {
	svc, _ := setupTestService(t)
	buf := sweep(11025, 2, 300, 3000)

	first, s1, err := svc.Fingerprint(buf)
	if err != nil {
		t.Fatal(err)
	}
	second, s2, err := svc.Fingerprint(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) || s1 != s2 {
		t.Error("fingerprinting the same buffer twice gave different results")
	}
	if s1.Peaks > 0 && s1.Tokens != s1.Peaks-1 {
		t.Errorf("Tokens = %d, want Peaks-1 = %d", s1.Tokens, s1.Peaks-1)
	}
}

func TestEnrollAndIdentifyFile(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, WithTempDir(t.TempDir()))

	path := filepath.Join(t.TempDir(), "sweep.wav")
	buf := sweep(11025, 2, 300, 3000)
	if err := audio.WriteWAV(path, buf.Samples, buf.SampleRate); err != nil {
		t.Fatal(err)
	}

	id, n, err := svc.EnrollFile(ctx, path, "")
	if err != nil {
		t.Fatalf("EnrollFile: %v", err)
	}
	if id != "sweep" {
		t.Errorf("derived id = %q, want sweep", id)
	}

	res, err := svc.IdentifyFile(ctx, path)
	if err != nil {
		t.Fatalf("IdentifyFile: %v", err)
	}
	if res == nil || res.TrackID != "sweep" || res.Confidence != n {
		t.Errorf("IdentifyFile = %+v, want sweep with %d votes", res, n)
	}
}

func TestTrackManagement(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t)

	buf := sweep(11025, 2, 300, 3000)
	n, err := svc.Enroll(ctx, "keep", buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Enroll(ctx, "drop", buf); err != nil {
		t.Fatal(err)
	}

	tracks, err := svc.ListTracks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 || tracks[0].ID != "keep" || tracks[0].TokenCount != n {
		t.Errorf("ListTracks = %+v", tracks)
	}

	if err := svc.RemoveTrack(ctx, "drop"); err != nil {
		t.Fatalf("RemoveTrack: %v", err)
	}
	if err := svc.RemoveTrack(ctx, "drop"); !errors.Is(err, storage.ErrTrackNotFound) {
		t.Errorf("second RemoveTrack err = %v, want ErrTrackNotFound", err)
	}
	if _, err := svc.Track(ctx, "drop"); !errors.Is(err, storage.ErrTrackNotFound) {
		t.Errorf("Track(removed) err = %v, want ErrTrackNotFound", err)
	}

	res, err := svc.Identify(ctx, buf)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.TrackID != "keep" || len(res.Candidates) != 1 {
		t.Errorf("after removal Identify = %+v, want only keep", res)
	}
}

func TestTieBreakOption(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, WithTieBreak(fingerprint.TieLexical))

	buf := sweep(11025, 2, 300, 3000)
	for _, id := range []string{"zulu", "alpha"} {
		if _, err := svc.Enroll(ctx, id, buf); err != nil {
			t.Fatal(err)
		}
	}
	res, err := svc.Identify(ctx, buf)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.TrackID != "alpha" {
		t.Errorf("lexical tie-break winner = %+v, want alpha", res)
	}

	first, _ := setupTestService(t)
	for _, id := range []string{"zulu", "alpha"} {
		if _, err := first.Enroll(ctx, id, buf); err != nil {
			t.Fatal(err)
		}
	}
	res, err = first.Identify(ctx, buf)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.TrackID != "zulu" {
		t.Errorf("first-seen tie-break winner = %+v, want zulu", res)
	}
}

func TestPersistentBackends(t *testing.T) {
	ctx := context.Background()
	buf := sweep(11025, 2, 300, 3000)

	for _, backend := range []string{BackendSQLite, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), "index")
			open := func() Service {
				svc, err := NewService(WithBackend(backend), WithDBPath(dbPath), WithLogger(quietLogger()))
				if err != nil {
					t.Fatalf("NewService: %v", err)
				}
				return svc
			}

			svc := open()
			n, err := svc.Enroll(ctx, "track-A", buf)
			if err != nil {
				t.Fatal(err)
			}
			if err := svc.Close(); err != nil {
				t.Fatal(err)
			}

			svc = open()
			defer svc.Close()
			res, err := svc.Identify(ctx, buf)
			if err != nil {
				t.Fatal(err)
			}
			if res == nil || res.TrackID != "track-A" || res.Confidence != n {
				t.Errorf("Identify after reopen = %+v, want track-A with %d votes", res, n)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []Option{
		WithPeakStrategy(fingerprint.LocalMaximum{Threshold: -40, FreqNeighbour: 2, TimeNeighbour: 1}),
		WithThreshold(-30),
		WithHasher(fingerprint.HashXX, 12),
		WithPairing(fingerprint.WindowedPairs{FanOut: 3, MaxDeltaFrames: 20}),
		WithSampleRate(22050),
	} {
		opt(cfg)
	}

	lm, ok := cfg.Pipeline.Peaks.(fingerprint.LocalMaximum)
	if !ok || lm.Threshold != -30 || lm.FreqNeighbour != 2 {
		t.Errorf("Peaks = %#v, want LocalMaximum at -30 dB", cfg.Pipeline.Peaks)
	}
	if cfg.Pipeline.Hash != fingerprint.HashXX || cfg.Pipeline.TokenLength != 12 {
		t.Errorf("hasher = %s/%d", cfg.Pipeline.Hash, cfg.Pipeline.TokenLength)
	}
	if cfg.SampleRate != 22050 {
		t.Errorf("SampleRate = %d", cfg.SampleRate)
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv(EnvDBPath, "/data/idx.sqlite3")
	t.Setenv(EnvBackend, " Badger ")
	t.Setenv(EnvTempDir, "")

	cfg := defaultConfig()
	tmp := cfg.TempDir
	for _, opt := range OptionsFromEnv() {
		opt(cfg)
	}
	if cfg.DBPath != "/data/idx.sqlite3" || cfg.Backend != BackendBadger || cfg.TempDir != tmp {
		t.Errorf("config from env = %+v", cfg)
	}
}
