package melprint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/himanishpuri/melprint/pkg/logger"
	"github.com/himanishpuri/melprint/pkg/melprint/audio"
	"github.com/himanishpuri/melprint/pkg/melprint/fingerprint"
	"github.com/himanishpuri/melprint/pkg/melprint/storage"
	"github.com/himanishpuri/melprint/pkg/models"
)

// DefaultBadgerDir is used when the badger backend is selected without a path.
const DefaultBadgerDir = "melprint.badger"

// melprintService is the default implementation of the Service interface.
type melprintService struct {
	index     Index
	ownsIndex bool
	pipeline  *fingerprint.Pipeline
	matcher   *fingerprint.Matcher
	log       Logger
	config    *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}
	pipeline, err := fingerprint.NewPipeline(cfg.Pipeline)
	if err != nil {
		return nil, err
	}

	idx, owns := cfg.Index, false
	if idx == nil {
		idx, err = openIndex(cfg)
		if err != nil {
			return nil, err
		}
		owns = true
	}

	return &melprintService{
		index:     idx,
		ownsIndex: owns,
		pipeline:  pipeline,
		matcher:   fingerprint.NewMatcher(idx, cfg.Pipeline),
		log:       cfg.Logger,
		config:    cfg,
	}, nil
}

func openIndex(cfg *Config) (Index, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		idx, err := storage.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		return idx, nil
	case BackendBadger:
		dir := cfg.DBPath
		if dir == "" || dir == storage.DefaultDBFile {
			dir = DefaultBadgerDir
		}
		idx, err := storage.NewBadger(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		return idx, nil
	case BackendMemory:
		return storage.NewMemory(), nil
	}
	return nil, &fingerprint.ConfigError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
}

func indexErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, fingerprint.ErrIndexUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", fingerprint.ErrIndexUnavailable, err)
}

func (s *melprintService) Fingerprint(buf fingerprint.SampleBuffer) ([]models.Fingerprint, fingerprint.Stats, error) {
	start := time.Now()
	fps, stats, err := s.pipeline.Fingerprint(buf)
	if err != nil {
		return nil, stats, err
	}
	s.log.Debugf("pipeline: %d frames x %d bins, %d peaks, %d tokens in %s",
		stats.Frames, stats.Bins, stats.Peaks, stats.Tokens, time.Since(start).Round(time.Millisecond))
	return fps, stats, nil
}

// Enroll fingerprints buf and files every token under trackID. A buffer
// without peaks still registers the track, with zero tokens.
func (s *melprintService) Enroll(ctx context.Context, trackID string, buf fingerprint.SampleBuffer) (int, error) {
	if err := storage.ValidateTrackID(trackID); err != nil {
		return 0, err
	}
	s.log.Infof("Enrolling %q (%s of audio at %d Hz)", trackID, buf.Duration().Round(time.Millisecond), buf.SampleRate)

	fps, _, err := s.Fingerprint(buf)
	if err != nil {
		return 0, err
	}
	return s.EnrollTokens(ctx, trackID, fps)
}

// EnrollTokens stores fingerprints computed elsewhere, e.g. by a client
// running the same pipeline.
func (s *melprintService) EnrollTokens(ctx context.Context, trackID string, fps []models.Fingerprint) (int, error) {
	if err := storage.ValidateTrackID(trackID); err != nil {
		return 0, err
	}
	if len(fps) == 0 {
		s.log.Warnf("No tokens for %q; the track will never match", trackID)
	}
	if err := s.index.Insert(ctx, trackID, fps); err != nil {
		s.log.Errorf("Failed to store fingerprints for %q: %v", trackID, err)
		return 0, indexErr(ctx, err)
	}
	s.log.Infof("Enrolled %q with %d tokens", trackID, len(fps))
	return len(fps), nil
}

// EnrollFile decodes path and enrolls it. An empty trackID is derived from
// the file's tags or name; the id actually used is returned.
func (s *melprintService) EnrollFile(ctx context.Context, path, trackID string) (string, int, error) {
	if trackID == "" {
		trackID = audio.DefaultTrackID(path)
	}
	buf, err := s.load(ctx, path)
	if err != nil {
		return trackID, 0, err
	}
	n, err := s.Enroll(ctx, trackID, buf)
	return trackID, n, err
}

func (s *melprintService) load(ctx context.Context, path string) (fingerprint.SampleBuffer, error) {
	samples, rate, err := audio.Load(ctx, path, audio.LoadOptions{
		TempDir:    s.config.TempDir,
		SampleRate: s.config.SampleRate,
	})
	if err != nil {
		return fingerprint.SampleBuffer{}, fmt.Errorf("audio decoding failed: %w", err)
	}
	return fingerprint.SampleBuffer{Samples: samples, SampleRate: rate}, nil
}

// Identify returns the best match for buf. A nil result with a nil error
// means no enrolled track shares a token with the query.
func (s *melprintService) Identify(ctx context.Context, buf fingerprint.SampleBuffer) (*models.MatchResult, error) {
	tokens, err := s.queryTokens(buf)
	if err != nil {
		return nil, err
	}
	return s.IdentifyTokens(ctx, tokens)
}

func (s *melprintService) queryTokens(buf fingerprint.SampleBuffer) ([]models.Token, error) {
	fps, _, err := s.Fingerprint(buf)
	if err != nil {
		return nil, err
	}
	return models.Tokens(fps), nil
}

func (s *melprintService) IdentifyFile(ctx context.Context, path string) (*models.MatchResult, error) {
	s.log.Infof("Matching audio: %s", path)
	buf, err := s.load(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.Identify(ctx, buf)
}

func (s *melprintService) IdentifyTokens(ctx context.Context, tokens []models.Token) (*models.MatchResult, error) {
	res, err := s.matcher.Identify(ctx, tokens)
	if err != nil {
		s.log.Errorf("Lookup of %d tokens failed: %v", len(tokens), err)
		return nil, err
	}
	if res == nil {
		s.log.Infof("No match for %d query tokens", len(tokens))
		return nil, nil
	}
	s.log.Infof("Matched %q with %d/%d votes (%d candidates)",
		res.TrackID, res.Confidence, res.QueryTokens, len(res.Candidates))
	return res, nil
}

func (s *melprintService) Track(ctx context.Context, trackID string) (*models.Track, error) {
	t, err := s.index.Track(ctx, trackID)
	if err != nil && !errors.Is(err, storage.ErrTrackNotFound) {
		return nil, indexErr(ctx, err)
	}
	return t, err
}

func (s *melprintService) ListTracks(ctx context.Context) ([]models.Track, error) {
	tracks, err := s.index.Tracks(ctx)
	if err != nil {
		return nil, indexErr(ctx, err)
	}
	return tracks, nil
}

// RemoveTrack deletes a track and all of its tokens.
func (s *melprintService) RemoveTrack(ctx context.Context, trackID string) error {
	err := s.index.Remove(ctx, trackID)
	switch {
	case err == nil:
		s.log.Infof("Removed %q", trackID)
		return nil
	case errors.Is(err, storage.ErrTrackNotFound):
		return err
	default:
		return indexErr(ctx, err)
	}
}

// Close releases the index if the service opened it.
func (s *melprintService) Close() error {
	if !s.ownsIndex {
		return nil
	}
	return s.index.Close()
}
