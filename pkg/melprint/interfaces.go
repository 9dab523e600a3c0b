package melprint

import (
	"context"

	"github.com/himanishpuri/melprint/pkg/melprint/fingerprint"
	"github.com/himanishpuri/melprint/pkg/models"
)

type Service interface {
	Enroll(ctx context.Context, trackID string, buf fingerprint.SampleBuffer) (int, error)
	EnrollFile(ctx context.Context, path, trackID string) (string, int, error)
	EnrollTokens(ctx context.Context, trackID string, fps []models.Fingerprint) (int, error)

	Identify(ctx context.Context, buf fingerprint.SampleBuffer) (*models.MatchResult, error)
	IdentifyFile(ctx context.Context, path string) (*models.MatchResult, error)
	IdentifyTokens(ctx context.Context, tokens []models.Token) (*models.MatchResult, error)

	Fingerprint(buf fingerprint.SampleBuffer) ([]models.Fingerprint, fingerprint.Stats, error)

	Track(ctx context.Context, trackID string) (*models.Track, error)
	ListTracks(ctx context.Context) ([]models.Track, error)
	RemoveTrack(ctx context.Context, trackID string) error
	Close() error
}

// Index is the fingerprint store shared by enrollment and identification.
type Index interface {
	fingerprint.Lookuper
	Insert(ctx context.Context, trackID string, fps []models.Fingerprint) error
	Track(ctx context.Context, trackID string) (*models.Track, error)
	Tracks(ctx context.Context) ([]models.Track, error)
	Remove(ctx context.Context, trackID string) error
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
