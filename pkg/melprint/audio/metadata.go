package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

type Metadata struct {
	Filename string
	Title    string
	Artist   string
	Album    string
	Format   string
}

// ReadTags reads ID3, MP4, FLAC or OGG tags embedded in the file.
func ReadTags(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("reading tags: %w", err)
	}

	return &Metadata{
		Filename: filepath.Base(path),
		Title:    strings.TrimSpace(m.Title()),
		Artist:   strings.TrimSpace(m.Artist()),
		Album:    strings.TrimSpace(m.Album()),
		Format:   string(m.FileType()),
	}, nil
}

// TrackID is "Artist - Title", or whichever of the two is present.
func (m *Metadata) TrackID() string {
	switch {
	case m.Artist != "" && m.Title != "":
		return m.Artist + " - " + m.Title
	case m.Title != "":
		return m.Title
	default:
		return ""
	}
}

// DefaultTrackID names a track from its tags, falling back to the file name
// without extension.
func DefaultTrackID(path string) string {
	if meta, err := ReadTags(path); err == nil {
		if id := meta.TrackID(); id != "" {
			return id
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
