package storage

import (
	"context"
	"sync"
	"time"

	"github.com/himanishpuri/melprint/pkg/models"
)

// Memory is a process-local index, mainly for tests and one-shot CLI runs.
type Memory struct {
	mu       sync.RWMutex
	postings map[models.Token][]string
	tracks   map[string]*models.Track
	order    []string
	byTrack  map[string]map[models.Token]int
	closed   bool
}

func NewMemory() *Memory {
	return &Memory{
		postings: make(map[models.Token][]string),
		tracks:   make(map[string]*models.Track),
		byTrack:  make(map[string]map[models.Token]int),
	}
}

func (m *Memory) Insert(_ context.Context, trackID string, fps []models.Fingerprint) error {
	if err := ValidateTrackID(trackID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	track, ok := m.tracks[trackID]
	if !ok {
		track = &models.Track{ID: trackID, CreatedAt: time.Now()}
		m.tracks[trackID] = track
		m.order = append(m.order, trackID)
		m.byTrack[trackID] = make(map[models.Token]int)
	}
	counts := m.byTrack[trackID]
	for _, fp := range fps {
		if counts[fp.Token] == 0 {
			m.postings[fp.Token] = append(m.postings[fp.Token], trackID)
		}
		counts[fp.Token]++
	}
	track.TokenCount += len(fps)
	return nil
}

func (m *Memory) Lookup(_ context.Context, tokens []models.Token) (map[models.Token][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make(map[models.Token][]string, len(tokens))
	for _, tok := range tokens {
		if ids := m.postings[tok]; len(ids) > 0 {
			out[tok] = append([]string(nil), ids...)
		}
	}
	return out, nil
}

func (m *Memory) Track(_ context.Context, trackID string) (*models.Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	track, ok := m.tracks[trackID]
	if !ok {
		return nil, ErrTrackNotFound
	}
	cp := *track
	return &cp, nil
}

func (m *Memory) Tracks(_ context.Context) ([]models.Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]models.Track, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.tracks[id])
	}
	return out, nil
}

func (m *Memory) Remove(_ context.Context, trackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.tracks[trackID]; !ok {
		return ErrTrackNotFound
	}

	for tok := range m.byTrack[trackID] {
		ids := m.postings[tok]
		kept := ids[:0]
		for _, id := range ids {
			if id != trackID {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(m.postings, tok)
		} else {
			m.postings[tok] = kept
		}
	}
	delete(m.byTrack, trackID)
	delete(m.tracks, trackID)
	for i, id := range m.order {
		if id == trackID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
