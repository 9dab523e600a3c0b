// Package storage holds the fingerprint index backends. Every backend keeps a
// multiset of (track, token) rows and answers lookups with the distinct track
// ids per token, ordered by first insertion.
package storage

import (
	"errors"
	"strings"
)

var (
	ErrTrackNotFound  = errors.New("track not found")
	ErrInvalidTrackID = errors.New("invalid track id")
	ErrClosed         = errors.New("index is closed")
)

// ValidateTrackID rejects ids that cannot be stored by every backend.
func ValidateTrackID(id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsRune(id, 0) {
		return ErrInvalidTrackID
	}
	return nil
}
