package models

import "time"

// Token is a fixed-width fingerprint hash derived from a pair of peaks.
type Token string

// Fingerprint is a token together with the time frame of its anchor peak.
type Fingerprint struct {
	Token  Token
	Offset int // anchor time frame in the source spectrogram
}

// Track represents an enrolled recording.
type Track struct {
	ID         string    // caller supplied track identifier
	TokenCount int       // number of tokens registered for the track
	CreatedAt  time.Time // time of first enrollment
}

// Candidate is a track that received at least one vote during identification.
type Candidate struct {
	TrackID string
	Votes   int
}

// MatchResult is the outcome of a successful identification.
type MatchResult struct {
	TrackID     string      // winning track
	Confidence  int         // number of query tokens that also appear in the winning track
	QueryTokens int         // number of tokens in the query
	Candidates  []Candidate // every voted track, ranked best first
}

// Tokens returns the token column of a fingerprint sequence, preserving order.
func Tokens(fps []Fingerprint) []Token {
	out := make([]Token, len(fps))
	for i, fp := range fps {
		out[i] = fp.Token
	}
	return out
}

// TokenFile is the JSON form of a fingerprint sequence, as printed by the CLI,
// produced by the browser module and accepted by the server's token endpoints.
type TokenFile struct {
	Tokens  []Token `json:"tokens"`
	Offsets []int   `json:"offsets,omitempty"`
}

// NewTokenFile splits fps into parallel token and offset columns.
func NewTokenFile(fps []Fingerprint) TokenFile {
	out := TokenFile{Tokens: Tokens(fps), Offsets: make([]int, len(fps))}
	for i, fp := range fps {
		out.Offsets[i] = fp.Offset
	}
	return out
}
