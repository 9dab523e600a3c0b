package main

import (
	"fmt"
	"time"

	"github.com/himanishpuri/melprint/pkg/models"
)

// Token limit constants for validation
const (
	// MaxTokensSoftLimit is roughly a minute of 44.1 kHz audio at default settings
	MaxTokensSoftLimit = 20000

	// MaxTokensHardLimit is the absolute maximum accepted per request
	MaxTokensHardLimit = 100000

	// maxTokenChars is the longest token any hasher emits (a full sha256 digest)
	maxTokenChars = 64
)

// IdentifyTokensRequest is the request body for POST /api/identify/tokens
type IdentifyTokensRequest struct {
	Tokens []models.Token `json:"tokens"`
}

func (r *IdentifyTokensRequest) Validate() error {
	return validateTokens(r.Tokens)
}

// EnrollTokensRequest is the request body for POST /api/tracks/{id}/tokens.
// Offsets is optional; when present it must pair up with Tokens.
type EnrollTokensRequest struct {
	Tokens  []models.Token `json:"tokens"`
	Offsets []int          `json:"offsets,omitempty"`
}

func (r *EnrollTokensRequest) Validate() error {
	if err := validateTokens(r.Tokens); err != nil {
		return err
	}
	if len(r.Offsets) != 0 && len(r.Offsets) != len(r.Tokens) {
		return fmt.Errorf("offsets has %d entries, tokens has %d", len(r.Offsets), len(r.Tokens))
	}
	return nil
}

func (r *EnrollTokensRequest) Fingerprints() []models.Fingerprint {
	fps := make([]models.Fingerprint, len(r.Tokens))
	for i, tok := range r.Tokens {
		fps[i].Token = tok
		if len(r.Offsets) > 0 {
			fps[i].Offset = r.Offsets[i]
		}
	}
	return fps
}

func validateTokens(tokens []models.Token) error {
	if len(tokens) == 0 {
		return fmt.Errorf("tokens cannot be empty")
	}
	if len(tokens) > MaxTokensHardLimit {
		return fmt.Errorf("too many tokens: %d (maximum: %d)", len(tokens), MaxTokensHardLimit)
	}
	for _, tok := range tokens {
		if !isValidToken(tok) {
			return fmt.Errorf("invalid token format: %q", tok)
		}
	}
	return nil
}

// isValidToken accepts lower-case hex of a length some hasher can produce.
func isValidToken(tok models.Token) bool {
	if len(tok) == 0 || len(tok) > maxTokenChars {
		return false
	}
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// CandidateDTO is one ranked track of a match
type CandidateDTO struct {
	TrackID string `json:"track_id"`
	Votes   int    `json:"votes"`
}

// MatchDTO represents a successful identification
type MatchDTO struct {
	TrackID     string         `json:"track_id"`
	Confidence  int            `json:"confidence"`
	QueryTokens int            `json:"query_tokens"`
	Candidates  []CandidateDTO `json:"candidates"`
}

// IdentifyResponse is the response for both identify endpoints. Match is
// null when no enrolled track shares a token with the query.
type IdentifyResponse struct {
	Matched bool      `json:"matched"`
	Match   *MatchDTO `json:"match"`
}

func newIdentifyResponse(res *models.MatchResult) IdentifyResponse {
	if res == nil {
		return IdentifyResponse{}
	}
	m := &MatchDTO{
		TrackID:     res.TrackID,
		Confidence:  res.Confidence,
		QueryTokens: res.QueryTokens,
		Candidates:  make([]CandidateDTO, len(res.Candidates)),
	}
	for i, c := range res.Candidates {
		m.Candidates[i] = CandidateDTO{TrackID: c.TrackID, Votes: c.Votes}
	}
	return IdentifyResponse{Matched: true, Match: m}
}

// EnrollResponse is the response for successful enrollment
type EnrollResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	Tokens  int    `json:"tokens"`
}

// TrackDTO represents a track in API responses
type TrackDTO struct {
	ID         string    `json:"id"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func newTrackDTO(t models.Track) TrackDTO {
	return TrackDTO{ID: t.ID, TokenCount: t.TokenCount, CreatedAt: t.CreatedAt}
}

// ListTracksResponse is the response for GET /api/tracks
type ListTracksResponse struct {
	Tracks []TrackDTO `json:"tracks"`
	Count  int        `json:"count"`
}

// RemoveTrackResponse is the response for DELETE /api/tracks/{id}
type RemoveTrackResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// MetricsResponse provides server health and index metrics
type MetricsResponse struct {
	Status     string `json:"status"`
	Backend    string `json:"backend"`
	DBPath     string `json:"db_path,omitempty"`
	TrackCount int    `json:"track_count"`
	TokenCount int    `json:"token_count"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
