package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/himanishpuri/melprint/pkg/melprint"
	"github.com/himanishpuri/melprint/pkg/melprint/audio"
	"github.com/himanishpuri/melprint/pkg/melprint/fingerprint"
	"github.com/himanishpuri/melprint/pkg/melprint/storage"
)

// maxJSONBody bounds token request bodies; 100k tokens of 64 chars fit comfortably.
const maxJSONBody = 16 << 20

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service melprint.Service
	config  *ServerConfig
	log     melprint.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Backend        string
	DBPath         string
	TempDir        string
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service melprint.Service, config *ServerConfig, log melprint.Logger) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     log,
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidTrackID), errors.Is(err, fingerprint.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, fingerprint.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondServiceError(w http.ResponseWriter, action string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Errorf("%s: %v", action, err)
	} else {
		s.log.Warnf("%s: %v", action, err)
	}
	s.respondError(w, code, fmt.Sprintf("%s: %v", action, err))
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{ Validate() error }) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON body: %v", err))
		return false
	}
	if err := dst.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "melprint API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":         "GET /health",
			"metrics":        "GET /api/health/metrics",
			"tracks":         "GET /api/tracks",
			"enrollFile":     "POST /api/tracks",
			"getTrack":       "GET /api/tracks/{id}",
			"removeTrack":    "DELETE /api/tracks/{id}",
			"enrollTokens":   "POST /api/tracks/{id}/tokens",
			"identifyFile":   "POST /api/identify",
			"identifyTokens": "POST /api/identify/tokens",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.ListTracks(r.Context())
	if err != nil {
		s.respondServiceError(w, "Failed to retrieve metrics", err)
		return
	}

	total := 0
	for _, t := range tracks {
		total += t.TokenCount
	}
	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:     "healthy",
		Backend:    s.config.Backend,
		DBPath:     s.config.DBPath,
		TrackCount: len(tracks),
		TokenCount: total,
	})
}

// handleListTracks handles GET /api/tracks
func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.ListTracks(r.Context())
	if err != nil {
		s.respondServiceError(w, "Failed to retrieve tracks", err)
		return
	}

	dtos := make([]TrackDTO, len(tracks))
	for i, t := range tracks {
		dtos[i] = newTrackDTO(t)
	}
	s.respondJSON(w, http.StatusOK, ListTracksResponse{
		Tracks: dtos,
		Count:  len(dtos),
	})
}

// handleGetTrack handles GET /api/tracks/{id}
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	trackID := r.PathValue("id")
	track, err := s.service.Track(r.Context(), trackID)
	if err != nil {
		s.respondServiceError(w, fmt.Sprintf("Track %q", trackID), err)
		return
	}
	s.respondJSON(w, http.StatusOK, newTrackDTO(*track))
}

// handleRemoveTrack handles DELETE /api/tracks/{id}
func (s *Server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	trackID := r.PathValue("id")
	if err := s.service.RemoveTrack(r.Context(), trackID); err != nil {
		s.respondServiceError(w, fmt.Sprintf("Failed to remove track %q", trackID), err)
		return
	}

	s.respondJSON(w, http.StatusOK, RemoveTrackResponse{
		Message: "Track removed successfully",
		ID:      trackID,
	})
}

// handleEnrollTokens handles POST /api/tracks/{id}/tokens
func (s *Server) handleEnrollTokens(w http.ResponseWriter, r *http.Request) {
	trackID := r.PathValue("id")
	var req EnrollTokensRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	n, err := s.service.EnrollTokens(r.Context(), trackID, req.Fingerprints())
	if err != nil {
		s.respondServiceError(w, "Failed to enroll tokens", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, EnrollResponse{
		Message: "Track enrolled successfully",
		ID:      trackID,
		Tokens:  n,
	})
}

// handleIdentifyTokens handles POST /api/identify/tokens
func (s *Server) handleIdentifyTokens(w http.ResponseWriter, r *http.Request) {
	var req IdentifyTokensRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.Tokens) > MaxTokensSoftLimit {
		s.log.Warnf("Large token query: %d tokens", len(req.Tokens))
	}

	res, err := s.service.IdentifyTokens(r.Context(), req.Tokens)
	if err != nil {
		s.respondServiceError(w, "Failed to identify", err)
		return
	}
	s.respondJSON(w, http.StatusOK, newIdentifyResponse(res))
}

// saveUpload copies the multipart "audio" field into a fresh directory under
// TempDir, keeping the client's file name. The caller removes dir.
func (s *Server) saveUpload(r *http.Request) (path, dir string, err error) {
	// Parse multipart form (max 100MB)
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		return "", "", fmt.Errorf("failed to parse form data: %w", err)
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return "", "", fmt.Errorf("audio file is required: %w", err)
	}
	defer file.Close()

	if err := os.MkdirAll(s.config.TempDir, 0o755); err != nil {
		return "", "", err
	}
	dir, err = os.MkdirTemp(s.config.TempDir, "upload-*")
	if err != nil {
		return "", "", err
	}

	path = filepath.Join(dir, filepath.Base(header.Filename))
	out, err := os.Create(path)
	if err == nil {
		_, err = io.Copy(out, file)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("failed to save uploaded file: %w", err)
	}
	return path, dir, nil
}

// handleEnrollFile handles POST /api/tracks (multipart file upload). The
// optional "id" form field names the track.
func (s *Server) handleEnrollFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	path, dir, err := s.saveUpload(r)
	if err != nil {
		s.log.Warnf("Upload rejected: %v", err)
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	trackID, n, err := s.service.EnrollFile(ctx, path, r.FormValue("id"))
	if err != nil {
		s.respondServiceError(w, "Failed to enroll track", err)
		return
	}

	s.respondJSON(w, http.StatusCreated, EnrollResponse{
		Message: "Track enrolled successfully",
		ID:      trackID,
		Tokens:  n,
	})
}

// handleIdentifyFile handles POST /api/identify (multipart file upload)
func (s *Server) handleIdentifyFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	path, dir, err := s.saveUpload(r)
	if err != nil {
		s.log.Warnf("Upload rejected: %v", err)
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	res, err := s.service.IdentifyFile(ctx, path)
	if err != nil {
		s.respondServiceError(w, "Failed to identify", err)
		return
	}
	s.respondJSON(w, http.StatusOK, newIdentifyResponse(res))
}
