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
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/himanishpuri/AcousticHash/internal/audio"
	"github.com/himanishpuri/AcousticHash/internal/fingerprint"
	"github.com/himanishpuri/AcousticHash/internal/storage"
	"github.com/himanishpuri/AcousticHash/pkg/acousticdna"
	"github.com/himanishpuri/AcousticHash/pkg/logger"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service acousticdna.Service
	config  *ServerConfig
	log     acousticdna.Logger
	started time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	TempDir        string
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service acousticdna.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.Named("server"),
		started: time.Now(),
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
		Error:     http.StatusText(statusCode),
		Message:   message,
		Code:      statusCode,
		RequestID: w.Header().Get(requestIDHeader),
	})
}

// statusFor maps pipeline and storage errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, acousticdna.ErrNoFingerprints),
		errors.Is(err, acousticdna.ErrMissingName),
		errors.Is(err, fingerprint.ErrInvalidInput),
		errors.Is(err, audio.ErrEmptyAudio),
		errors.Is(err, audio.ErrInvalidPCM):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.respondError(w, http.StatusNotFound, "No such endpoint")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "AcousticHash API",
		"version": "1.0.0",
		"format":  fingerprint.DefaultParams().Version(),
		"endpoints": map[string]string{
			"health":      "GET /health",
			"metrics":     "GET /api/health/metrics",
			"songs":       "GET /api/songs",
			"addSongFile": "POST /api/songs",
			"getSong":     "GET /api/songs/{id}",
			"deleteSong":  "DELETE /api/songs/{id}",
			"fingerprint": "POST /api/fingerprint",
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
	stats, err := s.service.Stats()
	if err != nil {
		s.log.Errorf("Failed to read stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:           "healthy",
		Backend:          stats.Backend,
		DatabasePath:     s.config.DBPath,
		SongCount:        stats.Songs,
		FingerprintCount: stats.Fingerprints,
		Fingerprints:     humanize.Comma(int64(stats.Fingerprints)),
		Format:           stats.Format,
		Uptime:           time.Since(s.started).Round(time.Second).String(),
	})
}

// handleListSongs handles GET /api/songs
func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.service.ListSongs()
	if err != nil {
		s.log.Errorf("Failed to list songs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve songs")
		return
	}

	songDTOs := make([]SongDTO, len(songs))
	for i, song := range songs {
		songDTOs[i] = songDTO(song)
	}

	s.respondJSON(w, http.StatusOK, ListSongsResponse{
		Songs: songDTOs,
		Count: len(songDTOs),
	})
}

// handleGetSong handles GET /api/songs/{id}
func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request) {
	songID, ok := s.songID(w, r)
	if !ok {
		return
	}

	song, err := s.service.GetSongByID(songID)
	if err != nil {
		s.log.Warnf("Song %d lookup failed: %v", songID, err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Song with ID %d not found", songID))
		return
	}

	s.respondJSON(w, http.StatusOK, songDTO(*song))
}

// handleDeleteSong handles DELETE /api/songs/{id}
func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request) {
	songID, ok := s.songID(w, r)
	if !ok {
		return
	}

	if err := s.service.DeleteSong(songID); err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			s.respondError(w, status, fmt.Sprintf("Song with ID %d not found", songID))
			return
		}
		s.log.Errorf("Failed to delete song %d: %v", songID, err)
		s.respondError(w, status, "Failed to delete song")
		return
	}

	s.log.Infof("Deleted song ID=%d", songID)
	s.respondJSON(w, http.StatusOK, DeleteSongResponse{
		Message: "Song deleted successfully",
		ID:      songID,
	})
}

func (s *Server) songID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid song ID")
		return 0, false
	}
	return uint32(id), true
}

// saveUpload copies the multipart "audio" field to a uniquely named temp
// file that keeps the original extension for decoder dispatch.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (path, filename string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.log.Warnf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return "", "", false
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return "", "", false
	}
	defer file.Close()

	path = filepath.Join(s.config.TempDir, "upload_"+uuid.NewString()+filepath.Ext(header.Filename))
	out, err := os.Create(path)
	if err != nil {
		s.log.Errorf("Failed to create temp file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return "", "", false
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(path)
		s.log.Errorf("Failed to save file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return "", "", false
	}
	return path, header.Filename, true
}

// handleAddSongFile handles POST /api/songs (multipart file upload)
func (s *Server) handleAddSongFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	tempFile, filename, ok := s.saveUpload(w, r)
	if !ok {
		return
	}
	defer os.Remove(tempFile)

	// The temp name is meaningless, so fall back to the uploaded file name
	// before the service looks at tags.
	name := r.FormValue("name")
	artist := r.FormValue("artist")
	if name == "" || artist == "" {
		t, a := audio.ParseFilename(filename)
		if name == "" {
			name = t
		}
		if artist == "" {
			artist = a
		}
	}

	s.log.Infof("Adding song from upload %s", filename)
	report, err := s.service.AddSong(ctx, tempFile, name, artist)
	if err != nil {
		s.log.Errorf("Failed to add song: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to add song: %v", err))
		return
	}

	status, message := http.StatusCreated, "Song added successfully"
	if report.Skipped {
		status, message = http.StatusOK, "Song already in catalog"
	}
	s.respondJSON(w, status, AddSongResponse{
		Message:    message,
		ID:         report.SongID,
		Name:       report.Name,
		Artist:     report.Artist,
		Skipped:    report.Skipped,
		DurationS:  report.Duration,
		Peaks:      report.Peaks,
		Hashes:     report.Hashes,
		Inserted:   report.Counts.Inserted,
		Duplicates: report.Counts.Duplicates,
		Failed:     report.Counts.Failed,
	})
}

// handleFingerprint handles POST /api/fingerprint. It returns the hashes of
// an uploaded file without storing anything.
func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	limit := DefaultHashLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	tempFile, filename, ok := s.saveUpload(w, r)
	if !ok {
		return
	}
	defer os.Remove(tempFile)

	res, err := s.service.Fingerprint(ctx, tempFile)
	if err != nil {
		s.log.Errorf("Failed to fingerprint %s: %v", filename, err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to fingerprint audio: %v", err))
		return
	}

	resp := fingerprintResponse(res, fingerprint.DefaultParams().Version(), limit)
	if len(resp.Hashes) >= HashWarningThreshold {
		s.log.Warnf("Large fingerprint response: %d hashes", len(resp.Hashes))
	}
	s.log.Infof("Fingerprinted %s: %d peaks, %d hashes", filename, resp.Peaks, resp.Count)
	s.respondJSON(w, http.StatusOK, resp)
}
