package main

import (
	"github.com/himanishpuri/AcousticHash/internal/fingerprint"
	"github.com/himanishpuri/AcousticHash/pkg/models"
)

const (
	// MaxUploadBytes caps multipart uploads for ingest and fingerprinting.
	MaxUploadBytes = 100 << 20

	// DefaultHashLimit is how many hashes POST /api/fingerprint returns
	// unless the client asks for more with ?limit=.
	DefaultHashLimit = 1000

	// HashWarningThreshold triggers logging for large fingerprint responses.
	HashWarningThreshold = 50000
)

// SongDTO represents a song in API responses
type SongDTO struct {
	ID               uint32 `json:"id"`
	Name             string `json:"name"`
	Artist           string `json:"artist"`
	FingerprintCount int    `json:"fingerprint_count"`
}

func songDTO(s models.Song) SongDTO {
	return SongDTO{
		ID:               s.ID,
		Name:             s.Name,
		Artist:           s.Artist,
		FingerprintCount: s.FingerprintCount,
	}
}

// ListSongsResponse is the response for GET /api/songs
type ListSongsResponse struct {
	Songs []SongDTO `json:"songs"`
	Count int       `json:"count"`
}

// AddSongResponse is the response for POST /api/songs
type AddSongResponse struct {
	Message    string  `json:"message"`
	ID         uint32  `json:"id"`
	Name       string  `json:"name"`
	Artist     string  `json:"artist"`
	Skipped    bool    `json:"skipped"`
	DurationS  float64 `json:"duration_seconds,omitempty"`
	Peaks      int     `json:"peaks,omitempty"`
	Hashes     int     `json:"hashes,omitempty"`
	Inserted   int     `json:"inserted"`
	Duplicates int     `json:"duplicates"`
	Failed     int     `json:"failed"`
}

// DeleteSongResponse is the response for DELETE /api/songs/{id}
type DeleteSongResponse struct {
	Message string `json:"message"`
	ID      uint32 `json:"id"`
}

// HashDTO is one fingerprint record in hex form.
type HashDTO struct {
	Hash       string `json:"hash"`
	TimeOffset int    `json:"time_offset"`
}

// FingerprintResponse is the response for POST /api/fingerprint
type FingerprintResponse struct {
	Frames    int       `json:"frames"`
	Bins      int       `json:"bins"`
	Peaks     int       `json:"peaks"`
	Count     int       `json:"count"`
	Truncated bool      `json:"truncated"`
	Format    string    `json:"format"`
	Hashes    []HashDTO `json:"hashes"`
}

func fingerprintResponse(res *fingerprint.Result, format string, limit int) FingerprintResponse {
	n := len(res.Records)
	if limit > 0 && limit < n {
		n = limit
	}
	hashes := make([]HashDTO, n)
	for i, r := range res.Records[:n] {
		hashes[i] = HashDTO{Hash: r.Hash.Hex(), TimeOffset: r.TimeOffset}
	}
	return FingerprintResponse{
		Frames:    res.Frames,
		Bins:      res.Bins,
		Peaks:     len(res.Peaks),
		Count:     len(res.Records),
		Truncated: n < len(res.Records),
		Format:    format,
		Hashes:    hashes,
	}
}

// MetricsResponse provides server health and database metrics
type MetricsResponse struct {
	Status           string `json:"status"`
	Backend          string `json:"backend"`
	DatabasePath     string `json:"database_path"`
	SongCount        int    `json:"song_count"`
	FingerprintCount int    `json:"fingerprint_count"`
	Fingerprints     string `json:"fingerprints"`
	Format           string `json:"format"`
	Uptime           string `json:"uptime"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Code      int    `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
