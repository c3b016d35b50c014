//go:build !js && !wasm
// +build !js,!wasm

package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/himanishpuri/AcousticHash/pkg/models"
)

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"

	DefaultDBFile    = "acousticdna.sqlite3"
	DefaultBadgerDir = "acousticdna.badger"

	hashHexLen = 16
)

var (
	ErrNotFound       = errors.New("not found")
	ErrFormatMismatch = errors.New("fingerprint format mismatch")
	ErrClosed         = errors.New("storage is closed")
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrInvalidHash    = errors.New("invalid hash")
)

// Store persists songs and their fingerprints. Implementations are safe for
// concurrent use and never create two songs with the same (name, artist).
type Store interface {
	InsertSong(name, artist string) (uint32, models.InsertStatus, error)
	FindSong(name, artist string) (uint32, bool, error)
	InsertFingerprint(hash string, timeOffset int, songID uint32) (models.InsertStatus, error)
	InsertFingerprints(rows []models.FingerprintRow) (models.InsertCounts, error)
	GetFingerprintsByHash(hash string) ([]models.FingerprintRow, error)
	GetSongByID(songID uint32) (*models.Song, error)
	ListSongs() ([]models.Song, error)
	DeleteSongByID(songID uint32) error
	// FingerprintCount counts one song's fingerprints, or all of them when
	// songID is 0.
	FingerprintCount(songID uint32) (int, error)
	// EnsureFormat records version on first use and rejects a store built
	// with a different one.
	EnsureFormat(version string) error
	Backend() string
	Close() error
}

// Open returns a handle for the named backend. An empty path selects the
// backend's default location.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendSQLite:
		if path == "" {
			path = DefaultDBFile
		}
		return NewDBClientWithPath(path)
	case BackendBadger:
		if path == "" {
			path = DefaultBadgerDir
		}
		return NewKVStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// normalizeHash upper-cases and validates the 16 digit hex form.
func normalizeHash(hash string) (string, error) {
	if len(hash) != hashHexLen {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
		}
	}
	return strings.ToUpper(hash), nil
}

func checkFormat(stored, version string) error {
	if stored != version {
		return fmt.Errorf("%w: store has %q, pipeline produces %q", ErrFormatMismatch, stored, version)
	}
	return nil
}
