package acousticdna

import (
	"context"

	"github.com/himanishpuri/AcousticHash/pkg/models"
)

type Service interface {
	AddSong(ctx context.Context, audioPath, name, artist string) (*IngestReport, error)
	AddSamples(ctx context.Context, pcm *PCM, name, artist string) (*IngestReport, error)
	Fingerprint(ctx context.Context, audioPath string) (*FingerprintResult, error)
	FingerprintSamples(pcm *PCM) (*FingerprintResult, error)
	IndexDirectory(ctx context.Context, root string, onResult func(IndexResult)) (*IndexSummary, error)
	GetSongByID(songID uint32) (*models.Song, error)
	ListSongs() ([]models.Song, error)
	DeleteSong(songID uint32) error
	LookupHash(hash string) ([]models.FingerprintRow, error)
	Stats() (*models.Stats, error)
	Close() error
}

// Storage is the persistence contract the service needs. Implementations
// must be safe for concurrent use by IndexDirectory workers.
type Storage interface {
	InsertSong(name, artist string) (uint32, models.InsertStatus, error)
	FindSong(name, artist string) (uint32, bool, error)
	InsertFingerprints(rows []models.FingerprintRow) (models.InsertCounts, error)
	GetFingerprintsByHash(hash string) ([]models.FingerprintRow, error)
	GetSongByID(songID uint32) (*models.Song, error)
	ListSongs() ([]models.Song, error)
	DeleteSongByID(songID uint32) error
	FingerprintCount(songID uint32) (int, error)
	EnsureFormat(version string) error
	Backend() string
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
