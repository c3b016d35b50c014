package acousticdna

import (
	"fmt"

	"github.com/himanishpuri/AcousticHash/internal/fingerprint"
	"github.com/himanishpuri/AcousticHash/internal/storage"
)

// NewStorage opens the named backend and checks that it holds fingerprints
// of the format p produces. A fresh store adopts that format.
func NewStorage(backend, path string, p fingerprint.Params) (Storage, error) {
	store, err := storage.Open(backend, path)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureFormat(p.Version()); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStorage creates a SQLite storage backend with the default
// fingerprint format.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	return NewStorage(storage.BackendSQLite, dbPath, fingerprint.DefaultParams())
}

// NewBadgerStorage creates a Badger storage backend in dir with the default
// fingerprint format.
func NewBadgerStorage(dir string) (Storage, error) {
	return NewStorage(storage.BackendBadger, dir, fingerprint.DefaultParams())
}

func openStorage(cfg *Config) (Storage, error) {
	if cfg.Storage != nil {
		if err := cfg.Storage.EnsureFormat(cfg.Params.Version()); err != nil {
			return nil, fmt.Errorf("storage format check failed: %w", err)
		}
		return cfg.Storage, nil
	}
	stor, err := NewStorage(cfg.Backend, cfg.DBPath, cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	return stor, nil
}
