package acousticdna

import (
	"os"

	"github.com/himanishpuri/AcousticHash/internal/fingerprint"
	"github.com/himanishpuri/AcousticHash/internal/indexer"
	"github.com/himanishpuri/AcousticHash/internal/storage"
)

type Config struct {
	DBPath  string
	Backend string
	TempDir string
	Workers int
	Reindex bool
	Params  fingerprint.Params
	Logger  Logger
	Storage Storage
}

type Option func(*Config)

// WithDBPath sets the SQLite file or the Badger directory.
func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

// WithBackend selects "sqlite" or "badger".
func WithBackend(backend string) Option {
	return func(c *Config) {
		c.Backend = backend
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithWorkers bounds how many files IndexDirectory processes at once.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithReindex makes AddSong fingerprint songs that are already catalogued.
func WithReindex(reindex bool) Option {
	return func(c *Config) {
		c.Reindex = reindex
	}
}

// WithParams overrides the fingerprint parameters. Stores remember the
// parameters they were built with and refuse a different set.
func WithParams(p fingerprint.Params) Option {
	return func(c *Config) {
		c.Params = p
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:  storage.DefaultDBFile,
		Backend: storage.BackendSQLite,
		TempDir: os.TempDir(),
		Workers: indexer.DefaultWorkers(),
		Params:  fingerprint.DefaultParams(),
		Logger:  nil,
	}
}
