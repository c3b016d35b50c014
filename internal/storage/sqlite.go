//go:build !js && !wasm
// +build !js,!wasm

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/himanishpuri/AcousticHash/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	errDBClientNil = "db client is nil"
	formatKey      = "fingerprint_format"
	insertBatch    = 500
)

// DBClient is the relational backend. A single connection serializes
// writers so concurrent workers see consistent song inserts.
type DBClient struct {
	DB     *gorm.DB
	db     *sql.DB
	closed atomic.Bool
}

type Song struct {
	ID        uint32 `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"not null;uniqueIndex:idx_song_unique,priority:1" json:"name"`
	Artist    string `gorm:"not null;uniqueIndex:idx_song_unique,priority:2" json:"artist"`
	CreatedAt time.Time
}

type Fingerprint struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Hash       string `gorm:"type:char(16);not null;uniqueIndex:idx_fp_unique,priority:1;index:idx_hash" json:"hash"`
	TimeOffset int    `gorm:"not null;uniqueIndex:idx_fp_unique,priority:2" json:"time_offset"`
	SongID     uint32 `gorm:"not null;uniqueIndex:idx_fp_unique,priority:3;index:idx_song" json:"song_id"`
}

type Setting struct {
	Name  string `gorm:"primaryKey"`
	Value string
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Song{}, &Fingerprint{}, &Setting{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Backend() string { return BackendSQLite }

func (c *DBClient) ready() error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) EnsureFormat(version string) error {
	if err := c.ready(); err != nil {
		return err
	}

	setting := Setting{Name: formatKey, Value: version}
	if err := c.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&setting).Error; err != nil {
		return fmt.Errorf("recording format: %w", err)
	}

	var stored Setting
	if err := c.DB.First(&stored, "name = ?", formatKey).Error; err != nil {
		return fmt.Errorf("reading format: %w", err)
	}
	return checkFormat(stored.Value, version)
}

// InsertSong returns the id for (name, artist), creating the row when it is
// new. The unique index makes a concurrent insert of the same pair a no-op
// that falls through to the lookup.
func (c *DBClient) InsertSong(name, artist string) (uint32, models.InsertStatus, error) {
	if err := c.ready(); err != nil {
		return 0, models.Duplicate, err
	}

	song := Song{Name: name, Artist: artist}
	res := c.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&song)
	if res.Error != nil {
		return 0, models.Duplicate, fmt.Errorf("creating song: %w", res.Error)
	}
	if res.RowsAffected == 1 && song.ID != 0 {
		return song.ID, models.Inserted, nil
	}

	id, found, err := c.FindSong(name, artist)
	if err != nil {
		return 0, models.Duplicate, fmt.Errorf("fetching song after constraint conflict: %w", err)
	}
	if !found {
		return 0, models.Duplicate, fmt.Errorf("song %q by %q vanished after conflict", name, artist)
	}
	return id, models.Duplicate, nil
}

func (c *DBClient) FindSong(name, artist string) (uint32, bool, error) {
	if err := c.ready(); err != nil {
		return 0, false, err
	}

	var song Song
	err := c.DB.Where("name = ? AND artist = ?", name, artist).First(&song).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying existing song: %w", err)
	}
	return song.ID, true, nil
}

func (c *DBClient) InsertFingerprint(hash string, timeOffset int, songID uint32) (models.InsertStatus, error) {
	if err := c.ready(); err != nil {
		return models.Duplicate, err
	}
	hash, err := normalizeHash(hash)
	if err != nil {
		return models.Duplicate, err
	}

	fp := Fingerprint{Hash: hash, TimeOffset: timeOffset, SongID: songID}
	res := c.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&fp)
	if res.Error != nil {
		return models.Duplicate, fmt.Errorf("inserting fingerprint: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.Duplicate, nil
	}
	return models.Inserted, nil
}

// InsertFingerprints writes rows in batches with INSERT OR IGNORE. A batch
// that fails is retried row by row so one bad record only costs itself.
func (c *DBClient) InsertFingerprints(rows []models.FingerprintRow) (models.InsertCounts, error) {
	var counts models.InsertCounts
	if err := c.ready(); err != nil {
		return counts, err
	}

	entries := make([]Fingerprint, 0, min(len(rows), insertBatch))
	flush := func() {
		if len(entries) == 0 {
			return
		}
		res := c.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&entries)
		if res.Error == nil {
			counts.Inserted += int(res.RowsAffected)
			counts.Duplicates += len(entries) - int(res.RowsAffected)
			entries = entries[:0]
			return
		}
		for _, e := range entries {
			status, err := c.InsertFingerprint(e.Hash, e.TimeOffset, e.SongID)
			switch {
			case err != nil:
				counts.Failed++
			case status == models.Inserted:
				counts.Inserted++
			default:
				counts.Duplicates++
			}
		}
		entries = entries[:0]
	}

	for _, r := range rows {
		hash, err := normalizeHash(r.Hash)
		if err != nil {
			counts.Failed++
			continue
		}
		entries = append(entries, Fingerprint{Hash: hash, TimeOffset: r.TimeOffset, SongID: r.SongID})
		if len(entries) >= insertBatch {
			flush()
		}
	}
	flush()

	return counts, nil
}

func (c *DBClient) GetFingerprintsByHash(hash string) ([]models.FingerprintRow, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	hash, err := normalizeHash(hash)
	if err != nil {
		return nil, err
	}

	var rows []Fingerprint
	if err := c.DB.Where("hash = ?", hash).Order("song_id, time_offset").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	out := make([]models.FingerprintRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.FingerprintRow{Hash: r.Hash, TimeOffset: r.TimeOffset, SongID: r.SongID})
	}
	return out, nil
}

func (c *DBClient) GetSongByID(songID uint32) (*models.Song, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var song Song
	err := c.DB.First(&song, songID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("song %d: %w", songID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying song: %w", err)
	}

	count, err := c.FingerprintCount(songID)
	if err != nil {
		return nil, err
	}
	return &models.Song{ID: song.ID, Name: song.Name, Artist: song.Artist, FingerprintCount: count}, nil
}

type songWithCount struct {
	ID               uint32
	Name             string
	Artist           string
	FingerprintCount int
}

func (c *DBClient) ListSongs() ([]models.Song, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var rows []songWithCount
	err := c.DB.Model(&Song{}).
		Select("songs.id, songs.name, songs.artist, COUNT(fingerprints.id) AS fingerprint_count").
		Joins("LEFT JOIN fingerprints ON fingerprints.song_id = songs.id").
		Group("songs.id").
		Order("songs.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}

	songs := make([]models.Song, len(rows))
	for i, r := range rows {
		songs[i] = models.Song{ID: r.ID, Name: r.Name, Artist: r.Artist, FingerprintCount: r.FingerprintCount}
	}
	return songs, nil
}

// DeleteSongByID removes the song's fingerprints and then the song in one
// transaction.
func (c *DBClient) DeleteSongByID(songID uint32) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", songID).Delete(&Fingerprint{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", songID).Delete(&Song{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("song %d: %w", songID, ErrNotFound)
		}
		return nil
	})
}

func (c *DBClient) FingerprintCount(songID uint32) (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}

	var count int64
	q := c.DB.Model(&Fingerprint{})
	if songID != 0 {
		q = q.Where("song_id = ?", songID)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting fingerprints: %w", err)
	}
	return int(count), nil
}
