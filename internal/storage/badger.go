//go:build !js && !wasm
// +build !js,!wasm

package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	xxhash "github.com/OneOfOne/xxhash"
	badger "github.com/dgraph-io/badger/v3"
	"github.com/himanishpuri/AcousticHash/pkg/models"
)

// Key layout:
//
//	song/<xxhash64(name \x00 artist)>       -> kvSong
//	songid/<id BE32>                         -> kvSong
//	fp/<HEX16><offset BE32><song BE32>       -> empty
//	fps/<song BE32><HEX16><offset BE32>      -> empty
//	meta/format                              -> version
var (
	prefixSong     = []byte("song/")
	prefixSongID   = []byte("songid/")
	prefixFP       = []byte("fp/")
	prefixFPBySong = []byte("fps/")
	keyFormat      = []byte("meta/format")
	keySongSeq     = []byte("seq/song")
)

const (
	maxTxnRetries = 16
	kvBatch       = 1000
	seqBandwidth  = 64
)

type kvSong struct {
	ID     uint32 `json:"id"`
	Name   string `json:"name"`
	Artist string `json:"artist"`
}

// KVStore is the key-value backend built on Badger. Fingerprints are keyed
// by hash so a lookup is one prefix scan.
type KVStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	closed atomic.Bool
}

func NewKVStore(dir string) (*KVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating badger dir: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}

	seq, err := db.GetSequence(keySongSeq, seqBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("badger sequence: %w", err)
	}

	return &KVStore{db: db, seq: seq}, nil
}

func (s *KVStore) Backend() string { return BackendBadger }

func (s *KVStore) ready() error {
	if s == nil || s.db == nil {
		return errors.New(errDBClientNil)
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *KVStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent writers.
func (s *KVStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func songKey(name, artist string) []byte {
	buf := make([]byte, 0, len(name)+len(artist)+1)
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = append(buf, artist...)
	return binary.BigEndian.AppendUint64(append([]byte(nil), prefixSong...), xxhash.Checksum64(buf))
}

func songIDKey(id uint32) []byte {
	return binary.BigEndian.AppendUint32(append([]byte(nil), prefixSongID...), id)
}

func fpKey(hash string, offset int, songID uint32) []byte {
	k := make([]byte, 0, len(prefixFP)+hashHexLen+8)
	k = append(k, prefixFP...)
	k = append(k, hash...)
	k = binary.BigEndian.AppendUint32(k, uint32(offset))
	return binary.BigEndian.AppendUint32(k, songID)
}

func fpBySongKey(hash string, offset int, songID uint32) []byte {
	k := make([]byte, 0, len(prefixFPBySong)+4+hashHexLen+4)
	k = append(k, prefixFPBySong...)
	k = binary.BigEndian.AppendUint32(k, songID)
	k = append(k, hash...)
	return binary.BigEndian.AppendUint32(k, uint32(offset))
}

func songFPPrefix(songID uint32) []byte {
	return binary.BigEndian.AppendUint32(append([]byte(nil), prefixFPBySong...), songID)
}

func parseFPKey(k []byte) (models.FingerprintRow, bool) {
	if len(k) != len(prefixFP)+hashHexLen+8 || !bytes.HasPrefix(k, prefixFP) {
		return models.FingerprintRow{}, false
	}
	k = k[len(prefixFP):]
	return models.FingerprintRow{
		Hash:       string(k[:hashHexLen]),
		TimeOffset: int(int32(binary.BigEndian.Uint32(k[hashHexLen:]))),
		SongID:     binary.BigEndian.Uint32(k[hashHexLen+4:]),
	}, true
}

func getSong(txn *badger.Txn, key []byte) (*kvSong, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	var song kvSong
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &song)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding song: %w", err)
	}
	return &song, nil
}

func (s *KVStore) EnsureFormat(version string) error {
	if err := s.ready(); err != nil {
		return err
	}

	var stored string
	err := s.update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyFormat)
		if errors.Is(err, badger.ErrKeyNotFound) {
			stored = version
			return txn.Set(keyFormat, []byte(version))
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		stored = string(v)
		return err
	})
	if err != nil {
		return fmt.Errorf("reading format: %w", err)
	}
	return checkFormat(stored, version)
}

// InsertSong reads and writes the (name, artist) key in one transaction, so
// a concurrent insert of the same pair conflicts and the retry sees it.
func (s *KVStore) InsertSong(name, artist string) (uint32, models.InsertStatus, error) {
	if err := s.ready(); err != nil {
		return 0, models.Duplicate, err
	}

	key := songKey(name, artist)
	var (
		id     uint32
		status models.InsertStatus
	)
	err := s.update(func(txn *badger.Txn) error {
		existing, err := getSong(txn, key)
		if err == nil {
			if existing.Name != name || existing.Artist != artist {
				return fmt.Errorf("song key collision between %q/%q and %q/%q", name, artist, existing.Name, existing.Artist)
			}
			id, status = existing.ID, models.Duplicate
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		next, err := s.seq.Next()
		if err != nil {
			return fmt.Errorf("allocating song id: %w", err)
		}
		song := kvSong{ID: uint32(next + 1), Name: name, Artist: artist}
		val, err := json.Marshal(song)
		if err != nil {
			return err
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		if err := txn.Set(songIDKey(song.ID), val); err != nil {
			return err
		}
		id, status = song.ID, models.Inserted
		return nil
	})
	if err != nil {
		return 0, models.Duplicate, fmt.Errorf("creating song: %w", err)
	}
	return id, status, nil
}

func (s *KVStore) FindSong(name, artist string) (uint32, bool, error) {
	if err := s.ready(); err != nil {
		return 0, false, err
	}

	var (
		id    uint32
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		song, err := getSong(txn, songKey(name, artist))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if song.Name == name && song.Artist == artist {
			id, found = song.ID, true
		}
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("querying existing song: %w", err)
	}
	return id, found, nil
}

func (s *KVStore) InsertFingerprint(hash string, timeOffset int, songID uint32) (models.InsertStatus, error) {
	counts, err := s.InsertFingerprints([]models.FingerprintRow{{Hash: hash, TimeOffset: timeOffset, SongID: songID}})
	if err != nil {
		return models.Duplicate, err
	}
	if counts.Failed > 0 {
		if _, err := normalizeHash(hash); err != nil {
			return models.Duplicate, err
		}
		return models.Duplicate, fmt.Errorf("inserting fingerprint %s@%d", hash, timeOffset)
	}
	if counts.Inserted == 1 {
		return models.Inserted, nil
	}
	return models.Duplicate, nil
}

// InsertFingerprints writes rows in transactions of kvBatch records. A row
// whose key already exists counts as a duplicate. A batch whose commit fails
// counts all its rows as failed and the remaining batches still run.
func (s *KVStore) InsertFingerprints(rows []models.FingerprintRow) (models.InsertCounts, error) {
	var counts models.InsertCounts
	if err := s.ready(); err != nil {
		return counts, err
	}

	valid := make([]models.FingerprintRow, 0, len(rows))
	for _, r := range rows {
		hash, err := normalizeHash(r.Hash)
		if err != nil {
			counts.Failed++
			continue
		}
		r.Hash = hash
		valid = append(valid, r)
	}

	for start := 0; start < len(valid); start += kvBatch {
		batch := valid[start:min(start+kvBatch, len(valid))]

		var c models.InsertCounts
		err := s.update(func(txn *badger.Txn) error {
			c = models.InsertCounts{}
			for _, r := range batch {
				key := fpKey(r.Hash, r.TimeOffset, r.SongID)
				_, err := txn.Get(key)
				if err == nil {
					c.Duplicates++
					continue
				}
				if !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
				if err := txn.Set(key, nil); err != nil {
					return err
				}
				if err := txn.Set(fpBySongKey(r.Hash, r.TimeOffset, r.SongID), nil); err != nil {
					return err
				}
				c.Inserted++
			}
			return nil
		})
		if err != nil {
			counts.Failed += len(batch)
			continue
		}
		counts.Add(c)
	}

	return counts, nil
}

func (s *KVStore) GetFingerprintsByHash(hash string) ([]models.FingerprintRow, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	hash, err := normalizeHash(hash)
	if err != nil {
		return nil, err
	}

	prefix := append(append([]byte(nil), prefixFP...), hash...)
	var out []models.FingerprintRow
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if row, ok := parseFPKey(it.Item().Key()); ok {
				out = append(out, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	return out, nil
}

func countPrefix(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}

func (s *KVStore) GetSongByID(songID uint32) (*models.Song, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var out *models.Song
	err := s.db.View(func(txn *badger.Txn) error {
		song, err := getSong(txn, songIDKey(songID))
		if err != nil {
			return err
		}
		out = &models.Song{
			ID:               song.ID,
			Name:             song.Name,
			Artist:           song.Artist,
			FingerprintCount: countPrefix(txn, songFPPrefix(songID)),
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("song %d: %w", songID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying song: %w", err)
	}
	return out, nil
}

func (s *KVStore) ListSongs() ([]models.Song, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var songs []models.Song
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixSongID
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var song kvSong
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &song)
			})
			if err != nil {
				return fmt.Errorf("decoding song: %w", err)
			}
			songs = append(songs, models.Song{
				ID:               song.ID,
				Name:             song.Name,
				Artist:           song.Artist,
				FingerprintCount: countPrefix(txn, songFPPrefix(song.ID)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	return songs, nil
}

// DeleteSongByID removes the song's fingerprints through a write batch and
// then the song keys themselves.
func (s *KVStore) DeleteSongByID(songID uint32) error {
	if err := s.ready(); err != nil {
		return err
	}

	var (
		song *kvSong
		keys [][]byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		song, err = getSong(txn, songIDKey(songID))
		if err != nil {
			return err
		}

		prefix := songFPPrefix(songID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			rest := k[len(prefix):]
			if len(rest) != hashHexLen+4 {
				continue
			}
			offset := int(int32(binary.BigEndian.Uint32(rest[hashHexLen:])))
			keys = append(keys, k, fpKey(string(rest[:hashHexLen]), offset, songID))
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("song %d: %w", songID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("collecting fingerprints: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("deleting fingerprints: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("deleting fingerprints: %w", err)
	}

	return s.update(func(txn *badger.Txn) error {
		if err := txn.Delete(songIDKey(songID)); err != nil {
			return err
		}
		return txn.Delete(songKey(song.Name, song.Artist))
	})
}

func (s *KVStore) FingerprintCount(songID uint32) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	prefix := prefixFP
	if songID != 0 {
		prefix = songFPPrefix(songID)
	}
	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		n = countPrefix(txn, prefix)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting fingerprints: %w", err)
	}
	return n, nil
}
