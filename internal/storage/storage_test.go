package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/himanishpuri/AcousticHash/pkg/models"
)

// setupTestStore opens a fresh store of the given backend in a temp dir.
func setupTestStore(t *testing.T, backend string) (Store, string) {
	t.Helper()

	var path string
	switch backend {
	case BackendSQLite:
		path = filepath.Join(t.TempDir(), "test_acoustic.sqlite3")
	case BackendBadger:
		path = filepath.Join(t.TempDir(), "test_acoustic.badger")
	}

	store, err := Open(backend, path)
	if err != nil {
		t.Fatalf("Failed to open %s store: %v", backend, err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store, path
}

// forEachBackend runs fn once per storage backend as a subtest.
func forEachBackend(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Helper()
	for _, backend := range []string{BackendSQLite, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			store, _ := setupTestStore(t, backend)
			fn(t, store)
		})
	}
}

func hexHash(i int) string {
	return fmt.Sprintf("%016X", uint64(i)<<8)
}

func TestOpenCreatesFiles(t *testing.T) {
	for _, backend := range []string{BackendSQLite, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			store, path := setupTestStore(t, backend)
			if store.Backend() != backend {
				t.Errorf("Expected backend %s, got %s", backend, store.Backend())
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				t.Errorf("Store was not created at %s", path)
			}
		})
	}
}

func TestOpenCustomPath(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "subdir", "custom.db")

	store, err := Open(BackendSQLite, customPath)
	if err != nil {
		t.Fatalf("Failed to create DB with custom path: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(customPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at custom path %s", customPath)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("postgres", "")
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
}

func TestInsertSong(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		songID, status, err := store.InsertSong("Test Song", "Test Artist")
		if err != nil {
			t.Fatalf("Failed to insert song: %v", err)
		}
		if songID == 0 {
			t.Error("Expected non-zero song ID")
		}
		if status != models.Inserted {
			t.Errorf("Expected inserted, got %v", status)
		}

		song, err := store.GetSongByID(songID)
		if err != nil {
			t.Fatalf("Failed to retrieve inserted song: %v", err)
		}
		if song.Name != "Test Song" || song.Artist != "Test Artist" {
			t.Errorf("Unexpected song: %+v", song)
		}
	})
}

func TestInsertSongDuplicate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		id1, status1, err := store.InsertSong("Duplicate Song", "Duplicate Artist")
		if err != nil {
			t.Fatalf("Failed to insert song first time: %v", err)
		}
		id2, status2, err := store.InsertSong("Duplicate Song", "Duplicate Artist")
		if err != nil {
			t.Fatalf("Failed to insert song second time: %v", err)
		}

		if id1 != id2 {
			t.Errorf("Expected same song ID for duplicate insert, got %d and %d", id1, id2)
		}
		if status1 != models.Inserted || status2 != models.Duplicate {
			t.Errorf("Expected inserted then duplicate, got %v then %v", status1, status2)
		}

		id3, _, err := store.InsertSong("Duplicate Song", "Other Artist")
		if err != nil {
			t.Fatalf("Failed to insert song: %v", err)
		}
		if id3 == id1 {
			t.Error("Expected a new ID for a different artist")
		}

		songs, err := store.ListSongs()
		if err != nil {
			t.Fatalf("ListSongs failed: %v", err)
		}
		if len(songs) != 2 {
			t.Errorf("Expected 2 songs, found %d", len(songs))
		}
	})
}

func TestFindSong(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		if _, found, err := store.FindSong("Nope", "Nobody"); err != nil || found {
			t.Fatalf("Expected not found, got found=%v err=%v", found, err)
		}

		id, _, err := store.InsertSong("Here", "Someone")
		if err != nil {
			t.Fatalf("Failed to insert song: %v", err)
		}
		got, found, err := store.FindSong("Here", "Someone")
		if err != nil || !found || got != id {
			t.Errorf("FindSong = %d, %v, %v; expected %d", got, found, err, id)
		}
	})
}

func TestInsertFingerprint(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		songID, _, _ := store.InsertSong("Fingerprint Song", "FP Artist")

		status, err := store.InsertFingerprint("00AB00000000CD00", 12, songID)
		if err != nil || status != models.Inserted {
			t.Fatalf("Expected inserted, got %v, %v", status, err)
		}
		status, err = store.InsertFingerprint("00ab00000000cd00", 12, songID)
		if err != nil || status != models.Duplicate {
			t.Fatalf("Expected duplicate, got %v, %v", status, err)
		}
		status, err = store.InsertFingerprint("00AB00000000CD00", 13, songID)
		if err != nil || status != models.Inserted {
			t.Fatalf("Expected inserted for new offset, got %v, %v", status, err)
		}

		if _, err := store.InsertFingerprint("XYZ", 1, songID); !errors.Is(err, ErrInvalidHash) {
			t.Errorf("Expected ErrInvalidHash, got %v", err)
		}
	})
}

func TestInsertFingerprints(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		songID, _, _ := store.InsertSong("Batch Song", "Batch Artist")

		rows := []models.FingerprintRow{
			{Hash: hexHash(1), TimeOffset: 5, SongID: songID},
			{Hash: hexHash(2), TimeOffset: 15, SongID: songID},
			{Hash: hexHash(2), TimeOffset: 25, SongID: songID},
			{Hash: hexHash(1), TimeOffset: 5, SongID: songID},
			{Hash: "not-a-hash", TimeOffset: 1, SongID: songID},
		}

		counts, err := store.InsertFingerprints(rows)
		if err != nil {
			t.Fatalf("Failed to insert fingerprints: %v", err)
		}
		want := models.InsertCounts{Inserted: 3, Duplicates: 1, Failed: 1}
		if counts != want {
			t.Errorf("Expected %+v, got %+v", want, counts)
		}

		n, err := store.FingerprintCount(songID)
		if err != nil || n != 3 {
			t.Errorf("Expected 3 fingerprints, got %d (%v)", n, err)
		}

		counts, err = store.InsertFingerprints(rows[:3])
		if err != nil {
			t.Fatalf("Failed to reinsert fingerprints: %v", err)
		}
		if counts.Inserted != 0 || counts.Duplicates != 3 {
			t.Errorf("Reinsert should be all duplicates, got %+v", counts)
		}
	})
}

func TestInsertFingerprintsLargeBatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		songID, _, _ := store.InsertSong("Large Batch", "Batch Artist")

		rows := make([]models.FingerprintRow, 0, 2500)
		for i := 1; i <= 2500; i++ {
			rows = append(rows, models.FingerprintRow{Hash: hexHash(i), TimeOffset: i, SongID: songID})
		}

		counts, err := store.InsertFingerprints(rows)
		if err != nil {
			t.Fatalf("Failed to store large batch: %v", err)
		}
		if counts.Inserted != 2500 {
			t.Errorf("Expected 2500 inserted, got %+v", counts)
		}

		total, err := store.FingerprintCount(0)
		if err != nil || total != 2500 {
			t.Errorf("Expected 2500 fingerprints total, got %d (%v)", total, err)
		}
	})
}

func TestGetFingerprintsByHash(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		songID1, _, _ := store.InsertSong("Song 1", "Artist 1")
		songID2, _, _ := store.InsertSong("Song 2", "Artist 2")

		shared := hexHash(99999)
		_, err := store.InsertFingerprints([]models.FingerprintRow{
			{Hash: shared, TimeOffset: 10, SongID: songID1},
			{Hash: shared, TimeOffset: 20, SongID: songID1},
			{Hash: shared, TimeOffset: 15, SongID: songID2},
			{Hash: hexHash(1), TimeOffset: 15, SongID: songID2},
		})
		if err != nil {
			t.Fatalf("Failed to store fingerprints: %v", err)
		}

		rows, err := store.GetFingerprintsByHash(shared)
		if err != nil {
			t.Fatalf("Failed to get fingerprints by hash: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("Expected 3 rows, got %d", len(rows))
		}

		perSong := map[uint32]int{}
		for _, r := range rows {
			if r.Hash != shared {
				t.Errorf("Unexpected hash %s", r.Hash)
			}
			perSong[r.SongID]++
		}
		if perSong[songID1] != 2 || perSong[songID2] != 1 {
			t.Errorf("Unexpected distribution: %v", perSong)
		}

		rows, err = store.GetFingerprintsByHash(hexHash(88888))
		if err != nil {
			t.Fatalf("Expected no error for unknown hash, got: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("Expected 0 rows for unknown hash, got %d", len(rows))
		}
	})
}

func TestDeleteSongWithFingerprints(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		keep, _, _ := store.InsertSong("Keep", "Artist")
		songID, _, err := store.InsertSong("Song With Prints", "Print Artist")
		if err != nil {
			t.Fatalf("Failed to insert song: %v", err)
		}

		_, err = store.InsertFingerprints([]models.FingerprintRow{
			{Hash: hexHash(12345), TimeOffset: 1, SongID: songID},
			{Hash: hexHash(12345), TimeOffset: 2, SongID: songID},
			{Hash: hexHash(67890), TimeOffset: 3, SongID: songID},
			{Hash: hexHash(12345), TimeOffset: 1, SongID: keep},
		})
		if err != nil {
			t.Fatalf("Failed to store fingerprints: %v", err)
		}

		if err := store.DeleteSongByID(songID); err != nil {
			t.Fatalf("Failed to delete song: %v", err)
		}

		if _, err := store.GetSongByID(songID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
		if n, _ := store.FingerprintCount(songID); n != 0 {
			t.Errorf("Expected 0 fingerprints after song deletion, found %d", n)
		}
		rows, _ := store.GetFingerprintsByHash(hexHash(12345))
		if len(rows) != 1 || rows[0].SongID != keep {
			t.Errorf("Expected only the kept song's fingerprint, got %+v", rows)
		}

		if _, found, _ := store.FindSong("Song With Prints", "Print Artist"); found {
			t.Error("Deleted song still resolvable by name")
		}
		if err := store.DeleteSongByID(songID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
		}
	})
}

func TestListSongs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		id1, _, _ := store.InsertSong("Song A", "Artist A")
		id2, _, _ := store.InsertSong("Song B", "Artist B")
		id3, _, _ := store.InsertSong("Song C", "Artist C")

		if id1 == id2 || id2 == id3 || id1 == id3 {
			t.Error("Expected unique IDs for different songs")
		}

		store.InsertFingerprints([]models.FingerprintRow{
			{Hash: hexHash(1), TimeOffset: 1, SongID: id2},
			{Hash: hexHash(2), TimeOffset: 1, SongID: id2},
		})

		songs, err := store.ListSongs()
		if err != nil {
			t.Fatalf("ListSongs failed: %v", err)
		}
		if len(songs) != 3 {
			t.Fatalf("Expected 3 songs, found %d", len(songs))
		}
		for i := 1; i < len(songs); i++ {
			if songs[i].ID <= songs[i-1].ID {
				t.Errorf("Songs not ordered by ID: %+v", songs)
			}
		}
		for _, s := range songs {
			want := 0
			if s.ID == id2 {
				want = 2
			}
			if s.FingerprintCount != want {
				t.Errorf("Song %d: expected %d fingerprints, got %d", s.ID, want, s.FingerprintCount)
			}
		}
	})
}

func TestEnsureFormat(t *testing.T) {
	for _, backend := range []string{BackendSQLite, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			store, path := setupTestStore(t, backend)

			if err := store.EnsureFormat("v1"); err != nil {
				t.Fatalf("First EnsureFormat failed: %v", err)
			}
			if err := store.EnsureFormat("v1"); err != nil {
				t.Fatalf("Repeated EnsureFormat failed: %v", err)
			}
			if err := store.EnsureFormat("v2"); !errors.Is(err, ErrFormatMismatch) {
				t.Errorf("Expected ErrFormatMismatch, got %v", err)
			}

			store.Close()
			reopened, err := Open(backend, path)
			if err != nil {
				t.Fatalf("Reopen failed: %v", err)
			}
			defer reopened.Close()
			if err := reopened.EnsureFormat("v2"); !errors.Is(err, ErrFormatMismatch) {
				t.Errorf("Expected persisted format to reject v2, got %v", err)
			}
		})
	}
}

func TestReopenKeepsData(t *testing.T) {
	for _, backend := range []string{BackendSQLite, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			store, path := setupTestStore(t, backend)
			id, _, _ := store.InsertSong("Persist", "Artist")
			store.InsertFingerprint(hexHash(7), 3, id)
			store.Close()

			reopened, err := Open(backend, path)
			if err != nil {
				t.Fatalf("Reopen failed: %v", err)
			}
			defer reopened.Close()

			got, status, err := reopened.InsertSong("Persist", "Artist")
			if err != nil || got != id || status != models.Duplicate {
				t.Errorf("Expected existing song %d, got %d %v %v", id, got, status, err)
			}
			next, _, err := reopened.InsertSong("Fresh", "Artist")
			if err != nil || next == id {
				t.Errorf("Expected a new id after reopen, got %d (%v)", next, err)
			}
			if n, _ := reopened.FingerprintCount(0); n != 1 {
				t.Errorf("Expected 1 fingerprint after reopen, got %d", n)
			}
		})
	}
}

func TestClose(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Errorf("Second close should not error: %v", err)
		}
		if _, _, err := store.InsertSong("x", "y"); !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed after close, got %v", err)
		}
	})
}

func TestNilClientMethods(t *testing.T) {
	var client *DBClient

	if _, _, err := client.InsertSong("Test", "Test"); err == nil {
		t.Error("Expected error for nil client in InsertSong")
	}
	if err := client.DeleteSongByID(1); err == nil {
		t.Error("Expected error for nil client in DeleteSongByID")
	}
	if _, err := client.InsertFingerprints(nil); err == nil {
		t.Error("Expected error for nil client in InsertFingerprints")
	}
	if _, err := client.GetFingerprintsByHash(hexHash(1)); err == nil {
		t.Error("Expected error for nil client in GetFingerprintsByHash")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close on nil client should return nil, got: %v", err)
	}

	var kv *KVStore
	if _, _, err := kv.InsertSong("Test", "Test"); err == nil {
		t.Error("Expected error for nil KV store in InsertSong")
	}
	if err := kv.Close(); err != nil {
		t.Errorf("Close on nil KV store should return nil, got: %v", err)
	}
}

func TestEmptyFingerprints(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		counts, err := store.InsertFingerprints(nil)
		if err != nil {
			t.Errorf("Expected no error for empty batch, got: %v", err)
		}
		if counts.Total() != 0 {
			t.Errorf("Expected zero counts, got %+v", counts)
		}
	})
}

func TestConcurrentInsertSong(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		const workers = 8
		ids := make([]uint32, workers)
		statuses := make([]models.InsertStatus, workers)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				id, status, err := store.InsertSong("Concurrent Song", "Concurrent Artist")
				if err != nil {
					t.Errorf("Failed to insert song concurrently: %v", err)
				}
				ids[idx], statuses[idx] = id, status
			}(i)
		}
		wg.Wait()

		inserted := 0
		for i := range ids {
			if ids[i] != ids[0] {
				t.Errorf("Worker %d got id %d, expected %d", i, ids[i], ids[0])
			}
			if statuses[i] == models.Inserted {
				inserted++
			}
		}
		if inserted != 1 {
			t.Errorf("Expected exactly one inserted status, got %d", inserted)
		}

		songs, _ := store.ListSongs()
		if len(songs) != 1 {
			t.Errorf("Expected 1 song after concurrent inserts, found %d", len(songs))
		}
	})
}
