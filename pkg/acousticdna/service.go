package acousticdna

import (
	"context"
	"errors"
	"fmt"

	"github.com/himanishpuri/AcousticHash/internal/audio"
	"github.com/himanishpuri/AcousticHash/internal/fingerprint"
	"github.com/himanishpuri/AcousticHash/internal/indexer"
	"github.com/himanishpuri/AcousticHash/pkg/logger"
	"github.com/himanishpuri/AcousticHash/pkg/models"
	"github.com/himanishpuri/AcousticHash/pkg/utils"
)

var (
	// ErrNoFingerprints is returned when a song yields nothing to store.
	ErrNoFingerprints = errors.New("no fingerprints produced")
	ErrMissingName    = errors.New("song name is required")
)

// acousticService is the default implementation of the Service interface.
type acousticService struct {
	storage Storage
	log     Logger
	config  *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}

	// Set default logger if none provided
	if cfg.Logger == nil {
		cfg.Logger = logger.Named("acousticdna")
	}

	stor, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	return &acousticService{
		storage: stor,
		log:     cfg.Logger,
		config:  cfg,
	}, nil
}

// WithService opens a service, hands it to fn and closes it on every exit
// path.
func WithService(fn func(Service) error, opts ...Option) (err error) {
	svc, err := NewService(opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, svc.Close())
	}()
	return fn(svc)
}

// AddSong fingerprints an audio file and stores it under name and artist.
// Empty values are resolved from tags or the file name.
func (s *acousticService) AddSong(ctx context.Context, audioPath, name, artist string) (*IngestReport, error) {
	name, artist = audio.ResolveMetadata(ctx, audioPath, name, artist)
	s.log.Infof("Processing song: %s by %s", name, artist)

	if report, err := s.existing(name, artist); report != nil || err != nil {
		return report, err
	}

	pcm, err := audio.Load(ctx, audioPath, s.config.TempDir)
	if err != nil {
		return nil, fmt.Errorf("audio decoding failed: %w", err)
	}
	return s.ingest(ctx, pcm, name, artist)
}

// AddSamples stores an already decoded buffer.
func (s *acousticService) AddSamples(ctx context.Context, pcm *PCM, name, artist string) (*IngestReport, error) {
	if name == "" {
		return nil, ErrMissingName
	}
	if artist == "" {
		artist = audio.UnknownArtist
	}

	if report, err := s.existing(name, artist); report != nil || err != nil {
		return report, err
	}
	return s.ingest(ctx, pcm, name, artist)
}

// existing reports a catalogued song as skipped unless reindexing.
func (s *acousticService) existing(name, artist string) (*IngestReport, error) {
	if s.config.Reindex {
		return nil, nil
	}
	id, found, err := s.storage.FindSong(name, artist)
	if err != nil {
		return nil, fmt.Errorf("song lookup failed: %w", err)
	}
	if !found {
		return nil, nil
	}
	s.log.Infof("Skipping %s by %s: already catalogued as ID=%d", name, artist, id)
	return &IngestReport{SongID: id, Name: name, Artist: artist, Skipped: true}, nil
}

func (s *acousticService) ingest(ctx context.Context, pcm *PCM, name, artist string) (*IngestReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := s.FingerprintSamples(pcm)
	if err != nil {
		if errors.Is(err, fingerprint.ErrNoPeaks) {
			return nil, fmt.Errorf("%w: %w", ErrNoFingerprints, err)
		}
		return nil, err
	}
	s.log.Infof("Detected %d peaks over %d frames", len(res.Peaks), res.Frames)
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("%w: %d peaks formed no pairs", ErrNoFingerprints, len(res.Peaks))
	}

	songID, status, err := s.storage.InsertSong(name, artist)
	if err != nil {
		return nil, fmt.Errorf("failed to register song: %w", err)
	}
	created := status == models.Inserted

	rows := make([]models.FingerprintRow, len(res.Records))
	for i, r := range res.Records {
		rows[i] = models.FingerprintRow{Hash: r.Hash.Hex(), TimeOffset: r.TimeOffset, SongID: songID}
	}

	counts, err := s.storage.InsertFingerprints(rows)
	if err != nil {
		s.rollback(songID, created)
		return nil, fmt.Errorf("failed to store fingerprints: %w", err)
	}
	if created && counts.Inserted == 0 {
		s.rollback(songID, created)
		return nil, fmt.Errorf("%w: none of %d hashes could be stored", ErrNoFingerprints, len(rows))
	}

	s.log.Infof("Inserted %d/%d hashes (%d duplicates skipped)", counts.Inserted, len(rows), counts.Duplicates)
	if counts.Failed > 0 {
		s.log.Warnf("%d hashes failed to store for song ID=%d", counts.Failed, songID)
	}

	return &IngestReport{
		SongID:   songID,
		Name:     name,
		Artist:   artist,
		Duration: pcm.Duration(),
		Peaks:    len(res.Peaks),
		Hashes:   len(rows),
		Counts:   counts,
	}, nil
}

func (s *acousticService) rollback(songID uint32, created bool) {
	if !created {
		return
	}
	if err := s.storage.DeleteSongByID(songID); err != nil {
		s.log.Errorf("Rollback of song ID=%d failed: %v", songID, err)
	}
}

// Fingerprint decodes a file and returns its fingerprints without touching
// storage.
func (s *acousticService) Fingerprint(ctx context.Context, audioPath string) (*FingerprintResult, error) {
	pcm, err := audio.Load(ctx, audioPath, s.config.TempDir)
	if err != nil {
		return nil, fmt.Errorf("audio decoding failed: %w", err)
	}
	return s.FingerprintSamples(pcm)
}

// FingerprintSamples runs preprocessing and the fingerprint pipeline over a
// decoded buffer.
func (s *acousticService) FingerprintSamples(pcm *PCM) (*FingerprintResult, error) {
	p := s.config.Params
	samples, err := audio.Preprocess(pcm, p.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	res, err := fingerprint.Generate(samples, p.SampleRate, 0, p)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting failed: %w", err)
	}
	return res, nil
}

// IndexDirectory adds every audio file under root using the configured
// number of workers.
func (s *acousticService) IndexDirectory(ctx context.Context, root string, onResult func(IndexResult)) (*IndexSummary, error) {
	files, err := utils.CollectAudioFiles(root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s failed: %w", root, err)
	}
	if len(files) == 0 {
		s.log.Warnf("No audio files found in %s", root)
		return &IndexSummary{}, nil
	}

	pool := indexer.New(s.config.Workers, func(ctx context.Context, path string) (indexer.Outcome, error) {
		report, err := s.AddSong(ctx, path, "", "")
		if err != nil {
			return indexer.Outcome{}, err
		}
		return indexer.Outcome{
			SongID:  report.SongID,
			Name:    report.Name,
			Artist:  report.Artist,
			Skipped: report.Skipped,
			Counts:  report.Counts,
		}, nil
	}, s.log)

	summary := pool.Run(ctx, files, onResult)
	s.log.Infof("Indexed %d files: %d added, %d skipped, %d failed, %d hashes inserted",
		summary.Files, summary.Succeeded, summary.Skipped, summary.Failed, summary.Inserted)
	if summary.Cancelled {
		return &summary, ctx.Err()
	}
	return &summary, nil
}

// LookupHash returns every stored occurrence of a 16 digit hex hash.
func (s *acousticService) LookupHash(hash string) ([]models.FingerprintRow, error) {
	h, err := fingerprint.ParseHash(hash)
	if err != nil {
		return nil, err
	}
	return s.storage.GetFingerprintsByHash(h.Hex())
}

// GetSongByID retrieves a song's metadata by its database ID.
func (s *acousticService) GetSongByID(songID uint32) (*models.Song, error) {
	return s.storage.GetSongByID(songID)
}

// ListSongs returns all songs in the database.
func (s *acousticService) ListSongs() ([]models.Song, error) {
	return s.storage.ListSongs()
}

// DeleteSong removes a song and all its fingerprints from the database.
func (s *acousticService) DeleteSong(songID uint32) error {
	return s.storage.DeleteSongByID(songID)
}

func (s *acousticService) Stats() (*models.Stats, error) {
	songs, err := s.storage.ListSongs()
	if err != nil {
		return nil, err
	}
	total, err := s.storage.FingerprintCount(0)
	if err != nil {
		return nil, err
	}
	return &models.Stats{
		Songs:        len(songs),
		Fingerprints: total,
		Backend:      s.storage.Backend(),
		Format:       s.config.Params.Version(),
	}, nil
}

// Close releases all resources held by the service.
func (s *acousticService) Close() error {
	return s.storage.Close()
}
