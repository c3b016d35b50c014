package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/himanishpuri/AcousticHash/internal/audio"
	"github.com/himanishpuri/AcousticHash/internal/fingerprint"
	"github.com/himanishpuri/AcousticHash/pkg/acousticdna"
	"github.com/himanishpuri/AcousticHash/pkg/logger"
	"github.com/himanishpuri/AcousticHash/pkg/models"
	"github.com/himanishpuri/AcousticHash/pkg/utils"
)

func handleIndex(args []string) {
	log := logger.GetLogger()

	positional, flagArgs := splitArgs(args)
	indexCmd := flag.NewFlagSet("index", flag.ExitOnError)
	reindex := indexCmd.Bool("reindex", false, "Fingerprint songs that are already in the catalog")
	indexCmd.Parse(flagArgs)
	positional = append(positional, indexCmd.Args()...)

	if len(positional) != 1 {
		fmt.Println("Usage: acoustichash index <dir> [-reindex]")
		os.Exit(1)
	}
	root := positional[0]

	files, err := utils.CollectAudioFiles(root)
	if err != nil {
		fail("Failed to scan %s: %v", root, err)
	}
	if len(files) == 0 {
		fmt.Printf("\n📭 No audio files found in %s\n", root)
		return
	}

	fmt.Println("\n🔧 Initializing service...")
	svc, err := createService(acousticdna.WithReindex(*reindex))
	if err != nil {
		log.Errorf("Service initialization failed: %v", err)
		fail("Failed to create service: %v", err)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Per-file INFO lines would tear the progress bar.
	if !verbose {
		log.SetLevel(logger.WARN)
	}

	fmt.Printf("🎵 Indexing %s files with %d workers\n\n", humanize.Comma(int64(len(files))), workers)

	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(len(files)),
		mpb.PrependDecorators(
			decor.Name("Indexing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)

	var failures []acousticdna.IndexResult
	summary, err := svc.IndexDirectory(ctx, root, func(r acousticdna.IndexResult) {
		if r.Err != nil {
			failures = append(failures, r)
		}
		bar.EwmaIncrement(r.Duration)
	})
	if !bar.Completed() {
		bar.Abort(false)
	}
	p.Wait()

	if summary == nil {
		fail("Indexing failed: %v", err)
	}

	if summary.Cancelled {
		fmt.Println("\n⚠️  Indexing interrupted, remaining files were not started")
	} else {
		fmt.Println("\n✅ Indexing complete!")
	}
	fmt.Printf("   Files:      %s\n", humanize.Comma(int64(summary.Files)))
	fmt.Printf("   Added:      %s\n", humanize.Comma(int64(summary.Succeeded)))
	fmt.Printf("   Skipped:    %s\n", humanize.Comma(int64(summary.Skipped)))
	fmt.Printf("   Failed:     %s\n", humanize.Comma(int64(summary.Failed)))
	fmt.Printf("   Hashes:     %s inserted, %s duplicates, %s failed\n",
		humanize.Comma(int64(summary.Inserted)),
		humanize.Comma(int64(summary.Duplicates)),
		humanize.Comma(int64(summary.FailedRecords)))
	fmt.Printf("   Elapsed:    %s\n", summary.Elapsed.Round(time.Millisecond))

	if len(failures) > 0 {
		fmt.Println("\n❌ Failed files:")
		for _, f := range failures {
			fmt.Printf("   %s: %v\n", f.Path, f.Err)
		}
	}
}

func handleAdd(args []string) {
	log := logger.GetLogger()

	positional, flagArgs := splitArgs(args)
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	name := addCmd.String("name", "", "Song name (default: from tags or file name)")
	artist := addCmd.String("artist", "", "Artist name (default: from tags or file name)")
	reindex := addCmd.Bool("reindex", false, "Fingerprint the song even if it is already in the catalog")
	addCmd.Parse(flagArgs)
	positional = append(positional, addCmd.Args()...)

	if len(positional) != 1 {
		fmt.Println("Usage: acoustichash add <audio_file> [-name <name>] [-artist <artist>] [-reindex]")
		os.Exit(1)
	}
	audioPath := positional[0]

	fmt.Println("\n🔧 Initializing service...")
	svc, err := createService(acousticdna.WithReindex(*reindex))
	if err != nil {
		log.Errorf("Service initialization failed: %v", err)
		fail("Failed to create service: %v", err)
	}
	defer svc.Close()

	fmt.Println("🎵 Processing audio file...")
	fmt.Println("   This may take a few moments for large files")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := svc.AddSong(ctx, audioPath, *name, *artist)
	if err != nil {
		log.Errorf("AddSong failed: %v", err)
		fail("Failed to add song: %v", err)
	}

	if report.Skipped {
		fmt.Printf("\n⏭️  \"%s\" by %s is already in the catalog (ID: %d)\n", report.Name, report.Artist, report.SongID)
		fmt.Println("   Use -reindex to fingerprint it again")
		return
	}

	fmt.Println("\n✅ Successfully added song to database!")
	fmt.Printf("   ID:       %d\n", report.SongID)
	fmt.Printf("   Name:     %s\n", report.Name)
	fmt.Printf("   Artist:   %s\n", report.Artist)
	fmt.Printf("   Duration: %s\n", formatDuration(report.Duration))
	fmt.Printf("   Peaks:    %s\n", humanize.Comma(int64(report.Peaks)))
	fmt.Printf("   Hashes:   %s inserted, %s duplicates",
		humanize.Comma(int64(report.Counts.Inserted)), humanize.Comma(int64(report.Counts.Duplicates)))
	if report.Counts.Failed > 0 {
		fmt.Printf(", %s failed", humanize.Comma(int64(report.Counts.Failed)))
	}
	fmt.Println()
}

// handleHash prints fingerprints for a file without opening a database.
func handleHash(args []string) {
	positional, flagArgs := splitArgs(args)
	hashCmd := flag.NewFlagSet("hash", flag.ExitOnError)
	limit := hashCmd.Int("limit", 20, "Number of hashes to print (0 for all)")
	hashCmd.Parse(flagArgs)
	positional = append(positional, hashCmd.Args()...)

	if len(positional) != 1 {
		fmt.Println("Usage: acoustichash hash <audio_file> [-limit <n>]")
		os.Exit(1)
	}
	audioPath := positional[0]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pcm, err := audio.Load(ctx, audioPath, tempDir)
	if err != nil {
		fail("Failed to decode audio: %v", err)
	}

	params := fingerprint.DefaultParams()
	samples, err := audio.Preprocess(pcm, params.SampleRate)
	if err != nil {
		fail("Failed to preprocess audio: %v", err)
	}

	res, err := fingerprint.Generate(samples, params.SampleRate, 0, params)
	if err != nil {
		fail("Failed to fingerprint audio: %v", err)
	}

	fmt.Printf("\n🔍 %s\n", audioPath)
	fmt.Printf("   Duration:    %s (%d ch @ %d Hz)\n", formatDuration(pcm.Duration()), pcm.Channels, pcm.SampleRate)
	fmt.Printf("   Spectrogram: %s frames x %d bins\n", humanize.Comma(int64(res.Frames)), res.Bins)
	fmt.Printf("   Peaks:       %s\n", humanize.Comma(int64(len(res.Peaks))))
	fmt.Printf("   Hashes:      %s\n", humanize.Comma(int64(len(res.Records))))
	fmt.Printf("   Format:      %s\n\n", params.Version())

	n := len(res.Records)
	if *limit > 0 && *limit < n {
		n = *limit
	}
	fmt.Printf("%-16s  %8s  %8s  %7s  %4s  %4s  %s\n", "HASH", "OFFSET", "TIME", "ANCHOR", "DF", "DT", "MAG")
	for _, r := range res.Records[:n] {
		f := r.Hash.Unpack()
		fmt.Printf("%s  %8d  %7.2fs  %5.0fHz  %4d  %4d  %02X\n",
			r.Hash.Hex(), r.TimeOffset, float64(r.TimeOffset)*params.FrameSeconds(),
			float64(f.AnchorFreq)*params.BinHz(), f.DeltaFreq, f.DeltaTime, f.Magnitude)
	}
	if n < len(res.Records) {
		fmt.Printf("... and %s more\n", humanize.Comma(int64(len(res.Records)-n)))
	}
}

func handleLookup(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: acoustichash lookup <hex_hash>")
		os.Exit(1)
	}

	svc, err := createService()
	if err != nil {
		fail("Failed to create service: %v", err)
	}
	defer svc.Close()

	rows, err := svc.LookupHash(args[0])
	if err != nil {
		fail("Lookup failed: %v", err)
	}
	if len(rows) == 0 {
		fmt.Printf("\n📭 No fingerprints with hash %s\n", args[0])
		return
	}

	params := fingerprint.DefaultParams()
	songs := make(map[uint32]*models.Song)
	fmt.Printf("\n🔍 %d occurrence(s) of %s:\n\n", len(rows), rows[0].Hash)
	for _, r := range rows {
		song, ok := songs[r.SongID]
		if !ok {
			song, err = svc.GetSongByID(r.SongID)
			if err != nil {
				song = &models.Song{ID: r.SongID, Name: "?", Artist: "?"}
			}
			songs[r.SongID] = song
		}
		fmt.Printf("   \"%s\" by %s (ID: %d) at frame %d (%.2fs)\n",
			song.Name, song.Artist, song.ID, r.TimeOffset, float64(r.TimeOffset)*params.FrameSeconds())
	}
}

func handleList() {
	log := logger.GetLogger()

	svc, err := createService()
	if err != nil {
		log.Errorf("Service initialization failed: %v", err)
		fail("Failed to create service: %v", err)
	}
	defer svc.Close()

	songs, err := svc.ListSongs()
	if err != nil {
		log.Errorf("ListSongs failed: %v", err)
		fail("Failed to list songs: %v", err)
	}

	if len(songs) == 0 {
		fmt.Println("\n📭 No songs in database")
		return
	}

	fmt.Printf("\n📚 Found %d song(s):\n\n", len(songs))
	for i, song := range songs {
		fmt.Printf("%d. \"%s\" by %s (ID: %d)\n", i+1, song.Name, song.Artist, song.ID)
		fmt.Printf("   Fingerprints: %s\n\n", humanize.Comma(int64(song.FingerprintCount)))
	}
	log.Debugf("Listed %d songs", len(songs))
}

func handleDelete(args []string) {
	log := logger.GetLogger()

	if len(args) != 1 {
		fmt.Println("Usage: acoustichash delete <song_id>")
		os.Exit(1)
	}

	songID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fail("Invalid song ID: %v", err)
	}

	svc, err := createService()
	if err != nil {
		fail("Failed to create service: %v", err)
	}
	defer svc.Close()

	// Get song info before deletion
	song, err := svc.GetSongByID(uint32(songID))
	if err != nil {
		log.Warnf("Song %d not found: %v", songID, err)
		fail("Song not found (ID: %d)", songID)
	}

	if err := svc.DeleteSong(uint32(songID)); err != nil {
		log.Errorf("DeleteSong failed: %v", err)
		fail("Failed to delete song: %v", err)
	}

	fmt.Printf("\n✅ Successfully deleted song:\n")
	fmt.Printf("   ID:           %d\n", song.ID)
	fmt.Printf("   Name:         %s\n", song.Name)
	fmt.Printf("   Artist:       %s\n", song.Artist)
	fmt.Printf("   Fingerprints: %s\n", humanize.Comma(int64(song.FingerprintCount)))
	log.Infof("Deleted song ID=%d ('%s' by '%s')", song.ID, song.Name, song.Artist)
}

func handleStats() {
	svc, err := createService()
	if err != nil {
		fail("Failed to create service: %v", err)
	}
	defer svc.Close()

	stats, err := svc.Stats()
	if err != nil {
		fail("Failed to read stats: %v", err)
	}

	fmt.Println("\n📊 Catalog statistics")
	fmt.Printf("   Backend:      %s\n", stats.Backend)
	fmt.Printf("   Songs:        %s\n", humanize.Comma(int64(stats.Songs)))
	fmt.Printf("   Fingerprints: %s\n", humanize.Comma(int64(stats.Fingerprints)))
	if stats.Songs > 0 {
		fmt.Printf("   Per song:     %s\n", humanize.Comma(int64(stats.Fingerprints/stats.Songs)))
	}
	fmt.Printf("   Format:       %s\n", stats.Format)
}

func formatDuration(seconds float64) string {
	d := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", d/60, d%60)
}
