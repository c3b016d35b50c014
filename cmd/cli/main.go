package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/AcousticHash/internal/indexer"
	"github.com/himanishpuri/AcousticHash/internal/storage"
	"github.com/himanishpuri/AcousticHash/pkg/acousticdna"
	"github.com/himanishpuri/AcousticHash/pkg/logger"
)

// Global flags
var (
	dbPath  string
	backend string
	tempDir string
	workers int
	verbose bool
)

func init() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	flag.StringVar(&dbPath, "db", getEnvOrDefault("ACOUSTIC_DB_PATH", ""), "Path to the SQLite file or Badger directory")
	flag.StringVar(&backend, "backend", getEnvOrDefault("ACOUSTIC_BACKEND", storage.BackendSQLite), "Storage backend: sqlite or badger")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("ACOUSTIC_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.IntVar(&workers, "workers", getEnvIntOrDefault("ACOUSTIC_WORKERS", indexer.DefaultWorkers()), "Files processed concurrently by index")
	flag.BoolVar(&verbose, "v", false, "Enable debug logging")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// createService creates a new service with the global options plus extra.
func createService(extra ...acousticdna.Option) (acousticdna.Service, error) {
	opts := []acousticdna.Option{
		acousticdna.WithBackend(backend),
		acousticdna.WithTempDir(tempDir),
		acousticdna.WithWorkers(workers),
	}
	if dbPath != "" {
		opts = append(opts, acousticdna.WithDBPath(dbPath))
	} else if strings.EqualFold(backend, storage.BackendBadger) {
		opts = append(opts, acousticdna.WithDBPath(storage.DefaultBadgerDir))
	}
	return acousticdna.NewService(append(opts, extra...)...)
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	log := logger.GetLogger()
	if verbose {
		log.SetLevel(logger.DEBUG)
	}

	args := flag.Args()
	if len(args) < 1 {
		printBanner()
		printUsage()
		os.Exit(1)
	}

	command, rest := args[0], args[1:]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "index":
		handleIndex(rest)
	case "add":
		handleAdd(rest)
	case "hash":
		handleHash(rest)
	case "lookup":
		handleLookup(rest)
	case "list":
		handleList()
	case "delete":
		handleDelete(rest)
	case "stats":
		handleStats()
	case "render":
		handleRender(rest)
	case "help", "-h", "--help":
		printBanner()
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// splitArgs separates leading positional arguments from the flags that
// follow them, so "add song.wav -name X" parses like "add -name X song.wav".
func splitArgs(args []string) (positional, flags []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return positional, args[i:]
		}
		positional = append(positional, arg)
	}
	return positional, nil
}

func fail(format string, args ...any) {
	fmt.Printf("❌ "+format+"\n", args...)
	os.Exit(1)
}

func printBanner() {
	banner := `
    _                       _   _      _   _           _
   / \   ___ ___  _   _ ___| |_(_) ___| | | | __ _ ___| |__
  / _ \ / __/ _ \| | | / __| __| |/ __| |_| |/ _' / __| '_ \
 / ___ \ (_| (_) | |_| \__ \ |_| | (__|  _  | (_| \__ \ | | |
/_/   \_\___\___/ \__,_|___/\__|_|\___|_| |_|\__,_|___/_| |_|

           Audio Fingerprinting CLI Tool
`
	fmt.Println(banner)
}

func printUsage() {
	fmt.Println("AcousticHash - Audio Fingerprinting CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  -db <path>         SQLite file or Badger directory (env: ACOUSTIC_DB_PATH, default: acousticdna.sqlite3)")
	fmt.Println("  -backend <name>    sqlite or badger (env: ACOUSTIC_BACKEND, default: sqlite)")
	fmt.Println("  -temp <dir>        Temporary directory for audio conversion (env: ACOUSTIC_TEMP_DIR)")
	fmt.Println("  -workers <n>       Concurrent files for index (env: ACOUSTIC_WORKERS, default: NumCPU-1)")
	fmt.Println("  -v                 Debug logging")
	fmt.Println("\nUsage:")
	fmt.Println("  acoustichash [global-options] index <dir> [-reindex]")
	fmt.Println("  acoustichash [global-options] add <audio_file> [-name <name>] [-artist <artist>] [-reindex]")
	fmt.Println("  acoustichash [global-options] hash <audio_file> [-limit <n>]")
	fmt.Println("  acoustichash [global-options] lookup <hex_hash>")
	fmt.Println("  acoustichash [global-options] list")
	fmt.Println("  acoustichash [global-options] delete <song_id>")
	fmt.Println("  acoustichash [global-options] stats")
	fmt.Println("  acoustichash [global-options] render <audio_file> <out.png> [-width <px>] [-height <px>] [-peaks]")
	fmt.Println("\nExamples:")
	fmt.Println("  # Index a music folder with 4 workers")
	fmt.Println("  acoustichash -workers 4 index ~/Music")
	fmt.Println()
	fmt.Println("  # Add a single file with explicit metadata")
	fmt.Println("  acoustichash add song.mp3 -name \"Song\" -artist \"Artist\"")
	fmt.Println()
	fmt.Println("  # Use the key-value backend")
	fmt.Println("  acoustichash -backend badger -db ./catalog.badger stats")
}
