//go:build !js && !wasm
// +build !js,!wasm

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/AcousticHash/internal/storage"
	"github.com/himanishpuri/AcousticHash/pkg/acousticdna"
	"github.com/himanishpuri/AcousticHash/pkg/logger"
)

var (
	port           int
	dbPath         string
	backend        string
	tempDir        string
	allowedOrigins string
)

func init() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("ACOUSTIC_DB_PATH", ""), "Path to the SQLite file or Badger directory")
	flag.StringVar(&backend, "backend", getEnvOrDefault("ACOUSTIC_BACKEND", storage.BackendSQLite), "Storage backend: sqlite or badger")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("ACOUSTIC_TEMP_DIR", os.TempDir()), "Temporary directory")
	flag.StringVar(&allowedOrigins, "origins", getEnvOrDefault("ACOUSTIC_ALLOWED_ORIGINS", "*"), "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	// Parse allowed origins
	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	if dbPath == "" {
		dbPath = storage.DefaultDBFile
		if strings.EqualFold(backend, storage.BackendBadger) {
			dbPath = storage.DefaultBadgerDir
		}
	}

	service, err := acousticdna.NewService(
		acousticdna.WithDBPath(dbPath),
		acousticdna.WithBackend(backend),
		acousticdna.WithTempDir(tempDir),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		TempDir:        tempDir,
		AllowedOrigins: origins,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(service, config)
	if err := server.Start(ctx); err != nil {
		service.Close()
		log.Fatalf("Server failed: %v", err)
	}
}
