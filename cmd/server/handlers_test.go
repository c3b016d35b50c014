package main

import (
	"bytes"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/himanishpuri/AcousticHash/pkg/acousticdna"
	"github.com/himanishpuri/AcousticHash/pkg/logger"
)

const testRate = 44100

func setupTestServer(t *testing.T) http.Handler {
	t.Helper()

	dir := t.TempDir()
	quiet := logger.New(logger.Config{Level: logger.ERROR, Output: &bytes.Buffer{}})
	svc, err := acousticdna.NewService(
		acousticdna.WithDBPath(filepath.Join(dir, "server.sqlite3")),
		acousticdna.WithTempDir(dir),
		acousticdna.WithLogger(quiet),
	)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	t.Cleanup(func() {
		svc.Close()
	})

	srv := NewServer(svc, &ServerConfig{DBPath: "server.sqlite3", TempDir: dir, AllowedOrigins: []string{"*"}})
	srv.log = quiet
	return srv.setupRoutes()
}

// toneWAV returns a two second mono 16-bit WAV of 440 Hz plus 880 Hz.
func toneWAV(t *testing.T) []byte {
	t.Helper()

	data := make([]int, 2*testRate)
	for i := range data {
		v := 0.4*math.Sin(2*math.Pi*440*float64(i)/testRate) + 0.4*math.Sin(2*math.Pi*880*float64(i)/testRate)
		data[i] = int(v * 32767)
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create WAV: %v", err)
	}
	enc := wav.NewEncoder(f, testRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: testRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Failed to write WAV: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to close WAV encoder: %v", err)
	}
	f.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read WAV: %v", err)
	}
	return raw
}

func uploadRequest(t *testing.T, target, filename string, audio []byte, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("Failed to write field: %v", err)
		}
	}
	part, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write(audio)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	h := setupTestServer(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("Expected a request id header")
	}
	if got := decode[map[string]string](t, rec); got["status"] != "healthy" {
		t.Errorf("Unexpected body: %v", got)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc")
	rec := serve(h, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc" {
		t.Errorf("Expected request id abc, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/songs", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := serve(h, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Missing CORS header: %v", rec.Header())
	}
}

func TestSongErrors(t *testing.T) {
	h := setupTestServer(t)

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/songs/42", http.StatusNotFound},
		{http.MethodDelete, "/api/songs/42", http.StatusNotFound},
		{http.MethodGet, "/api/songs/abc", http.StatusBadRequest},
		{http.MethodGet, "/api/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := serve(h, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}
}

func TestAddSongUpload(t *testing.T) {
	h := setupTestServer(t)
	audio := toneWAV(t)

	rec := serve(h, uploadRequest(t, "/api/songs", "Tester - Tone.wav", audio, nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	added := decode[AddSongResponse](t, rec)
	if added.Name != "Tone" || added.Artist != "Tester" {
		t.Errorf("Expected metadata from file name, got %+v", added)
	}
	if added.Inserted == 0 || added.Inserted != added.Hashes {
		t.Errorf("Unexpected counts: %+v", added)
	}

	rec = serve(h, uploadRequest(t, "/api/songs", "other.wav", audio, map[string]string{"name": "Tone", "artist": "Tester"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for duplicate, got %d: %s", rec.Code, rec.Body.String())
	}
	if again := decode[AddSongResponse](t, rec); !again.Skipped || again.ID != added.ID {
		t.Errorf("Expected skip of song %d, got %+v", added.ID, again)
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/songs", nil))
	list := decode[ListSongsResponse](t, rec)
	if list.Count != 1 || list.Songs[0].FingerprintCount != added.Inserted {
		t.Errorf("Unexpected song list: %+v", list)
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/health/metrics", nil))
	metrics := decode[MetricsResponse](t, rec)
	if metrics.SongCount != 1 || metrics.FingerprintCount != added.Inserted || metrics.Backend != "sqlite" {
		t.Errorf("Unexpected metrics: %+v", metrics)
	}

	rec = serve(h, httptest.NewRequest(http.MethodDelete, "/api/songs/"+strconv.FormatUint(uint64(added.ID), 10), nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 on delete, got %d", rec.Code)
	}
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/songs/"+strconv.FormatUint(uint64(added.ID), 10), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}

func TestFingerprintUpload(t *testing.T) {
	h := setupTestServer(t)

	rec := serve(h, uploadRequest(t, "/api/fingerprint?limit=5", "tone.wav", toneWAV(t), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[FingerprintResponse](t, rec)
	if resp.Count <= 5 || len(resp.Hashes) != 5 || !resp.Truncated {
		t.Errorf("Expected 5 of more than 5 hashes, got count=%d len=%d truncated=%v", resp.Count, len(resp.Hashes), resp.Truncated)
	}
	for _, hd := range resp.Hashes {
		if len(hd.Hash) != 16 {
			t.Errorf("Expected 16 hex digits, got %q", hd.Hash)
		}
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/songs", nil))
	if list := decode[ListSongsResponse](t, rec); list.Count != 0 {
		t.Errorf("Fingerprinting stored songs: %+v", list)
	}
}

func TestFingerprintRejectsGarbage(t *testing.T) {
	h := setupTestServer(t)

	rec := serve(h, uploadRequest(t, "/api/fingerprint", "junk.wav", []byte("not audio"), nil))
	if rec.Code < 400 {
		t.Errorf("Expected an error status, got %d", rec.Code)
	}

	rec = serve(h, uploadRequest(t, "/api/fingerprint?limit=-1", "tone.wav", []byte("x"), nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", rec.Code)
	}
}
