package utils

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestIsAudioFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"song.wav", true},
		{"SONG.MP3", true},
		{"dir/track.flac", true},
		{"notes.txt", false},
		{"wav", false},
		{"archive.wav.zip", false},
	}
	for _, tt := range tests {
		if got := IsAudioFile(tt.path); got != tt.want {
			t.Errorf("IsAudioFile(%q) = %v, expected %v", tt.path, got, tt.want)
		}
	}
}

func TestCollectAudioFiles(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"b.wav",
		"a.mp3",
		"readme.txt",
		"sub/c.flac",
		".hidden/d.wav",
		"sub/.e.wav",
	}
	for _, f := range files {
		p := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := CollectAudioFiles(root)
	if err != nil {
		t.Fatalf("CollectAudioFiles failed: %v", err)
	}
	want := []string{
		filepath.Join(root, "a.mp3"),
		filepath.Join(root, "b.wav"),
		filepath.Join(root, "sub", "c.flac"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Got %v, expected %v", got, want)
	}

	single, err := CollectAudioFiles(filepath.Join(root, "b.wav"))
	if err != nil || len(single) != 1 {
		t.Errorf("Expected single file, got %v (%v)", single, err)
	}
	if _, err := CollectAudioFiles(filepath.Join(root, "readme.txt")); err == nil {
		t.Error("Expected error for non-audio file root")
	}
	if _, err := CollectAudioFiles(filepath.Join(root, "missing")); err == nil {
		t.Error("Expected error for missing root")
	}
}
