package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load decodes the file at path into a PCM buffer. WAV, MP3 and FLAC are
// decoded natively; anything else goes through ffmpeg into tempDir first.
func Load(ctx context.Context, path, tempDir string) (*PCM, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	var (
		pcm *PCM
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		pcm, err = LoadWAV(path)
	case ".mp3":
		pcm, err = LoadMP3(path)
	case ".flac":
		pcm, err = LoadFLAC(path)
	default:
		pcm, err = loadConverted(ctx, path, tempDir)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	if err := pcm.Validate(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return pcm, nil
}

func loadConverted(ctx context.Context, path, tempDir string) (*PCM, error) {
	wavPath, err := ConvertToWAV(ctx, path, tempDir)
	if err != nil {
		return nil, err
	}
	defer os.Remove(wavPath)

	return LoadWAV(wavPath)
}
