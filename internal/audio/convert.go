package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const convertTimeout = 2 * time.Minute

// FFmpegAvailable reports whether ffmpeg is on PATH.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// ConvertToWAV transcodes inputPath to 16-bit PCM WAV in tempDir, keeping
// the source channel count and sample rate. Each call writes a uniquely
// named file so concurrent workers never collide. The caller removes the
// returned file.
func ConvertToWAV(ctx context.Context, inputPath, tempDir string) (string, error) {
	if !FFmpegAvailable() {
		return "", fmt.Errorf("%w: %s needs ffmpeg, which is not installed", ErrUnsupportedFormat, filepath.Ext(inputPath))
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, convertTimeout)
		defer cancel()
	}

	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", err
	}

	outputPath := filepath.Join(tempDir, uuid.NewString()+".wav")

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-vn",
		"-c:a", "pcm_s16le",
		outputPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outputPath)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	return outputPath, nil
}
