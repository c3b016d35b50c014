package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"time"

	"github.com/eligwz/spectrogram"

	"github.com/himanishpuri/AcousticHash/internal/audio"
	"github.com/himanishpuri/AcousticHash/internal/fingerprint"
	"github.com/himanishpuri/AcousticHash/pkg/utils"
)

// handleRender draws a PNG spectrogram of an audio file, optionally with the
// fingerprint peaks marked on top.
func handleRender(args []string) {
	positional, flagArgs := splitArgs(args)
	renderCmd := flag.NewFlagSet("render", flag.ExitOnError)
	width := renderCmd.Int("width", 2048, "Image width in pixels")
	height := renderCmd.Int("height", 512, "Image height in pixels (frequency bins)")
	showPeaks := renderCmd.Bool("peaks", false, "Mark fingerprint peaks")
	renderCmd.Parse(flagArgs)
	positional = append(positional, renderCmd.Args()...)

	if len(positional) != 2 {
		fmt.Println("Usage: acoustichash render <audio_file> <out.png> [-width <px>] [-height <px>] [-peaks]")
		os.Exit(1)
	}
	audioPath, outputPath := positional[0], positional[1]

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
	fmt.Printf("Read %d samples at %d Hz\n", len(samples), params.SampleRate)

	img := spectrogram.NewImage128(image.Rect(0, 0, *width, *height))

	// Fill with black background first
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	spectrogram.Drawfft(
		img,
		samples,
		uint32(params.SampleRate),
		uint32(*height), // bins
		false,           // RECTANGLE (use Hamming window)
		false,           // DFT (use FFT instead)
		true,            // MAG (magnitude)
		false,           // LOG10 (linear scale)
	)

	if *showPeaks {
		spec, err := fingerprint.BuildSpectrogram(samples, params.SampleRate, params)
		if err != nil {
			fail("Failed to build spectrogram: %v", err)
		}
		peaks, err := fingerprint.ExtractPeaks(spec, params)
		if err != nil {
			fail("Failed to extract peaks: %v", err)
		}
		markPeaks(img, peaks, spec.Frames, spec.Bins)
		fmt.Printf("Marked %d peaks\n", len(peaks))
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := utils.MakeDir(dir); err != nil {
			fail("Failed to create output directory: %v", err)
		}
	}
	if err := spectrogram.SavePng(img, outputPath); err != nil {
		fail("Failed to save PNG: %v", err)
	}
	fmt.Printf("✅ Saved spectrogram to %s\n", outputPath)
}

// markPeaks plots each peak as a small cross. Time runs left to right and
// frequency bottom to top.
func markPeaks(img draw.Image, peaks []fingerprint.Peak, frames, bins int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	mark := spectrogram.ParseColor("ff3030")

	for _, p := range peaks {
		x := b.Min.X + p.TimeIdx*w/frames
		y := b.Max.Y - 1 - p.FreqIdx*h/bins
		for d := -1; d <= 1; d++ {
			img.Set(x+d, y, mark)
			img.Set(x, y+d, mark)
		}
	}
}
