package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// DecodeWAV reads integer PCM WAV data of 8, 16, 24 or 32 bits.
func DecodeWAV(r io.ReadSeeker) (*PCM, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV file", ErrUnsupportedFormat)
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: WAV audio format %d, only PCM (1) supported", ErrUnsupportedFormat, decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("could not read PCM buffer: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	bitDepth := int(decoder.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, bitDepth)
	}

	samples := make([]float64, len(buf.Data))
	scale := intScale(bitDepth)
	for i, v := range buf.Data {
		if bitDepth == 8 {
			// 8-bit WAV is unsigned with a 128 midpoint.
			v -= 128
		}
		samples[i] = float64(v) * scale
	}

	return &PCM{
		Samples:    samples,
		Channels:   buf.Format.NumChannels,
		SampleRate: buf.Format.SampleRate,
	}, nil
}

func LoadWAV(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return DecodeWAV(f)
}
