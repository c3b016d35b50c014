package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always emits interleaved 16-bit little-endian stereo.
const mp3Channels = 2

func DecodeMP3(r io.Reader) (*PCM, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	var samples []float64
	if n := decoder.Length(); n > 0 {
		samples = make([]float64, 0, int(n/2))
	}

	const scale = 1.0 / 32768.0
	buf := make([]byte, 8192)
	for {
		n, err := decoder.Read(buf)
		for i := 0; i+1 < n; i += 2 {
			s := int16(buf[i]) | int16(buf[i+1])<<8
			samples = append(samples, float64(s)*scale)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read MP3 data: %w", err)
		}
	}

	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	return &PCM{
		Samples:    samples,
		Channels:   mp3Channels,
		SampleRate: decoder.SampleRate(),
	}, nil
}

func LoadMP3(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return DecodeMP3(f)
}
