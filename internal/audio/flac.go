package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

func LoadFLAC(path string) (*PCM, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	if channels == 0 {
		return nil, fmt.Errorf("%w: FLAC stream has no channels", ErrUnsupportedFormat)
	}
	scale := intScale(int(stream.Info.BitsPerSample))

	var samples []float64
	if n := stream.Info.NSamples; n > 0 {
		samples = make([]float64, 0, int(n)*channels)
	}

	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse FLAC frame: %w", err)
		}

		if len(frame.Subframes) < channels {
			return nil, fmt.Errorf("%w: FLAC frame has %d subframes, expected %d", ErrUnsupportedFormat, len(frame.Subframes), channels)
		}
		n := frame.Subframes[0].NSamples
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, float64(frame.Subframes[ch].Samples[i])*scale)
			}
		}
	}

	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	return &PCM{
		Samples:    samples,
		Channels:   channels,
		SampleRate: int(stream.Info.SampleRate),
	}, nil
}
