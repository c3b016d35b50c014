package audio

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyAudio        = errors.New("audio contains no samples")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidPCM        = errors.New("invalid PCM buffer")
)

// PCM is a decoded buffer. Samples are interleaved by channel and scaled to
// [-1, 1].
type PCM struct {
	Samples    []float64
	Channels   int
	SampleRate int
}

// Frames is the number of complete sample frames in the buffer.
func (p *PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration in seconds.
func (p *PCM) Duration() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

func (p *PCM) Validate() error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: nil buffer", ErrInvalidPCM)
	case p.Channels <= 0:
		return fmt.Errorf("%w: channel count %d", ErrInvalidPCM, p.Channels)
	case p.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidPCM, p.SampleRate)
	case p.Frames() == 0:
		return ErrEmptyAudio
	}
	return nil
}

// intScale returns the factor mapping signed integers of the given bit
// depth onto [-1, 1).
func intScale(bitDepth int) float64 {
	return 1.0 / float64(int64(1)<<(bitDepth-1))
}
