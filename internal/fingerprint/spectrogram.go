package fingerprint

import (
	"errors"
	"fmt"

	"github.com/mjibson/go-dsp/window"
)

var ErrInvalidInput = errors.New("invalid input")

// Spectrogram is a dense magnitude matrix stored row-major in one buffer.
// Rows are time frames, columns are frequency bins.
type Spectrogram struct {
	Frames int
	Bins   int
	Data   []float64
}

func NewSpectrogram(frames, bins int) *Spectrogram {
	return &Spectrogram{
		Frames: frames,
		Bins:   bins,
		Data:   make([]float64, frames*bins),
	}
}

func (s *Spectrogram) At(t, f int) float64 {
	return s.Data[t*s.Bins+f]
}

// Row returns frame t as a slice aliasing the underlying buffer.
func (s *Spectrogram) Row(t int) []float64 {
	off := t * s.Bins
	return s.Data[off : off+s.Bins : off+s.Bins]
}

// Rows returns a slice-of-slices view over the same buffer for callers
// that want the [][]float64 shape.
func (s *Spectrogram) Rows() [][]float64 {
	out := make([][]float64, s.Frames)
	for t := range out {
		out[t] = s.Row(t)
	}
	return out
}

// NumFrames is 1 + floor((numSamples - frameSize) / hopSize), or 0 when
// the buffer is shorter than one frame.
func NumFrames(numSamples, frameSize, hopSize int) int {
	if numSamples < frameSize || hopSize <= 0 {
		return 0
	}
	return 1 + (numSamples-frameSize)/hopSize
}

// BuildSpectrogram runs a Hann-windowed STFT over samples and returns the
// magnitude of the first FrameSize/2 bins of every frame.
func BuildSpectrogram(samples []float64, sampleRate int, p Params) (*Spectrogram, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(samples) < p.FrameSize {
		return nil, fmt.Errorf("%w: %d samples is shorter than frame size %d", ErrInvalidInput, len(samples), p.FrameSize)
	}
	if sampleRate != p.SampleRate {
		return nil, fmt.Errorf("%w: sample rate mismatch: expected %d, got %d", ErrInvalidInput, p.SampleRate, sampleRate)
	}

	numFrames := NumFrames(len(samples), p.FrameSize, p.HopSize)
	numBins := p.FrameSize / 2
	spec := NewSpectrogram(numFrames, numBins)

	hann := window.Hann(p.FrameSize)
	frame := make([]float64, p.FrameSize)
	buf := make([]complex128, p.FrameSize)

	for f := 0; f < numFrames; f++ {
		offset := f * p.HopSize
		copy(frame, samples[offset:offset+p.FrameSize])
		for i := range frame {
			frame[i] *= hann[i]
		}
		for i, v := range frame {
			buf[i] = complex(v, 0)
		}

		FFT(buf)
		MagnitudeSpectrum(buf, spec.Row(f))
	}

	return spec, nil
}
