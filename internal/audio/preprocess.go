package audio

import (
	"fmt"
	"math"
)

// MixToMono averages interleaved channels into one. A trailing partial frame
// is dropped.
func MixToMono(samples []float64, channels int) ([]float64, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrInvalidPCM, channels)
	}
	frames := len(samples) / channels
	if channels == 1 {
		return append([]float64(nil), samples[:frames]...), nil
	}

	mono := make([]float64, frames)
	inv := 1.0 / float64(channels)
	for i := range mono {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum * inv
	}
	return mono, nil
}

// ResampledLength is round(n * targetRate / origRate).
func ResampledLength(n, origRate, targetRate int) int {
	return int(math.Round(float64(n) * float64(targetRate) / float64(origRate)))
}

// Resample converts mono samples from origRate to targetRate by linear
// interpolation. Positions past the end of the input read as zero.
func Resample(samples []float64, origRate, targetRate int) ([]float64, error) {
	if origRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("%w: resample %d -> %d", ErrInvalidPCM, origRate, targetRate)
	}
	if origRate == targetRate {
		return samples, nil
	}

	n := len(samples)
	at := func(i int) float64 {
		if i < n {
			return samples[i]
		}
		return 0
	}

	out := make([]float64, ResampledLength(n, origRate, targetRate))
	step := float64(origRate) / float64(targetRate)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		a, b := at(idx), at(idx+1)
		out[i] = a + frac*(b-a)
	}
	return out, nil
}

// Normalize scales samples in place so the peak absolute amplitude is 1.
// Silence is left untouched.
func Normalize(samples []float64) {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	for i := range samples {
		samples[i] /= peak
	}
}

// Preprocess turns a decoded buffer into normalized mono samples at
// targetRate.
func Preprocess(p *PCM, targetRate int) ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	mono, err := MixToMono(p.Samples, p.Channels)
	if err != nil {
		return nil, err
	}

	if p.SampleRate != targetRate {
		mono, err = Resample(mono, p.SampleRate, targetRate)
		if err != nil {
			return nil, err
		}
		if len(mono) == 0 {
			return nil, ErrEmptyAudio
		}
	}

	Normalize(mono)
	return mono, nil
}
