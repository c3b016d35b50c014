package fingerprint

import "fmt"

// Result holds the output of a full pipeline run over one buffer. Frames and
// Bins describe the spectrogram the peaks were taken from.
type Result struct {
	Frames  int
	Bins    int
	Peaks   []Peak
	Records []Record
}

// Generate runs spectrogram, peak extraction and hashing over a mono buffer
// that has already been preprocessed to p.SampleRate.
func Generate(samples []float64, sampleRate int, songID uint32, p Params) (*Result, error) {
	spec, err := BuildSpectrogram(samples, sampleRate, p)
	if err != nil {
		return nil, fmt.Errorf("spectrogram: %w", err)
	}

	peaks, err := ExtractPeaks(spec, p)
	if err != nil {
		return nil, fmt.Errorf("peaks: %w", err)
	}
	if len(peaks) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, ErrNoPeaks)
	}

	records, err := GenerateHashes(peaks, songID, p.FanOut)
	if err != nil {
		return nil, fmt.Errorf("hashes: %w", err)
	}

	return &Result{
		Frames:  spec.Frames,
		Bins:    spec.Bins,
		Peaks:   peaks,
		Records: records,
	}, nil
}
