package fingerprint

import (
	"fmt"
	"math"
)

// Peak is a local maximum of the spectrogram.
type Peak struct {
	TimeIdx int
	FreqIdx int
	MagDB   float64
}

// Seconds converts the peak's frame index to a time in seconds.
func (pk Peak) Seconds(p Params) float64 {
	return float64(pk.TimeIdx) * p.FrameSeconds()
}

// Hz converts the peak's bin index to a frequency.
func (pk Peak) Hz(p Params) float64 {
	return float64(pk.FreqIdx) * p.BinHz()
}

func MagnitudeToDB(magnitude float64) float64 {
	return 20 * math.Log10(math.Max(magnitude, epsilon))
}

// ExtractPeaks scans the spectrogram in (time, freq) order and returns every
// interior bin whose level reaches p.ThresholdDB and that no neighbor within
// p.Neighborhood strictly exceeds. The scan order of the result is relied on
// by GenerateHashes.
func ExtractPeaks(s *Spectrogram, p Params) ([]Peak, error) {
	if s == nil || s.Frames <= 0 || s.Bins <= 0 || len(s.Data) != s.Frames*s.Bins {
		return nil, fmt.Errorf("%w: empty or malformed spectrogram", ErrInvalidInput)
	}
	if p.Neighborhood < 0 {
		return nil, fmt.Errorf("%w: neighborhood %d", ErrInvalidParams, p.Neighborhood)
	}

	peaks := make([]Peak, 0, s.Frames*10)
	for t := 0; t < s.Frames; t++ {
		row := s.Row(t)
		for f := 1; f < s.Bins-1; f++ {
			db := MagnitudeToDB(row[f])
			if db < p.ThresholdDB {
				continue
			}
			if !isLocalMaximum(s, t, f, p.Neighborhood) {
				continue
			}
			peaks = append(peaks, Peak{TimeIdx: t, FreqIdx: f, MagDB: db})
		}
	}
	return peaks, nil
}

// isLocalMaximum reports whether no in-bounds neighbor of (t, f) is strictly
// larger. Ties count as maxima.
func isLocalMaximum(s *Spectrogram, t, f, radius int) bool {
	current := s.At(t, f)
	for dt := -radius; dt <= radius; dt++ {
		nt := t + dt
		if nt < 0 || nt >= s.Frames {
			continue
		}
		row := s.Row(nt)
		for df := -radius; df <= radius; df++ {
			if dt == 0 && df == 0 {
				continue
			}
			nf := f + df
			if nf < 0 || nf >= s.Bins {
				continue
			}
			if row[nf] > current {
				return false
			}
		}
	}
	return true
}
