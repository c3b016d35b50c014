package fingerprint

import (
	"errors"
	"math"
	"testing"
)

// sineWave returns n samples of amplitude*sin(2*pi*freq*t) at sampleRate.
func sineWave(n, sampleRate int, amplitude float64, freqs ...float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		for _, f := range freqs {
			out[i] += amplitude * math.Sin(2*math.Pi*f*t)
		}
	}
	return out
}

func TestNumFrames(t *testing.T) {
	tests := []struct {
		samples, frame, hop, want int
	}{
		{FrameSize + 3*HopSize, FrameSize, HopSize, 4},
		{FrameSize, FrameSize, HopSize, 1},
		{FrameSize - 1, FrameSize, HopSize, 0},
		{FrameSize + HopSize - 1, FrameSize, HopSize, 1},
		{44100 * 2, FrameSize, HopSize, 85},
	}
	for _, tt := range tests {
		if got := NumFrames(tt.samples, tt.frame, tt.hop); got != tt.want {
			t.Errorf("NumFrames(%d, %d, %d) = %d, expected %d", tt.samples, tt.frame, tt.hop, got, tt.want)
		}
	}
}

func TestBuildSpectrogramDimensions(t *testing.T) {
	p := DefaultParams()
	samples := sineWave(FrameSize+3*HopSize, SampleRate, 0.5, 1000)

	spec, err := BuildSpectrogram(samples, SampleRate, p)
	if err != nil {
		t.Fatalf("BuildSpectrogram failed: %v", err)
	}

	if spec.Frames != 4 {
		t.Errorf("Expected 4 frames, got %d", spec.Frames)
	}
	if spec.Bins != FrameSize/2 {
		t.Errorf("Expected %d bins, got %d", FrameSize/2, spec.Bins)
	}
	if len(spec.Data) != spec.Frames*spec.Bins {
		t.Errorf("Expected flat buffer of %d, got %d", spec.Frames*spec.Bins, len(spec.Data))
	}
	for i, v := range spec.Data {
		if v < 0 {
			t.Fatalf("Negative magnitude at %d: %f", i, v)
		}
	}
	if rows := spec.Rows(); len(rows) != 4 || len(rows[0]) != spec.Bins {
		t.Errorf("Rows view has wrong shape")
	}
}

func TestBuildSpectrogramSinePeakBin(t *testing.T) {
	p := DefaultParams()
	k := 50
	freq := float64(k) * p.BinHz()
	samples := sineWave(SampleRate, SampleRate, 0.8, freq)

	spec, err := BuildSpectrogram(samples, SampleRate, p)
	if err != nil {
		t.Fatalf("BuildSpectrogram failed: %v", err)
	}

	for f := 0; f < spec.Frames; f++ {
		row := spec.Row(f)
		best := 0
		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}
		if best < k-1 || best > k+1 {
			t.Fatalf("Frame %d: expected energy near bin %d, peak at %d", f, k, best)
		}
	}
}

func TestBuildSpectrogramInvalidInput(t *testing.T) {
	p := DefaultParams()

	_, err := BuildSpectrogram(make([]float64, FrameSize-1), SampleRate, p)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for short buffer, got %v", err)
	}

	_, err = BuildSpectrogram(make([]float64, FrameSize*2), 22050, p)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for rate mismatch, got %v", err)
	}

	bad := p
	bad.FrameSize = 1000
	_, err = BuildSpectrogram(make([]float64, 4096), SampleRate, bad)
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams for non power-of-two frame, got %v", err)
	}
}

func TestParamsVersion(t *testing.T) {
	p := DefaultParams()
	if err := p.Validate(); err != nil {
		t.Fatalf("Default params invalid: %v", err)
	}

	q := p
	q.FanOut = 6
	if p.Version() == q.Version() {
		t.Error("Expected version to change with fan-out")
	}
	if p.Version() != DefaultParams().Version() {
		t.Error("Expected version to be stable")
	}
}
