package fingerprint

import (
	"errors"
	"fmt"
)

// Fingerprint-space constants. Changing any of these produces hashes that
// cannot be compared with ones already stored; storage records Version()
// and refuses to mix formats.
const (
	SampleRate       = 44100 // resample target
	FrameSize        = 2048  // STFT frame, power of two
	HopSize          = 1024  // 50% overlap
	ThresholdDB      = 27.0  // peak detection threshold
	NeighborhoodSize = 3     // half-width of the local-maximum square
	FanOut           = 5     // targets paired with each anchor

	MinDB = 0.0  // magnitude quantization floor
	MaxDB = 60.0 // magnitude quantization ceiling

	epsilon = 1e-10
)

// Bit layout of a Hash, most- to least-significant.
const (
	AnchorFreqBits = 10
	DeltaFreqBits  = 6
	DeltaTimeBits  = 12
	MagnitudeBits  = 8
	AnchorTimeBits = 20
	ReservedBits   = 8

	anchorTimeShift = ReservedBits
	magnitudeShift  = anchorTimeShift + AnchorTimeBits
	deltaTimeShift  = magnitudeShift + MagnitudeBits
	deltaFreqShift  = deltaTimeShift + DeltaTimeBits
	anchorFreqShift = deltaFreqShift + DeltaFreqBits

	MaxAnchorFreq = 1<<AnchorFreqBits - 1 // 1023
	MaxDeltaTime  = 1<<DeltaTimeBits - 1  // 4095
	MaxAnchorTime = 1<<AnchorTimeBits - 1 // 1048575
	MinDeltaFreq  = -(1 << (DeltaFreqBits - 1))
	MaxDeltaFreq  = 1<<(DeltaFreqBits-1) - 1

	anchorFreqMask = uint64(MaxAnchorFreq)
	deltaFreqMask  = uint64(1<<DeltaFreqBits - 1)
	deltaTimeMask  = uint64(MaxDeltaTime)
	magnitudeMask  = uint64(1<<MagnitudeBits - 1)
	anchorTimeMask = uint64(MaxAnchorTime)
)

// HashFormat names the bit layout above.
const HashFormat = "h64/10-6-12-8-20-8"

var ErrInvalidParams = errors.New("invalid fingerprint parameters")

// Params bundles the tunables consumed by the pipeline. Production code
// always runs DefaultParams; other values exist for tests and experiments.
type Params struct {
	SampleRate   int
	FrameSize    int
	HopSize      int
	ThresholdDB  float64
	Neighborhood int
	FanOut       int
}

func DefaultParams() Params {
	return Params{
		SampleRate:   SampleRate,
		FrameSize:    FrameSize,
		HopSize:      HopSize,
		ThresholdDB:  ThresholdDB,
		Neighborhood: NeighborhoodSize,
		FanOut:       FanOut,
	}
}

func (p Params) Validate() error {
	switch {
	case p.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidParams, p.SampleRate)
	case !IsPowerOfTwo(p.FrameSize) || p.FrameSize < 4:
		return fmt.Errorf("%w: frame size %d is not a power of two >= 4", ErrInvalidParams, p.FrameSize)
	case p.HopSize <= 0 || p.HopSize > p.FrameSize:
		return fmt.Errorf("%w: hop size %d", ErrInvalidParams, p.HopSize)
	case p.Neighborhood < 0:
		return fmt.Errorf("%w: neighborhood %d", ErrInvalidParams, p.Neighborhood)
	case p.FanOut <= 0:
		return fmt.Errorf("%w: fan-out %d", ErrInvalidParams, p.FanOut)
	}
	return nil
}

// Version identifies the fingerprint space produced by p.
func (p Params) Version() string {
	return fmt.Sprintf("%s;sr=%d;frame=%d;hop=%d;thr=%g;nb=%d;fan=%d",
		HashFormat, p.SampleRate, p.FrameSize, p.HopSize, p.ThresholdDB, p.Neighborhood, p.FanOut)
}

// FrameSeconds is the time spacing between spectrogram rows.
func (p Params) FrameSeconds() float64 {
	return float64(p.HopSize) / float64(p.SampleRate)
}

// BinHz is the frequency width of one spectrogram column.
func (p Params) BinHz() float64 {
	return float64(p.SampleRate) / float64(p.FrameSize)
}
