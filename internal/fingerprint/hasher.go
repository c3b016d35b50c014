package fingerprint

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrNoPeaks = errors.New("no peaks to hash")

// Hash is a 64-bit landmark:
//
//	63-54 anchor freq | 53-48 delta freq | 47-36 delta time | 35-28 magnitudes | 27-8 anchor time | 7-0 reserved
type Hash uint64

// HashFields is the unpacked form of a Hash.
type HashFields struct {
	AnchorFreq int
	DeltaFreq  int // signed
	DeltaTime  int
	Magnitude  uint8 // high nibble anchor, low nibble target
	AnchorTime int
}

// PackHash masks every field to its width before shifting so that an
// out-of-range value can never reach a neighboring field.
func PackHash(f HashFields) Hash {
	return Hash(
		(uint64(f.AnchorFreq)&anchorFreqMask)<<anchorFreqShift |
			(uint64(f.DeltaFreq)&deltaFreqMask)<<deltaFreqShift |
			(uint64(f.DeltaTime)&deltaTimeMask)<<deltaTimeShift |
			(uint64(f.Magnitude)&magnitudeMask)<<magnitudeShift |
			(uint64(f.AnchorTime)&anchorTimeMask)<<anchorTimeShift)
}

func (h Hash) Unpack() HashFields {
	v := uint64(h)
	df := int((v >> deltaFreqShift) & deltaFreqMask)
	if df > MaxDeltaFreq {
		df -= 1 << DeltaFreqBits
	}
	return HashFields{
		AnchorFreq: int((v >> anchorFreqShift) & anchorFreqMask),
		DeltaFreq:  df,
		DeltaTime:  int((v >> deltaTimeShift) & deltaTimeMask),
		Magnitude:  uint8((v >> magnitudeShift) & magnitudeMask),
		AnchorTime: int((v >> anchorTimeShift) & anchorTimeMask),
	}
}

// Hex is the persisted form: 16 uppercase hex digits.
func (h Hash) Hex() string {
	return fmt.Sprintf("%016X", uint64(h))
}

func (h Hash) String() string { return h.Hex() }

func ParseHash(s string) (Hash, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("%w: hash %q must be 16 hex digits", ErrInvalidInput, s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: hash %q: %v", ErrInvalidInput, s, err)
	}
	return Hash(v), nil
}

// QuantizeMagnitude clamps a dB level to [MinDB, MaxDB] and scales it
// linearly onto 0..255.
func QuantizeMagnitude(db float64) uint8 {
	if db < MinDB {
		db = MinDB
	}
	if db > MaxDB {
		db = MaxDB
	}
	return uint8((db - MinDB) / (MaxDB - MinDB) * 255)
}

// MagnitudeByte keeps the high nibble of both quantized levels.
func MagnitudeByte(anchorQ, targetQ uint8) uint8 {
	return (anchorQ>>4)<<4 | (targetQ>>4)&0x0F
}

// Record is one fingerprint ready for storage. TimeOffset equals the anchor
// frame index.
type Record struct {
	Hash       Hash
	TimeOffset int
	SongID     uint32
}

// GenerateHashes pairs every peak with the next fanOut peaks in sequence
// order and returns the deduplicated records. Pairs whose fields do not fit
// the hash layout are skipped.
func GenerateHashes(peaks []Peak, songID uint32, fanOut int) ([]Record, error) {
	if len(peaks) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, ErrNoPeaks)
	}
	if fanOut <= 0 {
		return nil, fmt.Errorf("%w: fan-out %d", ErrInvalidParams, fanOut)
	}

	records := make([]Record, 0, len(peaks)*fanOut)
	for i, anchor := range peaks {
		if anchor.FreqIdx < 0 || anchor.FreqIdx > MaxAnchorFreq ||
			anchor.TimeIdx < 0 || anchor.TimeIdx > MaxAnchorTime {
			continue
		}
		aq := QuantizeMagnitude(anchor.MagDB)

		for j := 1; j <= fanOut && i+j < len(peaks); j++ {
			target := peaks[i+j]

			dt := target.TimeIdx - anchor.TimeIdx
			if dt <= 0 || dt > MaxDeltaTime {
				continue
			}
			if target.FreqIdx < 0 || target.FreqIdx > MaxAnchorFreq {
				continue
			}
			df := target.FreqIdx - anchor.FreqIdx
			if df < MinDeltaFreq || df > MaxDeltaFreq {
				continue
			}

			h := PackHash(HashFields{
				AnchorFreq: anchor.FreqIdx,
				DeltaFreq:  df,
				DeltaTime:  dt,
				Magnitude:  MagnitudeByte(aq, QuantizeMagnitude(target.MagDB)),
				AnchorTime: anchor.TimeIdx,
			})
			records = append(records, Record{Hash: h, TimeOffset: anchor.TimeIdx, SongID: songID})
		}
	}

	return Deduplicate(records), nil
}

type recordKey struct {
	hash   Hash
	offset int
}

// Deduplicate drops records whose (Hash, TimeOffset) was already seen,
// keeping the first occurrence and the relative order of the rest. The
// input slice is reused.
func Deduplicate(records []Record) []Record {
	seen := make(map[recordKey]struct{}, len(records))
	out := records[:0]
	for _, r := range records {
		k := recordKey{r.Hash, r.TimeOffset}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
