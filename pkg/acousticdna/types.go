package acousticdna

import (
	"github.com/himanishpuri/AcousticHash/internal/audio"
	"github.com/himanishpuri/AcousticHash/internal/fingerprint"
	"github.com/himanishpuri/AcousticHash/internal/indexer"
	"github.com/himanishpuri/AcousticHash/pkg/models"
)

// PCM is a decoded, interleaved audio buffer.
type PCM = audio.PCM

// FingerprintResult is the spectrogram shape, peaks and deduplicated
// records for one buffer.
type FingerprintResult = fingerprint.Result

type (
	IngestReport = models.IngestReport
	IndexResult  = indexer.Result
	IndexSummary = indexer.Summary
)
