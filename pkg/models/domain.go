package models

// InsertStatus tells a newly created row apart from one that already existed.
type InsertStatus int

const (
	Inserted InsertStatus = iota
	Duplicate
)

func (s InsertStatus) String() string {
	switch s {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// InsertCounts aggregates per-record outcomes of a fingerprint batch.
type InsertCounts struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

func (c *InsertCounts) Add(o InsertCounts) {
	c.Inserted += o.Inserted
	c.Duplicates += o.Duplicates
	c.Failed += o.Failed
}

// Total is the number of records attempted.
func (c InsertCounts) Total() int {
	return c.Inserted + c.Duplicates + c.Failed
}

// FingerprintRow is one persisted fingerprint. Hash is the 16 character
// uppercase hex form.
type FingerprintRow struct {
	Hash       string `json:"hash"`
	TimeOffset int    `json:"timeOffset"`
	SongID     uint32 `json:"songId"`
}

// IngestReport describes what adding one song did to the catalog.
type IngestReport struct {
	SongID   uint32       `json:"songId"`
	Name     string       `json:"name"`
	Artist   string       `json:"artist"`
	Skipped  bool         `json:"skipped"`
	Duration float64      `json:"durationSeconds"`
	Peaks    int          `json:"peaks"`
	Hashes   int          `json:"hashes"`
	Counts   InsertCounts `json:"counts"`
}
