package models

// Song represents a catalog entry. (Name, Artist) is unique.
type Song struct {
	ID               uint32 `json:"id"`
	Name             string `json:"name"`
	Artist           string `json:"artist"`
	FingerprintCount int    `json:"fingerprintCount"`
}

// Stats summarizes the catalog.
type Stats struct {
	Songs        int    `json:"songs"`
	Fingerprints int    `json:"fingerprints"`
	Backend      string `json:"backend"`
	Format       string `json:"format"`
}
