package model

import "time"

// Run records a single pipeline invocation for the run ledger.
type Run struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Area       string    `json:"area"`
	OutputPath string    `json:"output_path"`
	Summary    Summary   `json:"summary"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Summary aggregates per-reason record counts for one run. The filter stage
// fills the drop-reason counters, the enrich stage fills the contact
// coverage counters; unused fields stay zero.
type Summary struct {
	Input            int `json:"input"`
	OutOfRange       int `json:"out_of_range,omitempty"`
	MissingAddress   int `json:"missing_address,omitempty"`
	Unresolved       int `json:"unresolved,omitempty"`
	OutsidePolygon   int `json:"outside_polygon,omitempty"`
	Duplicates       int `json:"duplicates,omitempty"`
	Output           int `json:"output"`
	GeocodeCalls     int `json:"geocode_calls,omitempty"`
	GeocodeCacheHits int `json:"geocode_cache_hits,omitempty"`
	DetailCalls      int `json:"detail_calls,omitempty"`
	DetailCacheHits  int `json:"detail_cache_hits,omitempty"`
	DetailMisses     int `json:"detail_misses,omitempty"`
	WithWebsite      int `json:"with_website,omitempty"`
	WithEmail        int `json:"with_email,omitempty"`
	WithPhone        int `json:"with_phone,omitempty"`
}

// Dropped returns the total number of records removed across all reasons.
func (s Summary) Dropped() int {
	return s.OutOfRange + s.MissingAddress + s.Unresolved + s.OutsidePolygon + s.Duplicates
}
