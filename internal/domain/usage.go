package domain

import "time"

// UsageSample is one point-in-time measurement of catalog storage.
type UsageSample struct {
	ID           int64     `json:"id"`
	RecordCount  int64     `json:"record_count"`
	ApproxSizeKB int64     `json:"approx_size_kb"`
	SampledAt    time.Time `json:"sampled_at"`
}
