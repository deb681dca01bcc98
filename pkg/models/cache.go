package models

// CacheStats reports statement cache occupancy and performance.
type CacheStats struct {
	Entries   int      `json:"entries" cbor:"entries"`
	Capacity  int      `json:"capacity" cbor:"capacity"`
	Hits      int64    `json:"hits" cbor:"hits"`
	Misses    int64    `json:"misses" cbor:"misses"`
	Evictions int64    `json:"evictions" cbor:"evictions"`
	Recent    []string `json:"recent,omitempty" cbor:"recent,omitempty"` // most recently used first
}

// HitRate returns hits over total lookups, or 0 before the first lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
