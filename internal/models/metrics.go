package models

import "time"

// MetricsSnapshot is the JSON summary of the Prometheus counters.
type MetricsSnapshot struct {
	RequestsTotal       uint64    `json:"requests_total"`
	MutationsTotal      uint64    `json:"mutations_total"`
	ConflictsTotal      uint64    `json:"conflicts_total"`
	PersistenceFailures uint64    `json:"persistence_failures"`
	ActiveSchedules     int64     `json:"active_schedules"`
	CancelledSchedules  int64     `json:"cancelled_schedules"`
	CacheHitRatio       float64   `json:"cache_hit_ratio"`
	Goroutines          int       `json:"goroutines"`
	GeneratedAt         time.Time `json:"generated_at"`
}
