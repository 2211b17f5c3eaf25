package models

import "time"

// AdmissionStats aggregates application counts for the staff dashboard.
type AdmissionStats struct {
	Total               int                       `json:"total"`
	ByStatus            map[ApplicationStatus]int `json:"by_status"`
	ByCandidateType     map[CandidateType]int     `json:"by_candidate_type"`
	SubmissionsToday    int                       `json:"submissions_today"`
	SubmissionsThisWeek int                       `json:"submissions_this_week"`
}

// StatusCount is one row of a grouped count.
type StatusCount struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}

// SystemMetrics is a point-in-time summary of process instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	TransitionsApplied       uint64    `json:"transitions_applied"`
	TransitionsRejected      uint64    `json:"transitions_rejected"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
