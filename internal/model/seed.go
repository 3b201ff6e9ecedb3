package model

import "time"

// SeedStatus represents the lifecycle state of a seed job.
type SeedStatus string

const (
	SeedQueued   SeedStatus = "queued"
	SeedRunning  SeedStatus = "running"
	SeedComplete SeedStatus = "complete"
	SeedFailed   SeedStatus = "failed"
)

// SeedJob tracks an asynchronous multi-metro seeding run.
type SeedJob struct {
	ID          string         `json:"id"`
	Status      SeedStatus     `json:"status"`
	RadiusKm    float64        `json:"radiusKm"`
	Total       int            `json:"total"`
	Processed   int            `json:"processed"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Results     []MetroOutcome `json:"results,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// MetroOutcome is the per-metro result recorded on a seed job.
type MetroOutcome struct {
	Metro          string `json:"metro"`
	Success        bool   `json:"success"`
	Places         int    `json:"places"`
	BrandsImported int    `json:"brandsImported"`
	Error          string `json:"error,omitempty"`
}
