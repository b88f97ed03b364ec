package store

import "time"

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// RefreshRun records one network refresh
type RefreshRun struct {
	ID           int64
	Network      string
	StartTime    time.Time
	EndTime      time.Time
	Candidates   int
	Accepted     int
	Dropped      int
	OutputPath   string
	Status       string // "running", "success", "failed"
	ErrorMessage string
}

// Duration returns how long the run took, or zero while it is running.
func (r RefreshRun) Duration() time.Duration {
	if r.EndTime.IsZero() || r.EndTime.Before(r.StartTime) {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// MirrorRecord is one published mirror from the latest successful run
type MirrorRecord struct {
	ID        int64
	Network   string
	RegionKey string
	URL       string
	RunID     int64
}
