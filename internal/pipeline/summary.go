package pipeline

import (
	"encoding/json"
	"time"
)

// Summary reports a run. It is logged, published and served by the ops server.
type Summary struct {
	RunID          string        `json:"run_id"`
	StartedAt      time.Time     `json:"started_at"`
	Categories     int           `json:"categories"`
	Skipped        int           `json:"skipped"`
	TotalCollected int           `json:"total_collected"`
	Processed      int           `json:"processed"`
	Saved          int           `json:"saved"`
	Duration       time.Duration `json:"-"`
	Done           bool          `json:"done"`
	Error          string        `json:"error,omitempty"`
	// Err is the error behind Error, for errors.Is.
	Err error `json:"-"`
}

// MarshalJSON adds duration_seconds.
func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	return json.Marshal(struct {
		plain
		DurationSeconds float64 `json:"duration_seconds"`
	}{plain: plain(s), DurationSeconds: s.Duration.Seconds()})
}

// Event is the publish topic name for s.
func (s Summary) Event() string {
	if s.Error != "" {
		return "run.failed"
	}
	return "run.completed"
}
