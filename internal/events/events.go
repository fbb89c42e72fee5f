package events

import "time"

type CalculationCompletedEvent struct {
	RunID      string    `json:"run_id"`
	Rows       int       `json:"rows"`
	Criteria   int       `json:"criteria"`
	BestLabel  string    `json:"best_label,omitempty"`
	BestScore  float64   `json:"best_score"`
	Delivered  bool      `json:"delivered"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

type CalculationRejectedEvent struct {
	Code      string    `json:"code"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type DeliveryFailedEvent struct {
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}
