package model

import "time"

type RequestState string

const (
	StateQueued     RequestState = "queued"
	StateProcessing RequestState = "processing"
	StateCompleted  RequestState = "completed"
	StateFailed     RequestState = "failed"
	StateExpired    RequestState = "expired"
)

func (s RequestState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateExpired
}

// Sequence is the per-request state version carried on outcome events.
func (s RequestState) Sequence() int64 {
	switch s {
	case StateQueued:
		return 1
	case StateProcessing:
		return 2
	case StateCompleted, StateFailed, StateExpired:
		return 3
	}
	return 0
}

// CanTransitionTo reports whether a status in state s may be replaced by one in next.
// Terminal states are final; otherwise the state may only move forward.
func (s RequestState) CanTransitionTo(next RequestState) bool {
	if s.Terminal() || next.Sequence() == 0 {
		return false
	}
	return next.Sequence() >= s.Sequence()
}

type RequestStatus struct {
	RequestID string       `json:"request_id"`
	PoolID    string       `json:"pool_id,omitempty"`
	State     RequestState `json:"state"`
	Position  int          `json:"position,omitempty"`
	BookingID string       `json:"booking_id,omitempty"`
	UnitID    string       `json:"unit_id,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Message   string       `json:"message,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type AllocationResult struct {
	BookingID string `json:"booking_id"`
	UnitID    string `json:"unit_id"`
}

type SubmitResult struct {
	RequestID string       `json:"request_id"`
	State     RequestState `json:"state"`
	Position  int          `json:"position,omitempty"`
	BookingID string       `json:"booking_id,omitempty"`
	UnitID    string       `json:"unit_id,omitempty"`
}

type QueueStats struct {
	Size             int `json:"size"`
	ActiveProcessing int `json:"active_processing"`
}
