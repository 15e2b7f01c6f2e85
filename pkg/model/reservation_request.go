package model

import "time"

type ReservationRequest struct {
	ID              string    `json:"id" validate:"required,min=1,max=128"`
	RequesterID     string    `json:"requester_id" validate:"required,min=1,max=128"`
	PoolID          string    `json:"pool_id" validate:"required,min=1,max=128"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	EndTime         time.Time `json:"end_time" validate:"required"`
	Priority        Priority  `json:"priority" validate:"required,priority"`
	PreferredUnitID string    `json:"preferred_unit_id,omitempty" validate:"omitempty,max=128"`
	Features        []string  `json:"features,omitempty" validate:"omitempty,max=16,dive,feature"`
	MaxWaitSeconds  int       `json:"max_wait_time_seconds" validate:"gte=0,max=86400"`
	CreatedAt       time.Time `json:"created_at"`
}

func (r *ReservationRequest) MaxWait() time.Duration {
	return time.Duration(r.MaxWaitSeconds) * time.Second
}

func (r *ReservationRequest) Window() TimeWindow {
	return TimeWindow{Start: r.StartTime, End: r.EndTime}
}

// Expired reports whether the request waited longer than its max wait at now.
func (r *ReservationRequest) Expired(now time.Time) bool {
	return now.Sub(r.CreatedAt) > r.MaxWait()
}

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && w.End.After(other.Start)
}
