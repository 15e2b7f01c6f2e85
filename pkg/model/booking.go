package model

import (
	"time"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingExpired   BookingStatus = "expired"
)

// HoldingStatuses are the booking states that occupy a unit's time window.
var HoldingStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingActive}

func (s BookingStatus) Holding() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingActive:
		return true
	}
	return false
}

type Booking struct {
	ID          string        `json:"id"`
	UnitID      string        `json:"unit_id"`
	PoolID      string        `json:"pool_id"`
	RequesterID string        `json:"requester_id"`
	RequestID   string        `json:"request_id"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (b *Booking) Window() TimeWindow {
	return TimeWindow{Start: b.StartTime, End: b.EndTime}
}
