package events

import (
	"context"
	"encoding/json"
	"time"

	"parkline/pkg/model"
)

const (
	AggregateReservation = "reservation_request"
	AggregateBooking     = "booking"

	TypeReservationCompleted = "reservation.completed"
	TypeReservationFailed    = "reservation.failed"
	TypeReservationExpired   = "reservation.expired"
	TypeReservationCancelled = "reservation.cancelled"

	TypeBookingCheckedIn = "booking.checked_in"
	TypeBookingCompleted = "booking.completed"
	TypeBookingCancelled = "booking.cancelled"
	TypeBookingExpired   = "booking.expired"

	// ReasonCancelled marks a queued request withdrawn by its requester.
	ReasonCancelled = "cancelled"
)

// Publisher hands domain events to the bus. Delivery is at-least-once, so
// consumers deduplicate on (aggregate id, version).
type Publisher interface {
	Publish(ctx context.Context, eventType, aggregateType, aggregateID string, version int64, payload any) (string, error)
}

// Event is the decoded consumer-side view of a published event.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Version       int64           `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// ReservationEventType picks the outcome event for a terminal request status.
// It returns "" for non-terminal states.
func ReservationEventType(status *model.RequestStatus) string {
	switch status.State {
	case model.StateCompleted:
		return TypeReservationCompleted
	case model.StateExpired:
		return TypeReservationExpired
	case model.StateFailed:
		if status.Reason == ReasonCancelled {
			return TypeReservationCancelled
		}
		return TypeReservationFailed
	}
	return ""
}

// BookingVersion is the lifecycle sequence of a booking status.
func BookingVersion(s model.BookingStatus) int64 {
	switch s {
	case model.BookingPending, model.BookingConfirmed:
		return 1
	case model.BookingActive:
		return 2
	case model.BookingCompleted, model.BookingCancelled, model.BookingExpired:
		return 3
	}
	return 0
}

// BookingEventType names the event emitted when a booking enters s.
func BookingEventType(s model.BookingStatus) string {
	switch s {
	case model.BookingActive:
		return TypeBookingCheckedIn
	case model.BookingCompleted:
		return TypeBookingCompleted
	case model.BookingCancelled:
		return TypeBookingCancelled
	case model.BookingExpired:
		return TypeBookingExpired
	}
	return ""
}
