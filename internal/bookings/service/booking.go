package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	bookingerrors "parkline/internal/bookings/errors"
	"parkline/internal/bookings/repository"
	"parkline/internal/bookings/validator"
	"parkline/internal/reservations/events"
	uniterrors "parkline/internal/units/errors"
	unitrepo "parkline/internal/units/repository"
	"parkline/pkg/clock"
	"parkline/pkg/config"
	apperrors "parkline/pkg/errors"
	"parkline/pkg/logger"
	"parkline/pkg/metrics"
	"parkline/pkg/model"
)

// DefaultSweepBatch bounds how many no-shows one ExpireNoShows call settles.
const DefaultSweepBatch = 100

type BookingService interface {
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListByUnit(ctx context.Context, unitID string, window *model.TimeWindow, limit int, offset int64) ([]*model.Booking, error)
	CheckIn(ctx context.Context, id string) (*model.Booking, error)
	Complete(ctx context.Context, id string) (*model.Booking, error)
	Cancel(ctx context.Context, id string) (*model.Booking, error)
	// ExpireNoShows moves confirmed bookings whose window ended before now to Expired and frees their units.
	ExpireNoShows(ctx context.Context, now time.Time) (int, error)
}

// transition describes one lifecycle step and the unit mutation that accompanies it.
type transition struct {
	name     string
	from     []model.BookingStatus
	to       model.BookingStatus
	unitFrom model.UnitStatus
	unitTo   model.UnitStatus
	occupy   bool
}

var (
	checkIn = transition{
		name:     "check-in",
		from:     []model.BookingStatus{model.BookingConfirmed},
		to:       model.BookingActive,
		unitFrom: model.UnitReserved,
		unitTo:   model.UnitOccupied,
		occupy:   true,
	}
	complete = transition{
		name:     "complete",
		from:     []model.BookingStatus{model.BookingActive},
		to:       model.BookingCompleted,
		unitFrom: model.UnitOccupied,
		unitTo:   model.UnitAvailable,
	}
	cancel = transition{
		name:     "cancel",
		from:     []model.BookingStatus{model.BookingPending, model.BookingConfirmed},
		to:       model.BookingCancelled,
		unitFrom: model.UnitReserved,
		unitTo:   model.UnitAvailable,
	}
	expire = transition{
		name:     "expire",
		from:     []model.BookingStatus{model.BookingConfirmed},
		to:       model.BookingExpired,
		unitFrom: model.UnitReserved,
		unitTo:   model.UnitAvailable,
	}
)

type bookingService struct {
	repo       repository.BookingRepository
	units      unitrepo.UnitRepository
	validator  *validator.BookingValidator
	publisher  events.Publisher
	clock      clock.Clock
	sweepBatch int
	log        *logger.Logger
}

func NewBookingService(
	repo repository.BookingRepository,
	units unitrepo.UnitRepository,
	validator *validator.BookingValidator,
	publisher events.Publisher,
	clk clock.Clock,
	log *logger.Logger,
) BookingService {
	if clk == nil {
		clk = clock.Real{}
	}
	return &bookingService{
		repo:       repo,
		units:      units,
		validator:  validator,
		publisher:  publisher,
		clock:      clk,
		sweepBatch: DefaultSweepBatch,
		log:        log.Component("bookings"),
	}
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if err := s.validator.ValidateID("ID", id); err != nil {
		return nil, validationError(err)
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		s.log.Error("failed to retrieve booking", "booking_id", id, "error", err)
		return nil, apperrors.Internal("failed to retrieve booking", err)
	}
	return booking, nil
}

func (s *bookingService) ListByUnit(ctx context.Context, unitID string, window *model.TimeWindow, limit int, offset int64) ([]*model.Booking, error) {
	if err := s.validator.ValidateListQuery(unitID, window); err != nil {
		return nil, validationError(err)
	}
	if offset < 0 {
		return nil, apperrors.InvalidInput("offset cannot be negative")
	}

	bookings, err := s.repo.FindByUnit(ctx, unitID, window, config.NormalizePaginationLimit(limit), offset)
	if err != nil {
		s.log.Error("failed to list bookings", "unit_id", unitID, "error", err)
		return nil, apperrors.Internal("failed to list bookings", err)
	}
	if bookings == nil {
		bookings = []*model.Booking{}
	}
	return bookings, nil
}

func (s *bookingService) CheckIn(ctx context.Context, id string) (*model.Booking, error) {
	return s.apply(ctx, id, checkIn, func(b *model.Booking) error {
		if !s.clock.Now().Before(b.EndTime) {
			return fmt.Errorf("booking window ended at %s: %w", b.EndTime.Format(time.RFC3339), bookingerrors.ErrInvalidTransition)
		}
		return nil
	})
}

func (s *bookingService) Complete(ctx context.Context, id string) (*model.Booking, error) {
	return s.apply(ctx, id, complete, nil)
}

func (s *bookingService) Cancel(ctx context.Context, id string) (*model.Booking, error) {
	return s.apply(ctx, id, cancel, nil)
}

// apply runs t for one booking in a single transaction and publishes the lifecycle event after commit.
func (s *bookingService) apply(ctx context.Context, id string, t transition, guard func(*model.Booking) error) (*model.Booking, error) {
	if err := s.validator.ValidateID("ID", id); err != nil {
		return nil, validationError(err)
	}

	var booking *model.Booking
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		b, err := s.repo.LockByID(txCtx, id)
		if err != nil {
			return err
		}
		if !slices.Contains(t.from, b.Status) {
			return fmt.Errorf("cannot %s a %s booking: %w", t.name, b.Status, bookingerrors.ErrInvalidTransition)
		}
		if guard != nil {
			if err := guard(b); err != nil {
				return err
			}
		}
		if err := s.transitionLocked(txCtx, b, t); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, s.translate(err, id, t)
	}

	metrics.RecordBookingTransition(string(t.to))
	s.log.Info("booking transitioned",
		"booking_id", booking.ID,
		"unit_id", booking.UnitID,
		"pool_id", booking.PoolID,
		"transition", t.name,
		"status", booking.Status,
	)
	s.publish(ctx, booking)
	return booking, nil
}

// transitionLocked moves a row-locked booking and its unit. The unit is only touched while
// it is still held for this booking; a stale unit version aborts the transaction.
func (s *bookingService) transitionLocked(ctx context.Context, b *model.Booking, t transition) error {
	if err := s.repo.UpdateStatus(ctx, b.ID, b.Status, t.to); err != nil {
		return err
	}
	b.Status = t.to
	b.UpdatedAt = s.clock.Now()

	unit, err := s.units.LockByID(ctx, b.UnitID)
	if err != nil {
		return err
	}
	if unit.Status != t.unitFrom || unit.OccupantRef == nil || *unit.OccupantRef != b.ID {
		s.log.Warn("unit not held by booking, leaving unit untouched",
			"booking_id", b.ID,
			"unit_id", unit.ID,
			"unit_status", unit.Status,
		)
		if t.occupy {
			return fmt.Errorf("unit %s is %s: %w", unit.ID, unit.Status, bookingerrors.ErrInvalidTransition)
		}
		return nil
	}

	var occupant *string
	if t.unitTo != model.UnitAvailable {
		occupant = &b.ID
	}
	_, err = s.units.CompareAndSetStatus(ctx, unit.ID, unit.Version, t.unitTo, occupant)
	return err
}

func (s *bookingService) ExpireNoShows(ctx context.Context, now time.Time) (int, error) {
	var expired []*model.Booking
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		expired = expired[:0]
		candidates, err := s.repo.LockNoShows(txCtx, now, s.sweepBatch)
		if err != nil {
			return err
		}
		for _, b := range candidates {
			if err := s.transitionLocked(txCtx, b, expire); err != nil {
				return fmt.Errorf("expire booking %s: %w", b.ID, err)
			}
			expired = append(expired, b)
		}
		return nil
	})
	if err != nil {
		s.log.Error("no-show sweep failed", "error", err)
		return 0, apperrors.Internal("failed to expire no-show bookings", err)
	}

	for _, b := range expired {
		metrics.RecordBookingTransition(string(b.Status))
		s.publish(ctx, b)
	}
	if len(expired) > 0 {
		s.log.Info("expired no-show bookings", "count", len(expired))
	}
	return len(expired), nil
}

func (s *bookingService) publish(ctx context.Context, b *model.Booking) {
	eventType := events.BookingEventType(b.Status)
	if eventType == "" || s.publisher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if _, err := s.publisher.Publish(ctx, eventType, events.AggregateBooking, b.ID, events.BookingVersion(b.Status), b); err != nil {
		s.log.Warn("failed to publish booking event",
			"booking_id", b.ID,
			"event_type", eventType,
			"error", err,
		)
	}
}

func (s *bookingService) translate(err error, id string, t transition) error {
	switch {
	case errors.Is(err, bookingerrors.ErrNotFound):
		return apperrors.NotFoundWithID("Booking", id)
	case errors.Is(err, bookingerrors.ErrInvalidTransition):
		return apperrors.Conflict(err.Error())
	case errors.Is(err, uniterrors.ErrVersionConflict):
		return apperrors.Wrap(err, apperrors.CodeVersionConflict, fmt.Sprintf("unit for booking %s was modified concurrently", id), http.StatusConflict)
	case errors.Is(err, uniterrors.ErrNotFound):
		s.log.Error("booking references a missing unit", "booking_id", id, "error", err)
		return apperrors.Internal("booking references a missing unit", err)
	}
	s.log.Error("booking transition failed", "booking_id", id, "transition", t.name, "error", err)
	return apperrors.Internal(fmt.Sprintf("failed to %s booking", t.name), err)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation("invalid booking request", map[string]any{"fields": verrs})
	}
	return apperrors.Validation(err.Error(), nil)
}
