package repository

import (
	"context"
	"errors"

	bookingrepo "parkline/internal/bookings/repository"
	uniterrors "parkline/internal/units/errors"
	unitrepo "parkline/internal/units/repository"
	"parkline/pkg/db/postgres"
	"parkline/pkg/model"
)

// LedgerRepository is the view of units and bookings used by the allocation transaction.
// Every method except ExecuteTransaction must be called with the context handed to fn.
type LedgerRepository interface {
	ExecuteTransaction(ctx context.Context, fn postgres.TransactionFunc) error
	// LockPreferredUnit returns nil when the unit is missing, ineligible or locked elsewhere.
	LockPreferredUnit(ctx context.Context, unitID, poolID string, features []string) (*model.ResourceUnit, error)
	LockAvailableUnits(ctx context.Context, poolID string, features []string, exclude []string, limit int) ([]*model.ResourceUnit, error)
	CountOverlappingBookings(ctx context.Context, unitID string, window model.TimeWindow) (int64, error)
	CreateBooking(ctx context.Context, booking *model.Booking) error
	// ReserveUnit moves the unit to Reserved under its optimistic version and returns the new version.
	ReserveUnit(ctx context.Context, unit *model.ResourceUnit, bookingID string) (int64, error)
}

type postgresLedger struct {
	units     unitrepo.UnitRepository
	bookings  bookingrepo.BookingRepository
	txManager postgres.TransactionManager
}

func NewPostgresLedger(db postgres.DB, units unitrepo.UnitRepository, bookings bookingrepo.BookingRepository) LedgerRepository {
	return &postgresLedger{
		units:     units,
		bookings:  bookings,
		txManager: postgres.NewTransactionManager(db),
	}
}

func (l *postgresLedger) ExecuteTransaction(ctx context.Context, fn postgres.TransactionFunc) error {
	return l.txManager.ExecuteTransaction(ctx, fn)
}

func (l *postgresLedger) LockPreferredUnit(ctx context.Context, unitID, poolID string, features []string) (*model.ResourceUnit, error) {
	u, err := l.units.LockAvailableByID(ctx, unitID, poolID, features)
	if errors.Is(err, uniterrors.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

func (l *postgresLedger) LockAvailableUnits(ctx context.Context, poolID string, features []string, exclude []string, limit int) ([]*model.ResourceUnit, error) {
	return l.units.LockAvailable(ctx, poolID, features, exclude, limit)
}

func (l *postgresLedger) CountOverlappingBookings(ctx context.Context, unitID string, window model.TimeWindow) (int64, error) {
	return l.bookings.CountOverlapping(ctx, unitID, window)
}

func (l *postgresLedger) CreateBooking(ctx context.Context, booking *model.Booking) error {
	return l.bookings.Create(ctx, booking)
}

func (l *postgresLedger) ReserveUnit(ctx context.Context, unit *model.ResourceUnit, bookingID string) (int64, error) {
	return l.units.CompareAndSetStatus(ctx, unit.ID, unit.Version, model.UnitReserved, &bookingID)
}
