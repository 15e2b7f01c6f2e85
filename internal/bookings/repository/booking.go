package repository

import (
	"context"
	"fmt"
	"time"

	bookingerrors "parkline/internal/bookings/errors"
	"parkline/pkg/db/postgres"
	"parkline/pkg/model"

	"github.com/jackc/pgx/v5"
)

const (
	TableName = "bookings"

	requestIDConstraint = "bookings_request_id_key"

	bookingColumns = "id, unit_id, pool_id, requester_id, request_id, start_time, end_time, status, created_at, updated_at"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	// LockByID reads the booking with a row lock held until the surrounding transaction ends.
	LockByID(ctx context.Context, id string) (*model.Booking, error)
	FindByUnit(ctx context.Context, unitID string, window *model.TimeWindow, limit int, offset int64) ([]*model.Booking, error)
	// CountOverlapping counts holding bookings on the unit whose window overlaps the given one.
	CountOverlapping(ctx context.Context, unitID string, window model.TimeWindow) (int64, error)
	// UpdateStatus moves a booking from one status to another, failing if it is no longer in from.
	UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus) error
	// LockNoShows row-locks confirmed bookings whose window ended at or before now.
	LockNoShows(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error)
	ExecuteTransaction(ctx context.Context, fn postgres.TransactionFunc) error
}

type postgresBookingRepository struct {
	db           postgres.DB
	txManager    postgres.TransactionManager
	queryTimeout time.Duration
}

func NewPostgresBookingRepository(db postgres.DB, queryTimeout time.Duration) BookingRepository {
	return &postgresBookingRepository{
		db:           db,
		txManager:    postgres.NewTransactionManager(db),
		queryTimeout: queryTimeout,
	}
}

func (r *postgresBookingRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if postgres.InTransaction(ctx) || r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

func holdingStatuses() []string {
	out := make([]string, len(model.HoldingStatuses))
	for i, s := range model.HoldingStatuses {
		out[i] = string(s)
	}
	return out
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		b      model.Booking
		status string
	)
	err := row.Scan(&b.ID, &b.UnitID, &b.PoolID, &b.RequesterID, &b.RequestID,
		&b.StartTime, &b.EndTime, &status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]*model.Booking, error) {
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func (r *postgresBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	booking.CreatedAt = now
	booking.UpdatedAt = now

	_, err := postgres.Conn(ctx, r.db).Exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		booking.ID, booking.UnitID, booking.PoolID, booking.RequesterID, booking.RequestID,
		booking.StartTime, booking.EndTime, string(booking.Status), booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		switch {
		case postgres.IsExclusionViolation(err):
			return fmt.Errorf("unit %s: %w", booking.UnitID, bookingerrors.ErrOverlap)
		case postgres.IsUniqueViolation(err) && postgres.ConstraintName(err) == requestIDConstraint:
			return fmt.Errorf("request %s: %w", booking.RequestID, bookingerrors.ErrDuplicateRequest)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *postgresBookingRepository) findOne(ctx context.Context, query string, arg string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	b, err := scanBooking(postgres.Conn(ctx, r.db).QueryRow(ctx, query, arg))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, bookingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return b, nil
}

func (r *postgresBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	return r.findOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *postgresBookingRepository) LockByID(ctx context.Context, id string) (*model.Booking, error) {
	return r.findOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *postgresBookingRepository) FindByUnit(ctx context.Context, unitID string, window *model.TimeWindow, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var from, to *time.Time
	if window != nil {
		from, to = &window.Start, &window.End
	}

	rows, err := postgres.Conn(ctx, r.db).Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		WHERE unit_id = $1 AND ($2::timestamptz IS NULL OR end_time > $2) AND ($3::timestamptz IS NULL OR start_time < $3)
		ORDER BY start_time LIMIT $4 OFFSET $5`,
		unitID, from, to, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings for unit %s: %w", unitID, err)
	}
	return collectBookings(rows)
}

func (r *postgresBookingRepository) CountOverlapping(ctx context.Context, unitID string, window model.TimeWindow) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int64
	err := postgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT count(*) FROM bookings
		WHERE unit_id = $1 AND status = ANY($2) AND start_time < $3 AND end_time > $4`,
		unitID, holdingStatuses(), window.End, window.Start,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count overlapping bookings for unit %s: %w", unitID, err)
	}
	return count, nil
}

func (r *postgresBookingRepository) UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tag, err := postgres.Conn(ctx, r.db).Exec(ctx,
		`UPDATE bookings SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("failed to update booking %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking %s is not %s: %w", id, from, bookingerrors.ErrInvalidTransition)
	}
	return nil
}

func (r *postgresBookingRepository) LockNoShows(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := postgres.Conn(ctx, r.db).Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'confirmed' AND end_time <= $1
		ORDER BY end_time LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock no-show bookings: %w", err)
	}
	return collectBookings(rows)
}

func (r *postgresBookingRepository) ExecuteTransaction(ctx context.Context, fn postgres.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
