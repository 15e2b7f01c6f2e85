package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingerrors "parkline/internal/bookings/errors"
	reserrors "parkline/internal/reservations/errors"
	"parkline/internal/reservations/lock"
	"parkline/internal/reservations/repository"
	"parkline/pkg/clock"
	"parkline/pkg/logger"
	"parkline/pkg/metrics"
	"parkline/pkg/model"

	"github.com/google/uuid"
)

type Config struct {
	LockTimeout time.Duration
	LockTTL     time.Duration
	BatchSize   int
}

// Allocator runs the allocation transaction: pool lock, candidate selection,
// conflict check and commit of booking plus unit reservation.
type Allocator struct {
	locker   lock.Locker
	ledger   repository.LedgerRepository
	selector *CandidateSelector
	clock    clock.Clock
	log      *logger.Logger
	cfg      Config
}

func New(locker lock.Locker, ledger repository.LedgerRepository, clk clock.Clock, log *logger.Logger, cfg Config) *Allocator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Allocator{
		locker:   locker,
		ledger:   ledger,
		selector: NewCandidateSelector(ledger, cfg.BatchSize),
		clock:    clk,
		log:      log.Component("allocator"),
		cfg:      cfg,
	}
}

// Allocate books one conflict-free unit for req or returns an error classified by reserrors.KindOf.
// Nothing is committed unless the booking and the unit reservation both succeed.
func (a *Allocator) Allocate(ctx context.Context, req *model.ReservationRequest) (*model.AllocationResult, error) {
	started := time.Now()

	handle, err := a.locker.Acquire(ctx, req.PoolID, a.cfg.LockTimeout, a.cfg.LockTTL)
	if err != nil {
		metrics.ObserveAllocation(string(reserrors.KindOf(err)), time.Since(started))
		return nil, err
	}
	defer a.release(ctx, req, handle)

	var result *model.AllocationResult
	err = a.ledger.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		r, err := a.allocateLocked(txCtx, req, handle)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		err = translate(err)
		metrics.ObserveAllocation(string(reserrors.KindOf(err)), time.Since(started))
		return nil, err
	}

	metrics.ObserveAllocation("completed", time.Since(started))
	a.log.Info("unit allocated",
		"request_id", req.ID,
		"pool_id", req.PoolID,
		"unit_id", result.UnitID,
		"booking_id", result.BookingID,
		"duration", time.Since(started),
	)
	return result, nil
}

func (a *Allocator) allocateLocked(ctx context.Context, req *model.ReservationRequest, handle *model.LockHandle) (*model.AllocationResult, error) {
	candidates, err := a.selector.SelectCandidates(ctx, req)
	if err != nil {
		return nil, err
	}

	window := req.Window()
	for _, unit := range candidates {
		free, err := a.selector.IsConflictFree(ctx, unit.ID, window)
		if err != nil {
			return nil, err
		}
		if !free {
			a.log.Debug("candidate has overlapping booking", "request_id", req.ID, "unit_id", unit.ID)
			continue
		}

		booking := &model.Booking{
			ID:          uuid.NewString(),
			UnitID:      unit.ID,
			PoolID:      req.PoolID,
			RequesterID: req.RequesterID,
			RequestID:   req.ID,
			StartTime:   window.Start,
			EndTime:     window.End,
			Status:      model.BookingConfirmed,
		}
		if err := a.ledger.CreateBooking(ctx, booking); err != nil {
			return nil, err
		}
		if _, err := a.ledger.ReserveUnit(ctx, unit, booking.ID); err != nil {
			return nil, err
		}

		// another holder may already be inside the pool once our TTL has lapsed
		if handle.Expired(a.clock.Now()) {
			return nil, fmt.Errorf("pool %s: %w", req.PoolID, reserrors.ErrLockLost)
		}
		return &model.AllocationResult{BookingID: booking.ID, UnitID: unit.ID}, nil
	}

	return nil, fmt.Errorf("pool %s, %d candidates checked: %w", req.PoolID, len(candidates), reserrors.ErrNoAvailability)
}

func (a *Allocator) release(ctx context.Context, req *model.ReservationRequest, handle *model.LockHandle) {
	released, err := a.locker.Release(ctx, req.PoolID, handle.Token)
	if err != nil {
		a.log.Warn("failed to release pool lock",
			"pool_id", req.PoolID,
			"request_id", req.ID,
			"error", err,
		)
		return
	}
	if !released {
		a.log.Warn("pool lock expired before release",
			"pool_id", req.PoolID,
			"request_id", req.ID,
		)
	}
}

func translate(err error) error {
	switch {
	case errors.Is(err, bookingerrors.ErrOverlap):
		return fmt.Errorf("%w: %w", reserrors.ErrNoAvailability, err)
	case errors.Is(err, bookingerrors.ErrDuplicateRequest):
		return fmt.Errorf("%w: %w", reserrors.ErrDuplicateRequest, err)
	}
	return err
}
