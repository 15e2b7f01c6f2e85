// Package repositorytest provides an in-process ledger for exercising the
// allocator and admission workers without Postgres.
package repositorytest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	bookingerrors "parkline/internal/bookings/errors"
	"parkline/internal/reservations/repository"
	uniterrors "parkline/internal/units/errors"
	"parkline/pkg/db/postgres"
	"parkline/pkg/model"
)

// MemoryLedger is an in-process LedgerRepository. Transactions read committed state,
// buffer their writes and apply them atomically on success. It does not serialise
// transactions against each other; that is the coordination lock's job.
type MemoryLedger struct {
	mu       sync.Mutex
	units    map[string]*model.ResourceUnit
	bookings map[string]*model.Booking
	locked   map[string]string
	nextTx   int
}

var _ repository.LedgerRepository = (*MemoryLedger)(nil)

type memTxKey struct{}

type memTx struct {
	id       string
	bookings []*model.Booking
	units    map[string]*model.ResourceUnit
	locks    []string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		units:    make(map[string]*model.ResourceUnit),
		bookings: make(map[string]*model.Booking),
		locked:   make(map[string]string),
	}
}

// AddUnit seeds a unit. Version defaults to 1.
func (l *MemoryLedger) AddUnit(u model.ResourceUnit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u.Version == 0 {
		u.Version = 1
	}
	if u.Status == "" {
		u.Status = model.UnitAvailable
	}
	l.units[u.ID] = &u
}

// AddBooking seeds a booking.
func (l *MemoryLedger) AddBooking(b model.Booking) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bookings[b.ID] = &b
}

func (l *MemoryLedger) Unit(id string) (model.ResourceUnit, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.units[id]
	if !ok {
		return model.ResourceUnit{}, false
	}
	return *u, true
}

// Bookings returns committed bookings ordered by creation.
func (l *MemoryLedger) Bookings() []model.Booking {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Booking, 0, len(l.bookings))
	for _, b := range l.bookings {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func txFrom(ctx context.Context) (*memTx, error) {
	tx, ok := ctx.Value(memTxKey{}).(*memTx)
	if !ok {
		return nil, fmt.Errorf("memory ledger: call outside ExecuteTransaction")
	}
	return tx, nil
}

func (l *MemoryLedger) ExecuteTransaction(ctx context.Context, fn postgres.TransactionFunc) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}

	l.mu.Lock()
	l.nextTx++
	tx := &memTx{id: fmt.Sprintf("tx-%d", l.nextTx), units: make(map[string]*model.ResourceUnit)}
	l.mu.Unlock()

	err := fn(context.WithValue(ctx, memTxKey{}, tx))

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range tx.locks {
		delete(l.locked, id)
	}
	if err != nil {
		return err
	}
	for _, b := range tx.bookings {
		l.bookings[b.ID] = b
	}
	for id, u := range tx.units {
		l.units[id] = u
	}
	return nil
}

// lockLocked takes a row lock for tx, reporting false if another transaction holds it.
func (l *MemoryLedger) lockLocked(tx *memTx, unitID string) bool {
	holder, ok := l.locked[unitID]
	if ok && holder != tx.id {
		return false
	}
	if !ok {
		l.locked[unitID] = tx.id
		tx.locks = append(tx.locks, unitID)
	}
	return true
}

func (l *MemoryLedger) LockPreferredUnit(ctx context.Context, unitID, poolID string, features []string) (*model.ResourceUnit, error) {
	tx, err := txFrom(ctx)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.units[unitID]
	if !ok || u.PoolID != poolID || u.Status != model.UnitAvailable || !u.HasFeatures(features) {
		return nil, nil
	}
	if !l.lockLocked(tx, unitID) {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (l *MemoryLedger) LockAvailableUnits(ctx context.Context, poolID string, features []string, exclude []string, limit int) ([]*model.ResourceUnit, error) {
	tx, err := txFrom(ctx)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.units))
	for id := range l.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*model.ResourceUnit
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		u := l.units[id]
		if u.PoolID != poolID || u.Status != model.UnitAvailable || !u.HasFeatures(features) || slices.Contains(exclude, id) {
			continue
		}
		if !l.lockLocked(tx, id) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (l *MemoryLedger) CountOverlappingBookings(ctx context.Context, unitID string, window model.TimeWindow) (int64, error) {
	tx, err := txFrom(ctx)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int64
	count := func(b *model.Booking) {
		if b.UnitID == unitID && b.Status.Holding() && b.Window().Overlaps(window) {
			n++
		}
	}
	for _, b := range l.bookings {
		count(b)
	}
	for _, b := range tx.bookings {
		count(b)
	}
	return n, nil
}

func (l *MemoryLedger) CreateBooking(ctx context.Context, booking *model.Booking) error {
	tx, err := txFrom(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range l.bookings {
		if b.RequestID == booking.RequestID {
			return fmt.Errorf("request %s: %w", booking.RequestID, bookingerrors.ErrDuplicateRequest)
		}
	}
	now := time.Now().UTC()
	booking.CreatedAt, booking.UpdatedAt = now, now
	cp := *booking
	tx.bookings = append(tx.bookings, &cp)
	return nil
}

func (l *MemoryLedger) ReserveUnit(ctx context.Context, unit *model.ResourceUnit, bookingID string) (int64, error) {
	tx, err := txFrom(ctx)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := tx.units[unit.ID]
	if !ok {
		current, ok = l.units[unit.ID]
	}
	if !ok {
		return 0, uniterrors.ErrNotFound
	}
	if current.Version != unit.Version {
		return 0, fmt.Errorf("unit %s expected version %d, found %d: %w", unit.ID, unit.Version, current.Version, uniterrors.ErrVersionConflict)
	}

	next := *current
	next.Status = model.UnitReserved
	next.Version++
	next.OccupantRef = &bookingID
	next.UpdatedAt = time.Now().UTC()
	tx.units[unit.ID] = &next
	return next.Version, nil
}
