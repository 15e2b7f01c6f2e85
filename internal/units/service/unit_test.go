package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	uniterrors "parkline/internal/units/errors"
	"parkline/internal/units/validator"
	"parkline/pkg/db/postgres"
	apperrors "parkline/pkg/errors"
	"parkline/pkg/logger"
	"parkline/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUnitRepo struct {
	mu    sync.Mutex
	units map[string]*model.ResourceUnit
	err   error
}

func newFakeRepo(units ...model.ResourceUnit) *fakeUnitRepo {
	r := &fakeUnitRepo{units: make(map[string]*model.ResourceUnit)}
	for _, u := range units {
		r.units[u.ID] = &u
	}
	return r
}

func (r *fakeUnitRepo) get(id string) (*model.ResourceUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.units[id]
	if !ok {
		return nil, uniterrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUnitRepo) FindByID(_ context.Context, id string) (*model.ResourceUnit, error) {
	return r.get(id)
}

func (r *fakeUnitRepo) LockByID(_ context.Context, id string) (*model.ResourceUnit, error) {
	return r.get(id)
}

func (r *fakeUnitRepo) FindByPool(_ context.Context, poolID string, status *model.UnitStatus, limit int, offset int64) ([]*model.ResourceUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*model.ResourceUnit
	for _, u := range r.units {
		if u.PoolID == poolID && (status == nil || u.Status == *status) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeUnitRepo) LockAvailable(context.Context, string, []string, []string, int) ([]*model.ResourceUnit, error) {
	return nil, errors.New("not used")
}

func (r *fakeUnitRepo) LockAvailableByID(context.Context, string, string, []string) (*model.ResourceUnit, error) {
	return nil, errors.New("not used")
}

func (r *fakeUnitRepo) CompareAndSetStatus(_ context.Context, id string, expected int64, status model.UnitStatus, occupant *string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[id]
	if !ok {
		return 0, uniterrors.ErrNotFound
	}
	if u.Version != expected {
		return 0, fmt.Errorf("unit %s: %w", id, uniterrors.ErrVersionConflict)
	}
	u.Status = status
	u.OccupantRef = occupant
	u.Version++
	return u.Version, nil
}

func (r *fakeUnitRepo) ExecuteTransaction(ctx context.Context, fn postgres.TransactionFunc) error {
	return fn(ctx)
}

func newService(repo *fakeUnitRepo) UnitService {
	return NewUnitService(repo, validator.NewUnitValidator(logger.Discard()), logger.Discard())
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.StatusCode()
}

func TestGet(t *testing.T) {
	svc := newService(newFakeRepo(model.ResourceUnit{ID: "spot-1", PoolID: "lot-a", Status: model.UnitAvailable, Version: 1}))

	u, err := svc.Get(context.Background(), "spot-1")
	require.NoError(t, err)
	assert.Equal(t, "lot-a", u.PoolID)

	_, err = svc.Get(context.Background(), "spot-404")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	_, err = svc.Get(context.Background(), "")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestListByPool(t *testing.T) {
	repo := newFakeRepo(
		model.ResourceUnit{ID: "spot-1", PoolID: "lot-a", Status: model.UnitAvailable, Version: 1},
		model.ResourceUnit{ID: "spot-2", PoolID: "lot-a", Status: model.UnitReserved, Version: 2},
		model.ResourceUnit{ID: "spot-3", PoolID: "lot-b", Status: model.UnitAvailable, Version: 1},
	)
	svc := newService(repo)

	units, err := svc.ListByPool(context.Background(), "lot-a", nil, 0, 0)
	require.NoError(t, err)
	assert.Len(t, units, 2)

	reserved := model.UnitReserved
	units, err = svc.ListByPool(context.Background(), "lot-a", &reserved, 10, 0)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "spot-2", units[0].ID)

	units, err = svc.ListByPool(context.Background(), "lot-z", nil, 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, units)
	assert.Empty(t, units)

	bogus := model.UnitStatus("parked")
	_, err = svc.ListByPool(context.Background(), "lot-a", &bogus, 10, 0)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	repo.err = errors.New("connection reset")
	_, err = svc.ListByPool(context.Background(), "lot-a", nil, 10, 0)
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))
}

func TestUpdateStatus_VersionIncrements(t *testing.T) {
	repo := newFakeRepo(model.ResourceUnit{ID: "spot-1", PoolID: "lot-a", Status: model.UnitAvailable, Version: 4})
	svc := newService(repo)

	u, err := svc.UpdateStatus(context.Background(), "spot-1", &model.UnitStatusUpdate{Status: model.UnitOutOfService, ExpectedVersion: 4})
	require.NoError(t, err)
	assert.Equal(t, model.UnitOutOfService, u.Status)
	assert.Equal(t, int64(5), u.Version)

	u, err = svc.UpdateStatus(context.Background(), "spot-1", &model.UnitStatusUpdate{Status: model.UnitAvailable, ExpectedVersion: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(6), u.Version)
}

func TestUpdateStatus_StaleVersionLeavesRowUnchanged(t *testing.T) {
	repo := newFakeRepo(model.ResourceUnit{ID: "spot-1", PoolID: "lot-a", Status: model.UnitAvailable, Version: 7})
	svc := newService(repo)

	_, err := svc.UpdateStatus(context.Background(), "spot-1", &model.UnitStatusUpdate{Status: model.UnitOutOfService, ExpectedVersion: 6})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeVersionConflict, appErr.Code)

	stored, _ := repo.get("spot-1")
	assert.Equal(t, model.UnitAvailable, stored.Status)
	assert.Equal(t, int64(7), stored.Version)
}

func TestUpdateStatus_Refusals(t *testing.T) {
	tests := []struct {
		name     string
		unit     model.ResourceUnit
		update   model.UnitStatusUpdate
		wantCode int
	}{
		{
			name:     "reserved unit cannot go out of service",
			unit:     model.ResourceUnit{ID: "spot-1", Status: model.UnitReserved, Version: 2},
			update:   model.UnitStatusUpdate{Status: model.UnitOutOfService, ExpectedVersion: 2},
			wantCode: http.StatusConflict,
		},
		{
			name:     "occupied unit cannot be released administratively",
			unit:     model.ResourceUnit{ID: "spot-1", Status: model.UnitOccupied, Version: 3},
			update:   model.UnitStatusUpdate{Status: model.UnitAvailable, ExpectedVersion: 3},
			wantCode: http.StatusConflict,
		},
		{
			name:     "available to available is not a transition",
			unit:     model.ResourceUnit{ID: "spot-1", Status: model.UnitAvailable, Version: 1},
			update:   model.UnitStatusUpdate{Status: model.UnitAvailable, ExpectedVersion: 1},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "allocation status rejected by validation",
			unit:     model.ResourceUnit{ID: "spot-1", Status: model.UnitAvailable, Version: 1},
			update:   model.UnitStatusUpdate{Status: model.UnitReserved, ExpectedVersion: 1},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "unknown unit",
			unit:     model.ResourceUnit{ID: "spot-9", Status: model.UnitAvailable, Version: 1},
			update:   model.UnitStatusUpdate{Status: model.UnitOutOfService, ExpectedVersion: 1},
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo(tt.unit)
			svc := newService(repo)

			id := "spot-1"
			_, err := svc.UpdateStatus(context.Background(), id, &tt.update)
			assert.Equal(t, tt.wantCode, statusOf(t, err))

			if stored, getErr := repo.get(tt.unit.ID); getErr == nil {
				assert.Equal(t, tt.unit.Version, stored.Version, "refused updates never bump the version")
			}
		})
	}
}
