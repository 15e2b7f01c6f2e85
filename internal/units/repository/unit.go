package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	uniterrors "parkline/internal/units/errors"
	"parkline/pkg/db/postgres"
	"parkline/pkg/model"

	"github.com/jackc/pgx/v5"
)

const (
	TableName = "resource_units"

	unitColumns = "id, pool_id, status, version, features, occupant_ref, updated_at"
)

type UnitRepository interface {
	FindByID(ctx context.Context, id string) (*model.ResourceUnit, error)
	FindByPool(ctx context.Context, poolID string, status *model.UnitStatus, limit int, offset int64) ([]*model.ResourceUnit, error)
	// LockByID reads the unit with a row lock held until the surrounding transaction ends.
	LockByID(ctx context.Context, id string) (*model.ResourceUnit, error)
	// LockAvailable row-locks up to limit available units of the pool that carry every
	// feature, skipping rows another transaction already holds.
	LockAvailable(ctx context.Context, poolID string, features []string, exclude []string, limit int) ([]*model.ResourceUnit, error)
	// LockAvailableByID row-locks a single unit when it belongs to the pool, is available and
	// carries every feature. It returns ErrNotFound when the unit is ineligible or locked elsewhere.
	LockAvailableByID(ctx context.Context, id, poolID string, features []string) (*model.ResourceUnit, error)
	// CompareAndSetStatus applies the mutation only if the stored version equals expectedVersion,
	// and returns the incremented version.
	CompareAndSetStatus(ctx context.Context, id string, expectedVersion int64, status model.UnitStatus, occupantRef *string) (int64, error)
	ExecuteTransaction(ctx context.Context, fn postgres.TransactionFunc) error
}

type postgresUnitRepository struct {
	db           postgres.DB
	txManager    postgres.TransactionManager
	queryTimeout time.Duration
}

func NewPostgresUnitRepository(db postgres.DB, queryTimeout time.Duration) UnitRepository {
	return &postgresUnitRepository{
		db:           db,
		txManager:    postgres.NewTransactionManager(db),
		queryTimeout: queryTimeout,
	}
}

// withTimeout bounds standalone queries. Inside a transaction the caller's context governs.
func (r *postgresUnitRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if postgres.InTransaction(ctx) || r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

func scanUnit(row pgx.Row) (*model.ResourceUnit, error) {
	var (
		u      model.ResourceUnit
		status string
	)
	if err := row.Scan(&u.ID, &u.PoolID, &status, &u.Version, &u.Features, &u.OccupantRef, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Status = model.UnitStatus(status)
	return &u, nil
}

func collectUnits(rows pgx.Rows) ([]*model.ResourceUnit, error) {
	defer rows.Close()

	var units []*model.ResourceUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate units: %w", err)
	}
	return units, nil
}

func (r *postgresUnitRepository) findOne(ctx context.Context, query, id string) (*model.ResourceUnit, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	u, err := scanUnit(postgres.Conn(ctx, r.db).QueryRow(ctx, query, id))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, uniterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find unit %s: %w", id, err)
	}
	return u, nil
}

func (r *postgresUnitRepository) FindByID(ctx context.Context, id string) (*model.ResourceUnit, error) {
	return r.findOne(ctx, `SELECT `+unitColumns+` FROM resource_units WHERE id = $1`, id)
}

func (r *postgresUnitRepository) LockByID(ctx context.Context, id string) (*model.ResourceUnit, error) {
	return r.findOne(ctx, `SELECT `+unitColumns+` FROM resource_units WHERE id = $1 FOR UPDATE`, id)
}

func (r *postgresUnitRepository) FindByPool(ctx context.Context, poolID string, status *model.UnitStatus, limit int, offset int64) ([]*model.ResourceUnit, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}

	rows, err := postgres.Conn(ctx, r.db).Query(ctx,
		`SELECT `+unitColumns+` FROM resource_units
		WHERE pool_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY id LIMIT $3 OFFSET $4`,
		poolID, statusArg, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list units for pool %s: %w", poolID, err)
	}
	return collectUnits(rows)
}

func (r *postgresUnitRepository) LockAvailable(ctx context.Context, poolID string, features []string, exclude []string, limit int) ([]*model.ResourceUnit, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	// nil slices encode as NULL, which would make both predicates unknown
	if features == nil {
		features = []string{}
	}
	if exclude == nil {
		exclude = []string{}
	}

	rows, err := postgres.Conn(ctx, r.db).Query(ctx,
		`SELECT `+unitColumns+` FROM resource_units
		WHERE pool_id = $1 AND status = 'available' AND features @> $2 AND id <> ALL($3)
		ORDER BY id LIMIT $4
		FOR UPDATE SKIP LOCKED`,
		poolID, features, exclude, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock candidate units for pool %s: %w", poolID, err)
	}
	return collectUnits(rows)
}

func (r *postgresUnitRepository) LockAvailableByID(ctx context.Context, id, poolID string, features []string) (*model.ResourceUnit, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if features == nil {
		features = []string{}
	}

	u, err := scanUnit(postgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+unitColumns+` FROM resource_units
		WHERE id = $1 AND pool_id = $2 AND status = 'available' AND features @> $3
		FOR UPDATE SKIP LOCKED`,
		id, poolID, features,
	))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, uniterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock unit %s: %w", id, err)
	}
	return u, nil
}

func (r *postgresUnitRepository) CompareAndSetStatus(ctx context.Context, id string, expectedVersion int64, status model.UnitStatus, occupantRef *string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	conn := postgres.Conn(ctx, r.db)
	var version int64
	err := conn.QueryRow(ctx,
		`UPDATE resource_units
		SET status = $2, occupant_ref = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $4
		RETURNING version`,
		id, string(status), occupantRef, expectedVersion,
	).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to update unit %s: %w", id, err)
	}

	var current int64
	if err := conn.QueryRow(ctx, `SELECT version FROM resource_units WHERE id = $1`, id).Scan(&current); err != nil {
		if postgres.IsNoRows(err) {
			return 0, uniterrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to read unit %s version: %w", id, err)
	}
	return 0, fmt.Errorf("unit %s expected version %d, found %d: %w", id, expectedVersion, current, uniterrors.ErrVersionConflict)
}

func (r *postgresUnitRepository) ExecuteTransaction(ctx context.Context, fn postgres.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
