package service

import (
	"context"
	"errors"
	"fmt"

	uniterrors "parkline/internal/units/errors"
	"parkline/internal/units/repository"
	"parkline/internal/units/validator"
	"parkline/pkg/config"
	apperrors "parkline/pkg/errors"
	"parkline/pkg/logger"
	"parkline/pkg/model"
)

type UnitService interface {
	Get(ctx context.Context, id string) (*model.ResourceUnit, error)
	ListByPool(ctx context.Context, poolID string, status *model.UnitStatus, limit int, offset int64) ([]*model.ResourceUnit, error)
	// UpdateStatus applies an administrative status change guarded by the unit's optimistic version.
	UpdateStatus(ctx context.Context, id string, update *model.UnitStatusUpdate) (*model.ResourceUnit, error)
}

type unitService struct {
	repo      repository.UnitRepository
	validator *validator.UnitValidator
	log       *logger.Logger
}

func NewUnitService(repo repository.UnitRepository, v *validator.UnitValidator, log *logger.Logger) UnitService {
	return &unitService{
		repo:      repo,
		validator: v,
		log:       log.Component("units"),
	}
}

func (s *unitService) Get(ctx context.Context, id string) (*model.ResourceUnit, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("unit id cannot be empty")
	}
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, id, "retrieve")
	}
	return u, nil
}

func (s *unitService) ListByPool(ctx context.Context, poolID string, status *model.UnitStatus, limit int, offset int64) ([]*model.ResourceUnit, error) {
	if poolID == "" {
		return nil, apperrors.InvalidInput("pool id cannot be empty")
	}
	if status != nil && !status.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown unit status: %s", *status))
	}
	if offset < 0 {
		return nil, apperrors.InvalidInput("offset cannot be negative")
	}

	units, err := s.repo.FindByPool(ctx, poolID, status, config.NormalizePaginationLimit(limit), offset)
	if err != nil {
		s.log.Error("failed to list units", "pool_id", poolID, "error", err)
		return nil, apperrors.Internal("failed to list units", err)
	}
	if units == nil {
		units = []*model.ResourceUnit{}
	}
	return units, nil
}

func (s *unitService) UpdateStatus(ctx context.Context, id string, update *model.UnitStatusUpdate) (*model.ResourceUnit, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("unit id cannot be empty")
	}
	if update == nil {
		return nil, apperrors.InvalidInput("status update cannot be empty")
	}
	if err := s.validator.ValidateStatusUpdate(update); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, apperrors.Validation("invalid unit status update", map[string]any{"fields": verrs})
		}
		return nil, apperrors.Validation(err.Error(), nil)
	}

	var updated *model.ResourceUnit
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.repo.LockByID(txCtx, id)
		if err != nil {
			return err
		}
		if err := checkAdminTransition(current.Status, update.Status); err != nil {
			return err
		}

		// the stored version is checked by the update itself; a stale caller leaves the row unchanged
		version, err := s.repo.CompareAndSetStatus(txCtx, id, update.ExpectedVersion, update.Status, nil)
		if err != nil {
			return err
		}

		current.Status = update.Status
		current.Version = version
		current.OccupantRef = nil
		updated = current
		return nil
	})
	if err != nil {
		return nil, s.translateUpdate(err, id, update)
	}

	s.log.Info("unit status updated",
		"unit_id", id,
		"pool_id", updated.PoolID,
		"status", updated.Status,
		"version", updated.Version,
	)
	return updated, nil
}

// checkAdminTransition allows only available <-> out_of_service. Reserved and occupied units
// belong to the allocation path and booking lifecycle.
func checkAdminTransition(from, to model.UnitStatus) error {
	switch from {
	case model.UnitReserved, model.UnitOccupied:
		return fmt.Errorf("unit is %s: %w", from, uniterrors.ErrUnitBusy)
	case model.UnitAvailable:
		if to == model.UnitOutOfService {
			return nil
		}
	case model.UnitOutOfService:
		if to == model.UnitAvailable {
			return nil
		}
	}
	return fmt.Errorf("%s to %s: %w", from, to, uniterrors.ErrInvalidTransition)
}

func (s *unitService) translate(err error, id, operation string) error {
	if errors.Is(err, uniterrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Unit", id)
	}
	s.log.Error("unit repository failure", "unit_id", id, "operation", operation, "error", err)
	return apperrors.Internal(fmt.Sprintf("failed to %s unit", operation), err)
}

func (s *unitService) translateUpdate(err error, id string, update *model.UnitStatusUpdate) error {
	switch {
	case errors.Is(err, uniterrors.ErrVersionConflict):
		s.log.Info("stale unit status update rejected", "unit_id", id, "expected_version", update.ExpectedVersion)
		return apperrors.VersionConflict("Unit", id, update.ExpectedVersion)
	case errors.Is(err, uniterrors.ErrUnitBusy):
		return apperrors.Conflict(fmt.Sprintf("unit %s is held by an active booking", id))
	case errors.Is(err, uniterrors.ErrInvalidTransition):
		return apperrors.Validation(err.Error(), map[string]any{"status": update.Status})
	}
	return s.translate(err, id, "update")
}
