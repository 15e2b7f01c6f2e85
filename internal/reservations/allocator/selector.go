package allocator

import (
	"context"
	"fmt"

	"parkline/internal/reservations/repository"
	"parkline/pkg/model"
)

// CandidateSelector lists the units an allocation may try, preferred unit first.
// It must run inside the pool lock and the ledger transaction.
type CandidateSelector struct {
	ledger    repository.LedgerRepository
	batchSize int
}

func NewCandidateSelector(ledger repository.LedgerRepository, batchSize int) *CandidateSelector {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &CandidateSelector{ledger: ledger, batchSize: batchSize}
}

func (s *CandidateSelector) SelectCandidates(ctx context.Context, req *model.ReservationRequest) ([]*model.ResourceUnit, error) {
	var (
		candidates []*model.ResourceUnit
		exclude    []string
	)

	if req.PreferredUnitID != "" {
		preferred, err := s.ledger.LockPreferredUnit(ctx, req.PreferredUnitID, req.PoolID, req.Features)
		if err != nil {
			return nil, fmt.Errorf("failed to lock preferred unit %s: %w", req.PreferredUnitID, err)
		}
		if preferred != nil {
			candidates = append(candidates, preferred)
		}
		exclude = append(exclude, req.PreferredUnitID)
	}

	rest, err := s.ledger.LockAvailableUnits(ctx, req.PoolID, req.Features, exclude, s.batchSize)
	if err != nil {
		return nil, err
	}
	return append(candidates, rest...), nil
}

// IsConflictFree reports whether no holding booking on the unit overlaps window.
func (s *CandidateSelector) IsConflictFree(ctx context.Context, unitID string, window model.TimeWindow) (bool, error) {
	n, err := s.ledger.CountOverlappingBookings(ctx, unitID, window)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
