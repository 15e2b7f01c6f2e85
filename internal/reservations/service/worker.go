package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	reserrors "parkline/internal/reservations/errors"
	"parkline/pkg/model"
)

type workerPool struct {
	svc *reservationService

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func newWorkerPool(svc *reservationService) *workerPool {
	return &workerPool{svc: svc}
}

func (p *workerPool) start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.svc.settings.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
	p.svc.log.Info("admission workers started", "workers", p.svc.settings.Workers)
}

func (p *workerPool) stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.svc.log.Info("admission workers stopped")
}

func (p *workerPool) run(ctx context.Context, id int) {
	log := p.svc.log.With("worker", id)
	ticker := time.NewTicker(p.svc.settings.IdlePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.svc.queue.Ready():
		case <-ticker.C:
		}

		for ctx.Err() == nil {
			req, ok := p.svc.queue.Dequeue()
			if !ok {
				break
			}
			// In-flight requests finish even if the pool is stopping.
			p.svc.process(context.WithoutCancel(ctx), req)
		}
		log.Debug("queue drained")
	}
}

// process drives one dequeued request to a terminal state.
func (s *reservationService) process(ctx context.Context, req *model.ReservationRequest) {
	now := s.clock.Now()
	if req.Expired(now) {
		err := fmt.Errorf("waited %s of %ds: %w", now.Sub(req.CreatedAt), req.MaxWaitSeconds, reserrors.ErrExpired)
		s.log.Info("reservation request expired before processing",
			"request_id", req.ID,
			"pool_id", req.PoolID,
			"error", err,
		)
		s.finish(ctx, &model.RequestStatus{
			RequestID: req.ID,
			PoolID:    req.PoolID,
			State:     model.StateExpired,
			Reason:    string(reserrors.KindOf(err)),
			Message:   "request waited longer than its max wait",
			UpdatedAt: now,
		})
		return
	}

	if err := s.statuses.Put(ctx, &model.RequestStatus{
		RequestID: req.ID,
		PoolID:    req.PoolID,
		State:     model.StateProcessing,
		UpdatedAt: now,
	}, s.settings.ResultTTL); err != nil {
		s.log.Warn("failed to record processing status", "request_id", req.ID, "error", err)
	}

	s.beginProcessing()
	result, err := s.allocateWithRetry(ctx, req)
	s.endProcessing()

	if err == nil {
		s.log.Info("reservation completed",
			"request_id", req.ID,
			"pool_id", req.PoolID,
			"booking_id", result.BookingID,
			"unit_id", result.UnitID,
		)
		s.finish(ctx, s.completedStatus(req, result))
		return
	}

	kind := reserrors.KindOf(err)
	logArgs := []any{"request_id", req.ID, "pool_id", req.PoolID, "reason", kind, "error", err}
	if kind == reserrors.KindStorageFailure {
		s.log.Error("reservation failed", logArgs...)
	} else {
		s.log.Info("reservation failed", logArgs...)
	}
	s.finish(ctx, &model.RequestStatus{
		RequestID: req.ID,
		PoolID:    req.PoolID,
		State:     model.StateFailed,
		Reason:    string(kind),
		Message:   failureMessage(kind),
		UpdatedAt: s.clock.Now(),
	})
}

// allocateWithRetry retries lock timeouts and transient database contention up to
// the configured budget with jittered backoff. Every other outcome returns immediately.
func (s *reservationService) allocateWithRetry(ctx context.Context, req *model.ReservationRequest) (*model.AllocationResult, error) {
	var err error
	for attempt := 1; attempt <= s.settings.LockRetryBudget; attempt++ {
		var result *model.AllocationResult
		result, err = s.allocator.Allocate(ctx, req)
		if err == nil {
			return result, nil
		}
		if !reserrors.KindOf(err).Retryable() || attempt == s.settings.LockRetryBudget {
			break
		}
		s.log.Debug("allocation contended, retrying", "request_id", req.ID, "attempt", attempt, "error", err)
		if !wait(ctx, backoff(s.settings.LockRetryBackoff, attempt)) {
			return nil, errors.Join(err, ctx.Err())
		}
	}
	return nil, err
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base * time.Duration(attempt)
	return d + rand.N(d/2+1)
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func failureMessage(kind reserrors.Kind) string {
	switch kind {
	case reserrors.KindNoAvailability:
		return "no unit is available for the requested window"
	case reserrors.KindLockTimeout, reserrors.KindContention:
		return "the pool stayed busy, please retry"
	case reserrors.KindDuplicate:
		return "a booking already exists for this request id"
	case reserrors.KindVersionConflict:
		return "a unit changed during allocation, please retry"
	case reserrors.KindCancelled:
		return "allocation was interrupted"
	default:
		return "allocation failed"
	}
}
