package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	reserrors "parkline/internal/reservations/errors"
	"parkline/internal/reservations/events"
	"parkline/internal/reservations/queue"
	"parkline/internal/reservations/status"
	"parkline/internal/reservations/validator"
	"parkline/pkg/clock"
	"parkline/pkg/config"
	apperrors "parkline/pkg/errors"
	"parkline/pkg/logger"
	"parkline/pkg/metrics"
	"parkline/pkg/model"
	"parkline/pkg/sanitizer"

	"github.com/google/uuid"
)

type ReservationService interface {
	Submit(ctx context.Context, req *model.ReservationRequest) (*model.SubmitResult, error)
	GetStatus(ctx context.Context, requestID string) (*model.RequestStatus, error)
	Cancel(ctx context.Context, requestID string) (bool, error)
	QueueStats() model.QueueStats
	Start(ctx context.Context)
	Stop()
}

type Allocator interface {
	Allocate(ctx context.Context, req *model.ReservationRequest) (*model.AllocationResult, error)
}

type Validator interface {
	Validate(req *model.ReservationRequest) error
}

type Dependencies struct {
	Queue     *queue.AdmissionQueue
	Statuses  status.Store
	Allocator Allocator
	Validator Validator
	Publisher events.Publisher
	Clock     clock.Clock
	Log       *logger.Logger
}

type Settings struct {
	Workers          int
	FastPathPriority model.Priority
	LockRetryBudget  int
	LockRetryBackoff time.Duration
	DefaultMaxWait   time.Duration
	ResultTTL        time.Duration
	IdlePollInterval time.Duration
}

type reservationService struct {
	queue     *queue.AdmissionQueue
	statuses  status.Store
	allocator Allocator
	validator Validator
	publisher events.Publisher
	clock     clock.Clock
	log       *logger.Logger
	settings  Settings

	active atomic.Int64
	runner *workerPool
}

func NewReservationService(deps Dependencies, settings Settings) ReservationService {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if settings.Workers <= 0 {
		settings.Workers = 1
	}
	if settings.LockRetryBudget <= 0 {
		settings.LockRetryBudget = 1
	}
	if settings.IdlePollInterval <= 0 {
		settings.IdlePollInterval = time.Second
	}
	if settings.DefaultMaxWait < time.Second {
		settings.DefaultMaxWait = config.DefaultMaxWait
	}
	if settings.ResultTTL <= 0 {
		settings.ResultTTL = config.DefaultResultTTL
	}
	if settings.FastPathPriority == "" {
		settings.FastPathPriority = model.PriorityHigh
	}
	s := &reservationService{
		queue:     deps.Queue,
		statuses:  deps.Statuses,
		allocator: deps.Allocator,
		validator: deps.Validator,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		log:       deps.Log.Component("reservations"),
		settings:  settings,
	}
	s.runner = newWorkerPool(s)
	return s
}

// Submit validates req and either completes it on the fast path or admits it to the queue.
func (s *reservationService) Submit(ctx context.Context, req *model.ReservationRequest) (*model.SubmitResult, error) {
	if req == nil {
		return nil, apperrors.InvalidInput("reservation request cannot be empty")
	}
	s.applyDefaults(req)

	if err := s.validator.Validate(req); err != nil {
		return nil, validationError(err)
	}

	if req.Priority.AtLeast(s.settings.FastPathPriority) {
		if res, done, err := s.tryFastPath(ctx, req); done {
			return res, err
		}
	} else if err := s.claim(ctx, req, model.StateQueued); err != nil {
		return nil, err
	}

	position, err := s.queue.Enqueue(ctx, req)
	if errors.Is(err, reserrors.ErrRequestCancelled) {
		return s.cancelledDuringAdmission(ctx, req), nil
	}
	if err != nil {
		s.abandon(req, err)
		switch {
		case errors.Is(err, reserrors.ErrQueueClosed):
			return nil, apperrors.Unavailable("reservation queue")
		case errors.Is(err, reserrors.ErrDuplicateRequest):
			return nil, apperrors.Conflict(fmt.Sprintf("reservation request %s already submitted", req.ID))
		default:
			s.log.Error("failed to enqueue reservation request", "request_id", req.ID, "error", err)
			return nil, apperrors.Internal("failed to queue reservation request", err)
		}
	}

	s.log.Info("reservation request queued",
		"request_id", req.ID,
		"pool_id", req.PoolID,
		"priority", req.Priority,
		"position", position,
	)
	return &model.SubmitResult{
		RequestID: req.ID,
		State:     model.StateQueued,
		Position:  position,
	}, nil
}

// tryFastPath makes one synchronous allocation attempt. done is false when the
// request should fall back to the queue.
func (s *reservationService) tryFastPath(ctx context.Context, req *model.ReservationRequest) (*model.SubmitResult, bool, error) {
	if err := s.claim(ctx, req, model.StateProcessing); err != nil {
		return nil, true, err
	}

	s.beginProcessing()
	result, err := s.allocator.Allocate(ctx, req)
	s.endProcessing()

	if err == nil {
		metrics.RecordFastPath("completed")
		st := s.completedStatus(req, result)
		s.finish(context.WithoutCancel(ctx), st)
		return &model.SubmitResult{
			RequestID: req.ID,
			State:     model.StateCompleted,
			BookingID: result.BookingID,
			UnitID:    result.UnitID,
		}, true, nil
	}

	if errors.Is(err, reserrors.ErrDuplicateRequest) {
		metrics.RecordFastPath("duplicate")
		return nil, true, apperrors.Conflict(fmt.Sprintf("reservation request %s already has a booking", req.ID))
	}

	metrics.RecordFastPath(string(reserrors.KindOf(err)))
	s.log.Info("fast path allocation missed, falling back to queue",
		"request_id", req.ID,
		"pool_id", req.PoolID,
		"reason", reserrors.KindOf(err),
		"error", err,
	)
	return nil, false, nil
}

// claim reserves the request id in the status store so a second submission
// with the same id is refused.
func (s *reservationService) claim(ctx context.Context, req *model.ReservationRequest, state model.RequestState) error {
	ok, err := s.statuses.PutIfAbsent(ctx, &model.RequestStatus{
		RequestID: req.ID,
		PoolID:    req.PoolID,
		State:     state,
		UpdatedAt: s.clock.Now(),
	}, s.queue.StatusTTL(req))
	if err != nil {
		s.log.Error("failed to record request status", "request_id", req.ID, "error", err)
		return apperrors.Internal("failed to record reservation request", err)
	}
	if !ok {
		return apperrors.Conflict(fmt.Sprintf("reservation request %s already submitted", req.ID))
	}
	return nil
}

// cancelledDuringAdmission handles a Cancel that won the race with Enqueue's status
// write. Cancel has already recorded the outcome, but the Queued write may have
// landed after it, so the cancelled status is written again.
func (s *reservationService) cancelledDuringAdmission(ctx context.Context, req *model.ReservationRequest) *model.SubmitResult {
	st := cancelledStatus(req.ID, req.PoolID, s.clock.Now())
	if err := s.statuses.Put(context.WithoutCancel(ctx), st, s.settings.ResultTTL); err != nil {
		s.log.Warn("failed to record cancelled status", "request_id", req.ID, "error", err)
	}
	s.log.Info("reservation request cancelled during admission", "request_id", req.ID, "pool_id", req.PoolID)
	return &model.SubmitResult{RequestID: req.ID, State: model.StateFailed}
}

// abandon records a terminal failure for a request that was claimed but never queued.
func (s *reservationService) abandon(req *model.ReservationRequest, cause error) {
	if errors.Is(cause, reserrors.ErrDuplicateRequest) {
		return
	}
	st := &model.RequestStatus{
		RequestID: req.ID,
		PoolID:    req.PoolID,
		State:     model.StateFailed,
		Reason:    string(reserrors.KindStorageFailure),
		Message:   "request could not be queued",
		UpdatedAt: s.clock.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.statuses.Put(ctx, st, s.settings.ResultTTL); err != nil {
		s.log.Warn("failed to record abandoned request", "request_id", req.ID, "error", err)
	}
}

func (s *reservationService) GetStatus(ctx context.Context, requestID string) (*model.RequestStatus, error) {
	if requestID == "" {
		return nil, apperrors.InvalidInput("request id cannot be empty")
	}
	st, err := s.statuses.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, reserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Reservation request", requestID)
		}
		s.log.Error("failed to read request status", "request_id", requestID, "error", err)
		return nil, apperrors.Internal("failed to retrieve reservation status", err)
	}

	if st.State == model.StateQueued {
		if position, ok := s.queue.PositionOf(requestID); ok {
			st.Position = position
		}
	}
	return st, nil
}

// Cancel withdraws a queued request. It reports false once processing has started.
func (s *reservationService) Cancel(ctx context.Context, requestID string) (bool, error) {
	if requestID == "" {
		return false, apperrors.InvalidInput("request id cannot be empty")
	}

	current, err := s.statuses.Get(ctx, requestID)
	if err != nil && !errors.Is(err, reserrors.ErrNotFound) {
		return false, apperrors.Internal("failed to retrieve reservation status", err)
	}

	if !s.queue.Remove(requestID) {
		if current == nil {
			return false, apperrors.NotFoundWithID("Reservation request", requestID)
		}
		s.log.Info("cancel refused, request not queued", "request_id", requestID, "state", current.State)
		return false, nil
	}

	var poolID string
	if current != nil {
		poolID = current.PoolID
	}
	s.finish(context.WithoutCancel(ctx), cancelledStatus(requestID, poolID, s.clock.Now()))
	return true, nil
}

func (s *reservationService) QueueStats() model.QueueStats {
	return model.QueueStats{
		Size:             s.queue.Size(),
		ActiveProcessing: int(s.active.Load()),
	}
}

func (s *reservationService) Start(ctx context.Context) {
	s.runner.start(ctx)
}

// Stop halts the workers and waits for in-flight allocations. Requests still
// queued are left to expire through their status TTL.
func (s *reservationService) Stop() {
	s.queue.Close()
	s.runner.stop()
}

func (s *reservationService) applyDefaults(req *model.ReservationRequest) {
	req.ID = sanitizer.NormalizeIdentifier(req.ID)
	req.RequesterID = sanitizer.NormalizeIdentifier(req.RequesterID)
	req.PoolID = sanitizer.NormalizeIdentifier(req.PoolID)
	req.PreferredUnitID = sanitizer.NormalizeIdentifier(req.PreferredUnitID)
	req.Features = sanitizer.NormalizeFeatures(req.Features)

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	// unknown priorities are left for the validator to reject
	if p, err := model.ParsePriority(string(req.Priority)); err == nil {
		req.Priority = p
	}
	if req.MaxWaitSeconds == 0 {
		req.MaxWaitSeconds = int(s.settings.DefaultMaxWait / time.Second)
	}
	req.StartTime = req.StartTime.UTC()
	req.EndTime = req.EndTime.UTC()
	req.CreatedAt = s.clock.Now()
}

func (s *reservationService) beginProcessing() {
	s.active.Add(1)
	metrics.IncActiveProcessing()
}

func (s *reservationService) endProcessing() {
	s.active.Add(-1)
	metrics.DecActiveProcessing()
}

func (s *reservationService) completedStatus(req *model.ReservationRequest, result *model.AllocationResult) *model.RequestStatus {
	return &model.RequestStatus{
		RequestID: req.ID,
		PoolID:    req.PoolID,
		State:     model.StateCompleted,
		BookingID: result.BookingID,
		UnitID:    result.UnitID,
		UpdatedAt: s.clock.Now(),
	}
}

func cancelledStatus(requestID, poolID string, now time.Time) *model.RequestStatus {
	return &model.RequestStatus{
		RequestID: requestID,
		PoolID:    poolID,
		State:     model.StateFailed,
		Reason:    events.ReasonCancelled,
		Message:   "cancelled by requester",
		UpdatedAt: now,
	}
}

// finish stores a terminal status and emits its outcome event. A request that
// already reached a different terminal outcome is left untouched.
func (s *reservationService) finish(ctx context.Context, st *model.RequestStatus) {
	if current, err := s.statuses.Get(ctx, st.RequestID); err == nil &&
		!current.State.CanTransitionTo(st.State) && !sameOutcome(current, st) {
		s.log.Warn("refusing to overwrite final request status",
			"request_id", st.RequestID,
			"state", current.State,
			"attempted_state", st.State,
			"attempted_reason", st.Reason,
		)
		return
	}

	if err := s.statuses.Put(ctx, st, s.settings.ResultTTL); err != nil {
		s.log.Error("failed to record terminal status",
			"request_id", st.RequestID,
			"state", st.State,
			"error", err,
		)
	}
	metrics.RecordOutcome(string(st.State), st.Reason)

	eventType := events.ReservationEventType(st)
	if eventType == "" || s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, eventType, events.AggregateReservation, st.RequestID, st.State.Sequence(), st); err != nil {
		s.log.Warn("failed to publish outcome event",
			"request_id", st.RequestID,
			"event_type", eventType,
			"error", err,
		)
	}
}

func sameOutcome(a, b *model.RequestStatus) bool {
	return a.State == b.State && a.Reason == b.Reason && a.BookingID == b.BookingID
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]any, len(verrs))
		for _, v := range verrs {
			fields[v.Field] = v.Message
		}
		return apperrors.Validation("invalid reservation request", map[string]any{"fields": fields})
	}
	return apperrors.Validation(err.Error(), nil)
}
