package service

import (
	"context"
	"sync"
	"time"

	"parkline/pkg/clock"
	"parkline/pkg/logger"
)

// NoShowSweeper periodically expires confirmed bookings nobody checked in for.
type NoShowSweeper struct {
	svc      BookingService
	interval time.Duration
	clock    clock.Clock
	log      *logger.Logger

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewNoShowSweeper(svc BookingService, interval time.Duration, clk clock.Clock, log *logger.Logger) *NoShowSweeper {
	if clk == nil {
		clk = clock.Real{}
	}
	return &NoShowSweeper{
		svc:      svc,
		interval: interval,
		clock:    clk,
		log:      log.Component("no-show-sweeper"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *NoShowSweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *NoShowSweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *NoShowSweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	// a full batch means more may be waiting
	for {
		n, err := s.svc.ExpireNoShows(sweepCtx, s.clock.Now())
		if err != nil {
			s.log.Warn("no-show sweep failed", "error", err)
			return
		}
		if n < DefaultSweepBatch {
			return
		}
	}
}

// Stop ends the sweep loop and waits for a running sweep to finish. Start must have been called.
func (s *NoShowSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}
