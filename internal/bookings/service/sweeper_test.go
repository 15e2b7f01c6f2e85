package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"parkline/pkg/logger"
	"parkline/pkg/model"

	"github.com/stretchr/testify/assert"
)

type countingService struct {
	BookingService
	calls atomic.Int32
}

func (c *countingService) ExpireNoShows(context.Context, time.Time) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestNoShowSweeper_RunsUntilStopped(t *testing.T) {
	svc := &countingService{}
	sweeper := NewNoShowSweeper(svc, 5*time.Millisecond, nil, logger.Discard())

	sweeper.Start(context.Background())
	assert.Eventually(t, func() bool { return svc.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	sweeper.Stop()
	after := svc.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, svc.calls.Load())

	sweeper.Stop()
}

func TestNoShowSweeper_ExpiresThroughService(t *testing.T) {
	h := newHarness(t)
	h.reserve("bk-1", "spot-1", base.Add(-2*time.Hour))

	sweeper := NewNoShowSweeper(h.svc, 5*time.Millisecond, h.clock, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)

	assert.Eventually(t, func() bool {
		h.store.mu.Lock()
		defer h.store.mu.Unlock()
		return h.store.bookings["bk-1"].Status == model.BookingExpired
	}, time.Second, 5*time.Millisecond)

	cancel()
	sweeper.Stop()
}
