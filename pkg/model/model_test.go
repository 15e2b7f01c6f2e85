package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComparePriority(t *testing.T) {
	tests := []struct {
		name string
		a, b Priority
		want int
	}{
		{"vip above normal", PriorityVIP, PriorityNormal, 1},
		{"low below high", PriorityLow, PriorityHigh, -1},
		{"equal", PriorityHigh, PriorityHigh, 0},
		{"emergency above vip", PriorityEmergency, PriorityVIP, 1},
		{"unknown below low", Priority("urgent"), PriorityLow, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComparePriority(tt.a, tt.b))
		})
	}
}

func TestPriorityOrderIsTotal(t *testing.T) {
	for i := 1; i < len(AllPriorities); i++ {
		assert.True(t, AllPriorities[i].AtLeast(AllPriorities[i-1]))
		assert.False(t, AllPriorities[i-1].AtLeast(AllPriorities[i]))
	}
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority(" VIP ")
	require.NoError(t, err)
	assert.Equal(t, PriorityVIP, p)

	p, err = ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, p)

	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}

func TestTimeWindowOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := TimeWindow{Start: base, End: base.Add(time.Hour)}

	tests := []struct {
		name  string
		other TimeWindow
		want  bool
	}{
		{"partial overlap", TimeWindow{base.Add(30 * time.Minute), base.Add(90 * time.Minute)}, true},
		{"contained", TimeWindow{base.Add(10 * time.Minute), base.Add(20 * time.Minute)}, true},
		{"adjacent after", TimeWindow{base.Add(time.Hour), base.Add(2 * time.Hour)}, false},
		{"adjacent before", TimeWindow{base.Add(-time.Hour), base}, false},
		{"disjoint", TimeWindow{base.Add(3 * time.Hour), base.Add(4 * time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(w))
		})
	}
}

func TestReservationRequestExpired(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	req := &ReservationRequest{CreatedAt: created, MaxWaitSeconds: 1}

	assert.False(t, req.Expired(created.Add(time.Second)))
	assert.True(t, req.Expired(created.Add(2*time.Second)))
}

func TestRequestStateTransitions(t *testing.T) {
	assert.True(t, StateQueued.CanTransitionTo(StateProcessing))
	assert.True(t, StateQueued.CanTransitionTo(StateExpired))
	assert.True(t, StateProcessing.CanTransitionTo(StateCompleted))
	assert.True(t, StateQueued.CanTransitionTo(StateCompleted))
	assert.True(t, RequestState("").CanTransitionTo(StateQueued))
	assert.False(t, StateProcessing.CanTransitionTo(StateQueued))
	assert.False(t, StateQueued.CanTransitionTo(""))

	for _, terminal := range []RequestState{StateCompleted, StateFailed, StateExpired} {
		assert.True(t, terminal.Terminal())
		assert.False(t, terminal.CanTransitionTo(StateQueued))
		assert.False(t, terminal.CanTransitionTo(StateProcessing))
		assert.False(t, terminal.CanTransitionTo(StateFailed))
		assert.Equal(t, int64(3), terminal.Sequence())
	}
}

func TestUnitHasFeatures(t *testing.T) {
	u := &ResourceUnit{Features: []string{"charging", "accessible"}}
	assert.True(t, u.HasFeatures(nil))
	assert.True(t, u.HasFeatures([]string{"charging"}))
	assert.False(t, u.HasFeatures([]string{"charging", "covered"}))
}
