package validator

import (
	"errors"
	"testing"
	"time"

	reserrors "parkline/internal/reservations/errors"
	"parkline/pkg/clock"
	"parkline/pkg/logger"
	"parkline/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func newValidator() *ReservationValidator {
	return NewReservationValidator(logger.Discard(), clock.NewManual(now), 12*time.Hour)
}

func validRequest() *model.ReservationRequest {
	return &model.ReservationRequest{
		ID:             "req-1",
		RequesterID:    "driver-1",
		PoolID:         "lot-a",
		StartTime:      now.Add(time.Hour),
		EndTime:        now.Add(2 * time.Hour),
		Priority:       model.PriorityNormal,
		Features:       []string{"charging"},
		MaxWaitSeconds: 60,
	}
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, newValidator().Validate(validRequest()))
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ReservationRequest)
		field  string
	}{
		{"missing id", func(r *model.ReservationRequest) { r.ID = "" }, "ID"},
		{"missing pool", func(r *model.ReservationRequest) { r.PoolID = "" }, "PoolID"},
		{"unknown priority", func(r *model.ReservationRequest) { r.Priority = "urgent" }, "Priority"},
		{"bad feature", func(r *model.ReservationRequest) { r.Features = []string{"Has Charger!"} }, "Features[0]"},
		{"negative max wait", func(r *model.ReservationRequest) { r.MaxWaitSeconds = -1 }, "MaxWaitSeconds"},
		{"end before start", func(r *model.ReservationRequest) { r.EndTime = r.StartTime.Add(-time.Minute) }, "EndTime"},
		{"empty window", func(r *model.ReservationRequest) { r.EndTime = r.StartTime }, "EndTime"},
		{"window in the past", func(r *model.ReservationRequest) {
			r.StartTime = now.Add(-2 * time.Hour)
			r.EndTime = now.Add(-time.Hour)
		}, "StartTime"},
		{"too long", func(r *model.ReservationRequest) { r.EndTime = r.StartTime.Add(13 * time.Hour) }, "EndTime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			err := newValidator().Validate(req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, reserrors.ErrInvalidRequest))
			assert.Equal(t, reserrors.KindValidation, reserrors.KindOf(err))

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidate_StartingNowIsAccepted(t *testing.T) {
	req := validRequest()
	req.StartTime = now.Add(-10 * time.Second)
	req.EndTime = now.Add(time.Hour)
	assert.NoError(t, newValidator().Validate(req))
}
