package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parkline/internal/bookings/service"
	apperrors "parkline/pkg/errors"
	"parkline/pkg/logger"
	"parkline/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBookingService struct {
	service.BookingService
	called    string
	gotWindow *model.TimeWindow
	err       error
}

func (f *fakeBookingService) GetByID(_ context.Context, id string) (*model.Booking, error) {
	f.called = "get"
	if f.err != nil {
		return nil, f.err
	}
	return &model.Booking{ID: id, Status: model.BookingConfirmed}, nil
}

func (f *fakeBookingService) ListByUnit(_ context.Context, unitID string, window *model.TimeWindow, limit int, offset int64) ([]*model.Booking, error) {
	f.called = "list"
	f.gotWindow = window
	return []*model.Booking{}, f.err
}

func (f *fakeBookingService) step(name string, status model.BookingStatus) (*model.Booking, error) {
	f.called = name
	if f.err != nil {
		return nil, f.err
	}
	return &model.Booking{ID: "bk-1", Status: status}, nil
}

func (f *fakeBookingService) CheckIn(context.Context, string) (*model.Booking, error) {
	return f.step("check-in", model.BookingActive)
}

func (f *fakeBookingService) Complete(context.Context, string) (*model.Booking, error) {
	return f.step("complete", model.BookingCompleted)
}

func (f *fakeBookingService) Cancel(context.Context, string) (*model.Booking, error) {
	return f.step("cancel", model.BookingCancelled)
}

func serve(svc *fakeBookingService, method, path string) *httptest.ResponseRecorder {
	router := httprouter.New()
	NewBookingHandler(svc, logger.Discard()).RegisterRoutes(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestTransitions(t *testing.T) {
	for _, step := range []string{"check-in", "complete", "cancel"} {
		t.Run(step, func(t *testing.T) {
			svc := &fakeBookingService{}
			rec := serve(svc, http.MethodPost, "/api/v1/bookings/bk-1/"+step)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, step, svc.called)
		})
	}
}

func TestTransition_Conflict(t *testing.T) {
	svc := &fakeBookingService{err: apperrors.Conflict("cannot complete a confirmed booking")}
	rec := serve(svc, http.MethodPost, "/api/v1/bookings/bk-1/complete")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetByID(t *testing.T) {
	rec := serve(&fakeBookingService{}, http.MethodGet, "/api/v1/bookings/bk-1")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListByUnit_Window(t *testing.T) {
	svc := &fakeBookingService{}
	rec := serve(svc, http.MethodGet, "/api/v1/units/spot-1/bookings?from=2030-01-01T00:00:00Z&to=2030-01-02T00:00:00Z")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.gotWindow)
	assert.Equal(t, 24*time.Hour, svc.gotWindow.Duration())

	svc = &fakeBookingService{}
	rec = serve(svc, http.MethodGet, "/api/v1/units/spot-1/bookings")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.gotWindow)
}

func TestListByUnit_BadWindow(t *testing.T) {
	tests := []string{
		"/api/v1/units/spot-1/bookings?from=2030-01-01T00:00:00Z",
		"/api/v1/units/spot-1/bookings?from=yesterday&to=2030-01-02T00:00:00Z",
	}
	for _, path := range tests {
		svc := &fakeBookingService{}
		rec := serve(svc, http.MethodGet, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Empty(t, svc.called)
	}
}
