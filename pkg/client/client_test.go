package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	apperrors "parkline/pkg/errors"
	"parkline/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method      string
	Path        string
	Query       string
	ContentType string
	RequesterID string
	Body        string
}

type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

func newRecorder(t *testing.T, status int, body string) (*recorder, *httptest.Server) {
	t.Helper()
	rec := &recorder{status: status, body: body}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.EscapedPath(),
			Query:       r.URL.RawQuery,
			ContentType: r.Header.Get("Content-Type"),
			RequesterID: r.Header.Get(requesterHeader),
			Body:        string(raw),
		})
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rec.status)
		_, _ = io.WriteString(w, rec.body)
	}))
	t.Cleanup(srv.Close)
	return rec, srv
}

func (r *recorder) last() recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[len(r.requests)-1]
}

func TestReservationClient(t *testing.T) {
	ctx := context.Background()
	rec, srv := newRecorder(t, http.StatusAccepted, `{"data":{"request_id":"r1","state":"queued","position":3}}`)
	c := NewReservationClient(srv.URL, "driver-7")

	resp, err := c.Submit(ctx, map[string]any{"pool_id": "lot-a"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	req := rec.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/v1/reservations", req.Path)
	assert.Equal(t, "application/json", req.ContentType)
	assert.Equal(t, "driver-7", req.RequesterID)
	assert.JSONEq(t, `{"pool_id":"lot-a"}`, req.Body)

	var result struct {
		RequestID string `json:"request_id"`
		Position  int    `json:"position"`
	}
	require.NoError(t, resp.DecodeData(&result))
	assert.Equal(t, "r1", result.RequestID)
	assert.Equal(t, 3, result.Position)

	_, err = c.GetStatus(ctx, "r/1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, rec.last().Method)
	assert.Equal(t, "/api/v1/reservations/r%2F1", rec.last().Path)

	_, err = c.Cancel(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, rec.last().Method)
	assert.Empty(t, rec.last().ContentType)

	_, err = c.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/queue/stats", rec.last().Path)
}

func TestBookingClient(t *testing.T) {
	ctx := context.Background()
	rec, srv := newRecorder(t, http.StatusOK, `{"data":{}}`)
	c := NewBookingClient(srv.URL)

	transitions := map[string]func(context.Context, string) (*Response, error){
		"check-in": c.CheckIn,
		"complete": c.Complete,
		"cancel":   c.Cancel,
	}
	for action, fn := range transitions {
		_, err := fn(ctx, "b1")
		require.NoError(t, err)
		req := rec.last()
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/api/v1/bookings/b1/"+action, req.Path)
		assert.Empty(t, req.Body)
	}

	from := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	_, err := c.ListByUnit(ctx, "u1", from, from.Add(time.Hour), 20, 40)
	require.NoError(t, err)
	req := rec.last()
	assert.Equal(t, "/api/v1/units/u1/bookings", req.Path)
	assert.Equal(t, "from=2030-05-01T10%3A00%3A00Z&limit=20&offset=40&to=2030-05-01T11%3A00%3A00Z", req.Query)

	_, err = c.ListByUnit(ctx, "u1", time.Time{}, time.Time{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "limit=10&offset=0", rec.last().Query)
}

func TestUnitClient(t *testing.T) {
	ctx := context.Background()
	rec, srv := newRecorder(t, http.StatusOK, `{"data":[]}`)
	c := NewUnitClient(srv.URL)

	_, err := c.ListByPool(ctx, "lot-a", "available", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/pools/lot-a/units", rec.last().Path)
	assert.Equal(t, "limit=10&offset=0&status=available", rec.last().Query)

	_, err = c.UpdateStatus(ctx, "u1", map[string]any{"status": "out_of_service", "expected_version": 2})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, rec.last().Method)
	assert.Equal(t, "/api/v1/units/u1/status", rec.last().Path)
}

func TestGetErrorMessage(t *testing.T) {
	body, err := json.Marshal(map[string]string{"code": "VERSION_CONFLICT", "message": "unit u1 changed"})
	require.NoError(t, err)

	assert.Equal(t, "unit u1 changed", GetErrorMessage(&Response{Body: body}))
	assert.Equal(t, "NOT_FOUND", GetErrorMessage(&Response{Body: []byte(`{"code":"NOT_FOUND"}`)}))
	assert.Contains(t, GetErrorMessage(&Response{Body: []byte(`not json`)}), "failed to unmarshal error")
}

func TestDecodeData_MissingEnvelope(t *testing.T) {
	var v map[string]any
	err := (&Response{Body: []byte(`{"code":"X"}`)}).DecodeData(&v)
	assert.Error(t, err)
}

func TestWaitForHealthy(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		_, srv := newRecorder(t, http.StatusOK, `{"status":"ok"}`)
		c := NewHttpClient(srv.URL)
		require.NoError(t, c.WaitForHealthy(context.Background(), time.Second))
	})

	t.Run("never healthy", func(t *testing.T) {
		_, srv := newRecorder(t, http.StatusServiceUnavailable, `{}`)
		c := NewHttpClient(srv.URL)
		err := c.WaitForHealthy(context.Background(), 100*time.Millisecond)
		assert.Error(t, err)
	})
}

func TestAwaitOutcome(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		polls++
		n := polls
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if n < 3 {
			_, _ = io.WriteString(w, `{"data":{"request_id":"r1","pool_id":"lot-a","state":"queued","position":1}}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":{"request_id":"r1","pool_id":"lot-a","state":"failed","reason":"no_availability"}}`)
	}))
	t.Cleanup(srv.Close)

	c := NewReservationClient(srv.URL, "driver-7")
	st, err := c.AwaitOutcome(context.Background(), "r1", time.Millisecond)
	require.NotNil(t, st)
	assert.Equal(t, model.StateFailed, st.State)
	mu.Lock()
	assert.Equal(t, 3, polls)
	mu.Unlock()

	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeNoAvailability, appErr.Code)
	assert.Equal(t, "lot-a", appErr.Details["pool_id"])
}

func TestAwaitOutcome_UnknownRequest(t *testing.T) {
	_, srv := newRecorder(t, http.StatusNotFound, `{"code":"NOT_FOUND","message":"Reservation request with ID r9 not found"}`)
	c := NewReservationClient(srv.URL, "driver-7")

	st, err := c.AwaitOutcome(context.Background(), "r9", time.Millisecond)
	assert.Nil(t, st)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode())
}

func TestAwaitOutcome_ContextDone(t *testing.T) {
	_, srv := newRecorder(t, http.StatusOK, `{"data":{"request_id":"r1","state":"processing"}}`)
	c := NewReservationClient(srv.URL, "driver-7")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.AwaitOutcome(ctx, "r1", 5*time.Millisecond)
	assert.Error(t, err)
}

func TestOutcomeError(t *testing.T) {
	tests := []struct {
		name string
		st   model.RequestStatus
		code string
	}{
		{"completed", model.RequestStatus{State: model.StateCompleted, BookingID: "b1"}, ""},
		{"expired", model.RequestStatus{State: model.StateExpired}, apperrors.CodeExpired},
		{"lock timeout", model.RequestStatus{State: model.StateFailed, Reason: "lock_timeout"}, apperrors.CodeLockTimeout},
		{"contention", model.RequestStatus{State: model.StateFailed, Reason: "contention"}, apperrors.CodeLockTimeout},
		{"no availability", model.RequestStatus{State: model.StateFailed, Reason: "no_availability"}, apperrors.CodeNoAvailability},
		{"version conflict", model.RequestStatus{State: model.StateFailed, Reason: "version_conflict"}, apperrors.CodeVersionConflict},
		{"cancelled", model.RequestStatus{State: model.StateFailed, Reason: "cancelled"}, apperrors.CodeConflict},
		{"storage failure", model.RequestStatus{State: model.StateFailed, Reason: "storage_failure"}, apperrors.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := OutcomeError(&tt.st)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.code, apperrors.AsAppError(err).Code)
		})
	}
}
