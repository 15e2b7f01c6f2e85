package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	reserrors "parkline/internal/reservations/errors"
	apperrors "parkline/pkg/errors"
	"parkline/pkg/model"
)

const defaultOutcomePoll = 250 * time.Millisecond

type ReservationClient struct {
	httpClient *HttpClient
}

func NewReservationClient(baseUrl, requesterID string) *ReservationClient {
	c := NewHttpClient(baseUrl)
	c.RequesterID = requesterID
	return &ReservationClient{httpClient: c}
}

func (c *ReservationClient) Submit(ctx context.Context, body any) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/reservations", body)
}

func (c *ReservationClient) GetStatus(ctx context.Context, requestID string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/reservations/"+url.PathEscape(requestID))
}

func (c *ReservationClient) Cancel(ctx context.Context, requestID string) (*Response, error) {
	return c.httpClient.DELETE(ctx, "/api/v1/reservations/"+url.PathEscape(requestID))
}

func (c *ReservationClient) QueueStats(ctx context.Context) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/queue/stats")
}

func (c *ReservationClient) WaitForHealthy(ctx context.Context) error {
	return c.httpClient.WaitForHealthy(ctx, defaultHealthWait)
}

// AwaitOutcome polls the status of requestID until it reaches a terminal state.
// The status is always returned once terminal; the error is non-nil unless the
// request completed (see OutcomeError).
func (c *ReservationClient) AwaitOutcome(ctx context.Context, requestID string, interval time.Duration) (*model.RequestStatus, error) {
	if interval <= 0 {
		interval = defaultOutcomePoll
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		resp, err := c.GetStatus(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			var body struct {
				Code string `json:"code"`
			}
			_ = resp.DecodeJSON(&body)
			return nil, apperrors.New(body.Code, GetErrorMessage(resp), resp.StatusCode)
		}

		var st model.RequestStatus
		if err := resp.DecodeData(&st); err != nil {
			return nil, fmt.Errorf("failed to decode status for %s: %w", requestID, err)
		}
		if st.State.Terminal() {
			return &st, OutcomeError(&st)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// OutcomeError converts a terminal failure into the matching domain error.
func OutcomeError(st *model.RequestStatus) error {
	if st.State == model.StateExpired {
		return apperrors.Expired(orDefault(st.Message, "reservation request expired before processing"))
	}
	if st.State != model.StateFailed {
		return nil
	}

	switch reserrors.Kind(st.Reason) {
	case reserrors.KindLockTimeout, reserrors.KindContention:
		return apperrors.LockTimeout(st.PoolID)
	case reserrors.KindNoAvailability:
		return apperrors.NoAvailability(st.PoolID)
	case reserrors.KindVersionConflict:
		return apperrors.New(apperrors.CodeVersionConflict, orDefault(st.Message, "a unit changed during allocation"), http.StatusConflict)
	case reserrors.KindDuplicate, reserrors.KindCancelled:
		return apperrors.Conflict(orDefault(st.Message, "reservation request was "+st.Reason))
	default:
		return apperrors.Internal(orDefault(st.Message, "allocation failed"), nil)
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
