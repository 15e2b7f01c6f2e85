package client

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

const defaultHealthWait = 30 * time.Second

type BookingClient struct {
	httpClient *HttpClient
}

func NewBookingClient(baseUrl string) *BookingClient {
	return &BookingClient{
		httpClient: NewHttpClient(baseUrl),
	}
}

func (c *BookingClient) GetByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/bookings/"+url.PathEscape(id))
}

// ListByUnit filters by window when both from and to are non-zero.
func (c *BookingClient) ListByUnit(ctx context.Context, unitID string, from, to time.Time, limit int, offset int64) (*Response, error) {
	q := url.Values{}
	if !from.IsZero() && !to.IsZero() {
		q.Set("from", from.UTC().Format(time.RFC3339))
		q.Set("to", to.UTC().Format(time.RFC3339))
	}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("offset", fmt.Sprintf("%d", offset))

	path := "/api/v1/units/" + url.PathEscape(unitID) + "/bookings?" + q.Encode()
	return c.httpClient.GET(ctx, path)
}

func (c *BookingClient) CheckIn(ctx context.Context, id string) (*Response, error) {
	return c.transition(ctx, id, "check-in")
}

func (c *BookingClient) Complete(ctx context.Context, id string) (*Response, error) {
	return c.transition(ctx, id, "complete")
}

func (c *BookingClient) Cancel(ctx context.Context, id string) (*Response, error) {
	return c.transition(ctx, id, "cancel")
}

func (c *BookingClient) transition(ctx context.Context, id, action string) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/bookings/"+url.PathEscape(id)+"/"+action, nil)
}
