package client

import (
	"context"
	"fmt"
	"net/url"
)

type UnitClient struct {
	httpClient *HttpClient
}

func NewUnitClient(baseUrl string) *UnitClient {
	return &UnitClient{
		httpClient: NewHttpClient(baseUrl),
	}
}

func (c *UnitClient) GetByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/units/"+url.PathEscape(id))
}

// ListByPool skips the status filter when status is empty.
func (c *UnitClient) ListByPool(ctx context.Context, poolID, status string, limit int, offset int64) (*Response, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("offset", fmt.Sprintf("%d", offset))

	path := "/api/v1/pools/" + url.PathEscape(poolID) + "/units?" + q.Encode()
	return c.httpClient.GET(ctx, path)
}

func (c *UnitClient) UpdateStatus(ctx context.Context, id string, body any) (*Response, error) {
	return c.httpClient.PATCH(ctx, "/api/v1/units/"+url.PathEscape(id)+"/status", body)
}
