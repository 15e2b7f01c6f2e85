package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"parkline/pkg/model"
)

const KeyPrefix = "parkline:status:"

// Store holds the TTL-bounded RequestStatus entries polled by callers.
type Store interface {
	Put(ctx context.Context, status *model.RequestStatus, ttl time.Duration) error
	// PutIfAbsent writes status only when no entry exists for the request id.
	PutIfAbsent(ctx context.Context, status *model.RequestStatus, ttl time.Duration) (bool, error)
	// Get returns reserrors.ErrNotFound when the entry is missing or expired.
	Get(ctx context.Context, requestID string) (*model.RequestStatus, error)
}

func key(requestID string) string {
	return KeyPrefix + requestID
}

func encode(status *model.RequestStatus) ([]byte, error) {
	if status == nil || status.RequestID == "" {
		return nil, fmt.Errorf("status must carry a request id")
	}
	data, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status for %s: %w", status.RequestID, err)
	}
	return data, nil
}

func decode(requestID string, data []byte) (*model.RequestStatus, error) {
	var status model.RequestStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status for %s: %w", requestID, err)
	}
	return &status, nil
}
