package events

import (
	"context"
	"strconv"
	"time"

	"parkline/pkg/kafka"

	"github.com/patrickmn/go-cache"
)

const DefaultDedupWindow = 24 * time.Hour

// Deduplicator remembers (aggregate id, version) pairs for a window so
// redelivered events are handled once.
type Deduplicator struct {
	seen *cache.Cache
}

func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Deduplicator{seen: cache.New(window, window/4)}
}

func dedupKey(aggregateID string, version int64) string {
	return aggregateID + "@" + strconv.FormatInt(version, 10)
}

// Claim returns false if the pair was already claimed inside the window.
func (d *Deduplicator) Claim(aggregateID string, version int64) bool {
	return d.seen.Add(dedupKey(aggregateID, version), struct{}{}, cache.DefaultExpiration) == nil
}

// Forget drops a claim so a failed handling attempt can be retried.
func (d *Deduplicator) Forget(aggregateID string, version int64) {
	d.seen.Delete(dedupKey(aggregateID, version))
}

// Handler decodes bus messages into events and calls next once per (aggregate id, version).
func (d *Deduplicator) Handler(next func(ctx context.Context, ev Event) error) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		ev, err := DecodeMessage(msg)
		if err != nil {
			return err
		}
		if !d.Claim(ev.AggregateID, ev.Version) {
			return nil
		}
		if err := next(ctx, ev); err != nil {
			d.Forget(ev.AggregateID, ev.Version)
			return err
		}
		return nil
	}
}
