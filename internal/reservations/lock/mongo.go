package lock

import (
	"context"
	"fmt"
	"time"

	"parkline/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const CollectionName = "coordination_locks"

// MongoLocker keeps one document per held pool lock. A unique _id gives set-if-absent,
// and a TTL index on expires_at removes locks whose holder died.
type MongoLocker struct {
	collection *mongo.Collection
	opts       options
}

func NewMongoLocker(db *mongo.Database, opts ...Option) *MongoLocker {
	return &MongoLocker{
		collection: db.Collection(CollectionName),
		opts:       newOptions(opts),
	}
}

func (l *MongoLocker) Acquire(ctx context.Context, poolID string, timeout, ttl time.Duration) (*model.LockHandle, error) {
	return acquire(ctx, l.opts, "mongo", poolID, timeout, ttl, l.try)
}

func (l *MongoLocker) try(ctx context.Context, h *model.LockHandle, _ time.Duration) (bool, error) {
	_, err := l.collection.InsertOne(ctx, h)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, err
	}

	// The TTL monitor runs about once a minute, so take over an expired lock explicitly.
	res, err := l.collection.UpdateOne(ctx,
		bson.M{"_id": h.Key, "expires_at": bson.M{"$lte": h.CreatedAt}},
		bson.M{"$set": bson.M{
			"token":      h.Token,
			"expires_at": h.ExpiresAt,
			"created_at": h.CreatedAt,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (l *MongoLocker) Release(ctx context.Context, poolID, token string) (bool, error) {
	ctx, cancel := releaseContext(ctx)
	defer cancel()

	res, err := l.collection.DeleteOne(ctx, bson.M{"_id": l.opts.key(poolID), "token": token})
	if err != nil {
		return false, fmt.Errorf("failed to release lock for pool %s: %w", poolID, err)
	}
	return res.DeletedCount == 1, nil
}

func (l *MongoLocker) Ping(ctx context.Context) error {
	return l.collection.Database().Client().Ping(ctx, nil)
}
