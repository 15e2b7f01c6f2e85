package model

import "time"

// LockHandle is a held coordination lock. Only the holder of Token may release it
// before ExpiresAt.
type LockHandle struct {
	Key       string    `bson:"_id" json:"key"`
	Token     string    `bson:"token" json:"token"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func (h *LockHandle) Expired(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}
