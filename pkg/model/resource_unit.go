package model

import (
	"slices"
	"time"
)

type UnitStatus string

const (
	UnitAvailable    UnitStatus = "available"
	UnitReserved     UnitStatus = "reserved"
	UnitOccupied     UnitStatus = "occupied"
	UnitOutOfService UnitStatus = "out_of_service"
)

func (s UnitStatus) Valid() bool {
	switch s {
	case UnitAvailable, UnitReserved, UnitOccupied, UnitOutOfService:
		return true
	}
	return false
}

type ResourceUnit struct {
	ID          string     `json:"id"`
	PoolID      string     `json:"pool_id"`
	Status      UnitStatus `json:"status"`
	Version     int64      `json:"version"`
	Features    []string   `json:"features"`
	OccupantRef *string    `json:"occupant_ref,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// HasFeatures reports whether the unit carries every requested feature flag.
func (u *ResourceUnit) HasFeatures(required []string) bool {
	for _, f := range required {
		if !slices.Contains(u.Features, f) {
			return false
		}
	}
	return true
}

type UnitStatusUpdate struct {
	Status          UnitStatus `json:"status" validate:"required,oneof=available out_of_service"`
	ExpectedVersion int64      `json:"expected_version" validate:"gte=1"`
}
