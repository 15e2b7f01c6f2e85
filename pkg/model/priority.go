package model

import (
	"fmt"
	"strings"
)

// Priority is the closed set of admission priorities. Compare values with
// ComparePriority rather than relying on the underlying string.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityVIP       Priority = "vip"
	PriorityEmergency Priority = "emergency"
)

var AllPriorities = []Priority{
	PriorityLow,
	PriorityNormal,
	PriorityHigh,
	PriorityVIP,
	PriorityEmergency,
}

func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityVIP:
		return 3
	case PriorityEmergency:
		return 4
	default:
		return -1
	}
}

func (p Priority) Valid() bool {
	return p.rank() >= 0
}

// AtLeast reports whether p ranks the same as or above other.
func (p Priority) AtLeast(other Priority) bool {
	return ComparePriority(p, other) >= 0
}

func (p Priority) String() string {
	return string(p)
}

// ComparePriority returns -1, 0 or 1 when a ranks below, equal to or above b.
func ComparePriority(a, b Priority) int {
	ra, rb := a.rank(), b.rank()
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PriorityNormal, nil
	}
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}
