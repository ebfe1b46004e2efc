package model

import "fmt"

// ConsistencyLevel selects the freshness guarantee for a routed read
type ConsistencyLevel string

const (
	// ConsistencyStrong routes to the primary and bypasses the cache
	ConsistencyStrong ConsistencyLevel = "strong"
	// ConsistencyEventual allows cached responses and bounded-lag replicas
	ConsistencyEventual ConsistencyLevel = "eventual"
)

// ParseConsistencyLevel parses a wire-level consistency string.
// Empty input returns the supplied default.
func ParseConsistencyLevel(s string, def ConsistencyLevel) (ConsistencyLevel, error) {
	switch ConsistencyLevel(s) {
	case "":
		return def, nil
	case ConsistencyStrong:
		return ConsistencyStrong, nil
	case ConsistencyEventual:
		return ConsistencyEventual, nil
	default:
		return "", fmt.Errorf("unknown consistency level %q", s)
	}
}

// Valid reports whether the level is one of the defined values
func (c ConsistencyLevel) Valid() bool {
	return c == ConsistencyStrong || c == ConsistencyEventual
}
