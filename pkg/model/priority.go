package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Priority orders requests in the queue. Higher values are served first;
// requests of equal priority are served in arrival order. The zero value
// is not a valid priority, so an unset options field can fall back to the
// default.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	// PriorityHighest additionally exempts a request from preemption
	// once it is in flight.
	PriorityHighest
)

// DefaultPriority is assigned when a request does not specify one.
const DefaultPriority = PriorityMedium

var priorityNames = map[Priority]string{
	PriorityLow:     "LOW",
	PriorityMedium:  "MEDIUM",
	PriorityHigh:    "HIGH",
	PriorityHighest: "HIGHEST",
}

// String returns the string representation of the priority.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PRIORITY(%d)", int(p))
}

// Valid returns true for the four defined priority levels.
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriority converts a case-insensitive priority name to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return PriorityLow, nil
	case "MEDIUM", "":
		return PriorityMedium, nil
	case "HIGH":
		return PriorityHigh, nil
	case "HIGHEST":
		return PriorityHighest, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// MarshalJSON encodes the priority as its name.
func (p Priority) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid priority %d", int(p))
	}
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a priority from its name.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
