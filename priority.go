package throttle

import (
	"fmt"
	"strconv"
	"strings"
)

// Priority orders waiting tasks. Higher values start first. Any integer is a
// valid priority, including negative values; the named levels in
// [Priorities] are conveniences.
type Priority int

// ParsePriority creates a new [Priority] from the given value. Strings may
// name a level from [Priorities] or hold a decimal integer.
func ParsePriority(p any) (Priority, error) {
	switch v := p.(type) {
	case Priority:
		return v, nil
	case int:
		return Priority(v), nil
	case int64:
		return Priority(int(v)), nil
	case int32:
		return Priority(int(v)), nil
	case string:
		return stringToPriority(v)
	case fmt.Stringer:
		return stringToPriority(v.String())
	default:
		return Priorities.Normal, fmt.Errorf("throttle: unsupported priority type %T", p)
	}
}

func (p Priority) String() string {
	if s, ok := strPriorityMap[p]; ok {
		return s
	}
	return strconv.Itoa(int(p))
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := stringToPriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// UnmarshalYAML accepts both named levels and plain integers.
func (p *Priority) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := ParsePriority(raw)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Priorities is a more typical enum like structure from other languages, ported
// to Go. It may be used to reference a [Priority] value by name.
var Priorities = priorityContainer{
	Lowest:  -20,
	Low:     -10,
	Normal:  0,
	High:    10,
	Highest: 20,
}

// All returns all named priorities in ascending order.
func (c priorityContainer) All() []Priority {
	return []Priority{c.Lowest, c.Low, c.Normal, c.High, c.Highest}
}

var (
	strPriorityMap = map[Priority]string{
		-20: "lowest",
		-10: "low",
		0:   "normal",
		10:  "high",
		20:  "highest",
	}

	typePriorityMap = map[string]Priority{
		"lowest":  -20,
		"low":     -10,
		"normal":  0,
		"high":    10,
		"highest": 20,
	}
)

func stringToPriority(s string) (Priority, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if v, ok := typePriorityMap[s]; ok {
		return v, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Priorities.Normal, fmt.Errorf("throttle: invalid priority %q", s)
	}
	return Priority(n), nil
}

type priorityContainer struct {
	Lowest  Priority
	Low     Priority
	Normal  Priority
	High    Priority
	Highest Priority
}
