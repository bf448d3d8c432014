package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrInvalidNumber = errors.New("invalid number")
	ErrInvalidDate   = errors.New("invalid date")
)

type State int

const (
	Absent State = iota
	Invalid
	Valid
)

// Number is an optional numeric cell. Only Valid carries a value.
type Number struct {
	State State
	Value float64
	Raw   string
}

func ParseNumber(raw string) Number {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Number{State: Absent}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{State: Invalid, Raw: raw}
	}
	return Number{State: Valid, Value: v, Raw: raw}
}

func (n Number) Present() bool {
	return n.State == Valid
}

// check returns a descriptive error for an Invalid cell.
func (n Number) check(field string) error {
	if n.State == Invalid {
		return fmt.Errorf("%s %q: %w", field, n.Raw, ErrInvalidNumber)
	}
	return nil
}

// splitPair splits "a,b" cells. Anything other than exactly two parts is treated as absent.
func splitPair(raw string) (string, string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", "", false
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}
