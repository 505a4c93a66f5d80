package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in whole currency units. The peso has no minor unit in
// circulation, so amounts are exact integers and render with two zero
// decimals to match the stored NUMERIC(12,2) column.
type Money int64

func (m Money) String() string {
	return strconv.FormatInt(int64(m), 10) + ".00"
}

func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalText(b []byte) error {
	s := strings.TrimSuffix(string(b), ".00")
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid money %q: %w", b, err)
	}
	*m = Money(v)
	return nil
}
