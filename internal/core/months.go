package core

import (
	"fmt"
	"strconv"
	"strings"
)

// MonthIndex is a zero-based calendar month: 0 is January, 11 is December.
// The finance service speaks one-based month numbers; convert with Number
// and MonthFromNumber at that boundary only.
type MonthIndex int

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

func (m MonthIndex) Valid() bool { return m >= 0 && m < 12 }

// Number is the one-based month used on the wire.
func (m MonthIndex) Number() int { return int(m) + 1 }

func (m MonthIndex) String() string {
	if !m.Valid() {
		return fmt.Sprintf("MonthIndex(%d)", int(m))
	}
	return monthNames[m]
}

// Short is the three-letter English abbreviation, e.g. "Mar".
func (m MonthIndex) Short() string {
	if !m.Valid() {
		return ""
	}
	return monthNames[m][:3]
}

func MonthFromNumber(n int) (MonthIndex, error) {
	if n < 1 || n > 12 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMonth, n)
	}
	return MonthIndex(n - 1), nil
}

// ParseMonthName resolves a month label from the finance service.
// Full names and three-letter abbreviations match case-insensitively;
// numeric labels are read as one-based.
func ParseMonthName(s string) (MonthIndex, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty name", ErrInvalidMonth)
	}
	if n, err := strconv.Atoi(s); err == nil {
		return MonthFromNumber(n)
	}
	for i, name := range monthNames {
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return MonthIndex(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
}

func AllMonths() []MonthIndex {
	out := make([]MonthIndex, 12)
	for i := range out {
		out[i] = MonthIndex(i)
	}
	return out
}
