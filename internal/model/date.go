package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// Date is a calendar date in YYYY-MM-DD form. Two dates are the same date
// only when their strings match exactly.
type Date string

func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("%w %q: use YYYY-MM-DD", ErrInvalidDate, s)
	}
	return Date(s), nil
}

func DateOf(t time.Time) Date {
	return Date(t.UTC().Format(DateLayout))
}

// Time returns midnight UTC of the date. The zero time is returned for a
// malformed value.
func (d Date) Time() time.Time {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// DaysBetween returns the absolute number of whole days between a and b.
func DaysBetween(a, b Date) int {
	diff := a.Time().Sub(b.Time()).Hours() / 24
	if diff < 0 {
		diff = -diff
	}
	return int(diff + 0.5)
}

func (d Date) String() string {
	return string(d)
}

func (d Date) IsZero() bool {
	return d == ""
}
