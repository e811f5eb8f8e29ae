package session

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/utils"
)

var ErrInvalidRange = errors.New("invalid date range")

// DateList holds the requested dates in insertion order, without duplicates.
type DateList struct {
	dates []model.Date
}

func NewDateList(dates ...model.Date) *DateList {
	l := &DateList{}
	for _, d := range dates {
		_, _ = l.Add(string(d))
	}
	return l
}

// Add parses s and appends it. It reports false for a date already listed.
func (l *DateList) Add(s string) (bool, error) {
	d, err := model.ParseDate(s)
	if err != nil {
		return false, err
	}
	if l.Contains(d) {
		return false, nil
	}
	l.dates = append(l.dates, d)
	return true, nil
}

// AddBulk adds a comma separated list. Malformed entries are returned, not
// fatal.
func (l *DateList) AddBulk(text string) (added int, rejected []string) {
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ok, err := l.Add(part)
		if err != nil {
			rejected = append(rejected, part)
			continue
		}
		if ok {
			added++
		}
	}
	return added, rejected
}

// AddRange adds start, start+step, ... up to and including end.
func (l *DateList) AddRange(start, end model.Date, stepDays int) (int, error) {
	if _, err := model.ParseDate(string(start)); err != nil {
		return 0, err
	}
	if _, err := model.ParseDate(string(end)); err != nil {
		return 0, err
	}
	if stepDays <= 0 {
		return 0, fmt.Errorf("%w: step must be positive, got %d", ErrInvalidRange, stepDays)
	}
	if end < start {
		return 0, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, start, end)
	}

	added := 0
	for d := start; d <= end; d = d.AddDays(stepDays) {
		if ok, _ := l.Add(string(d)); ok {
			added++
		}
	}
	return added, nil
}

type dateRow struct {
	Date string `csv:"date"`
}

// ImportCSV adds the values of the "date" column of r.
func (l *DateList) ImportCSV(r io.Reader) (added int, rejected []string, err error) {
	var rows []*dateRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return 0, nil, fmt.Errorf("failed to read date list: %w", err)
	}
	for _, row := range rows {
		value := strings.TrimSpace(row.Date)
		if value == "" {
			continue
		}
		ok, err := l.Add(value)
		if err != nil {
			rejected = append(rejected, value)
			continue
		}
		if ok {
			added++
		}
	}
	return added, rejected, nil
}

func (l *DateList) Remove(d model.Date) bool {
	for i, existing := range l.dates {
		if existing == d {
			l.dates = append(l.dates[:i], l.dates[i+1:]...)
			return true
		}
	}
	return false
}

func (l *DateList) Clear() { l.dates = nil }

func (l *DateList) Contains(d model.Date) bool {
	for _, existing := range l.dates {
		if existing == d {
			return true
		}
	}
	return false
}

func (l *DateList) Len() int { return len(l.dates) }

// Dates returns a copy in insertion order.
func (l *DateList) Dates() []model.Date {
	return append([]model.Date(nil), l.dates...)
}

func (l *DateList) Sorted() []model.Date {
	return utils.SortDates(l.Dates(), true)
}
