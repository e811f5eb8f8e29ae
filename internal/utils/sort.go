package utils

import (
	"sort"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
)

// SortDates sorts in place and returns dates for chaining.
func SortDates(dates []model.Date, asc bool) []model.Date {
	sort.Slice(dates, func(i, j int) bool {
		if asc {
			return dates[i] < dates[j]
		}
		return dates[i] > dates[j]
	})
	return dates
}

func GetSortedKeys[T any](m map[model.Date]T, asc bool) []model.Date {
	keys := make([]model.Date, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	return SortDates(keys, asc)
}
