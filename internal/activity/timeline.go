package activity

import (
	"sort"
	"time"

	"benchline/internal/domain"
)

// Day is one calendar day of a timeline.
type Day struct {
	Date    string                 `json:"date" format:"date"`
	Entries []domain.ActivityEntry `json:"entries"`
}

// GroupByDay buckets entries by calendar day in loc, oldest day first, keeping
// timestamp order within a day. Entries with unparseable timestamps land under "unknown".
func GroupByDay(entries []domain.ActivityEntry, loc *time.Location) []Day {
	if loc == nil {
		loc = time.UTC
	}
	sorted := append([]domain.ActivityEntry{}, entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TS == sorted[j].TS {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].TS < sorted[j].TS
	})
	var days []Day
	index := map[string]int{}
	for _, e := range sorted {
		key := "unknown"
		if ts, err := time.Parse(time.RFC3339, e.TS); err == nil {
			key = ts.In(loc).Format("2006-01-02")
		}
		i, ok := index[key]
		if !ok {
			i = len(days)
			index[key] = i
			days = append(days, Day{Date: key})
		}
		days[i].Entries = append(days[i].Entries, e)
	}
	return days
}
