package activity

import (
	"testing"
	"time"

	"benchline/internal/domain"
)

func TestGroupByDay(t *testing.T) {
	entries := []domain.ActivityEntry{
		{ID: 3, TS: "2024-03-02T08:00:00Z", Action: domain.ActionWorkStarted},
		{ID: 1, TS: "2024-03-01T09:00:00Z", Action: domain.ActionOrderCreated},
		{ID: 2, TS: "2024-03-01T09:00:00Z", Action: domain.ActionStageEntered},
		{ID: 4, TS: "2024-03-02T23:30:00Z", Action: domain.ActionDraftSaved},
	}
	days := GroupByDay(entries, nil)
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if days[0].Date != "2024-03-01" || len(days[0].Entries) != 2 || days[0].Entries[0].ID != 1 {
		t.Fatalf("first day = %+v", days[0])
	}
	if days[1].Date != "2024-03-02" || len(days[1].Entries) != 2 {
		t.Fatalf("second day = %+v", days[1])
	}

	tokyo := time.FixedZone("JST", 9*3600)
	days = GroupByDay(entries, tokyo)
	if len(days) != 3 {
		t.Fatalf("zone-aware grouping = %+v", days)
	}
	if days[0].Date != "2024-03-01" || len(days[0].Entries) != 2 {
		t.Fatalf("first JST day = %+v", days[0])
	}
	if days[1].Date != "2024-03-02" || len(days[1].Entries) != 1 || days[1].Entries[0].ID != 3 {
		t.Fatalf("second JST day = %+v", days[1])
	}
	if days[2].Date != "2024-03-03" || len(days[2].Entries) != 1 || days[2].Entries[0].ID != 4 {
		t.Fatalf("third JST day = %+v", days[2])
	}
	if entries[0].ID != 3 {
		t.Fatalf("input slice reordered")
	}
}
