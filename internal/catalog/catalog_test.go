package catalog

import (
	"testing"
	"time"

	"github.com/huanchen1107/TawinCWA/internal/models"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		provider models.Provider
		id       string
		want     Category
	}{
		{models.ProviderCWA, "F-C0032-001", CategoryForecast},
		{models.ProviderCWA, "O-A0003-001", CategoryObservation},
		{models.ProviderCWA, "E-A0015-001", CategoryEarthquake},
		{models.ProviderCWA, "X-unknown", CategoryStatistical},
		{models.ProviderDataGov, "rainfall-daily", CategoryStatistical},
		{models.ProviderCensus, "2020/dec/pl", CategoryStatistical},
	}
	for _, tt := range tests {
		if got := Categorize(tt.provider, tt.id); got != tt.want {
			t.Errorf("Categorize(%s, %s) = %s, want %s", tt.provider, tt.id, got, tt.want)
		}
	}
}

func TestTTL(t *testing.T) {
	if got := TTL(models.ProviderCWA, "O-A0003-001", nil); got != 10*time.Minute {
		t.Errorf("observation default TTL = %v", got)
	}

	overrides := map[Category]time.Duration{CategoryObservation: time.Minute}
	if got := TTL(models.ProviderCWA, "O-A0003-001", overrides); got != time.Minute {
		t.Errorf("overridden TTL = %v", got)
	}

	// A zero override falls back to the default.
	overrides[CategoryObservation] = 0
	if got := TTL(models.ProviderCWA, "O-A0003-001", overrides); got != 10*time.Minute {
		t.Errorf("zero override TTL = %v", got)
	}
}

func TestDatasetsSortedAndStable(t *testing.T) {
	first := Datasets()
	if len(first) == 0 {
		t.Fatal("empty catalog")
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].ID > first[i].ID {
			t.Errorf("catalog not sorted at %d: %s > %s", i, first[i-1].ID, first[i].ID)
		}
	}

	// Mutating the returned slice must not touch the registry.
	first[0].Title = "mutated"
	second := Datasets()
	if second[0].Title == "mutated" {
		t.Error("Datasets returned shared backing storage")
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		category string
		q        string
		want     int
	}{
		{"no filters returns all", "", "", "", len(Datasets())},
		{"by category", "", "earthquake", "", 2},
		{"by query on title", "", "", "tide", 1},
		{"query matches id", "", "", "f-c0032", 1},
		{"unknown provider", "noaa", "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(tt.provider, tt.category, tt.q)
			if len(got) != tt.want {
				t.Errorf("Filter(%q, %q, %q) = %d datasets, want %d", tt.provider, tt.category, tt.q, len(got), tt.want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	ds, ok := Lookup(models.ProviderCWA, "F-C0032-001")
	if !ok || ds.Category != string(CategoryForecast) {
		t.Errorf("Lookup(F-C0032-001) = %+v, %v", ds, ok)
	}
	if _, ok := Lookup(models.ProviderCWA, "nope"); ok {
		t.Error("expected lookup miss")
	}
}
