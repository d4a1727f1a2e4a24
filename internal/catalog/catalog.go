// Package catalog lists the upstream datasets the service knows how to fetch.
package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/huanchen1107/TawinCWA/internal/models"
)

// Category groups datasets by refresh cadence.
type Category string

const (
	CategoryForecast    Category = "forecast"
	CategoryObservation Category = "observation"
	CategoryEarthquake  Category = "earthquake"
	CategoryStatistical Category = "statistical"
)

// DefaultTTLs hold per-category cache lifetimes; observations churn fastest
// and statistical series barely move.
var DefaultTTLs = map[Category]time.Duration{
	CategoryForecast:    30 * time.Minute,
	CategoryObservation: 10 * time.Minute,
	CategoryEarthquake:  5 * time.Minute,
	CategoryStatistical: 24 * time.Hour,
}

// cwaDatasets is the registry of CWA file-API datasets the service serves.
var cwaDatasets = []models.DatasetInfo{
	{Provider: models.ProviderCWA, ID: "F-A0010-001", Title: "Marine forecast", Category: string(CategoryForecast)},
	{Provider: models.ProviderCWA, ID: "F-C0032-001", Title: "36-hour general weather forecast", Category: string(CategoryForecast)},
	{Provider: models.ProviderCWA, ID: "F-D0047-089", Title: "Township weather forecast", Category: string(CategoryForecast)},
	{Provider: models.ProviderCWA, ID: "F-A0012-001", Title: "Tide forecast", Category: string(CategoryForecast)},
	{Provider: models.ProviderCWA, ID: "F-A0086-001", Title: "Ultraviolet index forecast", Category: string(CategoryForecast)},
	{Provider: models.ProviderCWA, ID: "O-A0001-001", Title: "Automatic weather station observations", Category: string(CategoryObservation)},
	{Provider: models.ProviderCWA, ID: "O-A0003-001", Title: "Manned weather station observations", Category: string(CategoryObservation)},
	{Provider: models.ProviderCWA, ID: "O-A0018-001", Title: "Daily rainfall observations", Category: string(CategoryObservation)},
	{Provider: models.ProviderCWA, ID: "E-A0015-001", Title: "Significant earthquake reports", Category: string(CategoryEarthquake)},
	{Provider: models.ProviderCWA, ID: "E-A0016-001", Title: "Minor earthquake reports", Category: string(CategoryEarthquake)},
}

// Datasets returns the static registry sorted by provider then id.
func Datasets() []models.DatasetInfo {
	out := make([]models.DatasetInfo, len(cwaDatasets))
	copy(out, cwaDatasets)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Filter narrows the registry. Empty arguments match everything; q does a
// case-insensitive substring match on id and title.
func Filter(provider, category, q string) []models.DatasetInfo {
	q = strings.ToLower(q)
	out := make([]models.DatasetInfo, 0, len(cwaDatasets))
	for _, ds := range Datasets() {
		if provider != "" && string(ds.Provider) != provider {
			continue
		}
		if category != "" && ds.Category != category {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(ds.ID), q) && !strings.Contains(strings.ToLower(ds.Title), q) {
			continue
		}
		out = append(out, ds)
	}
	return out
}

// Lookup finds a registry entry by provider and dataset id.
func Lookup(provider models.Provider, id string) (models.DatasetInfo, bool) {
	for _, ds := range cwaDatasets {
		if ds.Provider == provider && ds.ID == id {
			return ds, true
		}
	}
	return models.DatasetInfo{}, false
}

// Categorize infers the refresh category for a dataset. CWA ids encode their
// family in the prefix; everything else is treated as statistical.
func Categorize(provider models.Provider, id string) Category {
	if provider == models.ProviderCWA {
		switch {
		case strings.HasPrefix(id, "F-"):
			return CategoryForecast
		case strings.HasPrefix(id, "O-"):
			return CategoryObservation
		case strings.HasPrefix(id, "E-"):
			return CategoryEarthquake
		}
	}
	return CategoryStatistical
}

// TTL returns the cache lifetime for a dataset, from overrides when set,
// otherwise from the category default.
func TTL(provider models.Provider, id string, overrides map[Category]time.Duration) time.Duration {
	category := Categorize(provider, id)
	if overrides != nil {
		if ttl, ok := overrides[category]; ok && ttl > 0 {
			return ttl
		}
	}
	return DefaultTTLs[category]
}
