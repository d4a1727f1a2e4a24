package models

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies an upstream government data source.
type Provider string

const (
	ProviderCWA     Provider = "cwa"
	ProviderDataGov Provider = "datagov"
	ProviderCensus  Provider = "census"
)

// ParseProvider maps a request path segment to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderCWA:
		return ProviderCWA, nil
	case ProviderDataGov:
		return ProviderDataGov, nil
	case ProviderCensus:
		return ProviderCensus, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Metric names a measurement carried by a WeatherRecord.
type Metric string

const (
	MetricTemperature     Metric = "temperature"
	MetricHumidity        Metric = "humidity"
	MetricRainProbability Metric = "rainProbability"
	MetricWindSpeed       Metric = "windSpeed"
	MetricMagnitude       Metric = "magnitude"
	MetricDepth           Metric = "depth"
	MetricPopulation      Metric = "population"
	MetricAirQuality      Metric = "aqi"
)

// Severity of an alert event.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Comparator for threshold rules. Both comparisons are strict.
type Comparator string

const (
	ComparatorGreaterThan Comparator = "greaterThan"
	ComparatorLessThan    Comparator = "lessThan"
)

// WeatherRecord is the common tabular schema every provider payload is
// normalized into. Immutable once produced.
type WeatherRecord struct {
	Location   string    `json:"location"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ObservedAt time.Time `json:"observedAt"`
	Metric     Metric    `json:"metric"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
}

// ThresholdRule is read-only alerting configuration.
type ThresholdRule struct {
	Metric     Metric     `json:"metric" yaml:"metric"`
	Comparator Comparator `json:"comparator" yaml:"comparator"`
	Limit      float64    `json:"limit" yaml:"limit"`
	Severity   Severity   `json:"severity" yaml:"severity"`
}

// AlertEvent is derived from a WeatherRecord batch on each evaluation and is
// never persisted independently of it.
type AlertEvent struct {
	Location          string   `json:"location"`
	Severity          Severity `json:"severity"`
	Metric            Metric   `json:"metric"`
	ThresholdBreached float64  `json:"thresholdBreached"`
	ObservedValue     float64  `json:"observedValue"`
	Message           string   `json:"message"`
}

// DatasetInfo describes one catalog entry (a fetchable upstream dataset).
type DatasetInfo struct {
	Provider    Provider `json:"provider"`
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
}
