package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/huanchen1107/TawinCWA/internal/client"
	"github.com/huanchen1107/TawinCWA/internal/models"
)

// Column aliases for generic tabular payloads, matched case-insensitively.
var (
	locationColumns = []string{"location", "station", "place", "area", "city", "county", "site", "name"}
	timeColumns     = []string{"observedat", "observed_at", "obs_time", "datetime", "timestamp", "date", "time"}
	latColumns      = []string{"latitude", "lat"}
	lonColumns      = []string{"longitude", "lon", "lng"}

	// Ordered so a row with several metric columns emits records in a stable
	// sequence.
	tabularMetricColumns = []struct {
		column string
		spec   metricSpec
	}{
		{"temperature", metricSpec{models.MetricTemperature, "°C"}},
		{"temp", metricSpec{models.MetricTemperature, "°C"}},
		{"humidity", metricSpec{models.MetricHumidity, "%"}},
		{"rain_probability", metricSpec{models.MetricRainProbability, "%"}},
		{"precipitation_probability", metricSpec{models.MetricRainProbability, "%"}},
		{"pop", metricSpec{models.MetricRainProbability, "%"}},
		{"wind_speed", metricSpec{models.MetricWindSpeed, "m/s"}},
		{"windspeed", metricSpec{models.MetricWindSpeed, "m/s"}},
		{"magnitude", metricSpec{models.MetricMagnitude, "ML"}},
		{"mag", metricSpec{models.MetricMagnitude, "ML"}},
		{"depth", metricSpec{models.MetricDepth, "km"}},
		{"aqi", metricSpec{models.MetricAirQuality, ""}},
		{"population", metricSpec{models.MetricPopulation, "persons"}},
	}
)

// normalizeTabular handles data.gov-style payloads: an array of flat objects
// under one of the known roots (CKAN datastore results, bare arrays, or a
// single object standing for one row). Column names are matched through a
// small alias table, mirroring how heterogeneous catalog data actually looks.
func normalizeTabular(payload []byte) (Result, error) {
	rows, err := tabularRows(payload)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, row := range rows {
		if !row.IsObject() {
			res.Skipped++
			continue
		}
		fields := lowerFields(row)

		location := lookupString(fields, locationColumns)
		if location == "" {
			res.Skipped++
			continue
		}

		// A present-but-unparseable timestamp marks a malformed row; an absent
		// time column defaults to the normalization instant.
		var observedAt time.Time
		if raw := lookupString(fields, timeColumns); raw != "" {
			parsed, err := ParseTime(raw)
			if err != nil {
				res.Skipped++
				continue
			}
			observedAt = parsed
		} else {
			observedAt = clock.Now().UTC()
		}
		lat := lookupResult(fields, latColumns).Float()
		lon := lookupResult(fields, lonColumns).Float()

		emitted := false
		seen := make(map[models.Metric]bool)
		for _, mc := range tabularMetricColumns {
			column, spec := mc.column, mc.spec
			val, ok := fields[column]
			if !ok || seen[spec.metric] {
				continue
			}
			value, parsedUnit, err := ParseQuantity(val.String())
			if err != nil {
				continue
			}
			unit := spec.unit
			if parsedUnit != "" {
				unit = parsedUnit
			}
			res.Records = append(res.Records, models.WeatherRecord{
				Location:   CanonicalLocation(location),
				Latitude:   lat,
				Longitude:  lon,
				ObservedAt: observedAt,
				Metric:     spec.metric,
				Value:      value,
				Unit:       unit,
			})
			seen[spec.metric] = true
			emitted = true
		}
		if !emitted {
			res.Skipped++
		}
	}
	return res, nil
}

// tabularRows locates the row array inside the payload.
func tabularRows(payload []byte) ([]gjson.Result, error) {
	doc := gjson.ParseBytes(payload)

	for _, root := range []string{"result.records", "results", "data"} {
		if rows := doc.Get(root); rows.IsArray() {
			return rows.Array(), nil
		}
	}
	if doc.IsArray() {
		return doc.Array(), nil
	}
	if doc.IsObject() {
		// A single object is treated as one row.
		return []gjson.Result{doc}, nil
	}
	return nil, fmt.Errorf("%w: no tabular rows found", client.ErrSchema)
}

func lowerFields(row gjson.Result) map[string]gjson.Result {
	fields := make(map[string]gjson.Result)
	row.ForEach(func(key, value gjson.Result) bool {
		fields[strings.ToLower(strings.TrimSpace(key.String()))] = value
		return true
	})
	return fields
}

func lookupString(fields map[string]gjson.Result, names []string) string {
	return lookupResult(fields, names).String()
}

func lookupResult(fields map[string]gjson.Result, names []string) gjson.Result {
	for _, name := range names {
		if v, ok := fields[name]; ok && v.String() != "" {
			return v
		}
	}
	return gjson.Result{}
}
