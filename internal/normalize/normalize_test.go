package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/huanchen1107/TawinCWA/internal/client"
	"github.com/huanchen1107/TawinCWA/internal/models"
)

const cwaForecastPayload = `{
	"cwaopendata": {
		"dataset": {
			"location": [
				{
					"locationName": "臺北市",
					"lat": 25.037,
					"lon": 121.564,
					"weatherElement": [
						{
							"elementName": "MaxT",
							"time": [
								{
									"startTime": "2024-07-01T12:00:00+08:00",
									"parameter": {"parameterName": "36", "parameterUnit": "C"}
								}
							]
						},
						{
							"elementName": "PoP",
							"time": [
								{
									"startTime": "2024-07-01T12:00:00+08:00",
									"parameter": {"parameterName": "30", "parameterUnit": "百分比"}
								}
							]
						},
						{
							"elementName": "Wx",
							"time": [
								{
									"startTime": "2024-07-01T12:00:00+08:00",
									"parameter": {"parameterName": "午後短暫雷陣雨"}
								}
							]
						}
					]
				}
			]
		}
	}
}`

const cwaObservationPayload = `{
	"cwaopendata": {
		"dataset": {
			"location": [
				{
					"locationName": "臺北",
					"lat": 25.04,
					"lon": 121.51,
					"time": {"obsTime": "2024-07-01 14:00:00"},
					"weatherElement": [
						{"elementName": "TEMP", "elementValue": "33.2"},
						{"elementName": "HUMD", "elementValue": "0.78"},
						{"elementName": "WDSD", "elementValue": "-99"}
					]
				}
			]
		}
	}
}`

const cwaEarthquakePayload = `{
	"cwaopendata": {
		"dataset": {
			"earthquake": [
				{
					"earthquakeInfo": {
						"originTime": "2024-04-03T07:58:09+08:00",
						"epicenter": {"location": "花蓮縣近海", "lat": 23.77, "lon": 121.67},
						"magnitude": {"magnitudeValue": 7.2},
						"depth": {"value": 15.5}
					}
				}
			]
		}
	}
}`

// TestNormalizeCWAForecast verifies the forecast shape: one record per known
// weather element, Chinese location names canonicalized, Taiwan-local times
// converted to UTC, text elements ignored.
func TestNormalizeCWAForecast(t *testing.T) {
	res, err := Normalize(models.ProviderCWA, "F-C0032-001", []byte(cwaForecastPayload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2 (MaxT, PoP; Wx is text)", len(res.Records))
	}

	maxT := res.Records[0]
	if maxT.Location != "Taipei City" {
		t.Errorf("location = %q, want Taipei City", maxT.Location)
	}
	if maxT.Metric != models.MetricTemperature || maxT.Value != 36 || maxT.Unit != "°C" {
		t.Errorf("MaxT record = %+v", maxT)
	}
	wantTime := time.Date(2024, 7, 1, 4, 0, 0, 0, time.UTC)
	if !maxT.ObservedAt.Equal(wantTime) {
		t.Errorf("observedAt = %v, want %v (UTC)", maxT.ObservedAt, wantTime)
	}
	if maxT.Latitude != 25.037 || maxT.Longitude != 121.564 {
		t.Errorf("coordinates = (%v, %v)", maxT.Latitude, maxT.Longitude)
	}

	pop := res.Records[1]
	if pop.Metric != models.MetricRainProbability || pop.Value != 30 || pop.Unit != "%" {
		t.Errorf("PoP record = %+v", pop)
	}
}

// TestNormalizeCWAObservation verifies station observations, including the
// -99 missing-sensor convention counting as skipped.
func TestNormalizeCWAObservation(t *testing.T) {
	res, err := Normalize(models.ProviderCWA, "O-A0001-001", []byte(cwaObservationPayload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2 (TEMP, HUMD; WDSD is -99)", len(res.Records))
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 for the -99 reading", res.Skipped)
	}

	temp := res.Records[0]
	if temp.Metric != models.MetricTemperature || temp.Value != 33.2 {
		t.Errorf("TEMP record = %+v", temp)
	}
	// "2024-07-01 14:00:00" is Taiwan local time.
	wantTime := time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC)
	if !temp.ObservedAt.Equal(wantTime) {
		t.Errorf("observedAt = %v, want %v", temp.ObservedAt, wantTime)
	}
}

// TestNormalizeCWAEarthquake verifies one magnitude and one depth record per
// event.
func TestNormalizeCWAEarthquake(t *testing.T) {
	res, err := Normalize(models.ProviderCWA, "E-A0015-001", []byte(cwaEarthquakePayload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2 (magnitude + depth)", len(res.Records))
	}
	mag, depth := res.Records[0], res.Records[1]
	if mag.Metric != models.MetricMagnitude || mag.Value != 7.2 || mag.Unit != "ML" {
		t.Errorf("magnitude record = %+v", mag)
	}
	if depth.Metric != models.MetricDepth || depth.Value != 15.5 || depth.Unit != "km" {
		t.Errorf("depth record = %+v", depth)
	}
	if mag.Location != "花蓮縣近海" {
		t.Errorf("location = %q", mag.Location)
	}
}

// TestNormalizeCWALegacyRoot verifies that pre-rename payloads under
// "cwbopendata" still parse.
func TestNormalizeCWALegacyRoot(t *testing.T) {
	legacy := `{"cwbopendata":{"dataset":{"location":[{"locationName":"臺北","time":{"obsTime":"2024-07-01 14:00:00"},"weatherElement":[{"elementName":"TEMP","elementValue":"30"}]}]}}}`
	res, err := Normalize(models.ProviderCWA, "O-A0001-001", []byte(legacy))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}
}

// TestNormalizeTabular verifies the CKAN datastore shape with column aliases
// and per-row degradation: bad rows are skipped, good ones survive.
func TestNormalizeTabular(t *testing.T) {
	payload := `{"result":{"records":[
		{"location":"Taipei","temperature":"36.5","humidity":"70","observed_at":"2024-07-01T06:00:00Z","lat":"25.03","lon":"121.56"},
		{"location":"","temperature":"20"},
		{"station":"Kaohsiung","temp":"38°C","observed_at":"2024-07-01T06:00:00Z"}
	]}}`

	res, err := Normalize(models.ProviderDataGov, "datastore_search", []byte(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Records) != 3 {
		t.Fatalf("records = %d, want 3 (temp+humidity from row 1, temp from row 3)", len(res.Records))
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 for the nameless row", res.Skipped)
	}

	first := res.Records[0]
	if first.Location != "Taipei" || first.Value != 36.5 || first.Metric != models.MetricTemperature {
		t.Errorf("first record = %+v", first)
	}
	if first.Latitude != 25.03 || first.Longitude != 121.56 {
		t.Errorf("coordinates = (%v, %v)", first.Latitude, first.Longitude)
	}
	if res.Records[1].Metric != models.MetricHumidity {
		t.Errorf("second record metric = %q, want humidity", res.Records[1].Metric)
	}

	third := res.Records[2]
	if third.Location != "Kaohsiung" || third.Value != 38 || third.Unit != "°C" {
		t.Errorf("third record = %+v", third)
	}
}

// TestNormalizeTabular_MissingTimestampUsesClock verifies that a row with a
// location and metric but no time column gets the normalization instant.
func TestNormalizeTabular_MissingTimestampUsesClock(t *testing.T) {
	frozen := time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(frozen))
	defer SetClock(nil)

	payload := `{"location":"Taipei","temp":"36°C"}`
	res, err := Normalize(models.ProviderDataGov, "datastore_search", []byte(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}
	if !res.Records[0].ObservedAt.Equal(frozen) {
		t.Errorf("observedAt = %v, want frozen clock %v", res.Records[0].ObservedAt, frozen)
	}
}

// TestNormalizeTabular_BareArrayRoot verifies that an unwrapped JSON array of
// rows is accepted.
func TestNormalizeTabular_BareArrayRoot(t *testing.T) {
	payload := `[{"city":"Tainan","aqi":"54","timestamp":"2024-07-01T06:00:00Z"}]`
	res, err := Normalize(models.ProviderDataGov, "aqi", []byte(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Metric != models.MetricAirQuality {
		t.Fatalf("records = %+v, want one aqi record", res.Records)
	}
}

// TestNormalizeCensus verifies the array-of-arrays shape with the vintage year
// supplying the observation time.
func TestNormalizeCensus(t *testing.T) {
	payload := `[
		["NAME","P1_001N","state"],
		["Alabama","5024279","01"],
		["Alaska","733391","02"],
		["","12345","99"]
	]`
	res, err := Normalize(models.ProviderCensus, "2020/dec/pl", []byte(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(res.Records))
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 for the nameless row", res.Skipped)
	}

	first := res.Records[0]
	if first.Location != "Alabama" || first.Metric != models.MetricPopulation || first.Value != 5024279 {
		t.Errorf("first record = %+v", first)
	}
	if first.Unit != "persons" {
		t.Errorf("unit = %q, want persons", first.Unit)
	}
	wantVintage := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !first.ObservedAt.Equal(wantVintage) {
		t.Errorf("observedAt = %v, want vintage %v", first.ObservedAt, wantVintage)
	}
}

// TestNormalizeCensus_SchemaErrors verifies rejection of payloads without the
// header-row shape.
func TestNormalizeCensus_SchemaErrors(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"object payload", `{"not":"an array"}`},
		{"header only", `[["NAME","POP"]]`},
		{"non-array header", `["NAME", "POP"]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(models.ProviderCensus, "2020/dec/pl", []byte(tc.payload))
			if !errors.Is(err, client.ErrSchema) {
				t.Errorf("Normalize() = %v, want ErrSchema", err)
			}
		})
	}
}

// TestNormalize_InvalidJSON verifies that a non-JSON body is a schema error.
func TestNormalize_InvalidJSON(t *testing.T) {
	_, err := Normalize(models.ProviderCWA, "F-C0032-001", []byte("<html>gateway error</html>"))
	if !errors.Is(err, client.ErrSchema) {
		t.Fatalf("Normalize() = %v, want ErrSchema", err)
	}
}

// TestNormalize_NoUsableRecords verifies that a recognized shape yielding zero
// records escalates to a schema error carrying the skip count.
func TestNormalize_NoUsableRecords(t *testing.T) {
	payload := `{"result":{"records":[{"location":"","temp":"20"},{"note":"no columns"}]}}`
	_, err := Normalize(models.ProviderDataGov, "datastore_search", []byte(payload))
	if !errors.Is(err, client.ErrSchema) {
		t.Fatalf("Normalize() = %v, want ErrSchema when nothing usable", err)
	}
}

// TestParseQuantity verifies numeric-prefix parsing with unit suffixes.
func TestParseQuantity(t *testing.T) {
	cases := []struct {
		in      string
		value   float64
		unit    string
		wantErr bool
	}{
		{"36.5", 36.5, "", false},
		{"36°C", 36, "°C", false},
		{"25 %", 25, "%", false},
		{"-99", -99, "", false},
		{"+3.4 m/s", 3.4, "m/s", false},
		{"", 0, "", true},
		{"N/A", 0, "", true},
		{"-", 0, "", true},
	}
	for _, tc := range cases {
		value, unit, err := ParseQuantity(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseQuantity(%q) = %v, want error", tc.in, value)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseQuantity(%q): %v", tc.in, err)
			continue
		}
		if value != tc.value || unit != tc.unit {
			t.Errorf("ParseQuantity(%q) = (%v, %q), want (%v, %q)", tc.in, value, unit, tc.value, tc.unit)
		}
	}
}

// TestParseTime verifies UTC conversion across the accepted layouts.
func TestParseTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-07-01T06:00:00Z", time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC)},
		{"2024-07-01T14:00:00+08:00", time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC)},
		{"2024-07-01T14:00:00", time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC)},
		{"2024-07-01 14:00:00", time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC)},
		{"2024-07-01", time.Date(2024, 6, 30, 16, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseTime(tc.in)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "not a time", "07/01/2024"} {
		if _, err := ParseTime(bad); err == nil {
			t.Errorf("ParseTime(%q) = nil error, want failure", bad)
		}
	}
}

// TestCanonicalLocation verifies glyph-variant mapping and passthrough.
func TestCanonicalLocation(t *testing.T) {
	cases := map[string]string{
		"臺北市":      "Taipei City",
		"台北市":      "Taipei City",
		"高雄市":      "Kaohsiung City",
		"花蓮縣":      "Hualien County",
		"Somewhere": "Somewhere",
	}
	for in, want := range cases {
		if got := CanonicalLocation(in); got != want {
			t.Errorf("CanonicalLocation(%q) = %q, want %q", in, got, want)
		}
	}
}
